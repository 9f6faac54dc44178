package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/feeds"
)

// Lister is the part of Service the downloader needs.
type Lister interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
}

// DownloadOptions controls how feed files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
}

// Downloader copies feed files from a Drive folder to local disk.
type Downloader struct {
	service Lister
}

func NewDownloader(s Lister) *Downloader {
	return &Downloader{service: s}
}

// DownloadFeeds downloads every CSV or XLSX file in the folder whose name maps to a feed kind and
// returns the local paths. Other files are skipped.
func (d *Downloader) DownloadFeeds(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.service.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".csv", ".xlsx", ".xlsm":
		default:
			continue
		}
		if _, err := feeds.KindFromFilename(f.Name); err != nil {
			log.Debug().Str("file", f.Name).Msg("drive: not a feed file, skipping")
			continue
		}

		localPath := filepath.Join(opts.DownloadDir, filepath.Base(f.Name))
		if err := d.download(ctx, f, localPath); err != nil {
			return nil, err
		}
		log.Info().Str("file", f.Name).Str("path", localPath).Msg("drive: feed downloaded")
		localPaths = append(localPaths, localPath)
	}

	return localPaths, nil
}

func (d *Downloader) download(ctx context.Context, f *File, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.service.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	return out.Close()
}
