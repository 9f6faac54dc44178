package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/AdvantusAI/m8-collab/internal/config"
	"github.com/AdvantusAI/m8-collab/internal/drive"
	"github.com/AdvantusAI/m8-collab/internal/feeds"
	"github.com/AdvantusAI/m8-collab/internal/repository"
	"github.com/AdvantusAI/m8-collab/internal/storage"
	"github.com/AdvantusAI/m8-collab/pkg/logger"
)

func runFeeds(c *cli.Context) error {
	db, _, err := dbFrom(c)
	if err != nil {
		return err
	}
	dataDir := c.String("data-dir")

	var paths []string
	switch {
	case c.Bool("drive"):
		paths, err = downloadFromDrive(c, dataDir)
	case c.Bool("from-storage"):
		paths, err = downloadFromStorage(c, dataDir)
	default:
		paths, err = feeds.ListFiles(dataDir)
	}
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		logger.Log.Warn().Str("dir", dataDir).Msg("No feed files found")
		return nil
	}

	loader := feeds.NewLoader(repository.NewFeedRepository(db))
	reports, err := loader.LoadFiles(c.Context, paths)
	for _, r := range reports {
		fmt.Printf("%-32s %-10s parsed=%d skipped=%d written=%d\n", r.Source, r.Kind, r.Parsed, r.Skipped, r.Written)
	}
	return err
}

func downloadFromStorage(c *cli.Context, dataDir string) ([]string, error) {
	store, err := storage.NewMinioClient(config.Load().Storage)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	return storage.FetchPrefix(c.Context, store, c.String("storage-prefix"), dataDir, func(key string) bool {
		_, err := feeds.KindFromFilename(key)
		return err == nil
	})
}

func downloadFromDrive(c *cli.Context, dataDir string) ([]string, error) {
	driveCfg := config.Load().Drive
	credentials := c.String("credentials")
	if credentials == "" {
		credentials = driveCfg.CredentialsFile
	}
	folder := c.String("drive-folder")
	if folder == "" {
		folder = driveCfg.FolderID
	}
	if !c.IsSet("data-dir") && driveCfg.DownloadDir != "" {
		dataDir = driveCfg.DownloadDir
	}

	if credentials == "" {
		return nil, fmt.Errorf("--credentials is required with --drive")
	}
	if folder == "" {
		return nil, fmt.Errorf("--drive-folder is required with --drive")
	}

	svc, err := drive.NewServiceFromFile(c.Context, credentials)
	if err != nil {
		return nil, err
	}
	if strings.Contains(folder, "/") {
		if folder, err = svc.FindFolderByPath(c.Context, folder); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	return drive.NewDownloader(svc).DownloadFeeds(c.Context, drive.DownloadOptions{
		FolderID:    folder,
		DownloadDir: dataDir,
	})
}
