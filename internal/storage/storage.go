// Package storage wraps the S3-compatible bucket that receives matrix snapshots and can hold feed
// files.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"time"
)

// ObjectInfo describes one stored object. Keys are relative to the client's prefix.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage is implemented by MinioClient and by test fakes.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}

// FetchPrefix downloads every object under prefix accepted by keep into dir, flattening keys to
// their base name. Paths come back sorted.
func FetchPrefix(ctx context.Context, store ObjectStorage, prefix, dir string, keep func(key string) bool) ([]string, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, obj := range objects {
		if keep != nil && !keep(obj.Key) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		dest := filepath.Join(dir, path.Base(obj.Key))
		if err := store.DownloadObject(ctx, obj.Key, dest); err != nil {
			return paths, fmt.Errorf("fetch %s: %w", obj.Key, err)
		}
		paths = append(paths, dest)
	}
	sort.Strings(paths)
	return paths, nil
}
