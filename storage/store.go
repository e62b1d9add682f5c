// Package storage implements the Storage Planner: drive enumeration and
// scoring, per-component space requirement calculation, selective-install
// bin-packing, multi-drive distribution, and removal suggestions. It also
// defines the ArtifactStore port the download engine stages verified
// artifacts through, with a local filesystem and an S3-backed "network"
// drive implementation.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArtifactStore abstracts where verified component artifacts are staged and
// kept. Stat/Get/Put rather than Read/Write so a single interface covers
// both streamed local files and S3 objects, whose natural operations are
// head/get/put.
type ArtifactStore interface {
	Stat(ctx context.Context, name string) (size int64, exists bool, err error)
	Get(ctx context.Context, name string) (r io.ReadCloser, exists bool, err error)
	Put(ctx context.Context, name string) (w io.WriteCloser, err error)
	Delete(ctx context.Context, name string) error
}

var _ ArtifactStore = (*FileSystem)(nil)

// FileSystem implements ArtifactStore using the local filesystem.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem-backed ArtifactStore rooted at
// basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

func (fs *FileSystem) Stat(_ context.Context, name string) (int64, bool, error) {
	info, err := os.Stat(filepath.Join(fs.basePath, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Size(), true, nil
}

func (fs *FileSystem) Get(_ context.Context, name string) (io.ReadCloser, bool, error) {
	file, err := os.Open(filepath.Join(fs.basePath, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return file, true, nil
}

func (fs *FileSystem) Put(_ context.Context, name string) (io.WriteCloser, error) {
	fullPath := filepath.Join(fs.basePath, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("storage: creating file: %w", err)
	}
	return file, nil
}

func (fs *FileSystem) Delete(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(fs.basePath, name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
