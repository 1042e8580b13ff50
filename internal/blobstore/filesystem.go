package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilesystemStore backs BlobStore with a local directory tree, for
// development and tests where no bucket is configured. There is no
// ecosystem library for this in the retrieval pack — a local dev store is
// inherently a thin stdlib os/io wrapper, so it stays on the standard
// library rather than reaching for one.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

func (f *FilesystemStore) path(key string) string {
	return filepath.Join(f.root, filepath.Clean("/"+key))
}

func (f *FilesystemStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	p := f.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("create blob file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (f *FilesystemStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(f.path(key))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

func (f *FilesystemStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
