// Package blobstore defines the BlobStore external collaborator the
// Attachment Coordinator persists uploads through, plus two
// implementations: an S3-backed one for production and a filesystem-backed
// one for local development and tests.
package blobstore

import (
	"context"
	"io"
)

// BlobStore is the opaque storage backend named in spec §6.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
