// Package storage defines the blob store contract shared by the local,
// in-memory and GCS backends that hold model artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when nothing is stored at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and writes opaque objects by path.
type BlobStore interface {
	// PutObject stores the reader's content and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject opens the object at path. Callers close the reader.
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}
