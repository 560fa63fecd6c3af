// Package storage keeps per-job files in a private directory that is removed
// as a whole once the job is over.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidKey is returned when a key would resolve outside its workspace
var ErrInvalidKey = errors.New("invalid key: path traversal detected")

// Reader provides read access to workspace files
type Reader interface {
	// GetReader opens the file at key. The caller closes it.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether a regular file exists at key
	Exists(ctx context.Context, key string) (bool, error)
}

// Metadata describes one workspace file
type Metadata struct {
	Size        int64
	ContentType string
}

// ReaderWithMetadata provides read access with metadata
type ReaderWithMetadata interface {
	Reader

	// GetMetadata returns metadata for the file at key
	GetMetadata(ctx context.Context, key string) (*Metadata, error)
}

// Store is a job workspace: readable, writable and removable as a unit
type Store interface {
	ReaderWithMetadata

	// WriteFile writes data to key, replacing any previous content
	WriteFile(key string, data []byte) error

	// Remove deletes the workspace and everything in it
	Remove() error
}

var _ Store = (*Workspace)(nil)
