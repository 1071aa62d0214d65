package storage_service

import (
	"context"
)

// Handle is one open reference to a named byte container. It stays usable
// after its name is removed, until Close.
type Handle interface {
	// ReadAt reads up to len(p) bytes starting at off. At end of file it
	// returns the bytes available, possibly zero, with a nil error or io.EOF.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// WriteAt writes p at off, growing the container when needed.
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)

	Size(ctx context.Context) (int64, error)

	// Close releases the handle. A second Close returns ErrHandleClosed.
	Close() error
}

// StorageService is the flat namespace of named containers the file table
// sits on.
type StorageService interface {
	// --- Lifecycle ---
	Start() error
	Stop() error

	// Create makes an empty container or truncates an existing one.
	Create(ctx context.Context, name string) (Handle, error)

	// Open returns a handle to an existing container, or ErrNotFound.
	Open(ctx context.Context, name string) (Handle, error)

	// Remove drops the name. Handles already open keep working.
	Remove(ctx context.Context, name string) error

	Exists(ctx context.Context, name string) (bool, error)
}
