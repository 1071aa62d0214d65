package storage_service

import (
	"errors"
	"os"
)

var (
	// ErrNotFound matches os.ErrNotExist so callers may test either.
	ErrNotFound = os.ErrNotExist

	ErrInvalidName    = errors.New("invalid file name")
	ErrHandleClosed   = errors.New("storage handle already closed")
	ErrNegativeOffset = errors.New("negative offset")
)
