package syscall_service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AnishMulay/sandkernel/internal/file_table"
)

var (
	ErrInvalidDescriptor = file_table.ErrInvalidDescriptor
	ErrResourceExhausted = file_table.ErrResourceExhausted
	ErrNotReadable       = file_table.ErrNotReadable
	ErrNotWritable       = file_table.ErrNotWritable

	ErrFileNotFound   = errors.New("no such file")
	ErrInvalidName    = errors.New("invalid file name")
	ErrBadAddress     = errors.New("bad buffer address")
	ErrStorage        = errors.New("storage failure")
	ErrNotImplemented = errors.New("syscall not implemented")
	ErrNoProcess      = errors.New("no such process")
)

// ValidateName rejects names the flat namespace cannot hold.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidName, MaxNameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q contains a separator or NUL", ErrInvalidName, name)
	}
	return nil
}

// CheckBuffer verifies count bytes fit in buf.
func CheckBuffer(buf []byte, count int) error {
	if count < 0 || count > len(buf) {
		return fmt.Errorf("%w: count %d, buffer %d", ErrBadAddress, count, len(buf))
	}
	return nil
}
