package file_table

import "errors"

var (
	ErrInvalidDescriptor = errors.New("bad file descriptor")
	ErrResourceExhausted = errors.New("too many open files")
	ErrNotReadable       = errors.New("file not open for reading")
	ErrNotWritable       = errors.New("file not open for writing")
	ErrInvalidCapacity   = errors.New("table capacity must exceed the reserved descriptors")
)
