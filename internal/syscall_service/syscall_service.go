package syscall_service

import "context"

// MaxNameLength bounds file names passed to creat, open and unlink.
const MaxNameLength = 256

// SyscallService is the file half of a process's syscall surface. Every
// method reports failures as errors matching the sentinels in errors.go;
// ToErrno collapses them to the negative integers user programs see.
type SyscallService interface {
	// Creat creates or truncates name and returns a read-write descriptor.
	Creat(ctx context.Context, name string) (int, error)

	// Open returns a read-write descriptor for an existing file.
	Open(ctx context.Context, name string) (int, error)

	// Read transfers up to count bytes into buf from the descriptor's offset.
	Read(ctx context.Context, fd int, buf []byte, count int) (int, error)

	// Write transfers count bytes of buf to the descriptor's offset.
	Write(ctx context.Context, fd int, buf []byte, count int) (int, error)

	Close(ctx context.Context, fd int) error

	// Unlink removes name. Descriptors already open on it keep working.
	Unlink(ctx context.Context, name string) error
}
