package syscall_service

import (
	"errors"
	"fmt"
)

// Errno values use the Linux numbering.
type Errno int

const (
	ENOENT Errno = 2
	ESRCH  Errno = 3
	EIO    Errno = 5
	EBADF  Errno = 9
	EACCES Errno = 13
	EFAULT Errno = 14
	EINVAL Errno = 22
	EMFILE Errno = 24
	ENOSYS Errno = 38
)

func (e Errno) Error() string {
	switch e {
	case ENOENT:
		return "ENOENT"
	case ESRCH:
		return "ESRCH"
	case EIO:
		return "EIO"
	case EBADF:
		return "EBADF"
	case EACCES:
		return "EACCES"
	case EFAULT:
		return "EFAULT"
	case EINVAL:
		return "EINVAL"
	case EMFILE:
		return "EMFILE"
	case ENOSYS:
		return "ENOSYS"
	default:
		return fmt.Sprintf("errno %d", int(e))
	}
}

// ToErrno collapses err into the negative result a syscall returns. nil maps
// to 0 and anything unrecognised to -EIO.
func ToErrno(err error) int {
	if err == nil {
		return 0
	}

	var e Errno
	switch {
	case errors.Is(err, ErrInvalidDescriptor):
		e = EBADF
	case errors.Is(err, ErrResourceExhausted):
		e = EMFILE
	case errors.Is(err, ErrFileNotFound):
		e = ENOENT
	case errors.Is(err, ErrInvalidName):
		e = EINVAL
	case errors.Is(err, ErrNotReadable), errors.Is(err, ErrNotWritable):
		e = EACCES
	case errors.Is(err, ErrBadAddress):
		e = EFAULT
	case errors.Is(err, ErrNotImplemented):
		e = ENOSYS
	case errors.Is(err, ErrNoProcess):
		e = ESRCH
	case errors.As(err, &e):
	default:
		e = EIO
	}
	return -int(e)
}

// ErrorFromErrno reverses ToErrno for callers on the far side of an ABI or
// wire boundary. Non-negative results are not errors.
func ErrorFromErrno(result int) error {
	if result >= 0 {
		return nil
	}

	switch Errno(-result) {
	case EBADF:
		return ErrInvalidDescriptor
	case EMFILE:
		return ErrResourceExhausted
	case ENOENT:
		return ErrFileNotFound
	case EINVAL:
		return ErrInvalidName
	case EACCES:
		return fmt.Errorf("%w or %w", ErrNotReadable, ErrNotWritable)
	case EFAULT:
		return ErrBadAddress
	case ENOSYS:
		return ErrNotImplemented
	case ESRCH:
		return ErrNoProcess
	case EIO:
		return ErrStorage
	default:
		return Errno(-result)
	}
}
