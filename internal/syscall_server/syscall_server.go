package syscall_server

// SyscallServer exposes a kernel's syscalls over a communicator.
type SyscallServer interface {
	Start() error
	Stop() error
}
