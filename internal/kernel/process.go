package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AnishMulay/sandkernel/internal/file_table"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
	"github.com/AnishMulay/sandkernel/internal/syscall_service/simple"
	"go.uber.org/multierr"
)

type Process struct {
	pid    int
	kernel *Kernel
	table  *file_table.Table
	sys    *simple.SimpleSyscallService

	// life is held shared by in-flight file syscalls and exclusively by Exit,
	// so no record is installed after the table has been released.
	life   sync.RWMutex
	exited bool
	status int
}

func (p *Process) PID() int {
	return p.pid
}

func (p *Process) Table() *file_table.Table {
	return p.table
}

func (p *Process) Syscalls() sys.SyscallService {
	return p.sys
}

// ExitStatus reports the status passed to Exit and whether it happened.
func (p *Process) ExitStatus() (int, bool) {
	p.life.RLock()
	defer p.life.RUnlock()
	return p.status, p.exited
}

// Exit closes every open record, console included, and removes the process
// from the kernel. The last process to exit halts the kernel. Close failures
// are combined into the returned error; every record is closed regardless.
func (p *Process) Exit(status int) error {
	p.life.Lock()
	if p.exited {
		p.life.Unlock()
		return fmt.Errorf("%w: pid %d", ErrProcessExited, p.pid)
	}
	p.exited = true
	p.status = status
	released := p.table.ReleaseAll()
	p.life.Unlock()

	var err error
	for _, f := range released {
		f.Mu.Lock()
		if cerr := f.Handle.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %q: %w", f.Name, cerr))
		}
		f.Mu.Unlock()
	}

	if err != nil {
		p.kernel.ls.Warn(log_service.LogEvent{
			Message:  "process exit left handles unclosed",
			Metadata: map[string]any{"pid": p.pid, "error": err.Error()},
		})
	}
	p.kernel.ls.Info(log_service.LogEvent{
		Message:  "process exited",
		Metadata: map[string]any{"pid": p.pid, "status": status},
	})

	if p.kernel.unregister(p) {
		p.kernel.Halt()
	}
	return err
}

// HandleSyscall dispatches one syscall and returns what the user program
// sees: a non-negative result or a negated errno.
func (p *Process) HandleSyscall(ctx context.Context, num int, args Args) int {
	// halt and exit run outside life; Exit takes it exclusively
	switch num {
	case SyscallHalt:
		if !p.alive() {
			return sys.ToErrno(sys.ErrNoProcess)
		}
		p.logSyscall(num)
		p.kernel.Halt()
		return 0

	case SyscallExit:
		p.logSyscall(num)
		if err := p.Exit(args.Status); errors.Is(err, ErrProcessExited) {
			return sys.ToErrno(sys.ErrNoProcess)
		}
		// close failures are already logged; the status is what the caller asked for
		return args.Status
	}

	p.life.RLock()
	defer p.life.RUnlock()
	if p.exited {
		return sys.ToErrno(sys.ErrNoProcess)
	}
	p.logSyscall(num)

	switch num {
	case SyscallCreat:
		fd, err := p.sys.Creat(ctx, args.Name)
		return result(fd, err)

	case SyscallOpen:
		fd, err := p.sys.Open(ctx, args.Name)
		return result(fd, err)

	case SyscallRead:
		n, err := p.sys.Read(ctx, args.FD, args.Buf, args.Count)
		return result(n, err)

	case SyscallWrite:
		n, err := p.sys.Write(ctx, args.FD, args.Buf, args.Count)
		return result(n, err)

	case SyscallClose:
		return sys.ToErrno(p.sys.Close(ctx, args.FD))

	case SyscallUnlink:
		return sys.ToErrno(p.sys.Unlink(ctx, args.Name))

	default:
		p.kernel.ls.Warn(log_service.LogEvent{
			Message:  "unsupported syscall",
			Metadata: map[string]any{"pid": p.pid, "syscall": num},
		})
		return sys.ToErrno(sys.ErrNotImplemented)
	}
}

func (p *Process) alive() bool {
	p.life.RLock()
	defer p.life.RUnlock()
	return !p.exited
}

func (p *Process) logSyscall(num int) {
	p.kernel.ls.Debug(log_service.LogEvent{
		Message:  "syscall",
		Metadata: map[string]any{"pid": p.pid, "syscall": SyscallName(num)},
	})
}

func result(v int, err error) int {
	if err != nil {
		return sys.ToErrno(err)
	}
	return v
}
