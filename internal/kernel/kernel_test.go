package kernel

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnishMulay/sandkernel/internal/console"
	"github.com/AnishMulay/sandkernel/internal/file_table"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/AnishMulay/sandkernel/internal/storage_service/inmemory"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKernel(t *testing.T, halts *atomic.Int32, out *bytes.Buffer) *Kernel {
	t.Helper()
	storage := inmemory.NewInMemoryStorageService(zaplog.NewNop())
	require.NoError(t, storage.Start())

	var w io.Writer
	if out != nil {
		w = out
	}
	k, err := NewKernel(storage, console.NewConsole(strings.NewReader(""), w), file_table.DefaultCapacity,
		HaltFunc(func() { halts.Add(1) }), zaplog.NewNop())
	require.NoError(t, err)
	return k
}

func TestNewKernel_InvalidCapacity(t *testing.T) {
	_, err := NewKernel(nil, nil, 2, nil, zaplog.NewNop())
	assert.ErrorIs(t, err, file_table.ErrInvalidCapacity)
}

func TestProcess_HandleSyscallScenario(t *testing.T) {
	ctx := context.Background()
	var halts atomic.Int32
	var out bytes.Buffer
	k := newKernel(t, &halts, &out)

	p, err := k.Spawn()
	require.NoError(t, err)

	first := []byte("first write\n")
	second := []byte("second write\n")
	buf := make([]byte, 64)

	fd := p.HandleSyscall(ctx, SyscallCreat, Args{Name: "a.txt"})
	require.Equal(t, 2, fd)
	assert.Equal(t, 12, p.HandleSyscall(ctx, SyscallWrite, Args{FD: fd, Buf: first, Count: len(first)}))
	assert.Equal(t, 0, p.HandleSyscall(ctx, SyscallClose, Args{FD: fd}))

	fd = p.HandleSyscall(ctx, SyscallOpen, Args{Name: "a.txt"})
	require.Equal(t, 2, fd)
	assert.Equal(t, 2, p.HandleSyscall(ctx, SyscallRead, Args{FD: fd, Buf: buf, Count: 2}))
	assert.Equal(t, "fi", string(buf[:2]))
	assert.Equal(t, 10, p.HandleSyscall(ctx, SyscallRead, Args{FD: fd, Buf: buf, Count: 50}))
	assert.Equal(t, "rst write\n", string(buf[:10]))
	assert.Equal(t, 13, p.HandleSyscall(ctx, SyscallWrite, Args{FD: fd, Buf: second, Count: len(second)}))
	assert.Equal(t, 0, p.HandleSyscall(ctx, SyscallClose, Args{FD: fd}))

	fd = p.HandleSyscall(ctx, SyscallOpen, Args{Name: "a.txt"})
	n := p.HandleSyscall(ctx, SyscallRead, Args{FD: fd, Buf: buf, Count: len(buf)})
	require.Equal(t, 25, n)
	assert.Equal(t, "first write\nsecond write\n", string(buf[:n]))

	msg := []byte("done\n")
	assert.Equal(t, 5, p.HandleSyscall(ctx, SyscallWrite, Args{FD: file_table.StdoutFD, Buf: msg, Count: len(msg)}))
	assert.Equal(t, "done\n", out.String())
}

func TestProcess_HandleSyscallErrors(t *testing.T) {
	ctx := context.Background()
	var halts atomic.Int32
	k := newKernel(t, &halts, nil)

	p, err := k.Spawn()
	require.NoError(t, err)
	buf := make([]byte, 4)

	tests := []struct {
		name string
		num  int
		args Args
		want sys.Errno
	}{
		{"close unopened", SyscallClose, Args{FD: 5}, sys.EBADF},
		{"close stdin", SyscallClose, Args{FD: 0}, sys.EBADF},
		{"read out of range", SyscallRead, Args{FD: 100, Buf: buf, Count: 4}, sys.EBADF},
		{"write to stdin", SyscallWrite, Args{FD: 0, Buf: buf, Count: 4}, sys.EACCES},
		{"read from stdout", SyscallRead, Args{FD: 1, Buf: buf, Count: 1}, sys.EACCES},
		{"open missing", SyscallOpen, Args{Name: "missing"}, sys.ENOENT},
		{"unlink missing", SyscallUnlink, Args{Name: "missing"}, sys.ENOENT},
		{"creat bad name", SyscallCreat, Args{Name: "a/b"}, sys.EINVAL},
		{"count past buffer", SyscallWrite, Args{FD: 1, Buf: buf, Count: 5}, sys.EFAULT},
		{"exec", SyscallExec, Args{}, sys.ENOSYS},
		{"join", SyscallJoin, Args{}, sys.ENOSYS},
		{"unknown", 42, Args{}, sys.ENOSYS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, -int(tt.want), p.HandleSyscall(ctx, tt.num, tt.args))
		})
	}
	assert.Zero(t, halts.Load())
}

func TestProcess_ExitClosesEverythingAndLastExitHalts(t *testing.T) {
	ctx := context.Background()
	var halts atomic.Int32
	k := newKernel(t, &halts, nil)

	p1, err := k.Spawn()
	require.NoError(t, err)
	p2, err := k.Spawn()
	require.NoError(t, err)
	assert.Equal(t, []int{p1.PID(), p2.PID()}, k.Processes())

	fd := p1.HandleSyscall(ctx, SyscallCreat, Args{Name: "f"})
	require.GreaterOrEqual(t, fd, 2)

	assert.Equal(t, 3, p1.HandleSyscall(ctx, SyscallExit, Args{Status: 3}))
	assert.Empty(t, p1.Table().Occupied())
	status, exited := p1.ExitStatus()
	assert.True(t, exited)
	assert.Equal(t, 3, status)
	assert.Zero(t, halts.Load(), "another process is still running")

	assert.Equal(t, -int(sys.ESRCH), p1.HandleSyscall(ctx, SyscallOpen, Args{Name: "f"}))
	assert.ErrorIs(t, p1.Exit(0), ErrProcessExited)

	_, err = k.Process(p1.PID())
	assert.ErrorIs(t, err, sys.ErrNoProcess)

	require.NoError(t, p2.Exit(0))
	assert.EqualValues(t, 1, halts.Load())
	assert.True(t, k.Halted())

	_, err = k.Spawn()
	assert.ErrorIs(t, err, ErrKernelHalted)
}

func TestKernel_HaltOnce(t *testing.T) {
	var halts atomic.Int32
	k := newKernel(t, &halts, nil)

	p, err := k.Spawn()
	require.NoError(t, err)

	assert.Equal(t, 0, p.HandleSyscall(context.Background(), SyscallHalt, Args{}))
	k.Halt()
	assert.EqualValues(t, 1, halts.Load())
}

func TestProcess_SeparateTables(t *testing.T) {
	ctx := context.Background()
	var halts atomic.Int32
	k := newKernel(t, &halts, nil)

	p1, err := k.Spawn()
	require.NoError(t, err)
	p2, err := k.Spawn()
	require.NoError(t, err)

	fd1, err := p1.Syscalls().Creat(ctx, "shared")
	require.NoError(t, err)
	fd2, err := p2.Syscalls().Open(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, fd1, fd2, "each process numbers its own descriptors")

	require.NoError(t, p1.Syscalls().Close(ctx, fd1))
	_, err = p2.Table().Get(fd2)
	assert.NoError(t, err)
}

// gatedStorage holds Create until release is closed.
type gatedStorage struct {
	ss.StorageService
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) Create(ctx context.Context, name string) (ss.Handle, error) {
	close(g.entered)
	<-g.release
	return g.StorageService.Create(ctx, name)
}

func TestProcess_ExitWaitsForInFlightCreat(t *testing.T) {
	ctx := context.Background()
	inner := inmemory.NewInMemoryStorageService(zaplog.NewNop())
	require.NoError(t, inner.Start())
	storage := &gatedStorage{StorageService: inner, entered: make(chan struct{}), release: make(chan struct{})}

	var halts atomic.Int32
	k, err := NewKernel(storage, console.NewConsole(strings.NewReader(""), nil), file_table.DefaultCapacity,
		HaltFunc(func() { halts.Add(1) }), zaplog.NewNop())
	require.NoError(t, err)
	p, err := k.Spawn()
	require.NoError(t, err)

	var wg sync.WaitGroup
	var fd int
	wg.Add(1)
	go func() {
		defer wg.Done()
		fd = p.HandleSyscall(ctx, SyscallCreat, Args{Name: "slow"})
	}()
	<-storage.entered

	exitDone := make(chan error, 1)
	go func() { exitDone <- p.Exit(0) }()

	select {
	case <-exitDone:
		t.Fatal("exit finished while creat was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	close(storage.release)
	wg.Wait()
	require.NoError(t, <-exitDone)

	assert.Equal(t, 2, fd)
	assert.Empty(t, p.Table().Occupied())
	assert.EqualValues(t, 1, halts.Load())
	assert.Equal(t, -int(sys.ESRCH), p.HandleSyscall(ctx, SyscallExit, Args{Status: 0}))
	assert.Equal(t, -int(sys.ESRCH), p.HandleSyscall(ctx, SyscallHalt, Args{}))
}
