package simple

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/AnishMulay/sandkernel/internal/console"
	"github.com/AnishMulay/sandkernel/internal/file_table"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	"github.com/AnishMulay/sandkernel/internal/storage_service/inmemory"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *SimpleSyscallService
	storage *inmemory.InMemoryStorageService
	stdout  *bytes.Buffer
}

func newFixture(t *testing.T, stdin string) *fixture {
	t.Helper()

	table, err := file_table.NewTable(file_table.DefaultCapacity)
	require.NoError(t, err)

	var out bytes.Buffer
	cons := console.NewConsole(strings.NewReader(stdin), &out)
	require.NoError(t, table.Install(file_table.StdinFD,
		file_table.NewOpenFile("stdin", cons.OpenForReading(), file_table.ModeReadOnly)))
	require.NoError(t, table.Install(file_table.StdoutFD,
		file_table.NewOpenFile("stdout", cons.OpenForWriting(), file_table.ModeWriteOnly)))

	storage := inmemory.NewInMemoryStorageService(zaplog.NewNop())
	require.NoError(t, storage.Start())

	return &fixture{
		svc:     NewSimpleSyscallService(table, storage, zaplog.NewNop()),
		storage: storage,
		stdout:  &out,
	}
}

func writeString(t *testing.T, svc *SimpleSyscallService, fd int, s string) {
	t.Helper()
	n, err := svc.Write(context.Background(), fd, []byte(s), len(s))
	require.NoError(t, err)
	require.Equal(t, len(s), n)
}

func TestSimpleSyscallService_FileScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	svc := f.svc

	fd, err := svc.Creat(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, fd)

	writeString(t, svc, fd, "first write\n")
	require.NoError(t, svc.Close(ctx, fd))

	fd, err = svc.Open(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, fd, "lowest free descriptor is reused after close")

	buf := make([]byte, 64)
	n, err := svc.Read(ctx, fd, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "fi", string(buf[:n]))

	n, err = svc.Read(ctx, fd, buf, 50)
	require.NoError(t, err)
	assert.Equal(t, "rst write\n", string(buf[:n]))

	n, err = svc.Read(ctx, fd, buf, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "exact end of file")

	writeString(t, svc, fd, "second write\n")
	require.NoError(t, svc.Close(ctx, fd))

	fd, err = svc.Open(ctx, "a.txt")
	require.NoError(t, err)
	n, err = svc.Read(ctx, fd, buf, len(buf))
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Equal(t, "first write\nsecond write\n", string(buf[:n]))
	require.NoError(t, svc.Close(ctx, fd))
}

func TestSimpleSyscallService_Exhaustion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	for i := 0; i < file_table.DefaultCapacity-file_table.FirstDynamicFD; i++ {
		fd, err := f.svc.Creat(ctx, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		assert.Equal(t, i+file_table.FirstDynamicFD, fd)
	}

	_, err := f.svc.Creat(ctx, "overflow")
	assert.ErrorIs(t, err, sys.ErrResourceExhausted)
	assert.Equal(t, -int(sys.EMFILE), sys.ToErrno(err))

	exists, err := f.storage.Exists(ctx, "overflow")
	require.NoError(t, err)
	assert.True(t, exists, "creat leaves the file behind when no slot is free")

	_, err = f.svc.Open(ctx, "f0")
	assert.ErrorIs(t, err, sys.ErrResourceExhausted)

	require.NoError(t, f.svc.Close(ctx, 9))
	fd, err := f.svc.Open(ctx, "overflow")
	require.NoError(t, err)
	assert.Equal(t, 9, fd)
}

func TestSimpleSyscallService_CloseErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	fd, err := f.svc.Creat(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, f.svc.Close(ctx, fd))

	tests := []struct {
		name string
		fd   int
	}{
		{"already closed", fd},
		{"never opened", 7},
		{"negative", -1},
		{"past capacity", 100},
		{"stdin", file_table.StdinFD},
		{"stdout", file_table.StdoutFD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Close(ctx, tt.fd)
			assert.ErrorIs(t, err, sys.ErrInvalidDescriptor)
			assert.Equal(t, -int(sys.EBADF), sys.ToErrno(err))
		})
	}

	assert.Equal(t, []int{0, 1}, f.svc.Table().Occupied())
}

func TestSimpleSyscallService_TransferErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "input")
	buf := make([]byte, 8)

	fd, err := f.svc.Creat(ctx, "x")
	require.NoError(t, err)

	tests := []struct {
		name    string
		op      func() (int, error)
		wantErr error
	}{
		{"read out of range", func() (int, error) { return f.svc.Read(ctx, 100, buf, 4) }, sys.ErrInvalidDescriptor},
		{"write out of range", func() (int, error) { return f.svc.Write(ctx, -3, buf, 4) }, sys.ErrInvalidDescriptor},
		{"read free slot", func() (int, error) { return f.svc.Read(ctx, 5, buf, 4) }, sys.ErrInvalidDescriptor},
		{"write to stdin", func() (int, error) { return f.svc.Write(ctx, file_table.StdinFD, buf, 4) }, sys.ErrNotWritable},
		{"read from stdout", func() (int, error) { return f.svc.Read(ctx, file_table.StdoutFD, buf, 4) }, sys.ErrNotReadable},
		{"count exceeds buffer", func() (int, error) { return f.svc.Read(ctx, fd, buf, 9) }, sys.ErrBadAddress},
		{"negative count", func() (int, error) { return f.svc.Write(ctx, fd, buf, -1) }, sys.ErrBadAddress},
		{"nil buffer", func() (int, error) { return f.svc.Write(ctx, fd, nil, 1) }, sys.ErrBadAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.op()
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, n)
		})
	}

	assert.Equal(t, []int{0, 1, fd}, f.svc.Table().Occupied())
}

func TestSimpleSyscallService_Console(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "typed")

	buf := make([]byte, 16)
	n, err := f.svc.Read(ctx, file_table.StdinFD, buf, len(buf))
	require.NoError(t, err)
	assert.Equal(t, "typed", string(buf[:n]))

	writeString(t, f.svc, file_table.StdoutFD, "hello\n")
	assert.Equal(t, "hello\n", f.stdout.String())
}

func TestSimpleSyscallService_ZeroCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	fd, err := f.svc.Creat(ctx, "z")
	require.NoError(t, err)

	n, err := f.svc.Write(ctx, fd, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.Read(ctx, fd, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSimpleSyscallService_Unlink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	fd, err := f.svc.Creat(ctx, "gone")
	require.NoError(t, err)
	writeString(t, f.svc, fd, "still here")

	require.NoError(t, f.svc.Unlink(ctx, "gone"))

	_, err = f.svc.Open(ctx, "gone")
	assert.ErrorIs(t, err, sys.ErrFileNotFound)
	assert.Equal(t, -int(sys.ENOENT), sys.ToErrno(err))

	err = f.svc.Unlink(ctx, "gone")
	assert.ErrorIs(t, err, sys.ErrFileNotFound)

	// the open record still reaches the data
	g, err := f.svc.Table().Get(fd)
	require.NoError(t, err)
	g.Offset = 0
	buf := make([]byte, 32)
	n, err := f.svc.Read(ctx, fd, buf, len(buf))
	require.NoError(t, err)
	assert.Equal(t, "still here", string(buf[:n]))

	require.NoError(t, f.svc.Close(ctx, fd))
}

func TestSimpleSyscallService_InvalidNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	tests := []struct {
		name string
		arg  string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("n", sys.MaxNameLength+1)},
		{"slash", "dir/file"},
		{"nul", "a\x00b"},
		{"dot dot", ".."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Creat(ctx, tt.arg)
			assert.ErrorIs(t, err, sys.ErrInvalidName)
			_, err = f.svc.Open(ctx, tt.arg)
			assert.ErrorIs(t, err, sys.ErrInvalidName)
			assert.ErrorIs(t, f.svc.Unlink(ctx, tt.arg), sys.ErrInvalidName)
		})
	}

	fd, err := f.svc.Creat(ctx, strings.Repeat("n", sys.MaxNameLength))
	require.NoError(t, err)
	require.NoError(t, f.svc.Close(ctx, fd))
}

func TestSimpleSyscallService_OpenMissing(t *testing.T) {
	f := newFixture(t, "")
	fd, err := f.svc.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, sys.ErrFileNotFound)
	assert.Equal(t, -1, fd)
	assert.Equal(t, []int{0, 1}, f.svc.Table().Occupied())
}
