package console

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
)

var ErrWrongDirection = errors.New("console stream does not support this direction")

// Console is the process-wide terminal. Streams ignore offsets; every read
// consumes input and every write appends output.
type Console struct {
	inMu  sync.Mutex
	in    io.Reader
	outMu sync.Mutex
	out   io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) OpenForReading() ss.Handle {
	return &stream{c: c, read: true}
}

func (c *Console) OpenForWriting() ss.Handle {
	return &stream{c: c}
}

type stream struct {
	c      *Console
	read   bool
	closed atomic.Bool
}

// ReadAt returns whatever a single Read of the input yields. End of input is
// a zero-length read.
func (s *stream) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if s.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if !s.read {
		return 0, ErrWrongDirection
	}
	if len(p) == 0 || s.c.in == nil {
		return 0, nil
	}

	s.c.inMu.Lock()
	defer s.c.inMu.Unlock()

	n, err := s.c.in.Read(p)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (s *stream) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if s.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if s.read {
		return 0, ErrWrongDirection
	}
	if s.c.out == nil {
		return len(p), nil
	}

	s.c.outMu.Lock()
	defer s.c.outMu.Unlock()
	return s.c.out.Write(p)
}

func (s *stream) Size(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ss.ErrHandleClosed
	}
	return nil
}
