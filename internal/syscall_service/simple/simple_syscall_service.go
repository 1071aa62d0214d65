package simple

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/AnishMulay/sandkernel/internal/file_table"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	sys "github.com/AnishMulay/sandkernel/internal/syscall_service"
)

// SimpleSyscallService runs file syscalls for one process against its
// descriptor table and a shared storage backend.
type SimpleSyscallService struct {
	table   *file_table.Table
	storage ss.StorageService
	ls      log_service.LogService
}

func NewSimpleSyscallService(table *file_table.Table, storage ss.StorageService, ls log_service.LogService) *SimpleSyscallService {
	return &SimpleSyscallService{
		table:   table,
		storage: storage,
		ls:      ls,
	}
}

func (s *SimpleSyscallService) Table() *file_table.Table {
	return s.table
}

func (s *SimpleSyscallService) Creat(ctx context.Context, name string) (int, error) {
	if err := sys.ValidateName(name); err != nil {
		return -1, err
	}

	h, err := s.storage.Create(ctx, name)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "creat: backend create failed",
			Metadata: map[string]any{"name": name, "error": err.Error()},
		})
		return -1, translateStorageError(err)
	}

	return s.install(name, h)
}

func (s *SimpleSyscallService) Open(ctx context.Context, name string) (int, error) {
	if err := sys.ValidateName(name); err != nil {
		return -1, err
	}

	h, err := s.storage.Open(ctx, name)
	if err != nil {
		s.ls.Debug(log_service.LogEvent{
			Message:  "open: backend open failed",
			Metadata: map[string]any{"name": name, "error": err.Error()},
		})
		return -1, translateStorageError(err)
	}

	return s.install(name, h)
}

func (s *SimpleSyscallService) install(name string, h ss.Handle) (int, error) {
	fd, err := s.table.Allocate(file_table.NewOpenFile(name, h, file_table.ModeReadWrite))
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			s.ls.Warn(log_service.LogEvent{
				Message:  "closing unallocated handle failed",
				Metadata: map[string]any{"name": name, "error": cerr.Error()},
			})
		}
		s.ls.Warn(log_service.LogEvent{
			Message:  "descriptor allocation failed",
			Metadata: map[string]any{"name": name, "error": err.Error()},
		})
		return -1, err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "descriptor allocated",
		Metadata: map[string]any{"name": name, "fd": fd},
	})
	return fd, nil
}

func (s *SimpleSyscallService) Close(ctx context.Context, fd int) error {
	f, err := s.table.Release(fd)
	if err != nil {
		return err
	}

	// wait out any transfer still using the record
	f.Mu.Lock()
	defer f.Mu.Unlock()

	if err := f.Handle.Close(); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "close: releasing handle failed",
			Metadata: map[string]any{"fd": fd, "name": f.Name, "error": err.Error()},
		})
		return fmt.Errorf("%w: close %q: %w", sys.ErrStorage, f.Name, err)
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "descriptor closed",
		Metadata: map[string]any{"name": f.Name, "fd": fd},
	})
	return nil
}

func (s *SimpleSyscallService) Read(ctx context.Context, fd int, buf []byte, count int) (int, error) {
	f, err := s.table.Get(fd)
	if err != nil {
		return 0, err
	}
	if !f.Mode.Readable() {
		return 0, fmt.Errorf("%w: descriptor %d", sys.ErrNotReadable, fd)
	}
	if err := sys.CheckBuffer(buf, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	f.Mu.Lock()
	defer f.Mu.Unlock()

	n, err := f.Handle.ReadAt(ctx, buf[:count], f.Offset)
	f.Offset += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		s.ls.Error(log_service.LogEvent{
			Message:  "read failed",
			Metadata: map[string]any{"fd": fd, "name": f.Name, "offset": f.Offset, "error": err.Error()},
		})
		return n, translateStorageError(err)
	}
	return n, nil
}

func (s *SimpleSyscallService) Write(ctx context.Context, fd int, buf []byte, count int) (int, error) {
	f, err := s.table.Get(fd)
	if err != nil {
		return 0, err
	}
	if !f.Mode.Writable() {
		return 0, fmt.Errorf("%w: descriptor %d", sys.ErrNotWritable, fd)
	}
	if err := sys.CheckBuffer(buf, count); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	f.Mu.Lock()
	defer f.Mu.Unlock()

	n, err := f.Handle.WriteAt(ctx, buf[:count], f.Offset)
	f.Offset += int64(n)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "write failed",
			Metadata: map[string]any{"fd": fd, "name": f.Name, "written": n, "error": err.Error()},
		})
		return n, translateStorageError(err)
	}
	if n < count {
		return n, fmt.Errorf("%w: short write of %d/%d bytes", sys.ErrStorage, n, count)
	}
	return n, nil
}

func (s *SimpleSyscallService) Unlink(ctx context.Context, name string) error {
	if err := sys.ValidateName(name); err != nil {
		return err
	}

	if err := s.storage.Remove(ctx, name); err != nil {
		return translateStorageError(err)
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "file unlinked",
		Metadata: map[string]any{"name": name},
	})
	return nil
}

func translateStorageError(err error) error {
	switch {
	case errors.Is(err, ss.ErrNotFound):
		return fmt.Errorf("%w: %w", sys.ErrFileNotFound, err)
	case errors.Is(err, ss.ErrInvalidName):
		return fmt.Errorf("%w: %w", sys.ErrInvalidName, err)
	case errors.Is(err, ss.ErrHandleClosed):
		return fmt.Errorf("%w: %w", sys.ErrInvalidDescriptor, err)
	default:
		return fmt.Errorf("%w: %w", sys.ErrStorage, err)
	}
}
