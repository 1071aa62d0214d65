//go:build unix

package hostfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"golang.org/x/sys/unix"
)

// HostFSStorageService maps each name to a regular file in one host
// directory. Data moves with pread/pwrite so handles carry no cursor of
// their own.
type HostFSStorageService struct {
	root string
	ls   log_service.LogService
}

func NewHostFSStorageService(root string, ls log_service.LogService) *HostFSStorageService {
	return &HostFSStorageService{
		root: root,
		ls:   ls,
	}
}

// --- Lifecycle ---

func (s *HostFSStorageService) Start() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting HostFS Storage Service",
		Metadata: map[string]any{"root": s.root},
	})
	if err := os.MkdirAll(s.root, 0755); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to create storage root",
			Metadata: map[string]any{"root": s.root, "error": err.Error()},
		})
		return err
	}
	return nil
}

func (s *HostFSStorageService) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping HostFS Storage Service"})
	return nil
}

func (s *HostFSStorageService) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return "", ss.ErrInvalidName
	}
	return filepath.Join(s.root, name), nil
}

func (s *HostFSStorageService) openFile(name string, flags int, perm uint32) (ss.Handle, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	var fd int
	for {
		fd, err = unix.Open(p, flags|unix.O_CLOEXEC, perm)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, ss.ErrNotFound
		}
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return &hostHandle{fd: fd}, nil
}

// --- Namespace ---

func (s *HostFSStorageService) Create(ctx context.Context, name string) (ss.Handle, error) {
	h, err := s.openFile(name, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Create failed",
			Metadata: map[string]any{"name": name, "error": err.Error()},
		})
		return nil, err
	}
	return h, nil
}

func (s *HostFSStorageService) Open(ctx context.Context, name string) (ss.Handle, error) {
	return s.openFile(name, unix.O_RDWR, 0)
}

func (s *HostFSStorageService) Remove(ctx context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := unix.Unlink(p); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return ss.ErrNotFound
		}
		return fmt.Errorf("unlink %q: %w", name, err)
	}
	return nil
}

func (s *HostFSStorageService) Exists(ctx context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	var st unix.Stat_t
	if err := unix.Stat(p, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// --- Handle ---

type hostHandle struct {
	fd     int
	closed atomic.Bool
}

func (h *hostHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}

	total := 0
	for total < len(p) {
		n, err := unix.Pread(h.fd, p[total:], off+int64(total))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
	}
	return total, nil
}

func (h *hostHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}

	total := 0
	for total < len(p) {
		n, err := unix.Pwrite(h.fd, p[total:], off+int64(total))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
		total += n
	}
	return total, nil
}

func (h *hostHandle) Size(ctx context.Context) (int64, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	var st unix.Stat_t
	if err := unix.Fstat(h.fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

func (h *hostHandle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ss.ErrHandleClosed
	}
	return unix.Close(h.fd)
}

var _ ss.StorageService = (*HostFSStorageService)(nil)
