package inmemory

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
)

type memFile struct {
	mu   sync.RWMutex
	data []byte
}

// InMemoryStorageService keeps every container in process memory.
type InMemoryStorageService struct {
	mu    sync.RWMutex
	files map[string]*memFile
	ls    log_service.LogService
}

func NewInMemoryStorageService(ls log_service.LogService) *InMemoryStorageService {
	return &InMemoryStorageService{
		files: make(map[string]*memFile),
		ls:    ls,
	}
}

// --- Lifecycle ---

func (s *InMemoryStorageService) Start() error {
	s.ls.Info(log_service.LogEvent{Message: "Starting In-Memory Storage Service"})
	return nil
}

func (s *InMemoryStorageService) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping In-Memory Storage Service"})
	return nil
}

// --- Namespace ---

func (s *InMemoryStorageService) Create(ctx context.Context, name string) (ss.Handle, error) {
	if name == "" {
		return nil, ss.ErrInvalidName
	}

	s.mu.Lock()
	f, ok := s.files[name]
	if !ok {
		f = &memFile{}
		s.files[name] = f
	}
	s.mu.Unlock()

	if ok {
		f.mu.Lock()
		f.data = f.data[:0]
		f.mu.Unlock()
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Created file",
		Metadata: map[string]any{"name": name, "truncated": ok},
	})
	return &memHandle{f: f}, nil
}

func (s *InMemoryStorageService) Open(ctx context.Context, name string) (ss.Handle, error) {
	s.mu.RLock()
	f, ok := s.files[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ss.ErrNotFound
	}
	return &memHandle{f: f}, nil
}

func (s *InMemoryStorageService) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[name]; !ok {
		return ss.ErrNotFound
	}
	delete(s.files, name)

	s.ls.Debug(log_service.LogEvent{
		Message:  "Removed file",
		Metadata: map[string]any{"name": name},
	})
	return nil
}

func (s *InMemoryStorageService) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[name]
	return ok, nil
}

// --- Handle ---

type memHandle struct {
	f      *memFile
	closed atomic.Bool
}

func (h *memHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}

	h.f.mu.RLock()
	defer h.f.mu.RUnlock()

	if off >= int64(len(h.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *memHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}

	h.f.mu.Lock()
	defer h.f.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(h.f.data)) {
		grown := make([]byte, end)
		copy(grown, h.f.data)
		h.f.data = grown
	}
	return copy(h.f.data[off:end], p), nil
}

func (h *memHandle) Size(ctx context.Context) (int64, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	return int64(len(h.f.data)), nil
}

func (h *memHandle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ss.ErrHandleClosed
	}
	return nil
}

var _ ss.StorageService = (*InMemoryStorageService)(nil)
