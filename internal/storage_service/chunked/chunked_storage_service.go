package chunked

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	cs "github.com/AnishMulay/sandkernel/internal/chunk_service"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/google/uuid"
)

const DefaultChunkSize int64 = 64 * 1024

type inode struct {
	mu     sync.RWMutex
	id     string
	size   int64
	chunks []string

	// guarded by ChunkedStorageService.mu
	opens    int
	unlinked bool
}

// ChunkedStorageService splits every file into fixed-size chunks held by a
// ChunkService. The name table lives in memory; chunk data lives wherever
// the ChunkService puts it.
type ChunkedStorageService struct {
	mu        sync.Mutex
	names     map[string]*inode
	cs        cs.ChunkService
	chunkSize int64
	ls        log_service.LogService
}

func NewChunkedStorageService(chunks cs.ChunkService, chunkSize int64, ls log_service.LogService) *ChunkedStorageService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkedStorageService{
		names:     make(map[string]*inode),
		cs:        chunks,
		chunkSize: chunkSize,
		ls:        ls,
	}
}

// --- Lifecycle ---

func (s *ChunkedStorageService) Start() error {
	s.ls.Info(log_service.LogEvent{
		Message:  "Starting Chunked Storage Service",
		Metadata: map[string]any{"chunkSize": s.chunkSize},
	})
	return nil
}

func (s *ChunkedStorageService) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping Chunked Storage Service"})
	return nil
}

// --- Namespace ---

func (s *ChunkedStorageService) Create(ctx context.Context, name string) (ss.Handle, error) {
	if name == "" {
		return nil, ss.ErrInvalidName
	}

	s.mu.Lock()
	ino, exists := s.names[name]
	if !exists {
		ino = &inode{id: uuid.New().String()}
		s.names[name] = ino
	}
	ino.opens++
	s.mu.Unlock()

	if exists {
		ino.mu.Lock()
		old := ino.chunks
		ino.chunks = nil
		ino.size = 0
		ino.mu.Unlock()
		s.collect(ctx, ino.id, old)
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Created file",
		Metadata: map[string]any{"name": name, "inodeID": ino.id, "truncated": exists},
	})
	return &chunkHandle{svc: s, ino: ino}, nil
}

func (s *ChunkedStorageService) Open(ctx context.Context, name string) (ss.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ino, ok := s.names[name]
	if !ok {
		return nil, ss.ErrNotFound
	}
	ino.opens++
	return &chunkHandle{svc: s, ino: ino}, nil
}

func (s *ChunkedStorageService) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	ino, ok := s.names[name]
	if !ok {
		s.mu.Unlock()
		return ss.ErrNotFound
	}
	delete(s.names, name)
	ino.unlinked = true
	idle := ino.opens == 0
	s.mu.Unlock()

	s.ls.Debug(log_service.LogEvent{
		Message:  "Removed file",
		Metadata: map[string]any{"name": name, "inodeID": ino.id, "deferredGC": !idle},
	})

	if idle {
		s.collectInode(ctx, ino)
	}
	return nil
}

func (s *ChunkedStorageService) Exists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok, nil
}

func (s *ChunkedStorageService) release(ino *inode) {
	s.mu.Lock()
	ino.opens--
	idle := ino.opens == 0 && ino.unlinked
	s.mu.Unlock()

	if idle {
		s.collectInode(context.Background(), ino)
	}
}

func (s *ChunkedStorageService) collectInode(ctx context.Context, ino *inode) {
	ino.mu.Lock()
	chunks := ino.chunks
	ino.chunks = nil
	ino.size = 0
	ino.mu.Unlock()
	s.collect(ctx, ino.id, chunks)
}

// collect deletes chunks best effort. Chunks never written (holes) are
// already absent.
func (s *ChunkedStorageService) collect(ctx context.Context, inodeID string, chunks []string) {
	for _, chunkID := range chunks {
		err := s.cs.DeleteChunk(ctx, chunkID)
		if err != nil && !errors.Is(err, cs.ErrChunkNotFound) {
			s.ls.Warn(log_service.LogEvent{
				Message:  "Failed to GC chunk",
				Metadata: map[string]any{"inodeID": inodeID, "chunkID": chunkID, "error": err.Error()},
			})
		}
	}
}

// --- Data path ---

func (s *ChunkedStorageService) readChunk(ctx context.Context, chunkID string) ([]byte, error) {
	data, err := s.cs.ReadChunk(ctx, chunkID)
	if errors.Is(err, cs.ErrChunkNotFound) {
		return nil, nil
	}
	return data, err
}

func (s *ChunkedStorageService) read(ctx context.Context, ino *inode, p []byte, offset int64) (int, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	if offset >= ino.size {
		return 0, io.EOF
	}
	length := int64(len(p))
	if offset+length > ino.size {
		length = ino.size - offset
	}
	if length == 0 {
		return 0, nil
	}

	startChunkIdx := offset / s.chunkSize
	endChunkIdx := (offset + length - 1) / s.chunkSize
	out := p[:length]
	pos := 0

	for i := startChunkIdx; i <= endChunkIdx; i++ {
		chunkPos := i * s.chunkSize
		chunkReadStart := int64(0)
		if i == startChunkIdx {
			chunkReadStart = offset - chunkPos
		}
		chunkReadEnd := s.chunkSize
		if i == endChunkIdx {
			chunkReadEnd = (offset + length) - chunkPos
		}

		var data []byte
		if int(i) < len(ino.chunks) {
			var err error
			data, err = s.readChunk(ctx, ino.chunks[i])
			if err != nil {
				s.ls.Error(log_service.LogEvent{
					Message:  "Failed to read chunk",
					Metadata: map[string]any{"inodeID": ino.id, "chunkID": ino.chunks[i], "error": err.Error()},
				})
				return pos, err
			}
		}

		span := out[pos : pos+int(chunkReadEnd-chunkReadStart)]
		n := 0
		if chunkReadStart < int64(len(data)) {
			end := chunkReadEnd
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			n = copy(span, data[chunkReadStart:end])
		}
		// holes and short tail chunks read as zeros
		clear(span[n:])
		pos += len(span)
	}

	if int64(len(p)) > length {
		return pos, io.EOF
	}
	return pos, nil
}

func (s *ChunkedStorageService) write(ctx context.Context, ino *inode, data []byte, offset int64) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	ino.mu.Lock()
	defer ino.mu.Unlock()

	endPos := offset + int64(len(data))
	maxChunkIdx := (endPos - 1) / s.chunkSize

	newChunkList := append([]string(nil), ino.chunks...)
	for int64(len(newChunkList)) <= maxChunkIdx {
		newChunkList = append(newChunkList, uuid.New().String())
	}

	startChunkIdx := offset / s.chunkSize
	dataOffset := 0

	for i := startChunkIdx; i <= maxChunkIdx; i++ {
		chunkID := newChunkList[i]
		chunkStartPos := i * s.chunkSize

		writeStartInChunk := int64(0)
		if i == startChunkIdx {
			writeStartInChunk = offset - chunkStartPos
		}
		writeEndInChunk := s.chunkSize
		if i == maxChunkIdx {
			writeEndInChunk = endPos - chunkStartPos
		}
		part := data[dataOffset : dataOffset+int(writeEndInChunk-writeStartInChunk)]

		var existing []byte
		isFullOverwrite := writeStartInChunk == 0 && writeEndInChunk == s.chunkSize
		if !isFullOverwrite && int(i) < len(ino.chunks) {
			var err error
			existing, err = s.readChunk(ctx, chunkID)
			if err != nil {
				return dataOffset, err
			}
		}

		size := writeEndInChunk
		if int64(len(existing)) > size {
			size = int64(len(existing))
		}
		finalChunkData := make([]byte, size)
		copy(finalChunkData, existing)
		copy(finalChunkData[writeStartInChunk:], part)

		if err := s.cs.WriteChunk(ctx, chunkID, finalChunkData); err != nil {
			s.ls.Error(log_service.LogEvent{
				Message:  "Failed to write chunk",
				Metadata: map[string]any{"inodeID": ino.id, "chunkID": chunkID, "error": err.Error()},
			})
			ino.chunks = newChunkList
			if written := offset + int64(dataOffset); dataOffset > 0 && written > ino.size {
				ino.size = written
			}
			return dataOffset, err
		}
		dataOffset += len(part)
	}

	ino.chunks = newChunkList
	if endPos > ino.size {
		ino.size = endPos
	}
	return dataOffset, nil
}

// --- Handle ---

type chunkHandle struct {
	svc    *ChunkedStorageService
	ino    *inode
	closed atomic.Bool
}

func (h *chunkHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}
	return h.svc.read(ctx, h.ino, p, off)
}

func (h *chunkHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	if off < 0 {
		return 0, ss.ErrNegativeOffset
	}
	return h.svc.write(ctx, h.ino, p, off)
}

func (h *chunkHandle) Size(ctx context.Context) (int64, error) {
	if h.closed.Load() {
		return 0, ss.ErrHandleClosed
	}
	h.ino.mu.RLock()
	defer h.ino.mu.RUnlock()
	return h.ino.size, nil
}

func (h *chunkHandle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ss.ErrHandleClosed
	}
	h.svc.release(h.ino)
	return nil
}

var _ ss.StorageService = (*ChunkedStorageService)(nil)
