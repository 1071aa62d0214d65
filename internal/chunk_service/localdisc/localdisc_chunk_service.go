package localdisc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cs "github.com/AnishMulay/sandkernel/internal/chunk_service"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	"github.com/klauspost/compress/zstd"
)

// On-disk chunk header byte.
const (
	formatRaw  byte = 0
	formatZstd byte = 1
)

type LocalDiscChunkService struct {
	baseDir string
	ls      log_service.LogService

	compress bool
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
}

func NewLocalDiscChunkService(baseDir string, compress bool, ls log_service.LogService) (*LocalDiscChunkService, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	// Chunks written compressed must stay readable after compression is
	// switched off, so the decoder always exists.
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &LocalDiscChunkService{
		baseDir:  baseDir,
		ls:       ls,
		compress: compress,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

func (s *LocalDiscChunkService) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}

func (s *LocalDiscChunkService) chunkPath(chunkID string) string {
	return filepath.Join(s.baseDir, chunkID+".chunk")
}

func (s *LocalDiscChunkService) encode(data []byte) []byte {
	if !s.compress {
		out := make([]byte, 0, len(data)+1)
		out = append(out, formatRaw)
		return append(out, data...)
	}
	return s.encoder.EncodeAll(data, []byte{formatZstd})
}

func (s *LocalDiscChunkService) decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, cs.ErrChunkCorrupt
	}
	switch stored[0] {
	case formatRaw:
		return stored[1:], nil
	case formatZstd:
		return s.decoder.DecodeAll(stored[1:], nil)
	default:
		return nil, cs.ErrChunkCorrupt
	}
}

func (s *LocalDiscChunkService) WriteChunk(ctx context.Context, chunkID string, data []byte) error {
	s.ls.Debug(log_service.LogEvent{
		Message:  "Writing chunk",
		Metadata: map[string]any{"chunkID": chunkID, "size": len(data), "compress": s.compress},
	})

	if err := os.WriteFile(s.chunkPath(chunkID), s.encode(data), 0644); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to write chunk",
			Metadata: map[string]any{"chunkID": chunkID, "error": err.Error()},
		})
		return cs.ErrChunkWriteFailed
	}
	return nil
}

func (s *LocalDiscChunkService) ReadChunk(ctx context.Context, chunkID string) ([]byte, error) {
	stored, err := os.ReadFile(s.chunkPath(chunkID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cs.ErrChunkNotFound
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to read chunk",
			Metadata: map[string]any{"chunkID": chunkID, "error": err.Error()},
		})
		return nil, cs.ErrChunkReadFailed
	}

	data, err := s.decode(stored)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to decode chunk",
			Metadata: map[string]any{"chunkID": chunkID, "error": err.Error()},
		})
		return nil, cs.ErrChunkReadFailed
	}
	return data, nil
}

func (s *LocalDiscChunkService) DeleteChunk(ctx context.Context, chunkID string) error {
	s.ls.Debug(log_service.LogEvent{
		Message:  "Deleting chunk",
		Metadata: map[string]any{"chunkID": chunkID},
	})

	if err := os.Remove(s.chunkPath(chunkID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cs.ErrChunkNotFound
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to delete chunk",
			Metadata: map[string]any{"chunkID": chunkID, "error": err.Error()},
		})
		return cs.ErrChunkDeleteFailed
	}
	return nil
}

var _ cs.ChunkService = (*LocalDiscChunkService)(nil)
