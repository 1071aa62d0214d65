package chunked

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnishMulay/sandkernel/internal/chunk_service/localdisc"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/AnishMulay/sandkernel/internal/storage_service/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, chunkSize int64) (*ChunkedStorageService, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chunks")
	chunks, err := localdisc.NewLocalDiscChunkService(dir, true, zaplog.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })

	s := NewChunkedStorageService(chunks, chunkSize, zaplog.NewNop())
	require.NoError(t, s.Start())
	return s, dir
}

func chunkFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestChunkedStorageService_Contract(t *testing.T) {
	for _, size := range []int64{4, 5, 1024} {
		storagetest.Run(t, func(t *testing.T) ss.StorageService {
			s, _ := newService(t, size)
			return s
		})
	}
}

func TestChunkedStorageService_MultiChunk(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int64
		writes    []struct {
			off  int64
			data string
		}
		want string
	}{
		{
			name:      "spans several chunks",
			chunkSize: 10,
			writes: []struct {
				off  int64
				data string
			}{{0, "this is a test file that will be split into multiple chunks"}},
			want: "this is a test file that will be split into multiple chunks",
		},
		{
			name:      "append across boundary",
			chunkSize: 8,
			writes: []struct {
				off  int64
				data string
			}{{0, "first write\n"}, {12, "second write\n"}},
			want: "first write\nsecond write\n",
		},
		{
			name:      "overwrite straddling chunks",
			chunkSize: 4,
			writes: []struct {
				off  int64
				data string
			}{{0, "aaaaaaaaaaaa"}, {3, "BBBBB"}},
			want: "aaaBBBBBaaaa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newService(t, tt.chunkSize)
			ctx := context.Background()

			h, err := s.Create(ctx, "f")
			require.NoError(t, err)
			defer h.Close()

			for _, w := range tt.writes {
				n, err := h.WriteAt(ctx, []byte(w.data), w.off)
				require.NoError(t, err)
				require.Equal(t, len(w.data), n)
			}

			buf := make([]byte, 128)
			n, _ := h.ReadAt(ctx, buf, 0)
			assert.Equal(t, tt.want, string(buf[:n]))

			// reading from the middle of a chunk
			n, _ = h.ReadAt(ctx, buf[:3], 1)
			assert.Equal(t, tt.want[1:4], string(buf[:n]))
		})
	}
}

func TestChunkedStorageService_HoleReadsZeros(t *testing.T) {
	s, _ := newService(t, 4)
	ctx := context.Background()

	h, err := s.Create(ctx, "holey")
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteAt(ctx, []byte("z"), 10)
	require.NoError(t, err)

	buf := make([]byte, 11)
	n, err := h.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.True(t, bytes.Equal(append(make([]byte, 10), 'z'), buf))
}

func TestChunkedStorageService_UnlinkDefersGC(t *testing.T) {
	s, dir := newService(t, 4)
	ctx := context.Background()

	h, err := s.Create(ctx, "a.txt")
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("0123456789"), 0)
	require.NoError(t, err)
	require.Equal(t, 3, chunkFiles(t, dir))

	require.NoError(t, s.Remove(ctx, "a.txt"))
	assert.Equal(t, 3, chunkFiles(t, dir), "chunks must survive while a handle is open")

	buf := make([]byte, 10)
	n, err := h.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(buf[:n]))

	require.NoError(t, h.Close())
	assert.Equal(t, 0, chunkFiles(t, dir))
}

func TestChunkedStorageService_RemoveIdleCollectsImmediately(t *testing.T) {
	s, dir := newService(t, 4)
	ctx := context.Background()

	h, err := s.Create(ctx, "b")
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("abcdefgh"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.Equal(t, 2, chunkFiles(t, dir))

	require.NoError(t, s.Remove(ctx, "b"))
	assert.Equal(t, 0, chunkFiles(t, dir))
}

func TestChunkedStorageService_TruncateCollects(t *testing.T) {
	s, dir := newService(t, 4)
	ctx := context.Background()

	h, err := s.Create(ctx, "c")
	require.NoError(t, err)
	_, err = h.WriteAt(ctx, []byte("abcdefgh"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = s.Create(ctx, "c")
	require.NoError(t, err)
	defer h.Close()
	assert.Equal(t, 0, chunkFiles(t, dir))
}
