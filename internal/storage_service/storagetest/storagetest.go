// Package storagetest holds behaviour checks shared by every
// storage_service implementation.
package storagetest

import (
	"context"
	"errors"
	"io"
	"testing"

	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises svc through the StorageService contract. newService must
// return a started, empty service.
func Run(t *testing.T, newService func(t *testing.T) ss.StorageService) {
	t.Run("create write reopen read", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		h, err := svc.Create(ctx, "a.txt")
		require.NoError(t, err)
		n, err := h.WriteAt(ctx, []byte("first write\n"), 0)
		require.NoError(t, err)
		assert.Equal(t, 12, n)
		require.NoError(t, h.Close())

		h, err = svc.Open(ctx, "a.txt")
		require.NoError(t, err)
		defer h.Close()

		buf := make([]byte, 2)
		n, err = h.ReadAt(ctx, buf, 0)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, "fi", string(buf[:n]))

		buf = make([]byte, 50)
		n, err = h.ReadAt(ctx, buf, 2)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, "rst write\n", string(buf[:n]))

		n, err = h.ReadAt(ctx, buf, 12)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, 0, n)

		size, err := h.Size(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 12, size)
	})

	t.Run("write past end zero fills", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		h, err := svc.Create(ctx, "sparse")
		require.NoError(t, err)
		defer h.Close()

		_, err = h.WriteAt(ctx, []byte("xy"), 4)
		require.NoError(t, err)

		buf := make([]byte, 10)
		n, err := h.ReadAt(ctx, buf, 0)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, []byte{0, 0, 0, 0, 'x', 'y'}, buf[:n])
	})

	t.Run("overwrite in the middle", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		h, err := svc.Create(ctx, "mid")
		require.NoError(t, err)
		defer h.Close()

		_, err = h.WriteAt(ctx, []byte("hello world"), 0)
		require.NoError(t, err)
		_, err = h.WriteAt(ctx, []byte("WORLD"), 6)
		require.NoError(t, err)

		buf := make([]byte, 32)
		n, err := h.ReadAt(ctx, buf, 0)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, "hello WORLD", string(buf[:n]))
	})

	t.Run("create truncates", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		h, err := svc.Create(ctx, "t")
		require.NoError(t, err)
		_, err = h.WriteAt(ctx, []byte("some content"), 0)
		require.NoError(t, err)
		require.NoError(t, h.Close())

		h, err = svc.Create(ctx, "t")
		require.NoError(t, err)
		defer h.Close()
		size, err := h.Size(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, size)
	})

	t.Run("open missing", func(t *testing.T) {
		svc := newService(t)
		_, err := svc.Open(context.Background(), "s")
		assert.True(t, errors.Is(err, ss.ErrNotFound), "got %v", err)
	})

	t.Run("remove semantics", func(t *testing.T) {
		svc := newService(t)
		ctx := context.Background()

		h, err := svc.Create(ctx, "gone")
		require.NoError(t, err)
		_, err = h.WriteAt(ctx, []byte("still here"), 0)
		require.NoError(t, err)

		ok, err := svc.Exists(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, svc.Remove(ctx, "gone"))

		ok, err = svc.Exists(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = svc.Open(ctx, "gone")
		assert.True(t, errors.Is(err, ss.ErrNotFound))
		assert.True(t, errors.Is(svc.Remove(ctx, "gone"), ss.ErrNotFound))

		// the open handle outlives the name
		buf := make([]byte, 32)
		n, err := h.ReadAt(ctx, buf, 0)
		require.NoError(t, ignoreEOF(err))
		assert.Equal(t, "still here", string(buf[:n]))
		_, err = h.WriteAt(ctx, []byte("!"), int64(n))
		require.NoError(t, err)
		require.NoError(t, h.Close())
	})

	t.Run("double close", func(t *testing.T) {
		svc := newService(t)
		h, err := svc.Create(context.Background(), "c")
		require.NoError(t, err)
		require.NoError(t, h.Close())
		assert.True(t, errors.Is(h.Close(), ss.ErrHandleClosed))
	})
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
