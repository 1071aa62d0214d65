package objectstore

import (
	"context"
	"os"
	"testing"

	cs "github.com/AnishMulay/sandkernel/internal/chunk_service"
	"github.com/AnishMulay/sandkernel/internal/log_service/zaplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestObjectStoreChunkService_Integration needs a MinIO endpoint; it is
// skipped when none is reachable.
func TestObjectStoreChunkService_Integration(t *testing.T) {
	endpoint := os.Getenv("SANDKERNEL_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	s, err := NewObjectStoreChunkService(Options{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-sandkernel",
		Prefix:    "chunks/",
	}, zaplog.NewNop())
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := s.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	require.NoError(t, s.EnsureBucket(ctx))

	require.NoError(t, s.WriteChunk(ctx, "c1", []byte("hello minio")))

	data, err := s.ReadChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello minio", string(data))

	require.NoError(t, s.DeleteChunk(ctx, "c1"))

	_, err = s.ReadChunk(ctx, "c1")
	assert.ErrorIs(t, err, cs.ErrChunkNotFound)
}

func TestObjectStoreChunkService_Key(t *testing.T) {
	s := NewFromClient(nil, "bucket", "root/chunks", zaplog.NewNop())
	assert.Equal(t, "root/chunks/abc.chunk", s.key("abc"))
}
