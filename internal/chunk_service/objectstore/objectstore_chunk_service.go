package objectstore

import (
	"bytes"
	"context"
	"io"
	"path"

	cs "github.com/AnishMulay/sandkernel/internal/chunk_service"
	"github.com/AnishMulay/sandkernel/internal/log_service"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// ObjectStoreChunkService keeps each chunk as one object in a MinIO or other
// S3-compatible bucket.
type ObjectStoreChunkService struct {
	client *minio.Client
	bucket string
	prefix string
	ls     log_service.LogService
}

func NewObjectStoreChunkService(opts Options, ls log_service.LogService) (*ObjectStoreChunkService, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, err
	}
	return NewFromClient(client, opts.Bucket, opts.Prefix, ls), nil
}

func NewFromClient(client *minio.Client, bucket, prefix string, ls log_service.LogService) *ObjectStoreChunkService {
	return &ObjectStoreChunkService{
		client: client,
		bucket: bucket,
		prefix: prefix,
		ls:     ls,
	}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStoreChunkService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	s.ls.Info(log_service.LogEvent{
		Message:  "Creating chunk bucket",
		Metadata: map[string]any{"bucket": s.bucket},
	})
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

func (s *ObjectStoreChunkService) key(chunkID string) string {
	return path.Join(s.prefix, chunkID+".chunk")
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *ObjectStoreChunkService) WriteChunk(ctx context.Context, chunkID string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(chunkID), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to put chunk object",
			Metadata: map[string]any{"chunkID": chunkID, "bucket": s.bucket, "error": err.Error()},
		})
		return cs.ErrChunkWriteFailed
	}
	return nil
}

func (s *ObjectStoreChunkService) ReadChunk(ctx context.Context, chunkID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(chunkID), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, cs.ErrChunkNotFound
		}
		return nil, cs.ErrChunkReadFailed
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, cs.ErrChunkNotFound
		}
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to read chunk object",
			Metadata: map[string]any{"chunkID": chunkID, "bucket": s.bucket, "error": err.Error()},
		})
		return nil, cs.ErrChunkReadFailed
	}
	return data, nil
}

func (s *ObjectStoreChunkService) DeleteChunk(ctx context.Context, chunkID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(chunkID), minio.RemoveObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return cs.ErrChunkNotFound
		}
		s.ls.Warn(log_service.LogEvent{
			Message:  "Failed to remove chunk object",
			Metadata: map[string]any{"chunkID": chunkID, "bucket": s.bucket, "error": err.Error()},
		})
		return cs.ErrChunkDeleteFailed
	}
	return nil
}

var _ cs.ChunkService = (*ObjectStoreChunkService)(nil)
