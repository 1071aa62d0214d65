package node

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	cs "github.com/AnishMulay/sandkernel/internal/chunk_service"
	localchunks "github.com/AnishMulay/sandkernel/internal/chunk_service/localdisc"
	"github.com/AnishMulay/sandkernel/internal/chunk_service/objectstore"
	"github.com/AnishMulay/sandkernel/internal/config"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/AnishMulay/sandkernel/internal/storage_service/chunked"
	"github.com/AnishMulay/sandkernel/internal/storage_service/inmemory"
)

const bucketCheckTimeout = 10 * time.Second

func (n *Node) buildStorage(cfg *config.Config) (ss.StorageService, error) {
	switch cfg.Storage.Type {
	case config.StorageHostFS:
		return newHostFS(cfg.Storage.Dir, n.ls)
	case config.StorageChunked:
		chunks, err := n.buildChunkStore(cfg)
		if err != nil {
			return nil, err
		}
		return chunked.NewChunkedStorageService(chunks, cfg.Storage.ChunkSize, n.ls), nil
	default:
		return inmemory.NewInMemoryStorageService(n.ls), nil
	}
}

func (n *Node) buildChunkStore(cfg *config.Config) (cs.ChunkService, error) {
	switch cfg.Storage.ChunkStore {
	case config.ChunkStoreMinIO:
		store, err := objectstore.NewObjectStoreChunkService(objectstore.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Prefix:    cfg.MinIO.Prefix,
			Secure:    cfg.MinIO.Secure,
		}, n.ls)
		if err != nil {
			return nil, fmt.Errorf("failed to build minio client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), bucketCheckTimeout)
		defer cancel()
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket %q: %w", cfg.MinIO.Bucket, err)
		}
		return store, nil

	default:
		store, err := localchunks.NewLocalDiscChunkService(filepath.Join(cfg.Storage.Dir, "chunks"), cfg.Storage.Compress, n.ls)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, store.Close)
		return store, nil
	}
}
