//go:build unix

package node

import (
	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
	"github.com/AnishMulay/sandkernel/internal/storage_service/hostfs"
)

func newHostFS(dir string, ls log_service.LogService) (ss.StorageService, error) {
	return hostfs.NewHostFSStorageService(dir, ls), nil
}
