//go:build !unix

package node

import (
	"errors"

	"github.com/AnishMulay/sandkernel/internal/log_service"
	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
)

func newHostFS(dir string, ls log_service.LogService) (ss.StorageService, error) {
	return nil, errors.New("hostfs storage needs a unix host")
}
