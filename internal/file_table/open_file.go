package file_table

import (
	"fmt"
	"sync"

	ss "github.com/AnishMulay/sandkernel/internal/storage_service"
)

type Mode int

const (
	ModeReadWrite Mode = iota
	ModeReadOnly
	ModeWriteOnly
)

func (m Mode) Readable() bool {
	return m == ModeReadWrite || m == ModeReadOnly
}

func (m Mode) Writable() bool {
	return m == ModeReadWrite || m == ModeWriteOnly
}

func (m Mode) String() string {
	switch m {
	case ModeReadWrite:
		return "rw"
	case ModeReadOnly:
		return "r"
	case ModeWriteOnly:
		return "w"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// OpenFile is the state behind one occupied descriptor.
//
// Mu serialises reads and writes through this record so Offset always
// reflects completed transfers. Handle and Mode never change after
// construction.
type OpenFile struct {
	Name   string
	Handle ss.Handle
	Mode   Mode
	Offset int64
	Mu     sync.Mutex
}

func NewOpenFile(name string, handle ss.Handle, mode Mode) *OpenFile {
	return &OpenFile{
		Name:   name,
		Handle: handle,
		Mode:   mode,
	}
}
