package file_table

import (
	"fmt"
	"sync"
)

const (
	DefaultCapacity = 16

	StdinFD  = 0
	StdoutFD = 1

	// FirstDynamicFD is the lowest descriptor creat/open may hand out.
	FirstDynamicFD = 2
)

// Table is a fixed-capacity descriptor table. Slots below FirstDynamicFD are
// reserved for the console and are filled with Install, never by Allocate.
//
// mu guards slots and the allocator. Per-record state is guarded by each
// OpenFile.Mu.
type Table struct {
	mu    sync.RWMutex
	slots []*OpenFile
	alloc *Allocator
}

func NewTable(capacity int) (*Table, error) {
	if capacity <= FirstDynamicFD {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidCapacity, capacity)
	}
	return &Table{
		slots: make([]*OpenFile, capacity),
		alloc: NewAllocator(FirstDynamicFD, capacity),
	}, nil
}

func (t *Table) Capacity() int {
	return len(t.slots)
}

// Install places f in a reserved slot.
func (t *Table) Install(fd int, f *OpenFile) error {
	if fd < 0 || fd >= FirstDynamicFD || f == nil {
		return ErrInvalidDescriptor
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.slots[fd] != nil {
		return fmt.Errorf("%w: descriptor %d already installed", ErrInvalidDescriptor, fd)
	}
	t.slots[fd] = f
	return nil
}

// Allocate stores f in the lowest free dynamic slot and returns its number.
func (t *Table) Allocate(f *OpenFile) (int, error) {
	if f == nil {
		return -1, ErrInvalidDescriptor
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fd, err := t.alloc.Allocate()
	if err != nil {
		return -1, err
	}
	t.slots[fd] = f
	return fd, nil
}

func (t *Table) Get(fd int) (*OpenFile, error) {
	if fd < 0 || fd >= len(t.slots) {
		return nil, ErrInvalidDescriptor
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	f := t.slots[fd]
	if f == nil {
		return nil, ErrInvalidDescriptor
	}
	return f, nil
}

// Release frees a dynamic slot and hands back its record; the caller owns
// closing the record's handle.
func (t *Table) Release(fd int) (*OpenFile, error) {
	if fd < 0 || fd >= len(t.slots) {
		return nil, ErrInvalidDescriptor
	}
	if fd < FirstDynamicFD {
		return nil, fmt.Errorf("%w: descriptor %d is reserved", ErrInvalidDescriptor, fd)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.slots[fd]
	if f == nil {
		return nil, ErrInvalidDescriptor
	}
	if err := t.alloc.Release(fd); err != nil {
		return nil, err
	}
	t.slots[fd] = nil
	return f, nil
}

// ReleaseAll empties every slot, reserved ones included, and returns the
// records in descriptor order.
func (t *Table) ReleaseAll() []*OpenFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*OpenFile
	for fd, f := range t.slots {
		if f == nil {
			continue
		}
		out = append(out, f)
		t.slots[fd] = nil
	}
	t.alloc = NewAllocator(FirstDynamicFD, len(t.slots))
	return out
}

// Occupied lists the descriptors currently in use, ascending.
func (t *Table) Occupied() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var fds []int
	for fd, f := range t.slots {
		if f != nil {
			fds = append(fds, fd)
		}
	}
	return fds
}

func (t *Table) Available() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alloc.Available()
}
