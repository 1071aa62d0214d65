package file_table

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Allocator hands out descriptor numbers in [first, capacity), lowest first.
// It is not safe for concurrent use; Table serialises access.
type Allocator struct {
	free     *roaring.Bitmap
	first    uint32
	capacity uint32
}

func NewAllocator(first, capacity int) *Allocator {
	free := roaring.New()
	if capacity > first {
		free.AddRange(uint64(first), uint64(capacity))
	}
	return &Allocator{
		free:     free,
		first:    uint32(first),
		capacity: uint32(capacity),
	}
}

func (a *Allocator) Allocate() (int, error) {
	if a.free.IsEmpty() {
		return -1, ErrResourceExhausted
	}
	fd := a.free.Minimum()
	a.free.Remove(fd)
	return int(fd), nil
}

// Release returns fd to the pool. Reserved, out-of-range and already free
// descriptors are rejected.
func (a *Allocator) Release(fd int) error {
	if fd < int(a.first) || fd >= int(a.capacity) {
		return ErrInvalidDescriptor
	}
	if !a.free.CheckedAdd(uint32(fd)) {
		return ErrInvalidDescriptor
	}
	return nil
}

func (a *Allocator) Available() int {
	return int(a.free.GetCardinality())
}
