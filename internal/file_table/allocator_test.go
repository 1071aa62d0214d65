package file_table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_LowestFirst(t *testing.T) {
	a := NewAllocator(FirstDynamicFD, 6)

	for want := 2; want < 6; want++ {
		fd, err := a.Allocate()
		require.NoError(t, err)
		assert.Equal(t, want, fd)
	}

	_, err := a.Allocate()
	assert.ErrorIs(t, err, ErrResourceExhausted)

	require.NoError(t, a.Release(4))
	require.NoError(t, a.Release(3))

	fd, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 3, fd)
	assert.Equal(t, 1, a.Available())
}

func TestAllocator_Release(t *testing.T) {
	tests := []struct {
		name    string
		setupFn func(*Allocator)
		fd      int
		wantErr error
	}{
		{
			name:    "release allocated",
			setupFn: func(a *Allocator) { _, _ = a.Allocate() },
			fd:      2,
		},
		{
			name:    "release never allocated",
			fd:      5,
			wantErr: ErrInvalidDescriptor,
		},
		{
			name: "release twice",
			setupFn: func(a *Allocator) {
				_, _ = a.Allocate()
				_ = a.Release(2)
			},
			fd:      2,
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "release reserved",
			fd:      StdinFD,
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "release out of range",
			fd:      100,
			wantErr: ErrInvalidDescriptor,
		},
		{
			name:    "release negative",
			fd:      -1,
			wantErr: ErrInvalidDescriptor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllocator(FirstDynamicFD, DefaultCapacity)
			if tt.setupFn != nil {
				tt.setupFn(a)
			}
			err := a.Release(tt.fd)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
