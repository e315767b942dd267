package addrspace

import (
	"errors"
	"testing"

	"github.com/retroenv/nsoload/internal/nso"
	"github.com/retroenv/retrogolib/assert"
)

func codeSet(base uint64, size int, fill byte) *nso.CodeSet {
	memory := make([]byte, size)
	for i := range memory {
		memory[i] = fill
	}
	cs := &nso.CodeSet{Memory: memory}
	cs.Place(base)
	return cs
}

func TestMap(t *testing.T) {
	space := New(Options{Is64Bit: true})

	assert.NoError(t, space.Map("main", codeSet(0x8004000, 0x2000, 2)))
	assert.NoError(t, space.Map("rtld", codeSet(0x8000000, 0x4000, 1)))
	assert.NoError(t, space.Map("sdk", codeSet(0x8006000, 0x1000, 3)))

	regions := space.Regions()
	assert.Equal(t, 3, len(regions))
	assert.Equal(t, "rtld", regions[0].Name)
	assert.Equal(t, "main", regions[1].Name)
	assert.Equal(t, "sdk", regions[2].Name)
	assert.Equal(t, uint64(0x8007000), regions[2].End())
}

func TestMapErrors(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		cs      *nso.CodeSet
		err     error
	}{
		{
			name:    "overlap start",
			options: Options{Is64Bit: true},
			cs:      codeSet(0x8000000-0x1000, 0x2000, 0),
			err:     ErrOverlap,
		},
		{
			name:    "overlap inside",
			options: Options{Is64Bit: true},
			cs:      codeSet(0x8001000, 0x1000, 0),
			err:     ErrOverlap,
		},
		{
			name:    "beyond 32 bit space",
			options: Options{},
			cs:      codeSet(0xffff_f000, 0x2000, 0),
			err:     ErrOutOfRange,
		},
		{
			name:    "address wraps",
			options: Options{Is64Bit: true},
			cs:      codeSet(^uint64(0)-0xfff, 0x2000, 0),
			err:     ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			space := New(tt.options)
			assert.NoError(t, space.Map("rtld", codeSet(0x8000000, 0x4000, 1)))

			err := space.Map("main", tt.cs)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, 1, len(space.Regions()))
		})
	}
}

func TestMapAdjacentIn32BitSpace(t *testing.T) {
	space := New(Options{})
	assert.NoError(t, space.Map("main", codeSet(0xffff_e000, 0x2000, 1)))
}

func TestReadAt(t *testing.T) {
	space := New(Options{Is64Bit: true})
	assert.NoError(t, space.Map("rtld", codeSet(0x8000000, 0x1000, 1)))
	assert.NoError(t, space.Map("main", codeSet(0x8001000, 0x1000, 2)))

	data, err := space.ReadAt(0x8000ff0, 0x10)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, data)

	data, err = space.ReadAt(0x8001000, 2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{2, 2}, data)

	_, err = space.ReadAt(0x8000ff0, 0x20)
	assert.True(t, errors.Is(err, ErrUnmapped))

	_, err = space.ReadAt(0x7fff000, 1)
	assert.True(t, errors.Is(err, ErrUnmapped))

	_, err = space.ReadAt(0x8002000, 1)
	assert.True(t, errors.Is(err, ErrUnmapped))
}
