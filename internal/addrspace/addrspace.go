// Package addrspace implements an in-memory address space that loaded program images
// are committed to.
package addrspace

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/retroenv/nsoload/internal/nso"
)

var (
	// ErrOverlap is returned when an image overlaps an already mapped image.
	ErrOverlap = errors.New("image overlaps mapped region")

	// ErrOutOfRange is returned when an image does not fit into the address space.
	ErrOutOfRange = errors.New("image outside of address space")

	// ErrUnmapped is returned when reading from an address that is not mapped.
	ErrUnmapped = errors.New("address not mapped")
)

// Options of the address space.
type Options struct {
	Is64Bit bool   // allow images above 4 GiB
	ABI     string // type library of the compiler ABI, for example gnulnx_arm64
	StartIP uint64 // initial instruction pointer
}

// Region is a program image that is mapped into the address space.
type Region struct {
	Name    string
	Base    uint64
	CodeSet *nso.CodeSet
}

// End returns the address following the region.
func (r Region) End() uint64 {
	return r.Base + r.CodeSet.Size()
}

// Space is an address space of mapped program images.
type Space struct {
	options Options
	regions []Region // sorted by base address
}

// New returns a new empty address space.
func New(options Options) *Space {
	return &Space{
		options: options,
	}
}

// Options returns the options the address space was created with.
func (s *Space) Options() Options {
	return s.options
}

// Map commits the placed code set at its base address.
func (s *Space) Map(name string, cs *nso.CodeSet) error {
	base := cs.BaseAddress
	end := base + cs.Size()
	if end < base {
		return fmt.Errorf("%w: module %s at 0x%X with size 0x%X", ErrOutOfRange, name, base, cs.Size())
	}
	if !s.options.Is64Bit && end > math.MaxUint32+1 {
		return fmt.Errorf("%w: module %s ends at 0x%X in 32 bit address space", ErrOutOfRange, name, end)
	}

	for _, region := range s.regions {
		if base < region.End() && region.Base < end {
			return fmt.Errorf("%w: module %s at 0x%X-0x%X overlaps %s at 0x%X-0x%X",
				ErrOverlap, name, base, end, region.Name, region.Base, region.End())
		}
	}

	s.regions = append(s.regions, Region{
		Name:    name,
		Base:    base,
		CodeSet: cs,
	})
	sort.Slice(s.regions, func(i, j int) bool {
		return s.regions[i].Base < s.regions[j].Base
	})
	return nil
}

// Regions returns the mapped regions sorted by base address.
func (s *Space) Regions() []Region {
	regions := make([]Region, len(s.regions))
	copy(regions, s.regions)
	return regions
}

// ReadAt reads size bytes starting at the given address. The range has to be
// contained in a single mapped region.
func (s *Space) ReadAt(address, size uint64) ([]byte, error) {
	for _, region := range s.regions {
		if address < region.Base || address >= region.End() {
			continue
		}
		offset := address - region.Base
		if size > region.CodeSet.Size()-offset {
			return nil, fmt.Errorf("%w: 0x%X bytes at 0x%X cross the end of %s",
				ErrUnmapped, size, address, region.Name)
		}
		return region.CodeSet.Memory[offset : offset+size], nil
	}
	return nil, fmt.Errorf("%w: 0x%X", ErrUnmapped, address)
}
