// Package nsotest builds NSO containers for tests.
package nsotest

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Storage selects how a segment is written to the container.
type Storage int

const (
	// Compressed stores the segment as lz4 block and sets its compressed flag.
	Compressed Storage = iota
	// Uncompressed stores the segment verbatim with a compressed size equal to its size.
	Uncompressed
	// ZeroSize stores the segment verbatim with a compressed size of 0.
	ZeroSize
)

// Segment describes one segment of a test container.
type Segment struct {
	Location uint32
	Data     []byte
	Extra    uint32 // alignment, or the bss size for the data segment
	Storage  Storage
}

// Container describes a test container.
type Container struct {
	Magic    [4]byte // defaults to NSO0
	Segments [3]Segment
	BuildID  [0x20]byte

	Extended  bool // write the extended header including the segment hashes
	HashCheck bool // set the hash check flags of all segments
}

const (
	headerSize         = 0x6c
	extendedHeaderSize = 0x100
	hashesOffset       = 0xa0
)

// Compress compresses data as a single lz4 block.
func Compress(data []byte) ([]byte, error) {
	var c lz4.Compressor
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("compressing block: %w", err)
	}
	if n == 0 && len(data) > 0 {
		return nil, errors.New("block is not compressible")
	}
	return dst[:n], nil
}

// Bytes returns the encoded container.
func (c Container) Bytes() ([]byte, error) {
	size := headerSize
	if c.Extended {
		size = extendedHeaderSize
	}
	buf := make([]byte, size)

	magic := c.Magic
	if magic == [4]byte{} {
		magic = [4]byte{'N', 'S', 'O', '0'}
	}
	copy(buf[0:4], magic[:])
	copy(buf[0x40:0x60], c.BuildID[:])

	var flags uint32
	for i, seg := range c.Segments {
		stored := seg.Data
		compressedSize := uint32(len(seg.Data))

		switch seg.Storage {
		case Compressed:
			compressed, err := Compress(seg.Data)
			if err != nil {
				return nil, err
			}
			stored = compressed
			compressedSize = uint32(len(compressed))
			flags |= 1 << uint(i)
		case ZeroSize:
			compressedSize = 0
		case Uncompressed:
		}
		if c.HashCheck {
			flags |= 1 << uint(i+3)
		}

		offset := uint32(len(buf))
		buf = append(buf, stored...)

		hdr := buf[0x10+i*0x10:]
		binary.LittleEndian.PutUint32(hdr[0:], offset)
		binary.LittleEndian.PutUint32(hdr[4:], seg.Location)
		binary.LittleEndian.PutUint32(hdr[8:], uint32(len(seg.Data)))
		binary.LittleEndian.PutUint32(hdr[12:], seg.Extra)
		binary.LittleEndian.PutUint32(buf[0x60+i*4:], compressedSize)

		if c.Extended {
			sum := sha256.Sum256(seg.Data)
			copy(buf[hashesOffset+i*sha256.Size:], sum[:])
		}
	}
	binary.LittleEndian.PutUint32(buf[0x0c:], flags)

	return buf, nil
}

// MustBytes returns the encoded container and panics on error.
func (c Container) MustBytes() []byte {
	b, err := c.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

// CodeWithModHeader returns a code segment of the given size that points to a MOD0 header
// at modOffset, which describes a bss region between bssStart and bssEnd.
// The MOD0 header is written into the returned code if it fits.
func CodeWithModHeader(size int, modOffset, bssStart, bssEnd uint32) []byte {
	code := Pattern(size, 0x11)
	binary.LittleEndian.PutUint32(code[4:], modOffset)

	end := int(modOffset) + 0x1c
	if end > len(code) {
		return code
	}
	mod := code[modOffset:end]
	copy(mod[0:4], "MOD0")
	binary.LittleEndian.PutUint32(mod[4:], 0x100)
	binary.LittleEndian.PutUint32(mod[8:], bssStart)
	binary.LittleEndian.PutUint32(mod[12:], bssEnd)
	binary.LittleEndian.PutUint32(mod[16:], 0x200)
	binary.LittleEndian.PutUint32(mod[20:], 0x240)
	binary.LittleEndian.PutUint32(mod[24:], bssStart)
	return code
}

// Pattern returns size bytes of deterministic content derived from seed. The first 8 bytes
// are zero so that code segments built from it carry no MOD0 pointer.
func Pattern(size int, seed byte) []byte {
	b := make([]byte, size)
	for i := 8; i < size; i++ {
		b[i] = seed + byte(i/7)
	}
	return b
}
