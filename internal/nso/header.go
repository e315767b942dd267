// Package nso decodes NSO executable containers into page aligned program images.
package nso

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the fixed header that every container starts with.
	HeaderSize = 0x6c
	// ExtendedHeaderSize is the size of the full header including the segment hashes.
	ExtendedHeaderSize = 0x100

	// SegmentCount is the number of segments of a container.
	SegmentCount = 3
)

// Magic is the tag that every container starts with.
var Magic = [4]byte{'N', 'S', 'O', '0'}

// SegmentIndex identifies a segment of the container. The order is fixed by the format.
type SegmentIndex int

// Segments of a container, in the order they are stored in the header.
const (
	Code SegmentIndex = iota
	ROData
	Data
)

var segmentNames = [SegmentCount]string{"code", "rodata", "data"}

func (s SegmentIndex) String() string {
	if s < 0 || int(s) >= SegmentCount {
		return fmt.Sprintf("segment(%d)", int(s))
	}
	return segmentNames[s]
}

// Flags of the container header.
type Flags uint32

// Compressed returns whether the segment is stored compressed.
func (f Flags) Compressed(s SegmentIndex) bool {
	return f&(1<<uint(s)) != 0
}

// HashChecked returns whether the segment hash of the extended header should be verified.
func (f Flags) HashChecked(s SegmentIndex) bool {
	return f&(1<<(uint(s)+3)) != 0
}

// SegmentHeader describes where a segment is stored in the file and where it goes in the image.
type SegmentHeader struct {
	Offset   uint32 // file offset of the stored bytes
	Location uint32 // offset inside the image, relative to the module base
	Size     uint32 // uncompressed size
	Extra    uint32 // alignment for code and rodata, bss size for data
}

// Extent is a rodata relative region referenced by the extended header.
type Extent struct {
	Offset uint32
	Size   uint32
}

// ExtendedHeader contains the header fields that follow the fixed header.
type ExtendedHeader struct {
	_       [0x1c]byte
	APIInfo Extent
	DynStr  Extent
	DynSym  Extent
	Hashes  [SegmentCount][sha256.Size]byte
}

// Header is the decoded container header.
type Header struct {
	Magic          [4]byte
	Version        uint32
	Flags          Flags
	Segments       [SegmentCount]SegmentHeader
	BssSize        uint32 // trailing bss field, shares its bytes with the start of the build id
	BuildID        [0x20]byte
	CompressedSize [SegmentCount]uint32

	// Extended is nil if the file is too short to contain the extended header.
	Extended *ExtendedHeader
}

// rawHeader mirrors the packed little endian layout of the fixed header.
type rawHeader struct {
	Magic          [4]byte
	Version        uint32
	_              uint32
	Flags          uint32
	Segments       [SegmentCount]SegmentHeader
	BuildID        [0x20]byte
	CompressedSize [SegmentCount]uint32
}

// Segment returns the header of the given segment.
func (h *Header) Segment(s SegmentIndex) SegmentHeader {
	return h.Segments[s]
}

// DataBssSize returns the bss size stored in the data segment header.
func (h *Header) DataBssSize() uint32 {
	return h.Segments[Data].Extra
}

// hasExtendedHeader returns whether the area following the header is free of segment
// data. Segments stored directly after the header leave no room for an extended header.
func (h *Header) hasExtendedHeader() bool {
	for i, seg := range h.Segments {
		length := h.CompressedSize[i]
		if length == 0 {
			length = seg.Size
		}
		if length > 0 && seg.Offset < ExtendedHeaderSize {
			return false
		}
	}
	return true
}

// DecodeHeader reads and validates the container header at the start of r.
// The extended header is decoded as well if the source is large enough and no
// segment data is stored inside of it.
func DecodeHeader(r io.ReadSeeker) (*Header, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: seeking to header: %v", ErrIO, err)
	}

	buf := make([]byte, ExtendedHeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	if n < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes but only %d are available", ErrFormat, HeaderSize, n)
	}

	var raw rawHeader
	if err := binary.Read(bytes.NewReader(buf[:HeaderSize]), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", ErrFormat, err)
	}
	if raw.Magic != Magic {
		return nil, fmt.Errorf("%w: unexpected magic %q", ErrFormat, raw.Magic[:])
	}

	h := &Header{
		Magic:          raw.Magic,
		Version:        raw.Version,
		Flags:          Flags(raw.Flags),
		Segments:       raw.Segments,
		BssSize:        binary.LittleEndian.Uint32(raw.BuildID[:4]),
		BuildID:        raw.BuildID,
		CompressedSize: raw.CompressedSize,
	}

	if n == ExtendedHeaderSize && h.hasExtendedHeader() {
		ext := &ExtendedHeader{}
		if err := binary.Read(bytes.NewReader(buf[HeaderSize:]), binary.LittleEndian, ext); err != nil {
			return nil, fmt.Errorf("%w: decoding extended header: %v", ErrFormat, err)
		}
		h.Extended = ext
	}

	return h, nil
}
