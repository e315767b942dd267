package nso

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4 can not expand a block by more than this ratio, larger declared sizes are rejected
// before the destination buffer is allocated.
const (
	maxExpansionRatio = 256
	expansionSlack    = 64
)

// rawSegment holds the bytes of a segment as stored in the file.
type rawSegment struct {
	data   []byte
	size   uint32
	stored bool // data is the segment content, no decompression needed
}

// ReadSegment reads the segment described by seg and returns exactly seg.Size bytes.
// A compressed size of 0 marks a segment that is stored verbatim.
func ReadSegment(r io.ReadSeeker, seg SegmentHeader, compressedSize uint32) ([]byte, error) {
	raw, err := readRawSegment(r, seg, compressedSize, compressedSize == 0)
	if err != nil {
		return nil, err
	}
	return raw.decode()
}

// readRawSegment reads the stored bytes of a segment without decoding them.
func readRawSegment(r io.ReadSeeker, seg SegmentHeader, compressedSize uint32, stored bool) (rawSegment, error) {
	length := compressedSize
	if stored {
		length = seg.Size
	}

	if _, err := r.Seek(int64(seg.Offset), io.SeekStart); err != nil {
		return rawSegment{}, fmt.Errorf("%w: seeking to offset 0x%X: %v", ErrIO, seg.Offset, err)
	}

	// read through a limited reader so that a hostile size does not allocate
	// more memory than the file can provide
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return rawSegment{}, fmt.Errorf("%w: reading %d bytes at offset 0x%X: %v", ErrIO, length, seg.Offset, err)
	}
	if len(data) != int(length) {
		return rawSegment{}, fmt.Errorf("%w: short read at offset 0x%X, got %d of %d bytes",
			ErrIO, seg.Offset, len(data), length)
	}

	return rawSegment{
		data:   data,
		size:   seg.Size,
		stored: stored,
	}, nil
}

func (s rawSegment) decode() ([]byte, error) {
	if s.stored {
		return s.data, nil
	}
	return Decompress(s.data, s.size)
}

// Decompress decodes an lz4 block into a buffer of exactly size bytes.
// The block has no framing, its uncompressed size has to be known by the caller.
func Decompress(src []byte, size uint32) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	if uint64(size) > uint64(len(src))*maxExpansionRatio+expansionSlack {
		return nil, fmt.Errorf("%w: %d compressed bytes can not expand to %d bytes",
			ErrDecompression, len(src), size)
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	if n != len(dst) {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrDecompression, n, len(dst))
	}
	return dst, nil
}

// verifyHash compares the sha256 of the decoded segment with the expected hash.
func verifyHash(s SegmentIndex, data []byte, expected [sha256.Size]byte) error {
	sum := sha256.Sum256(data)
	if sum != expected {
		return fmt.Errorf("%w: %s segment has hash %x, expected %x", ErrHashMismatch, s, sum, expected)
	}
	return nil
}
