package nso

import (
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxImageSize limits the size of a single program image.
	DefaultMaxImageSize = 1 << 30

	// MaxSegmentGap limits the unused space between the segments of an image.
	MaxSegmentGap = 1 << 24
)

// Builder decodes containers into program images.
type Builder struct {
	parallel     bool
	verifyHashes bool
	maxImageSize uint64
}

// Option configures a Builder.
type Option func(*Builder)

// WithParallel enables decompressing the segments of a container concurrently.
// The segments are still placed in the image in the format order.
func WithParallel(parallel bool) Option {
	return func(b *Builder) {
		b.parallel = parallel
	}
}

// WithHashVerification enables checking the decompressed segments against the hashes of
// the extended header, for all segments that are flagged for hash checking.
func WithHashVerification(verify bool) Option {
	return func(b *Builder) {
		b.verifyHashes = verify
	}
}

// WithMaxImageSize sets the maximum size of an assembled image, 0 selects the default.
func WithMaxImageSize(size uint64) Option {
	return func(b *Builder) {
		if size == 0 {
			size = DefaultMaxImageSize
		}
		b.maxImageSize = size
	}
}

// NewBuilder returns a new image builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		maxImageSize: DefaultMaxImageSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build decodes the container read from r and assembles its program image.
// On error no partially built code set is returned.
func (b *Builder) Build(r io.ReadSeeker) (*CodeSet, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}

	raws, err := readRawSegments(r, h)
	if err != nil {
		return nil, err
	}

	segments, err := b.decodeSegments(h, raws)
	if err != nil {
		return nil, err
	}

	return b.assemble(h, segments)
}

// readRawSegments reads the stored bytes of all segments. Reading is sequential as all
// segments share the same source.
func readRawSegments(r io.ReadSeeker, h *Header) ([SegmentCount]rawSegment, error) {
	var raws [SegmentCount]rawSegment
	for i := range raws {
		s := SegmentIndex(i)
		seg := h.Segments[i]
		compressedSize := h.CompressedSize[i]
		stored := compressedSize == 0 || (!h.Flags.Compressed(s) && compressedSize == seg.Size)

		raw, err := readRawSegment(r, seg, compressedSize, stored)
		if err != nil {
			return raws, fmt.Errorf("reading %s segment: %w", s, err)
		}
		raws[i] = raw
	}
	return raws, nil
}

func (b *Builder) decodeSegments(h *Header, raws [SegmentCount]rawSegment) ([SegmentCount][]byte, error) {
	var decoded [SegmentCount][]byte

	if !b.parallel {
		for i, raw := range raws {
			data, err := b.decodeSegment(h, SegmentIndex(i), raw)
			if err != nil {
				return decoded, err
			}
			decoded[i] = data
		}
		return decoded, nil
	}

	var g errgroup.Group
	for i, raw := range raws {
		g.Go(func() error {
			data, err := b.decodeSegment(h, SegmentIndex(i), raw)
			if err != nil {
				return err
			}
			decoded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decoded, err
	}
	return decoded, nil
}

func (b *Builder) decodeSegment(h *Header, s SegmentIndex, raw rawSegment) ([]byte, error) {
	data, err := raw.decode()
	if err != nil {
		return nil, fmt.Errorf("decoding %s segment: %w", s, err)
	}

	if b.verifyHashes && h.Extended != nil && h.Flags.HashChecked(s) {
		if err := verifyHash(s, data, h.Extended.Hashes[s]); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// assemble places the decoded segments at their locations, appends the bss and
// page aligns the image.
func (b *Builder) assemble(h *Header, segments [SegmentCount][]byte) (*CodeSet, error) {
	cs := &CodeSet{
		Header: h,
	}

	// segment locations may leave gaps, but not more than the segments could fill
	var layoutSize uint64
	for _, data := range segments {
		layoutSize += PageAlign(uint64(len(data)))
	}
	layoutLimit := min(layoutSize+MaxSegmentGap, b.maxImageSize)

	var image []byte
	for i, data := range segments {
		location := uint64(h.Segments[i].Location)
		size := PageAlign(uint64(len(data)))
		end := location + size
		if end > layoutLimit {
			return nil, fmt.Errorf("%w: %s segment ends at 0x%X, limit is 0x%X",
				ErrSizeOverflow, SegmentIndex(i), end, layoutLimit)
		}

		// segments are not required to be ordered, the image always covers
		// the largest page aligned extent seen so far
		image = grow(image, end)
		copy(image[location:], data)

		cs.Segments[i] = Segment{
			Offset: location,
			Addr:   location,
			Size:   size,
		}
	}

	cs.ModHeader, cs.HasModHeader = LocateModHeader(image, cs.Segments[Code].Offset)
	cs.BssSize = bssSize(h, cs.ModHeader, cs.HasModHeader)
	cs.BssOffset = uint64(len(image))

	// the bss follows the end of the image, the data placement extends up to it
	if cs.BssSize > 0 {
		data := &cs.Segments[Data]
		data.Size = cs.BssOffset - data.Offset + cs.BssSize
	}

	total := PageAlign(cs.BssOffset + cs.BssSize)
	if total > b.maxImageSize {
		return nil, fmt.Errorf("%w: image size 0x%X exceeds limit 0x%X", ErrSizeOverflow, total, b.maxImageSize)
	}
	cs.Memory = grow(image, total)

	return cs, nil
}

// grow returns buf extended with zero bytes to at least size bytes.
func grow(buf []byte, size uint64) []byte {
	if size <= uint64(len(buf)) {
		return buf
	}
	if size <= uint64(cap(buf)) {
		return buf[:size]
	}
	n := make([]byte, size)
	copy(n, buf)
	return n
}
