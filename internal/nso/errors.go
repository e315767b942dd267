package nso

import "errors"

var (
	// ErrFormat is returned for a missing or truncated header or an unexpected magic.
	ErrFormat = errors.New("invalid nso format")

	// ErrIO is returned when the container can not be read at a required offset.
	ErrIO = errors.New("nso read failed")

	// ErrDecompression is returned when a segment does not decompress to its declared size.
	ErrDecompression = errors.New("segment decompression failed")

	// ErrHashMismatch is returned when a decompressed segment does not match its header hash.
	ErrHashMismatch = errors.New("segment hash mismatch")

	// ErrSizeOverflow is returned when the assembled image would exceed the size limit.
	ErrSizeOverflow = errors.New("image size overflow")
)
