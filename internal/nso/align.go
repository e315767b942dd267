package nso

const (
	pageBits = 12
	// PageSize is the alignment of segments and images.
	PageSize = 1 << pageBits
	pageMask = PageSize - 1
)

// PageAlign rounds size up to the next page boundary.
func PageAlign(size uint64) uint64 {
	return (size + pageMask) &^ pageMask
}
