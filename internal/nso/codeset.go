package nso

// Segment is the placement of a segment inside the program image.
type Segment struct {
	Offset uint64 // offset inside the image
	Addr   uint64 // address once the image is placed, equal to Offset before that
	Size   uint64 // page aligned size, the data segment includes the bss
}

// End returns the image offset following the segment.
func (s Segment) End() uint64 {
	return s.Offset + s.Size
}

// CodeSet is the program image of a single container together with its segment layout.
type CodeSet struct {
	Header *Header

	// Memory is the page aligned program image including the zero filled bss.
	Memory []byte

	Segments  [SegmentCount]Segment
	BssSize   uint64
	BssOffset uint64 // image offset of the zero filled bss

	HasModHeader bool
	ModHeader    ModHeader

	BaseAddress uint64
	Entrypoint  uint64
}

// Code returns the placement of the code segment.
func (c *CodeSet) Code() Segment {
	return c.Segments[Code]
}

// ROData returns the placement of the read only data segment.
func (c *CodeSet) ROData() Segment {
	return c.Segments[ROData]
}

// Data returns the placement of the data segment, including the bss.
func (c *CodeSet) Data() Segment {
	return c.Segments[Data]
}

// Size returns the size of the page aligned program image.
func (c *CodeSet) Size() uint64 {
	return uint64(len(c.Memory))
}

// Place assigns the base address of the image and updates all segment addresses
// and the entrypoint.
func (c *CodeSet) Place(base uint64) {
	c.BaseAddress = base
	for i := range c.Segments {
		c.Segments[i].Addr = base + c.Segments[i].Offset
	}
	c.Entrypoint = base + c.Segments[Code].Offset
}
