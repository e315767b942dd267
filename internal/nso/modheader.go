package nso

import (
	"encoding/binary"
)

// ModHeaderSize is the size of the MOD0 header.
const ModHeaderSize = 0x1c

// modPointerOffset is the offset inside the code segment that stores the MOD0 header offset.
const modPointerOffset = 4

// ModMagic is the tag that a MOD0 header starts with.
var ModMagic = [4]byte{'M', 'O', 'D', '0'}

// ModHeader is the optional MOD0 header that the toolchain embeds in the code segment.
// Only the bss bounds are used for the image layout, the other offsets are kept for consumers.
type ModHeader struct {
	Magic           [4]byte
	DynamicOffset   uint32
	BssStartOffset  uint32
	BssEndOffset    uint32
	EhFrameHdrStart uint32
	EhFrameHdrEnd   uint32
	ModuleOffset    uint32 // offset of the runtime module object, typically the bss base
}

// BssSize returns the size of the bss region described by the header and whether the
// bounds are well formed.
func (m ModHeader) BssSize() (uint32, bool) {
	if m.BssEndOffset < m.BssStartOffset {
		return 0, false
	}
	return m.BssEndOffset - m.BssStartOffset, true
}

// LocateModHeader looks up the MOD0 header through the offset stored at byte 4 of the
// code segment, which starts at codeOffset inside the image. The stored offset is relative
// to the image base. The second return value is false if the offset points outside of the
// image or the magic does not match.
func LocateModHeader(image []byte, codeOffset uint64) (ModHeader, bool) {
	size := uint64(len(image))

	pointer := codeOffset + modPointerOffset
	if pointer < codeOffset || pointer+4 > size {
		return ModHeader{}, false
	}
	offset := uint64(binary.LittleEndian.Uint32(image[pointer : pointer+4]))

	if offset+ModHeaderSize > size {
		return ModHeader{}, false
	}
	b := image[offset : offset+ModHeaderSize]

	var m ModHeader
	copy(m.Magic[:], b[0:4])
	if m.Magic != ModMagic {
		return ModHeader{}, false
	}
	m.DynamicOffset = binary.LittleEndian.Uint32(b[4:])
	m.BssStartOffset = binary.LittleEndian.Uint32(b[8:])
	m.BssEndOffset = binary.LittleEndian.Uint32(b[12:])
	m.EhFrameHdrStart = binary.LittleEndian.Uint32(b[16:])
	m.EhFrameHdrEnd = binary.LittleEndian.Uint32(b[20:])
	m.ModuleOffset = binary.LittleEndian.Uint32(b[24:])
	return m, true
}

// bssSize returns the page aligned bss size of the image. The MOD0 bounds take precedence
// over the bss size of the data segment header.
func bssSize(h *Header, mod ModHeader, hasMod bool) uint64 {
	if hasMod {
		if size, ok := mod.BssSize(); ok {
			return PageAlign(uint64(size))
		}
	}
	return PageAlign(uint64(h.DataBssSize()))
}
