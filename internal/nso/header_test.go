package nso

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/retroenv/nsoload/internal/nso/nsotest"
	"github.com/retroenv/retrogolib/assert"
)

func TestDecodeHeader(t *testing.T) {
	container := nsotest.Container{
		Segments: [3]nsotest.Segment{
			{Location: 0x0, Data: nsotest.Pattern(0x800, 1), Extra: 0x100},
			{Location: 0x1000, Data: nsotest.Pattern(0x400, 2), Extra: 0x10},
			{Location: 0x2000, Data: nsotest.Pattern(0x200, 3), Extra: 0x300},
		},
	}
	container.BuildID[0] = 0x34
	container.BuildID[1] = 0x12

	h, err := DecodeHeader(bytes.NewReader(container.MustBytes()))
	assert.NoError(t, err)
	assert.Equal(t, Magic, h.Magic)
	assert.Equal(t, uint32(0x1000), h.Segment(ROData).Location)
	assert.Equal(t, uint32(0x2000), h.Segment(Data).Location)
	assert.Equal(t, uint32(0x800), h.Segment(Code).Size)
	assert.Equal(t, uint32(0x200), h.Segment(Data).Size)
	assert.Equal(t, uint32(0x300), h.DataBssSize())
	assert.Equal(t, uint32(0x1234), h.BssSize)
	assert.Equal(t, byte(0x34), h.BuildID[0])
	assert.Equal(t, uint32(HeaderSize), h.Segment(Code).Offset)
	assert.True(t, h.Flags.Compressed(Code))
	assert.True(t, h.Flags.Compressed(Data))
	assert.False(t, h.Flags.HashChecked(Code))
	assert.Nil(t, h.Extended)
	for i := range h.CompressedSize {
		assert.True(t, h.CompressedSize[i] > 0)
	}
}

func TestDecodeHeaderExtended(t *testing.T) {
	code := nsotest.Pattern(0x100, 1)
	container := nsotest.Container{
		Segments: [3]nsotest.Segment{
			{Location: 0x0, Data: code},
			{Location: 0x1000, Data: nsotest.Pattern(0x40, 2)},
			{Location: 0x2000, Data: nsotest.Pattern(0x40, 3)},
		},
		Extended:  true,
		HashCheck: true,
	}

	h, err := DecodeHeader(bytes.NewReader(container.MustBytes()))
	assert.NoError(t, err)
	assert.True(t, h.Extended != nil)
	assert.True(t, h.Flags.HashChecked(ROData))
	assert.Equal(t, sha256.Sum256(code), h.Extended.Hashes[Code])
	assert.Equal(t, uint32(ExtendedHeaderSize), h.Segment(Code).Offset)
}

func TestDecodeHeaderErrors(t *testing.T) {
	valid := nsotest.Container{
		Segments: [3]nsotest.Segment{
			{Data: nsotest.Pattern(0x20, 1)},
			{Location: 0x1000, Data: nsotest.Pattern(0x20, 2)},
			{Location: 0x2000, Data: nsotest.Pattern(0x20, 3)},
		},
	}.MustBytes()

	badMagic := bytes.Clone(valid)
	copy(badMagic, "NRO0")

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:HeaderSize-1]},
		{name: "bad magic", data: badMagic},
		{name: "npdm", data: append([]byte("META"), make([]byte, 0x80)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := DecodeHeader(bytes.NewReader(tt.data))
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))
			assert.Nil(t, h)
		})
	}
}

func TestDecodeHeaderSegmentsAfterHeader(t *testing.T) {
	container := nsotest.Container{
		Segments: [3]nsotest.Segment{
			{Location: 0x0, Data: nsotest.Pattern(0x400, 1), Storage: nsotest.Uncompressed},
			{Location: 0x1000, Data: nsotest.Pattern(0x40, 2)},
			{Location: 0x2000, Data: nsotest.Pattern(0x40, 3)},
		},
		HashCheck: true,
	}
	data := container.MustBytes()
	assert.True(t, len(data) > ExtendedHeaderSize)

	h, err := DecodeHeader(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Equal(t, uint32(HeaderSize), h.Segment(Code).Offset)
	assert.True(t, h.Flags.HashChecked(Code))
	assert.Nil(t, h.Extended)
}

func TestDecodeHeaderExactSize(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic[:])
	binary.LittleEndian.PutUint32(buf[0x3c:], 0x5000)

	h, err := DecodeHeader(bytes.NewReader(buf))
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x5000), h.DataBssSize())
	assert.Nil(t, h.Extended)
}

func TestSegmentIndexString(t *testing.T) {
	assert.Equal(t, "code", Code.String())
	assert.Equal(t, "rodata", ROData.String())
	assert.Equal(t, "data", Data.String())
	assert.Equal(t, "segment(3)", SegmentIndex(3).String())
}
