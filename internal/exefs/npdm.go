package exefs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// NPDMHeaderSize is the size of the fixed NPDM header.
const NPDMHeaderSize = 0x80

var npdmMagic = [4]byte{'M', 'E', 'T', 'A'}

// ErrNotExeFS is returned if a directory does not contain a valid main.npdm.
var ErrNotExeFS = errors.New("not an exefs")

// NPDM is the process metadata header of an ExeFS.
type NPDM struct {
	Magic              [4]byte
	_                  [8]byte
	Flags              uint8
	_                  uint8
	MainThreadPriority uint8
	MainThreadCore     uint8
	_                  [8]byte
	ProcessCategory    uint32
	MainStackSize      uint32
	Name               [0x10]byte
	_                  [0x40]byte
	ACIOffset          uint32
	ACISize            uint32
	ACIDOffset         uint32
	ACIDSize           uint32
}

// Is64Bit returns whether the process uses the 64 bit instruction set.
func (n *NPDM) Is64Bit() bool {
	return n.Flags&1 != 0
}

// ApplicationName returns the application name without trailing zero bytes.
func (n *NPDM) ApplicationName() string {
	return string(bytes.TrimRight(n.Name[:], "\x00"))
}

// ReadNPDM reads and validates the NPDM header from r.
func ReadNPDM(r io.Reader) (*NPDM, error) {
	buf := make([]byte, NPDMHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading npdm header: %v", ErrNotExeFS, err)
	}

	n := &NPDM{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, n); err != nil {
		return nil, fmt.Errorf("%w: decoding npdm header: %v", ErrNotExeFS, err)
	}
	if n.Magic != npdmMagic {
		return nil, fmt.Errorf("%w: unexpected npdm magic %q", ErrNotExeFS, n.Magic[:])
	}
	return n, nil
}
