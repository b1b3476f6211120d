package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Header layout, block 0
//
// .      | magic | root block id | next block id | reserved |
// bytes  | 0   7 | 8          15 | 16         23 | 24   511 |
const (
	headerMagicEnd  = 8
	headerRootEnd   = headerMagicEnd + 8
	headerNextEnd   = headerRootEnd + 8
	headerBlockID   = 0
	firstNodeID     = 1
	headerEncodedSz = headerNextEnd
)

// Magic identifies the file format.
var Magic = [8]byte{'4', '3', '4', '8', 'P', 'R', 'J', '3'}

// OnDiskByteOrder is the canonical order of every multi-byte integer in the file.
var OnDiskByteOrder = binary.BigEndian

// Header is the singleton metadata kept in block 0.
type Header struct {
	Magic  [8]byte
	RootID uint64 // 0 when the tree is empty
	NextID uint64 // next block id to hand out
}

func NewHeader() Header {
	return Header{Magic: Magic, RootID: 0, NextID: firstNodeID}
}

func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BlockSize)
	copy(buf[:headerMagicEnd], h.Magic[:])
	OnDiskByteOrder.PutUint64(buf[headerMagicEnd:headerRootEnd], h.RootID)
	OnDiskByteOrder.PutUint64(buf[headerRootEnd:headerNextEnd], h.NextID)
	return buf, nil
}

func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < headerEncodedSz {
		return fmt.Errorf("%w: header is %d bytes", ErrInvalidFormat, len(b))
	}
	if !bytes.Equal(b[:headerMagicEnd], Magic[:]) {
		return fmt.Errorf("%w: bad magic %q", ErrInvalidFormat, b[:headerMagicEnd])
	}
	copy(h.Magic[:], b[:headerMagicEnd])
	h.RootID = OnDiskByteOrder.Uint64(b[headerMagicEnd:headerRootEnd])
	h.NextID = OnDiskByteOrder.Uint64(b[headerRootEnd:headerNextEnd])

	if h.NextID < firstNodeID {
		return fmt.Errorf("%w: next block id %d", ErrInvalidFormat, h.NextID)
	}
	if h.RootID >= h.NextID {
		return fmt.Errorf("%w: root block %d not allocated (next %d)", ErrInvalidFormat, h.RootID, h.NextID)
	}
	return nil
}

// DecodeHeader validates the leading block of an index file.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	err := h.UnmarshalBinary(b)
	return h, err
}
