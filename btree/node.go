package btree

import "fmt"

const (
	MinDegree   = 10               // t
	MaxKeys     = 2*MinDegree - 1  // 19
	MaxChildren = 2 * MinDegree    // 20
	MinKeys     = MinDegree - 1    // 9, for every non-root node
)

// Node layout, block n >= 1, all fields u64
//
// .      | block id | parent id | num keys | keys   | values  | children | reserved |
// bytes  | 0      7 | 8      15 | 16    23 | 24 175 | 176 327 | 328  487 | 488  511 |
const (
	nodeIDOff       = 0
	nodeParentOff   = nodeIDOff + 8
	nodeNumKeysOff  = nodeParentOff + 8
	nodeKeysOff     = nodeNumKeysOff + 8
	nodeValuesOff   = nodeKeysOff + 8*MaxKeys
	nodeChildrenOff = nodeValuesOff + 8*MaxKeys
	nodeEncodedSz   = nodeChildrenOff + 8*MaxChildren
)

// Node is one B-tree node. Keys, values and children are fixed arrays with an
// explicit count so the encoded form is exact; a child slot of 0 is empty.
type Node struct {
	ID       uint64
	ParentID uint64 // 0 for the root
	NumKeys  uint64
	Keys     [MaxKeys]uint64
	Values   [MaxKeys]uint64
	Children [MaxChildren]uint64
}

func (n *Node) MarshalBinary() ([]byte, error) {
	if n.NumKeys > MaxKeys {
		return nil, fmt.Errorf("%w: node %d has %d keys", ErrCorrupt, n.ID, n.NumKeys)
	}
	buf := make([]byte, BlockSize)
	OnDiskByteOrder.PutUint64(buf[nodeIDOff:], n.ID)
	OnDiskByteOrder.PutUint64(buf[nodeParentOff:], n.ParentID)
	OnDiskByteOrder.PutUint64(buf[nodeNumKeysOff:], n.NumKeys)
	for i := 0; i < MaxKeys; i++ {
		OnDiskByteOrder.PutUint64(buf[nodeKeysOff+8*i:], n.Keys[i])
		OnDiskByteOrder.PutUint64(buf[nodeValuesOff+8*i:], n.Values[i])
	}
	for i := 0; i < MaxChildren; i++ {
		OnDiskByteOrder.PutUint64(buf[nodeChildrenOff+8*i:], n.Children[i])
	}
	return buf, nil
}

func (n *Node) UnmarshalBinary(b []byte) error {
	if len(b) < nodeEncodedSz {
		return fmt.Errorf("%w: node block is %d bytes", ErrInvalidFormat, len(b))
	}
	n.ID = OnDiskByteOrder.Uint64(b[nodeIDOff:])
	n.ParentID = OnDiskByteOrder.Uint64(b[nodeParentOff:])
	n.NumKeys = OnDiskByteOrder.Uint64(b[nodeNumKeysOff:])
	if n.NumKeys > MaxKeys {
		return fmt.Errorf("%w: node %d claims %d keys", ErrInvalidFormat, n.ID, n.NumKeys)
	}
	for i := 0; i < MaxKeys; i++ {
		n.Keys[i] = OnDiskByteOrder.Uint64(b[nodeKeysOff+8*i:])
		n.Values[i] = OnDiskByteOrder.Uint64(b[nodeValuesOff+8*i:])
	}
	for i := 0; i < MaxChildren; i++ {
		n.Children[i] = OnDiskByteOrder.Uint64(b[nodeChildrenOff+8*i:])
	}
	return nil
}
