package btree

// IsLeaf reports whether every child slot is empty.
func (n *Node) IsLeaf() bool {
	for _, c := range n.Children {
		if c != 0 {
			return false
		}
	}
	return true
}

func (n *Node) IsFull() bool {
	return n.NumKeys == MaxKeys
}

// lowerBound returns the first index whose key is >= key, and whether that
// key equals it. The index doubles as the child slot to descend into.
func (n *Node) lowerBound(key uint64) (int, bool) {
	i := 0
	for i < int(n.NumKeys) && key > n.Keys[i] {
		i++
	}
	return i, i < int(n.NumKeys) && n.Keys[i] == key
}

// insertKeyAt shifts the pairs at pos and right of it by one.
func (n *Node) insertKeyAt(pos int, key, value uint64) {
	num := int(n.NumKeys)
	if pos < num {
		copy(n.Keys[pos+1:num+1], n.Keys[pos:num])
		copy(n.Values[pos+1:num+1], n.Values[pos:num])
	}
	n.Keys[pos] = key
	n.Values[pos] = value
	n.NumKeys++
}

// insertChildAt shifts the child slots at pos and right of it by one. The
// caller keeps the slot count consistent with NumKeys.
func (n *Node) insertChildAt(pos int, child uint64) {
	last := int(n.NumKeys) + 1
	if last > MaxChildren-1 {
		last = MaxChildren - 1
	}
	if pos < last {
		copy(n.Children[pos+1:last+1], n.Children[pos:last])
	}
	n.Children[pos] = child
}
