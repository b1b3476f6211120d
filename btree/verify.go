package btree

import "fmt"

// Stats describes the shape of a verified tree.
type Stats struct {
	Height int    `json:"height"` // 0 for an empty tree, 1 for a single leaf
	Nodes  uint64 `json:"nodes"`
	Leaves uint64 `json:"leaves"`
	Keys   uint64 `json:"keys"`
}

type bound struct {
	set bool
	key uint64
}

type verifier struct {
	bt        *BTree
	stats     Stats
	leafDepth int
	seen      map[uint64]bool
}

// Verify walks every node reachable from the root and checks the structural
// invariants: key counts, strictly increasing keys, subtree bounds, populated
// child slots, parent ids and equal leaf depth. Violations wrap ErrCorrupt.
func (bt *BTree) Verify() (Stats, error) {
	if bt.closed {
		return Stats{}, ErrClosed
	}
	if bt.header.RootID == 0 {
		return Stats{}, nil
	}
	v := &verifier{bt: bt, leafDepth: -1, seen: make(map[uint64]bool)}
	if err := v.walk(bt.header.RootID, 0, 1, bound{}, bound{}); err != nil {
		return v.stats, err
	}
	v.stats.Height = v.leafDepth
	return v.stats, nil
}

func (v *verifier) walk(id, parentID uint64, depth int, lo, hi bound) error {
	if v.seen[id] {
		return fmt.Errorf("%w: node %d reachable twice", ErrCorrupt, id)
	}
	v.seen[id] = true

	node, err := v.bt.loadNode(id)
	if err != nil {
		return err
	}
	v.stats.Nodes++
	v.stats.Keys += node.NumKeys

	if node.ParentID != parentID {
		return fmt.Errorf("%w: node %d has parent %d, want %d", ErrCorrupt, id, node.ParentID, parentID)
	}
	isRoot := parentID == 0
	switch {
	case node.NumKeys == 0:
		return fmt.Errorf("%w: node %d has no keys", ErrCorrupt, id)
	case !isRoot && node.NumKeys < MinKeys:
		return fmt.Errorf("%w: node %d has %d keys, minimum %d", ErrCorrupt, id, node.NumKeys, MinKeys)
	}

	for i := 0; i < int(node.NumKeys); i++ {
		k := node.Keys[i]
		if i > 0 && k <= node.Keys[i-1] {
			return fmt.Errorf("%w: node %d keys not increasing at %d", ErrCorrupt, id, i)
		}
		if (lo.set && k <= lo.key) || (hi.set && k >= hi.key) {
			return fmt.Errorf("%w: node %d key %d outside its subtree bounds", ErrCorrupt, id, k)
		}
	}

	if node.IsLeaf() {
		v.stats.Leaves++
		if v.leafDepth == -1 {
			v.leafDepth = depth
		} else if v.leafDepth != depth {
			return fmt.Errorf("%w: leaf %d at depth %d, others at %d", ErrCorrupt, id, depth, v.leafDepth)
		}
		return nil
	}

	n := int(node.NumKeys)
	for i := 0; i < MaxChildren; i++ {
		populated := node.Children[i] != 0
		if i <= n && !populated {
			return fmt.Errorf("%w: node %d missing child %d", ErrCorrupt, id, i)
		}
		if i > n && populated {
			return fmt.Errorf("%w: node %d has stray child in slot %d", ErrCorrupt, id, i)
		}
	}

	for i := 0; i <= n; i++ {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = bound{set: true, key: node.Keys[i-1]}
		}
		if i < n {
			childHi = bound{set: true, key: node.Keys[i]}
		}
		if err := v.walk(node.Children[i], id, depth+1, childLo, childHi); err != nil {
			return err
		}
	}
	return nil
}
