package btree

import (
	"errors"
	"fmt"
)

// ErrStop may be returned by a visitor to end a traversal early. Traverse
// itself then returns nil.
var ErrStop = errors.New("stop traversal")

// Visitor receives pairs in ascending key order.
type Visitor func(key, value uint64) error

// Traverse walks the tree in order: for each key, the subtree to its left
// first, then the key itself, then the rightmost subtree.
func (bt *BTree) Traverse(visit Visitor) error {
	if bt.closed {
		return ErrClosed
	}
	if bt.header.RootID == 0 {
		return nil
	}
	err := bt.traverseNode(bt.header.RootID, visit)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (bt *BTree) traverseNode(id uint64, visit Visitor) error {
	node, err := bt.loadNode(id)
	if err != nil {
		return fmt.Errorf("failed to load node: %w", err)
	}
	leaf := node.IsLeaf()

	for i := 0; i < int(node.NumKeys); i++ {
		if !leaf {
			if err := bt.traverseNode(node.Children[i], visit); err != nil {
				return err
			}
		}
		if err := visit(node.Keys[i], node.Values[i]); err != nil {
			return err
		}
	}
	if !leaf {
		return bt.traverseNode(node.Children[node.NumKeys], visit)
	}
	return nil
}
