package btree

import "fmt"

// Search looks key up. A miss is reported as found == false with a nil error.
func (bt *BTree) Search(key uint64) (uint64, bool, error) {
	if bt.closed {
		return 0, false, ErrClosed
	}
	if bt.header.RootID == 0 {
		return 0, false, nil
	}

	root, err := bt.loadNode(bt.header.RootID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load root node: %w", err)
	}

	return bt.findInNode(root, key)
}

func (bt *BTree) findInNode(node *Node, key uint64) (uint64, bool, error) {
	i, found := node.lowerBound(key)
	if found {
		return node.Values[i], true, nil
	}

	if node.IsLeaf() {
		return 0, false, nil
	}

	child, err := bt.loadNode(node.Children[i])
	if err != nil {
		return 0, false, fmt.Errorf("failed to load child node: %w", err)
	}

	return bt.findInNode(child, key)
}
