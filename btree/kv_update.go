package btree

import "fmt"

// Update replaces the value of an existing key. It reports false, and writes
// nothing, when the key is absent.
func (bt *BTree) Update(key, value uint64) (bool, error) {
	if err := bt.writable(); err != nil {
		return false, err
	}
	if bt.header.RootID == 0 {
		return false, nil
	}

	root, err := bt.loadNode(bt.header.RootID)
	if err != nil {
		return false, fmt.Errorf("failed to load root node: %w", err)
	}

	return bt.updateInNode(root, key, value)
}

func (bt *BTree) updateInNode(node *Node, key, value uint64) (bool, error) {
	i, found := node.lowerBound(key)
	if found {
		node.Values[i] = value
		return true, bt.saveNode(node)
	}

	if node.IsLeaf() {
		return false, nil
	}

	child, err := bt.loadNode(node.Children[i])
	if err != nil {
		return false, fmt.Errorf("failed to load child node: %w", err)
	}

	return bt.updateInNode(child, key, value)
}
