package btree

import (
	"fmt"

	"go.uber.org/zap"
)

// Insert stores value under key. An existing key keeps its position and has
// its value replaced.
func (bt *BTree) Insert(key, value uint64) error {
	if err := bt.writable(); err != nil {
		return err
	}

	if bt.header.RootID == 0 {
		id, err := bt.allocateNodeID()
		if err != nil {
			return err
		}
		root := &Node{ID: id}
		root.insertKeyAt(0, key, value)
		if err := bt.saveNode(root); err != nil {
			return fmt.Errorf("failed to save root node: %w", err)
		}
		return bt.setRoot(id)
	}

	root, err := bt.loadNode(bt.header.RootID)
	if err != nil {
		return fmt.Errorf("failed to load root node: %w", err)
	}

	if root.IsFull() {
		id, err := bt.allocateNodeID()
		if err != nil {
			return err
		}
		newRoot := &Node{ID: id}
		newRoot.Children[0] = root.ID

		if err := bt.splitChild(newRoot, 0, root); err != nil {
			return fmt.Errorf("failed to split root: %w", err)
		}
		if err := bt.setRoot(newRoot.ID); err != nil {
			return err
		}
		bt.logger.Debug("root grown",
			zap.Uint64("old_root", root.ID), zap.Uint64("new_root", newRoot.ID))

		return bt.insertNonFull(newRoot, key, value)
	}

	return bt.insertNonFull(root, key, value)
}

// splitChild splits the full child y = parent.Children[index]. The upper
// MinDegree-1 pairs (and MinDegree children) move to a new right sibling z,
// the median moves up into parent at index. Writes go y, z, re-parented
// children, parent: z exists on disk before anything refers to it.
func (bt *BTree) splitChild(parent *Node, index int, y *Node) error {
	if !y.IsFull() {
		return fmt.Errorf("%w: split of node %d with %d keys", ErrCorrupt, y.ID, y.NumKeys)
	}

	id, err := bt.allocateNodeID()
	if err != nil {
		return err
	}
	z := &Node{ID: id, ParentID: parent.ID, NumKeys: MinKeys}

	copy(z.Keys[:MinKeys], y.Keys[MinDegree:])
	copy(z.Values[:MinKeys], y.Values[MinDegree:])

	leaf := y.IsLeaf()
	if !leaf {
		copy(z.Children[:MinDegree], y.Children[MinDegree:])
	}

	medianKey, medianValue := y.Keys[MinDegree-1], y.Values[MinDegree-1]

	for i := MinDegree - 1; i < MaxKeys; i++ {
		y.Keys[i], y.Values[i] = 0, 0
	}
	if !leaf {
		for i := MinDegree; i < MaxChildren; i++ {
			y.Children[i] = 0
		}
	}
	y.NumKeys = MinKeys
	y.ParentID = parent.ID

	parent.insertChildAt(index+1, z.ID)
	parent.insertKeyAt(index, medianKey, medianValue)

	if err := bt.saveNode(y); err != nil {
		return fmt.Errorf("failed to save child node: %w", err)
	}
	if err := bt.saveNode(z); err != nil {
		return fmt.Errorf("failed to save new child node: %w", err)
	}
	if !leaf {
		for _, childID := range z.Children[:MinDegree] {
			if err := bt.reparent(childID, z.ID); err != nil {
				return err
			}
		}
	}
	if err := bt.saveNode(parent); err != nil {
		return fmt.Errorf("failed to save parent node: %w", err)
	}

	bt.logger.Debug("node split",
		zap.Uint64("node", y.ID), zap.Uint64("sibling", z.ID),
		zap.Uint64("parent", parent.ID), zap.Uint64("median", medianKey))
	return nil
}

func (bt *BTree) reparent(childID, parentID uint64) error {
	child, err := bt.loadNode(childID)
	if err != nil {
		return fmt.Errorf("failed to load moved child: %w", err)
	}
	child.ParentID = parentID
	if err := bt.saveNode(child); err != nil {
		return fmt.Errorf("failed to save moved child: %w", err)
	}
	return nil
}

// insertNonFull places the pair in the subtree rooted at node, which must not
// be full. Full children are split before the descent reaches them.
func (bt *BTree) insertNonFull(node *Node, key, value uint64) error {
	i, found := node.lowerBound(key)
	if found {
		node.Values[i] = value
		return bt.saveNode(node)
	}

	if node.IsLeaf() {
		node.insertKeyAt(i, key, value)
		return bt.saveNode(node)
	}

	child, err := bt.loadNode(node.Children[i])
	if err != nil {
		return fmt.Errorf("failed to load child node: %w", err)
	}

	if child.IsFull() {
		if err := bt.splitChild(node, i, child); err != nil {
			return fmt.Errorf("failed to split child: %w", err)
		}

		// node.Keys[i] is now the promoted median.
		switch {
		case key == node.Keys[i]:
			node.Values[i] = value
			return bt.saveNode(node)
		case key > node.Keys[i]:
			child, err = bt.loadNode(node.Children[i+1])
			if err != nil {
				return fmt.Errorf("failed to load child node: %w", err)
			}
		}
	}

	return bt.insertNonFull(child, key, value)
}
