package btree

import (
	"fmt"

	"go.uber.org/zap"
)

// saveNode writes the node through to the store before the cache sees it, so
// a cached node always matches its block.
func (bt *BTree) saveNode(node *Node) error {
	data, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	if err := bt.store.WriteBlock(node.ID, data); err != nil {
		bt.nodeCache.Invalidate(node.ID)
		return fmt.Errorf("failed to write node %d: %w", node.ID, err)
	}
	bt.nodeCache.Put(node.ID, *node)
	return nil
}

// loadNode returns a private copy of the node; callers mutate it freely and
// persist it with saveNode.
func (bt *BTree) loadNode(id uint64) (*Node, error) {
	if bt.closed {
		return nil, ErrClosed
	}
	if id == headerBlockID || id >= bt.header.NextID {
		return nil, fmt.Errorf("%w: block %d is not an allocated node", ErrIOFault, id)
	}
	if node, ok := bt.nodeCache.Get(id); ok {
		return &node, nil
	}

	data, err := bt.store.ReadBlock(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read node %d: %w", id, err)
	}
	node := &Node{}
	if err := node.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	if node.ID != id {
		return nil, fmt.Errorf("%w: block %d holds node %d", ErrInvalidFormat, id, node.ID)
	}
	bt.nodeCache.Put(id, *node)
	bt.logger.Debug("node loaded", zap.Uint64("block", id))
	return node, nil
}
