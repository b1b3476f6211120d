package btree

import (
	"errors"
	"fmt"
	"os"

	"blockidx/cache"

	"go.uber.org/zap"
)

// BTree is a handle on one index. It owns the block store, the header read
// from block 0 and a bounded cache of decoded nodes. It is not safe for
// concurrent use; callers serialise access.
type BTree struct {
	store     BlockStore
	header    Header
	nodeCache *cache.Cache[uint64, Node]
	readOnly  bool
	closed    bool
	logger    *zap.Logger
}

// Options configure a BTree handle.
type Options struct {
	CacheCapacity int
	CachePolicy   cache.Policy
	ReadOnly      bool
	Logger        *zap.Logger
}

type Option func(*Options)

func WithCacheCapacity(n int) Option {
	return func(o *Options) { o.CacheCapacity = n }
}

func WithCachePolicy(p cache.Policy) Option {
	return func(o *Options) { o.CachePolicy = p }
}

// WithReadOnly opens the index without write access; mutations fail with
// ErrReadOnly.
func WithReadOnly() Option {
	return func(o *Options) { o.ReadOnly = true }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func newOptions(opts []Option) Options {
	o := Options{
		CacheCapacity: cache.DefaultCapacity,
		CachePolicy:   cache.FIFO,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func newTree(store BlockStore, header Header, o Options) *BTree {
	bt := &BTree{
		store:     store,
		header:    header,
		nodeCache: cache.New[uint64, Node](o.CacheCapacity, o.CachePolicy),
		readOnly:  o.ReadOnly,
		logger:    o.Logger,
	}
	bt.nodeCache.OnEvict = func(id uint64) {
		bt.logger.Debug("node evicted", zap.Uint64("block", id))
	}
	return bt
}

// Create makes a new index file holding only an empty header. It fails with
// ErrExists if path is already present. A file it could not initialise is
// removed again.
func Create(path string, opts ...Option) (*BTree, error) {
	store, err := CreateFileStore(path)
	if err != nil {
		return nil, err
	}
	bt, err := Init(store, opts...)
	if err != nil {
		store.Close()
		os.Remove(path)
		return nil, err
	}
	return bt, nil
}

// Open reads block 0 of an existing index file and checks the magic tag.
// Nothing is written during open.
func Open(path string, opts ...Option) (*BTree, error) {
	o := newOptions(opts)
	store, err := OpenFileStore(path, o.ReadOnly)
	if err != nil {
		return nil, err
	}
	bt, err := Attach(store, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return bt, nil
}

// Init writes a fresh header (root 0, next 1) to store.
func Init(store BlockStore, opts ...Option) (*BTree, error) {
	o := newOptions(opts)
	if o.ReadOnly {
		return nil, ErrReadOnly
	}
	bt := newTree(store, NewHeader(), o)
	if err := bt.saveHeader(); err != nil {
		return nil, fmt.Errorf("failed to save header: %w", err)
	}
	bt.logger.Debug("index initialised")
	return bt, nil
}

// Attach opens a tree over a store that already holds a header.
func Attach(store BlockStore, opts ...Option) (*BTree, error) {
	o := newOptions(opts)
	raw, err := store.ReadBlock(headerBlockID)
	if err != nil {
		if errors.Is(err, ErrIOFault) {
			return nil, fmt.Errorf("%w: cannot read header: %v", ErrInvalidFormat, err)
		}
		return nil, err
	}
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	bt := newTree(store, h, o)
	bt.logger.Debug("index opened", zap.Uint64("root", h.RootID), zap.Uint64("next", h.NextID))
	return bt, nil
}

// NewInMemory returns an empty tree backed by a MemStore.
func NewInMemory(opts ...Option) (*BTree, error) {
	return Init(NewMemStore(), opts...)
}

// Header returns a copy of the current header.
func (bt *BTree) Header() Header {
	return bt.header
}

// Empty reports whether no key has ever been inserted.
func (bt *BTree) Empty() bool {
	return bt.header.RootID == 0
}

func (bt *BTree) CacheStats() cache.Stats {
	return bt.nodeCache.Stats()
}

func (bt *BTree) saveHeader() error {
	data, err := bt.header.MarshalBinary()
	if err != nil {
		return err
	}
	return bt.store.WriteBlock(headerBlockID, data)
}

// allocateNodeID hands out the next block id and persists the header before
// the id is used. The counter is restored if the header write fails.
func (bt *BTree) allocateNodeID() (uint64, error) {
	id := bt.header.NextID
	bt.header.NextID++
	if err := bt.saveHeader(); err != nil {
		bt.header.NextID = id
		return 0, fmt.Errorf("failed to allocate block: %w", err)
	}
	bt.logger.Debug("block allocated", zap.Uint64("block", id))
	return id, nil
}

func (bt *BTree) setRoot(id uint64) error {
	prev := bt.header.RootID
	bt.header.RootID = id
	if err := bt.saveHeader(); err != nil {
		bt.header.RootID = prev
		return fmt.Errorf("failed to save root: %w", err)
	}
	return nil
}

func (bt *BTree) writable() error {
	if bt.closed {
		return ErrClosed
	}
	if bt.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Close syncs and releases the store. Calling it again is a no-op.
func (bt *BTree) Close() error {
	if bt.closed {
		return nil
	}
	bt.closed = true
	bt.nodeCache.Clear()

	var syncErr error
	if !bt.readOnly {
		syncErr = bt.store.Sync()
	}
	if err := bt.store.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	return syncErr
}
