package database

import (
	"errors"
	"fmt"
	"os"

	"blockidx/btree"
	"blockidx/cache"

	"go.uber.org/zap"
)

// Config carries the engine options every command opens the index with.
type Config struct {
	CacheCapacity int
	CachePolicy   cache.Policy
	Logger        *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		CacheCapacity: cache.DefaultCapacity,
		CachePolicy:   cache.FIFO,
		Logger:        zap.NewNop(),
	}
}

// Database runs one command at a time against an index file. Each operation
// opens the file, works, and closes it again on every return path.
type Database struct {
	path string
	cfg  Config
}

func New(path string, cfg Config) *Database {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Database{path: path, cfg: cfg}
}

func (db *Database) Path() string { return db.path }

func (db *Database) options(readOnly bool) []btree.Option {
	opts := []btree.Option{
		btree.WithCacheCapacity(db.cfg.CacheCapacity),
		btree.WithCachePolicy(db.cfg.CachePolicy),
		btree.WithLogger(db.cfg.Logger.With(zap.String("index", db.path))),
	}
	if readOnly {
		opts = append(opts, btree.WithReadOnly())
	}
	return opts
}

// Open returns a handle the caller must Close. Commands use withTree instead.
func (db *Database) Open(readOnly bool) (*btree.BTree, error) {
	return btree.Open(db.path, db.options(readOnly)...)
}

func (db *Database) withTree(readOnly bool, fn func(bt *btree.BTree) error) (err error) {
	bt, err := db.Open(readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bt.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(bt)
}

// Create writes a new empty index. An existing file is only replaced when
// overwrite is set; otherwise btree.ErrExists is returned.
func (db *Database) Create(overwrite bool) error {
	if overwrite {
		if err := os.Remove(db.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove existing index: %w", err)
		}
	}
	bt, err := btree.Create(db.path, db.options(false)...)
	if err != nil {
		return err
	}
	db.cfg.Logger.Info("index created", zap.String("index", db.path))
	return bt.Close()
}

func (db *Database) Insert(key, value uint64) error {
	return db.withTree(false, func(bt *btree.BTree) error {
		if err := bt.Insert(key, value); err != nil {
			return fmt.Errorf("failed to insert key %d: %w", key, err)
		}
		return nil
	})
}

// Search reports found == false for a miss; that is not an error.
func (db *Database) Search(key uint64) (value uint64, found bool, err error) {
	err = db.withTree(true, func(bt *btree.BTree) error {
		value, found, err = bt.Search(key)
		return err
	})
	return value, found, err
}

// Traverse visits every pair in ascending key order.
func (db *Database) Traverse(visit btree.Visitor) error {
	return db.withTree(true, func(bt *btree.BTree) error {
		return bt.Traverse(visit)
	})
}

func (db *Database) Verify() (stats btree.Stats, err error) {
	err = db.withTree(true, func(bt *btree.BTree) error {
		stats, err = bt.Verify()
		return err
	})
	return stats, err
}

// Info returns the header and shape of the index.
func (db *Database) Info() (h btree.Header, stats btree.Stats, err error) {
	err = db.withTree(true, func(bt *btree.BTree) error {
		h = bt.Header()
		stats, err = bt.Verify()
		return err
	})
	return h, stats, err
}
