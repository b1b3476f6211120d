package database

import (
	"fmt"

	"blockidx/btree"

	"github.com/go-faker/faker/v4"
	"go.uber.org/zap"
)

type seedRecord struct {
	Key   uint64
	Value uint64
}

// Seed inserts n randomly generated pairs. A generated key that already
// exists has its value replaced, so the index may grow by fewer than n keys.
func (db *Database) Seed(n int) (int, error) {
	inserted := 0
	err := db.withTree(false, func(bt *btree.BTree) error {
		for i := 0; i < n; i++ {
			var rec seedRecord
			if err := faker.FakeData(&rec); err != nil {
				return fmt.Errorf("failed to generate record: %w", err)
			}
			if err := bt.Insert(rec.Key, rec.Value); err != nil {
				return fmt.Errorf("failed to insert key %d: %w", rec.Key, err)
			}
			inserted++
		}
		return nil
	})
	db.cfg.Logger.Info("index seeded", zap.Int("records", inserted))
	return inserted, err
}
