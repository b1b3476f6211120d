package btree

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"blockidx/cache"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemTree(t *testing.T, opts ...Option) *BTree {
	t.Helper()
	bt, err := NewInMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { bt.Close() })
	return bt
}

func collect(t *testing.T, bt *BTree) (keys, values []uint64) {
	t.Helper()
	err := bt.Traverse(func(k, v uint64) error {
		keys = append(keys, k)
		values = append(values, v)
		return nil
	})
	require.NoError(t, err)
	return keys, values
}

func TestSearchEmptyTree(t *testing.T) {
	bt := newMemTree(t)

	v, found, err := bt.Search(42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, v)

	keys, _ := collect(t, bt)
	assert.Empty(t, keys)

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.True(t, bt.Empty())
}

func TestInsertSequentialGrowsRoot(t *testing.T) {
	bt := newMemTree(t)

	for k := uint64(1); k <= 25; k++ {
		require.NoError(t, bt.Insert(k, k*100))
	}

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Height)
	assert.EqualValues(t, 25, stats.Keys)
	assert.EqualValues(t, 3, stats.Nodes)

	// first root was block 1, the new root block 2 and the split sibling block 3
	h := bt.Header()
	assert.EqualValues(t, 2, h.RootID)
	assert.EqualValues(t, 4, h.NextID)

	root, err := bt.loadNode(h.RootID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, root.NumKeys)
	assert.EqualValues(t, MinDegree, root.Keys[0])
	assert.Equal(t, []uint64{1, 3}, root.Children[:2])

	for k := uint64(1); k <= 25; k++ {
		v, found, err := bt.Search(k)
		require.NoError(t, err)
		require.True(t, found, "key %d", k)
		assert.Equal(t, k*100, v)
	}

	keys, values := collect(t, bt)
	require.Len(t, keys, 25)
	for i := range keys {
		assert.EqualValues(t, i+1, keys[i])
		assert.EqualValues(t, (i+1)*100, values[i])
	}
}

func TestSplitMovesChildrenAndParents(t *testing.T) {
	bt := newMemTree(t)

	// enough keys for a three level tree
	const n = 2000
	for k := uint64(1); k <= n; k++ {
		require.NoError(t, bt.Insert(k, k))
	}

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Height, 3)
	assert.EqualValues(t, n, stats.Keys)
}

func TestInsertRandomOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		policy   cache.Policy
	}{
		{"fifo-3", 3, cache.FIFO},
		{"fifo-1", 1, cache.FIFO},
		{"lru-3", 3, cache.LRU},
		{"lru-64", 64, cache.LRU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt := newMemTree(t, WithCacheCapacity(tt.capacity), WithCachePolicy(tt.policy))

			rng := rand.New(rand.NewSource(42))
			perm := rng.Perm(3000)
			for i, p := range perm {
				k := uint64(p) * 7
				require.NoError(t, bt.Insert(k, k+1))
				if i%500 == 0 {
					_, err := bt.Verify()
					require.NoError(t, err, "after %d inserts", i+1)
				}
				assert.LessOrEqual(t, bt.CacheStats().Resident, tt.capacity)
			}

			stats, err := bt.Verify()
			require.NoError(t, err)
			assert.EqualValues(t, len(perm), stats.Keys)

			keys, values := collect(t, bt)
			require.Len(t, keys, len(perm))
			for i := range keys {
				assert.EqualValues(t, i*7, keys[i])
				assert.Equal(t, keys[i]+1, values[i])
			}

			_, found, err := bt.Search(8)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestInsertFakerRecords(t *testing.T) {
	bt := newMemTree(t)
	want := map[uint64]uint64{}

	for i := 0; i < 1500; i++ {
		var rec struct {
			Key   uint64
			Value uint64
		}
		require.NoError(t, faker.FakeData(&rec))
		require.NoError(t, bt.Insert(rec.Key, rec.Value))
		want[rec.Key] = rec.Value
	}

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, len(want), stats.Keys)

	for k, v := range want {
		got, found, err := bt.Search(k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, v, got)
	}
}

func TestInsertDuplicateOverwrites(t *testing.T) {
	bt := newMemTree(t)

	for k := uint64(1); k <= 100; k++ {
		require.NoError(t, bt.Insert(k, k))
	}
	for k := uint64(1); k <= 100; k += 3 {
		require.NoError(t, bt.Insert(k, k*1000))
	}

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, 100, stats.Keys)

	for k := uint64(1); k <= 100; k++ {
		v, found, err := bt.Search(k)
		require.NoError(t, err)
		require.True(t, found)
		if (k-1)%3 == 0 {
			assert.Equal(t, k*1000, v)
		} else {
			assert.Equal(t, k, v)
		}
	}
}

func TestInsertDuplicateOfPromotedMedian(t *testing.T) {
	bt := newMemTree(t)

	for k := uint64(1); k <= MaxKeys; k++ {
		require.NoError(t, bt.Insert(k, k))
	}
	// the root is full; this insert splits it and promotes key 10
	require.NoError(t, bt.Insert(MinDegree, 999))

	stats, err := bt.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Height)
	assert.EqualValues(t, MaxKeys, stats.Keys)

	v, found, err := bt.Search(MinDegree)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 999, v)
}

func TestInsertExtremeKeys(t *testing.T) {
	bt := newMemTree(t)
	keys := []uint64{^uint64(0), 0, 1, ^uint64(0) - 1}
	for _, k := range keys {
		require.NoError(t, bt.Insert(k, k))
	}
	got, _ := collect(t, bt)
	assert.Equal(t, []uint64{0, 1, ^uint64(0) - 1, ^uint64(0)}, got)
}

func TestUpdate(t *testing.T) {
	bt := newMemTree(t)

	ok, err := bt.Update(1, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	for k := uint64(1); k <= 50; k++ {
		require.NoError(t, bt.Insert(k, 0))
	}
	ok, err = bt.Update(37, 370)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bt.Update(51, 510)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := bt.Search(37)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 370, v)

	_, found, err = bt.Search(51)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTraverseStop(t *testing.T) {
	bt := newMemTree(t)
	for k := uint64(1); k <= 60; k++ {
		require.NoError(t, bt.Insert(k, k))
	}

	var seen []uint64
	err := bt.Traverse(func(k, v uint64) error {
		seen = append(seen, k)
		if k == 5 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)

	boom := fmt.Errorf("visitor failed")
	err = bt.Traverse(func(k, v uint64) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.idx")

	bt, err := Create(path)
	require.NoError(t, err)
	for k := uint64(1000); k > 0; k-- {
		require.NoError(t, bt.Insert(k, k*2))
	}
	h := bt.Header()
	require.NoError(t, bt.Close())
	require.NoError(t, bt.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, h.NextID*BlockSize, info.Size())

	ro, err := Open(path, WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	assert.Equal(t, h, ro.Header())
	stats, err := ro.Verify()
	require.NoError(t, err)
	assert.EqualValues(t, 1000, stats.Keys)

	v, found, err := ro.Search(777)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 1554, v)

	assert.ErrorIs(t, ro.Insert(1, 1), ErrReadOnly)
	_, err = ro.Update(1, 1)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestCreateExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.idx")
	bt, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, bt.Close())

	_, err = Create(path)
	assert.ErrorIs(t, err, ErrExists)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	dir := t.TempDir()

	foreign := make([]byte, BlockSize*2)
	copy(foreign, "NOTMAGIC")
	OnDiskByteOrder.PutUint64(foreign[16:], 2)

	tests := []struct {
		name    string
		content []byte
	}{
		{"bad magic", foreign},
		{"empty", []byte{}},
		{"truncated header", []byte("4348PRJ3\x00\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".idx")
			require.NoError(t, os.WriteFile(path, tt.content, 0644))

			_, err := Open(path)
			assert.ErrorIs(t, err, ErrInvalidFormat)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.content, after)
		})
	}
}

func TestClosedTree(t *testing.T) {
	bt, err := NewInMemory()
	require.NoError(t, err)
	require.NoError(t, bt.Insert(1, 1))
	require.NoError(t, bt.Close())

	assert.ErrorIs(t, bt.Insert(2, 2), ErrClosed)
	_, _, err = bt.Search(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, bt.Traverse(func(k, v uint64) error { return nil }), ErrClosed)
}
