package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOEvictsOldestInsert(t *testing.T) {
	c := New[uint64, string](3, FIFO)
	var evicted []uint64
	c.OnEvict = func(k uint64) { evicted = append(evicted, k) }

	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")

	// hits and updates do not protect an entry under FIFO
	_, ok := c.Get(1)
	require.True(t, ok)
	c.Put(1, "a2")

	c.Put(4, "d")
	assert.Equal(t, []uint64{1}, evicted)
	assert.Equal(t, []uint64{2, 3, 4}, c.Keys())
	assert.False(t, c.Contains(1))

	c.Put(5, "e")
	assert.Equal(t, []uint64{1, 2}, evicted)
	assert.Equal(t, 3, c.Len())
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[uint64, string](3, LRU)
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")

	_, ok := c.Get(1)
	require.True(t, ok)

	c.Put(4, "d")
	assert.Equal(t, []uint64{3, 1, 4}, c.Keys())
	assert.False(t, c.Contains(2))

	c.Put(3, "c2")
	c.Put(5, "e")
	assert.Equal(t, []uint64{4, 3, 5}, c.Keys())

	v, ok := c.Get(3)
	require.True(t, ok)
	assert.Equal(t, "c2", v)
}

func TestPutUpdatesValue(t *testing.T) {
	c := New[string, int](2, FIFO)
	c.Put("x", 1)
	c.Put("x", 2)
	assert.Equal(t, 1, c.Len())

	v, ok := c.Get("x")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestInvalidateAndClear(t *testing.T) {
	c := New[int, int](3, FIFO)
	c.Put(1, 10)
	c.Put(2, 20)

	assert.True(t, c.Invalidate(1))
	assert.False(t, c.Invalidate(1))
	_, ok := c.Get(1)
	assert.False(t, ok)
	assert.Equal(t, []int{2}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Stats{Capacity: 3}, c.Stats())
}

func TestStats(t *testing.T) {
	c := New[int, int](1, LRU)
	c.Put(1, 1)
	c.Get(1)
	c.Get(2)
	c.Put(2, 2)

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Evictions: 1, Resident: 1, Capacity: 1}, c.Stats())
}

func TestCapacityFloor(t *testing.T) {
	c := New[int, int](0, FIFO)
	assert.Equal(t, 1, c.Capacity())
	c.Put(1, 1)
	c.Put(2, 2)
	assert.Equal(t, []int{2}, c.Keys())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"fifo", FIFO, false},
		{"LRU", LRU, false},
		{"", FIFO, false},
		{"clock", FIFO, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "lru", LRU.String())
}
