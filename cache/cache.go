package cache

import (
	"container/list"
	"fmt"
	"strings"
)

// Policy selects which resident entry is evicted when the cache is full.
type Policy int

const (
	// FIFO evicts the entry that was inserted first. Hits do not reorder.
	FIFO Policy = iota
	// LRU evicts the entry that was used least recently.
	LRU
)

// DefaultCapacity holds the nodes touched by one split: parent, child and
// the new sibling.
const DefaultCapacity = 3

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LRU:
		return "lru"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "fifo" or "lru" in any case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "":
		return FIFO, nil
	case "lru":
		return LRU, nil
	}
	return FIFO, fmt.Errorf("unknown cache policy %q (want fifo or lru)", s)
}

// Stats counts cache traffic since creation or the last Clear.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Resident  int    `json:"resident"`
	Capacity  int    `json:"capacity"`
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache is a capacity bounded map. The front of order is the next entry to be
// evicted. It is not safe for concurrent use.
type Cache[K comparable, V any] struct {
	capacity int
	policy   Policy
	items    map[K]*list.Element
	order    *list.List
	stats    Stats

	// OnEvict, when set, is called with each evicted key.
	OnEvict func(K)
}

// New creates a cache holding at most capacity entries. A capacity below 1 is
// raised to 1.
func New[K comparable, V any](capacity int, policy Policy) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		policy:   policy,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the resident value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if el, ok := c.items[key]; ok {
		c.stats.Hits++
		if c.policy == LRU {
			c.order.MoveToBack(el)
		}
		return el.Value.(*entry[K, V]).value, true
	}
	c.stats.Misses++
	var zero V
	return zero, false
}

// Put inserts or replaces the value for key, evicting one entry first when a
// new key arrives at a full cache.
func (c *Cache[K, V]) Put(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		if c.policy == LRU {
			c.order.MoveToBack(el)
		}
		return
	}
	if c.order.Len() >= c.capacity {
		c.evict()
	}
	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value})
}

// Invalidate drops key if it is resident.
func (c *Cache[K, V]) Invalidate(key K) bool {
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, key)
	return true
}

func (c *Cache[K, V]) evict() {
	el := c.order.Front()
	if el == nil {
		return
	}
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
	c.stats.Evictions++
	if c.OnEvict != nil {
		c.OnEvict(e.key)
	}
}

func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.items[key]
	return ok
}

func (c *Cache[K, V]) Len() int { return c.order.Len() }

func (c *Cache[K, V]) Capacity() int { return c.capacity }

func (c *Cache[K, V]) Policy() Policy { return c.policy }

// Keys lists resident keys, next eviction candidate first.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

func (c *Cache[K, V]) Stats() Stats {
	s := c.stats
	s.Resident = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// Clear empties the cache and resets its counters.
func (c *Cache[K, V]) Clear() {
	c.items = make(map[K]*list.Element, c.capacity)
	c.order = list.New()
	c.stats = Stats{}
}
