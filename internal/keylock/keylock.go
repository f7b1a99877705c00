// Package keylock provides per-key mutual exclusion over a fixed set of
// mutex shards. Keys are assigned to a shard by hash, so memory stays bounded
// no matter how many distinct keys are seen; two keys that share a shard
// merely contend with each other.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is used when New is given a non-positive shard count.
const DefaultShards = 64

// Table hands out the mutex guarding a key.
type Table struct {
	shards []sync.Mutex
}

// New creates a Table with n shards.
func New(n int) *Table {
	if n <= 0 {
		n = DefaultShards
	}
	return &Table{shards: make([]sync.Mutex, n)}
}

// Lock blocks until the key's shard is held and returns its release func.
func (t *Table) Lock(key string) (unlock func()) {
	mu := &t.shards[t.index(key)]
	mu.Lock()
	return mu.Unlock
}

// TryLock acquires the key's shard only if it is free.
func (t *Table) TryLock(key string) (unlock func(), ok bool) {
	mu := &t.shards[t.index(key)]
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}

func (t *Table) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(t.shards)))
}
