// Package dedup is a bounded, insertion-ordered set of seen message-ids.
// It suppresses reprocessing of duplicates from multi-broadcast fan-out
// and peer-rebroadcast.
package dedup

import (
	"sync"

	"github.com/google/btree"
)

const (
	// Capacity is the maximum number of message-ids retained.
	Capacity = 1000
	// evictBatch is how many of the oldest entries are pruned in one
	// pass once Capacity is exceeded.
	evictBatch = 500
)

type seqKey struct {
	seq uint64
	id  string
}

func seqLess(a, b seqKey) bool {
	return a.seq < b.seq
}

// Cache is safe for concurrent use; the session controller is its only
// owner but the receiver task and API handlers both touch it.
type Cache struct {
	mu    sync.Mutex
	seen  map[string]uint64
	order *btree.BTreeG[seqKey]
	next  uint64
}

func New() *Cache {
	return &Cache{
		seen:  make(map[string]uint64),
		order: btree.NewG[seqKey](32, seqLess),
	}
}

// SeenOrAdd reports whether id was already present. If not, it inserts
// id and returns false, pruning the oldest half if capacity is now
// exceeded. Checked before decryption, against the plaintext envelope
// id -- callers must not decrypt before calling this.
func (c *Cache) SeenOrAdd(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}

	seq := c.next
	c.next++
	c.seen[id] = seq
	c.order.ReplaceOrInsert(seqKey{seq, id})

	if len(c.seen) > Capacity {
		c.evictOldestLocked(evictBatch)
	}
	return false
}

func (c *Cache) evictOldestLocked(n int) {
	var toRemove []seqKey
	c.order.Ascend(func(k seqKey) bool {
		if len(toRemove) >= n {
			return false
		}
		toRemove = append(toRemove, k)
		return true
	})
	for _, k := range toRemove {
		c.order.Delete(k)
		delete(c.seen, k.id)
	}
}

// Len reports the current number of tracked ids. Always <= Capacity.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
