// Package index implements Grafeo's secondary index structures: hash
// (equality), B-tree (range), trie (leapfrog joins), zone maps
// (conservative min/max/has-null summaries), and bloom filters
// (conservative membership) — spec §3, §4.5, §5.
package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/grafeo-db/grafeo/graph"
)

// HashIndex is an in-memory equality index mapping a hashed key to the set
// of entity ids carrying it. Grounded on spec §3's hash-index requirement;
// bucket hashing uses cespare/xxhash/v2 (promoted to a direct dependency)
// rather than a hand-rolled hash, matching the hash function Badger itself
// uses internally for its own bloom filters and sharding.
type HashIndex struct {
	mu      sync.RWMutex
	buckets map[uint64][]graph.NodeID
}

// NewHashIndex creates an empty hash index.
func NewHashIndex() *HashIndex {
	return &HashIndex{buckets: make(map[uint64][]graph.NodeID)}
}

// hashKey digests an arbitrary byte-serializable key into a bucket id.
func hashKey(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Insert records that id carries key.
func (h *HashIndex) Insert(key []byte, id graph.NodeID) {
	bucket := hashKey(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.buckets[bucket] {
		if existing == id {
			return
		}
	}
	h.buckets[bucket] = append(h.buckets[bucket], id)
}

// Remove drops id from key's bucket.
func (h *HashIndex) Remove(key []byte, id graph.NodeID) {
	bucket := hashKey(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.buckets[bucket]
	for i, existing := range ids {
		if existing == id {
			h.buckets[bucket] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(h.buckets[bucket]) == 0 {
		delete(h.buckets, bucket)
	}
}

// Lookup returns every id that may carry key. Because buckets are keyed by
// hash, not the original key, callers must re-check candidates against the
// actual property value — this index narrows the candidate set, it does
// not prove membership (two distinct keys can collide into one bucket).
func (h *HashIndex) Lookup(key []byte) []graph.NodeID {
	bucket := hashKey(key)
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := h.buckets[bucket]
	out := make([]graph.NodeID, len(ids))
	copy(out, ids)
	return out
}

// Len returns the number of distinct buckets currently populated, a rough
// distinct-value count.
func (h *HashIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buckets)
}
