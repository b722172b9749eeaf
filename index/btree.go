package index

import (
	"sort"
	"sync"

	"github.com/grafeo-db/grafeo/graph"
)

// btreeEntry is one (orderable key, node) pair held by BTreeIndex, kept
// sorted by Key for binary-searchable range scans.
type btreeEntry struct {
	Key float64
	ID  graph.NodeID
}

// BTreeIndex is an in-memory ordered index over a single numeric property,
// supporting O(log n) range queries (spec §3's B-tree range-index
// requirement). It holds the live value-sorted entry list in memory and has
// no persistent tier: storage.PersistentIndex offers Badger's ordered LSM
// iteration, but nothing connects it to this index.
type BTreeIndex struct {
	mu      sync.RWMutex
	entries []btreeEntry
	posOf   map[graph.NodeID]int
}

// NewBTreeIndex creates an empty B-tree index.
func NewBTreeIndex() *BTreeIndex {
	return &BTreeIndex{posOf: make(map[graph.NodeID]int)}
}

// Insert adds (key, id) to the index, maintaining sort order.
func (b *BTreeIndex) Insert(key float64, id graph.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Key >= key })
	b.entries = append(b.entries, btreeEntry{})
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = btreeEntry{Key: key, ID: id}
	b.reindexFrom(pos)
}

// reindexFrom rebuilds posOf for entries at and after i. Caller must hold
// b.mu.
func (b *BTreeIndex) reindexFrom(i int) {
	for ; i < len(b.entries); i++ {
		b.posOf[b.entries[i].ID] = i
	}
}

// Delete removes id from the index, if present.
func (b *BTreeIndex) Delete(id graph.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.posOf[id]
	if !ok {
		return
	}
	b.entries = append(b.entries[:pos], b.entries[pos+1:]...)
	delete(b.posOf, id)
	b.reindexFrom(pos)
}

// Range returns every id whose key falls in [lo, hi], in ascending key
// order — the access pattern a Sort-avoiding range Scan operator wants
// (spec §4.4).
func (b *BTreeIndex) Range(lo, hi float64) []graph.NodeID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Key >= lo })
	var out []graph.NodeID
	for i := start; i < len(b.entries) && b.entries[i].Key <= hi; i++ {
		out = append(out, b.entries[i].ID)
	}
	return out
}

// Len returns the number of indexed entries.
func (b *BTreeIndex) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
