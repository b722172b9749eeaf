package index

// Iterator is a sorted, seekable sequence of keys, the unit the leapfrog
// join algorithm (spec §4.4, §5) intersects across several relations at
// once. A trie index is just a SortedArrayIterator per join-variable level;
// nothing in the pack implements leapfrog triejoin, so this is built
// directly from the algorithm's description rather than adapted from an
// existing structure.
type Iterator interface {
	// AtEnd reports whether the iterator has been advanced past its last key.
	AtEnd() bool
	// Key returns the current key. Only valid when !AtEnd().
	Key() uint64
	// Next advances to the next key in sorted order.
	Next()
	// Seek advances to the first key >= target (a no-op if already there).
	Seek(target uint64)
}

// SortedArrayIterator adapts a pre-sorted, duplicate-free []uint64 (e.g. a
// node's outgoing edge-target ids) into an Iterator.
type SortedArrayIterator struct {
	keys []uint64
	pos  int
}

// NewSortedArrayIterator wraps a sorted slice. Callers must ensure keys is
// sorted ascending and duplicate-free; neither this constructor nor
// TrieIndex checks it.
func NewSortedArrayIterator(keys []uint64) *SortedArrayIterator {
	return &SortedArrayIterator{keys: keys}
}

func (s *SortedArrayIterator) AtEnd() bool { return s.pos >= len(s.keys) }

func (s *SortedArrayIterator) Key() uint64 { return s.keys[s.pos] }

func (s *SortedArrayIterator) Next() { s.pos++ }

func (s *SortedArrayIterator) Seek(target uint64) {
	// Linear scan is adequate here: callers intersect already-small
	// adjacency lists; a galloping/binary search is a reasonable future
	// optimization but not required for correctness.
	for !s.AtEnd() && s.keys[s.pos] < target {
		s.pos++
	}
}

// Intersect runs the leapfrog-triejoin intersection over iters: repeatedly
// seek the iterator with the smallest key up to the largest key seen so
// far, until either all iterators agree or one is exhausted. Returns the
// sorted list of keys present in every iterator.
func Intersect(iters []Iterator) []uint64 {
	if len(iters) == 0 {
		return nil
	}
	for _, it := range iters {
		if it.AtEnd() {
			return nil
		}
	}

	var out []uint64
	for {
		max := iters[0].Key()
		for _, it := range iters[1:] {
			if k := it.Key(); k > max {
				max = k
			}
		}

		allEqual := true
		for _, it := range iters {
			it.Seek(max)
			if it.AtEnd() {
				return out
			}
			if it.Key() != max {
				allEqual = false
			}
		}

		if allEqual {
			out = append(out, max)
			for _, it := range iters {
				it.Next()
				if it.AtEnd() {
					return out
				}
			}
		}
	}
}

// TrieIndex builds and owns a sorted-adjacency index suitable for leapfrog
// joins over a single join-key domain, e.g. all outgoing neighbor ids of a
// label-filtered node set.
type TrieIndex struct {
	sorted map[uint64][]uint64
}

// NewTrieIndex creates an empty trie index.
func NewTrieIndex() *TrieIndex { return &TrieIndex{sorted: make(map[uint64][]uint64)} }

// Set installs the sorted, duplicate-free key list for group (e.g. a node
// id), replacing any prior entry.
func (t *TrieIndex) Set(group uint64, sortedKeys []uint64) {
	t.sorted[group] = sortedKeys
}

// Iterator returns a fresh Iterator over group's key list, or a valid
// empty iterator if group has none.
func (t *TrieIndex) Iterator(group uint64) Iterator {
	return NewSortedArrayIterator(t.sorted[group])
}
