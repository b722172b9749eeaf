package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grafeo-db/grafeo/graph"
)

func TestHashIndexInsertLookupRemove(t *testing.T) {
	h := NewHashIndex()
	h.Insert([]byte("ada"), 1)
	h.Insert([]byte("ada"), 2)

	assert.ElementsMatch(t, []graph.NodeID{1, 2}, h.Lookup([]byte("ada")))
	assert.Empty(t, h.Lookup([]byte("grace")))

	h.Remove([]byte("ada"), 1)
	assert.Equal(t, []graph.NodeID{2}, h.Lookup([]byte("ada")))
}

func TestHashIndexInsertIsIdempotentPerID(t *testing.T) {
	h := NewHashIndex()
	h.Insert([]byte("x"), 1)
	h.Insert([]byte("x"), 1)
	assert.Len(t, h.Lookup([]byte("x")), 1)
}

func TestHashIndexLookupNeverMissesAnInsertedID(t *testing.T) {
	// Every id inserted under a key must appear in Lookup — the index may
	// only ever over-approximate via hash collisions, never under-report.
	h := NewHashIndex()
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	for i, k := range keys {
		h.Insert(k, graph.NodeID(i))
	}
	for i, k := range keys {
		assert.Contains(t, h.Lookup(k), graph.NodeID(i))
	}
}

func TestHashIndexLenCountsDistinctBuckets(t *testing.T) {
	h := NewHashIndex()
	h.Insert([]byte("a"), 1)
	h.Insert([]byte("b"), 2)
	assert.Equal(t, 2, h.Len())

	h.Remove([]byte("a"), 1)
	assert.Equal(t, 1, h.Len())
}
