package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedArrayIteratorSeekAndNext(t *testing.T) {
	it := NewSortedArrayIterator([]uint64{2, 5, 8, 11})
	assert.False(t, it.AtEnd())
	assert.Equal(t, uint64(2), it.Key())

	it.Seek(7)
	assert.Equal(t, uint64(8), it.Key())

	it.Next()
	assert.Equal(t, uint64(11), it.Key())

	it.Next()
	assert.True(t, it.AtEnd())
}

func TestSortedArrayIteratorSeekPastEndSetsAtEnd(t *testing.T) {
	it := NewSortedArrayIterator([]uint64{1, 2, 3})
	it.Seek(100)
	assert.True(t, it.AtEnd())
}

func TestIntersectReturnsOnlyCommonKeys(t *testing.T) {
	a := NewSortedArrayIterator([]uint64{1, 2, 3, 5, 8})
	b := NewSortedArrayIterator([]uint64{2, 3, 4, 8})
	c := NewSortedArrayIterator([]uint64{2, 3, 8, 9})

	got := Intersect([]Iterator{a, b, c})
	assert.Equal(t, []uint64{2, 3, 8}, got)
}

func TestIntersectEmptyWhenAnyIteratorEmpty(t *testing.T) {
	a := NewSortedArrayIterator([]uint64{1, 2, 3})
	b := NewSortedArrayIterator(nil)
	assert.Empty(t, Intersect([]Iterator{a, b}))
}

func TestIntersectNoOverlapReturnsEmpty(t *testing.T) {
	a := NewSortedArrayIterator([]uint64{1, 3, 5})
	b := NewSortedArrayIterator([]uint64{2, 4, 6})
	assert.Empty(t, Intersect([]Iterator{a, b}))
}

func TestTrieIndexIteratorOverGroup(t *testing.T) {
	tr := NewTrieIndex()
	tr.Set(7, []uint64{1, 4, 9})

	it := tr.Iterator(7)
	var got []uint64
	for !it.AtEnd() {
		got = append(got, it.Key())
		it.Next()
	}
	assert.Equal(t, []uint64{1, 4, 9}, got)

	empty := tr.Iterator(99)
	assert.True(t, empty.AtEnd())
}
