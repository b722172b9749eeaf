package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
)

func TestNewChunkStartsEmpty(t *testing.T) {
	c := NewChunk([]string{"n", "m"}, 16)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 16, c.Capacity())
	assert.Equal(t, -1, c.ColumnIndex("missing"))
	assert.Equal(t, 0, c.ColumnIndex("n"))
	assert.Equal(t, 1, c.ColumnIndex("m"))
}

func TestChunkAppendRowGrowsSelection(t *testing.T) {
	c := NewChunk([]string{"n"}, 4)
	c.AppendRow([]graph.Value{graph.Int64(1)})
	c.AppendRow([]graph.Value{graph.Int64(2)})

	require.Equal(t, 2, c.Len())
	assert.Equal(t, graph.Int64(1), c.Columns[0].Values[c.Selection[0]])
	assert.Equal(t, graph.Int64(2), c.Columns[0].Values[c.Selection[1]])
}

func TestChunkFilterNarrowsSelectionWithoutMovingPayload(t *testing.T) {
	c := NewChunk([]string{"n"}, 4)
	c.AppendRow([]graph.Value{graph.Int64(1)})
	c.AppendRow([]graph.Value{graph.Int64(2)})
	c.AppendRow([]graph.Value{graph.Int64(3)})

	c.Filter(func(row uint16) bool {
		return c.Columns[0].Values[row].AsInt64()%2 == 1
	})

	require.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Columns[0].Values[c.Selection[0]].AsInt64())
	assert.Equal(t, int64(3), c.Columns[0].Values[c.Selection[1]].AsInt64())
	// The underlying payload must be untouched, only the selection vector.
	assert.Len(t, c.Columns[0].Values, 3)
}

func TestChunkResetClearsColumnsAndSelectionButKeepsCapacity(t *testing.T) {
	c := NewChunk([]string{"n"}, 4)
	c.AppendRow([]graph.Value{graph.Int64(1)})
	c.Reset()

	assert.Equal(t, 0, c.Len())
	assert.Len(t, c.Columns[0].Values, 0)
	assert.Equal(t, 4, c.Capacity())
}

func TestGetChunkPutChunkReusesPooledInstance(t *testing.T) {
	c1 := GetChunk([]string{"a", "b"}, 8)
	c1.AppendRow([]graph.Value{graph.Int64(1), graph.Int64(2)})
	PutChunk(c1)

	c2 := GetChunk([]string{"a", "b"}, 8)
	assert.Equal(t, 0, c2.Len(), "a chunk pulled from the pool must come back reset")
	PutChunk(c2)
}

func TestPutChunkNilIsNoOp(t *testing.T) {
	assert.NotPanics(t, func() { PutChunk(nil) })
}
