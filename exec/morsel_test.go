package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
)

// fixedOperator yields the rows in vals as single-row chunks, then nil.
type fixedOperator struct {
	cols []string
	vals [][]graph.Value
	pos  int
}

func (f *fixedOperator) Columns() []string { return f.cols }
func (f *fixedOperator) Close()            {}
func (f *fixedOperator) Next() (*Chunk, error) {
	if f.pos >= len(f.vals) {
		return nil, nil
	}
	c := NewChunk(f.cols, 1)
	c.AppendRow(f.vals[f.pos])
	f.pos++
	return c, nil
}

func TestWorkerPoolRunsSubmittedMorselToSink(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	op := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(1)}, {graph.Int64(2)}}}
	sink := make(chan *Chunk, 8)
	pool.Submit(Morsel{Source: op, Sink: sink})

	var got []int64
	for i := 0; i < 2; i++ {
		c := <-sink
		got = append(got, c.Columns[0].Values[0].AsInt64())
	}
	assert.ElementsMatch(t, []int64{1, 2}, got)
}

func TestWorkerPoolDropsStaleGenerationChunks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)
	defer pool.Close()

	staleGen := pool.NewGeneration()
	pool.NewGeneration() // advance past staleGen

	op := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(1)}}}
	sink := make(chan *Chunk, 1)
	pool.Submit(Morsel{Source: op, Sink: sink, Generation: staleGen})

	select {
	case <-sink:
		t.Fatal("a morsel submitted under a retired generation must not deliver its chunk")
	default:
	}
}

func TestNewBarrierFansSourcesOutAcrossThePool(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	op1 := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(1)}}}
	op2 := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(2)}}}

	b := NewBarrier(pool, []Operator{op1, op2})

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case c := <-b.sinks:
			got = append(got, c.Columns[0].Values[0].AsInt64())
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for barrier sources to produce chunks")
		}
	}
	assert.ElementsMatch(t, []int64{1, 2}, got)
}

func TestRunPipelineNilRootReturnsNoRows(t *testing.T) {
	out, err := RunPipeline(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunPipelineDrivesOperatorToCompletion(t *testing.T) {
	op := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(1)}, {graph.Int64(2)}, {graph.Int64(3)}}}
	out, err := RunPipeline(context.Background(), nil, op)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestRunPipelineRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	op := &fixedOperator{cols: []string{"n"}, vals: [][]graph.Value{{graph.Int64(1)}}}
	_, err := RunPipeline(ctx, nil, op)
	assert.Error(t, err)
}
