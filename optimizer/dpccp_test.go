package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

func newLabeledScan(as string, label graph.LabelID) *plan.Scan {
	l := label
	return plan.NewScan(nil, as, &l, nil)
}

func countLeaves(n plan.Node) int {
	if j, ok := n.(*plan.Join); ok {
		return countLeaves(j.Left) + countLeaves(j.Right)
	}
	return 1
}

func boundVars(n plan.Node) map[string]bool {
	out := make(map[string]bool)
	plan.Walk(n, func(node plan.Node) {
		if b := node.Binds(); b != "" {
			out[b] = true
		}
	})
	return out
}

func TestReorderJoinsNilIsNil(t *testing.T) {
	assert.Nil(t, ReorderJoins(nil, NewStats()))
}

func TestReorderJoinsLeavesNonJoinNodeUntouched(t *testing.T) {
	scan := newLabeledScan("n", 1)
	got := ReorderJoins(scan, NewStats())
	assert.Same(t, scan, got)
}

func TestReorderJoinsPreservesAllLeavesForTwoWayJoin(t *testing.T) {
	a := newLabeledScan("a", 1)
	b := newLabeledScan("b", 2)
	pred := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", 1), plan.NewPropertyRef(nil, "b", 1))
	join := plan.NewJoin(nil, a, b, pred, plan.JoinInner)

	stats := NewStats()
	stats.LabelCounts[1] = 1000
	stats.LabelCounts[2] = 10

	got := ReorderJoins(join, stats)

	assert.Equal(t, 2, countLeaves(got))
	vars := boundVars(got)
	assert.True(t, vars["a"])
	assert.True(t, vars["b"])
}

func TestReorderJoinsThreeWayChainPreservesAllLeavesAndEdges(t *testing.T) {
	a := newLabeledScan("a", 1)
	b := newLabeledScan("b", 2)
	c := newLabeledScan("c", 3)
	predAB := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", 1), plan.NewPropertyRef(nil, "b", 1))
	predBC := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "b", 2), plan.NewPropertyRef(nil, "c", 1))
	ab := plan.NewJoin(nil, a, b, predAB, plan.JoinInner)
	abc := plan.NewJoin(nil, ab, c, predBC, plan.JoinInner)

	stats := NewStats()
	stats.LabelCounts[1] = 10000
	stats.LabelCounts[2] = 10
	stats.LabelCounts[3] = 500

	got := ReorderJoins(abc, stats)

	require.Equal(t, 3, countLeaves(got))
	vars := boundVars(got)
	assert.True(t, vars["a"])
	assert.True(t, vars["b"])
	assert.True(t, vars["c"])
}

func TestReorderJoinsFallsBackToLeftDeepWhenDisconnected(t *testing.T) {
	// No predicate connects a and b: the join graph is disconnected, so
	// dpccp's subset search can never reach the full set and the left-deep
	// fallback must still produce a plan covering every leaf.
	a := newLabeledScan("a", 1)
	b := newLabeledScan("b", 2)
	join := plan.NewJoin(nil, a, b, nil, plan.JoinInner)

	got := ReorderJoins(join, NewStats())

	assert.Equal(t, 2, countLeaves(got))
}

func TestLeftDeepGreedyOrdersBySmallestCardinalityFirst(t *testing.T) {
	g := &joinGraph{
		leaves: []plan.Node{newLabeledScan("big", 1), newLabeledScan("small", 2)},
	}
	stats := NewStats()
	stats.LabelCounts[1] = 100000
	stats.LabelCounts[2] = 5

	got := leftDeepGreedy(g, stats)
	join, ok := got.(*plan.Join)
	require.True(t, ok)
	leftScan, ok := join.Left.(*plan.Scan)
	require.True(t, ok)
	assert.Equal(t, "small", leftScan.As, "the smaller-cardinality leaf should be picked first")
}

func TestJoinGraphConnectedSingleLeafIsTriviallyConnected(t *testing.T) {
	g := &joinGraph{leaves: []plan.Node{newLabeledScan("a", 1)}}
	assert.True(t, g.connected(1))
}

func TestJoinGraphConnectedDetectsDisconnectedSubset(t *testing.T) {
	g := &joinGraph{
		leaves: []plan.Node{newLabeledScan("a", 1), newLabeledScan("b", 2), newLabeledScan("c", 3)},
		edges:  []joinEdge{{a: 0, b: 1}},
	}
	assert.True(t, g.connected(0b011))
	assert.False(t, g.connected(0b111), "leaf 2 has no edge to the others")
}

func TestFlattenJoinsCollectsLeavesAndEdgesFromNestedTree(t *testing.T) {
	a := newLabeledScan("a", 1)
	b := newLabeledScan("b", 2)
	c := newLabeledScan("c", 3)
	predAB := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", 1), plan.NewPropertyRef(nil, "b", 1))
	ab := plan.NewJoin(nil, a, b, predAB, plan.JoinInner)
	predABC := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "b", 2), plan.NewPropertyRef(nil, "c", 1))
	root := plan.NewJoin(nil, ab, c, predABC, plan.JoinInner)

	g := flattenJoins(root)

	assert.Len(t, g.leaves, 3)
	assert.Len(t, g.edges, 2)
}
