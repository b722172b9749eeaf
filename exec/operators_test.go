package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
	"github.com/grafeo-db/grafeo/storage"
	"github.com/grafeo-db/grafeo/txn"
)

// fakeReader is an in-memory stand-in for *txn.Manager satisfying the
// Reader interface, letting operator tests build a small graph fixture
// without standing up storage/txn machinery.
type fakeReader struct {
	nodes     map[graph.NodeID]graph.NodeRecord
	nodeProps map[graph.NodeID]map[graph.PropertyKey]graph.Value
	edges     map[graph.EdgeID]graph.EdgeRecord
	edgeProps map[graph.EdgeID]map[graph.PropertyKey]graph.Value
	adjOut    map[graph.NodeID][]storage.AdjacencyEntry
	adjIn     map[graph.NodeID][]storage.AdjacencyEntry
	maxNode   graph.NodeID
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		nodes:     make(map[graph.NodeID]graph.NodeRecord),
		nodeProps: make(map[graph.NodeID]map[graph.PropertyKey]graph.Value),
		edges:     make(map[graph.EdgeID]graph.EdgeRecord),
		edgeProps: make(map[graph.EdgeID]map[graph.PropertyKey]graph.Value),
		adjOut:    make(map[graph.NodeID][]storage.AdjacencyEntry),
		adjIn:     make(map[graph.NodeID][]storage.AdjacencyEntry),
	}
}

func (f *fakeReader) addNode(id graph.NodeID, label graph.LabelID, props map[graph.PropertyKey]graph.Value) {
	rec := graph.NodeRecord{Id: id}
	rec.SetLabel(label)
	f.nodes[id] = rec
	f.nodeProps[id] = props
	if id+1 > f.maxNode {
		f.maxNode = id + 1
	}
}

func (f *fakeReader) addEdge(id graph.EdgeID, typ graph.EdgeTypeID, src, dst graph.NodeID, props map[graph.PropertyKey]graph.Value) {
	f.edges[id] = graph.EdgeRecord{Id: id, Type: typ, Src: src, Dst: dst}
	f.edgeProps[id] = props
	f.adjOut[src] = append(f.adjOut[src], storage.AdjacencyEntry{Edge: id, Neighbor: dst})
	f.adjIn[dst] = append(f.adjIn[dst], storage.AdjacencyEntry{Edge: id, Neighbor: src})
}

func (f *fakeReader) ReadNode(id graph.NodeID, _ txn.Snapshot) (graph.NodeRecord, map[graph.PropertyKey]graph.Value, bool) {
	rec, ok := f.nodes[id]
	return rec, f.nodeProps[id], ok
}

func (f *fakeReader) ReadEdge(id graph.EdgeID, _ txn.Snapshot) (graph.EdgeRecord, map[graph.PropertyKey]graph.Value, bool) {
	rec, ok := f.edges[id]
	return rec, f.edgeProps[id], ok
}

func (f *fakeReader) NodeCount() int { return int(f.maxNode) }
func (f *fakeReader) EdgeCount() int { return len(f.edges) }

func (f *fakeReader) Neighbors(id graph.NodeID, dir graph.Direction) []storage.AdjacencyEntry {
	switch dir {
	case graph.Outgoing:
		return f.adjOut[id]
	case graph.Incoming:
		return f.adjIn[id]
	default:
		return append(append([]storage.AdjacencyEntry{}, f.adjOut[id]...), f.adjIn[id]...)
	}
}

func drainAll(t *testing.T, op Operator) []Row {
	t.Helper()
	var rows []Row
	for {
		chunk, err := op.Next()
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		for _, r := range chunk.Selection {
			rows = append(rows, rowAt(chunk, r))
		}
		PutChunk(chunk)
	}
	return rows
}

const (
	labelPerson graph.LabelID      = 1
	propName    graph.PropertyKey  = 1
	propAge     graph.PropertyKey  = 2
	edgeKnows   graph.EdgeTypeID   = 1
)

func newScanCtx(r *fakeReader) *Context {
	return &Context{Reader: r, Snapshot: txn.Snapshot{}}
}

func TestScanOperatorYieldsOnlyMatchingLabel(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, map[graph.PropertyKey]graph.Value{propName: graph.String("ada")})
	r.addNode(1, 2, map[graph.PropertyKey]graph.Value{propName: graph.String("not-a-person")})

	label := labelPerson
	scan := newScanOperator(plan.NewScan(nil, "n", &label, nil), newScanCtx(r))
	rows := drainAll(t, scan)

	require.Len(t, rows, 1)
	assert.Equal(t, graph.String("ada"), rows[0]["n"].AsMap()[propertyMapKey(propName)])
}

func TestScanOperatorAppliesPushedDownFilter(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(17)})
	r.addNode(1, labelPerson, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(30)})

	label := labelPerson
	filterExpr := plan.NewBinaryExpr(nil, plan.OpGte, plan.NewPropertyRef(nil, "n", propAge), plan.NewLiteral(nil, graph.Int64(18)))
	scan := newScanOperator(plan.NewScan(nil, "n", &label, filterExpr), newScanCtx(r))
	rows := drainAll(t, scan)

	require.Len(t, rows, 1)
	assert.Equal(t, int64(30), rows[0]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestScanOperatorSkipsUnknownIDsWithoutPanicking(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, nil)
	r.maxNode = 5 // simulate holes from deleted nodes never compacted out of NodeCount

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	rows := drainAll(t, scan)
	assert.Len(t, rows, 1)
}

func TestFilterOperatorNarrowsInput(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(10)})
	r.addNode(1, labelPerson, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(40)})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	pred := plan.NewBinaryExpr(nil, plan.OpGt, plan.NewPropertyRef(nil, "n", propAge), plan.NewLiteral(nil, graph.Int64(20)))
	filter := newFilterOperator(plan.NewFilter(nil, nil, pred), scan)

	rows := drainAll(t, filter)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(40), rows[0]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestProjectOperatorEvaluatesEachColumn(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, map[graph.PropertyKey]graph.Value{propName: graph.String("grace")})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	project := newProjectOperator(plan.NewProject(nil, nil, []plan.ProjectColumn{
		{As: "name", Expr: plan.NewPropertyRef(nil, "n", propName)},
	}), scan)

	rows := drainAll(t, project)
	require.Len(t, rows, 1)
	assert.Equal(t, graph.String("grace"), rows[0]["name"])
}

func TestExpandOperatorFollowsOutgoingEdgesOfMatchingType(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, labelPerson, map[graph.PropertyKey]graph.Value{propName: graph.String("a")})
	r.addNode(1, labelPerson, map[graph.PropertyKey]graph.Value{propName: graph.String("b")})
	r.addNode(2, labelPerson, map[graph.PropertyKey]graph.Value{propName: graph.String("c")})
	r.addEdge(0, edgeKnows, 0, 1, nil)
	r.addEdge(1, 99, 0, 2, nil) // different edge type, must be excluded

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	et := edgeKnows
	expand := newExpandOperator(plan.NewExpand(nil, nil, "n", "e", "m", &et, graph.Outgoing), scan, newScanCtx(r))

	rows := drainAll(t, expand)
	require.Len(t, rows, 1)
	assert.Equal(t, graph.String("b"), rows[0]["m"].AsMap()[propertyMapKey(propName)])
}

func newJoinInputs(r *fakeReader, leftLabel, rightLabel graph.LabelID) (Operator, Operator) {
	l := leftLabel
	rt := rightLabel
	left := newScanOperator(plan.NewScan(nil, "a", &l, nil), newScanCtx(r))
	right := newScanOperator(plan.NewScan(nil, "b", &rt, nil), newScanCtx(r))
	return left, right
}

func TestHashJoinOperatorMatchesOnEquiJoinKey(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(1)})
	r.addNode(1, 2, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(1)})
	r.addNode(2, 2, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(2)})

	left, right := newJoinInputs(r, 1, 2)
	pred := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", propAge), plan.NewPropertyRef(nil, "b", propAge))
	join := newHashJoinOperator(plan.NewJoin(nil, nil, nil, pred, plan.JoinInner), left, right)

	rows := drainAll(t, join)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["a"].AsMap()[propertyMapKey(propAge)].AsInt64())
	assert.Equal(t, int64(1), rows[0]["b"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestHashJoinOperatorNoMatchesYieldsNoRows(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(1)})
	r.addNode(1, 2, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(2)})

	left, right := newJoinInputs(r, 1, 2)
	pred := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", propAge), plan.NewPropertyRef(nil, "b", propAge))
	join := newHashJoinOperator(plan.NewJoin(nil, nil, nil, pred, plan.JoinInner), left, right)

	rows := drainAll(t, join)
	assert.Empty(t, rows)
}

func TestLeapfrogJoinOperatorIntersectsSharedKeys(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(5)})
	r.addNode(1, 2, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(5)})
	r.addNode(2, 2, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(6)})

	left, right := newJoinInputs(r, 1, 2)
	pred := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "a", propAge), plan.NewPropertyRef(nil, "b", propAge))
	join := newLeapfrogJoinOperator(plan.NewJoin(nil, nil, nil, pred, plan.JoinInner), left, right)

	rows := drainAll(t, join)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0]["a"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestAggregateOperatorGroupsAndCounts(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("x")})
	r.addNode(1, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("x")})
	r.addNode(2, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("y")})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	groupKey := plan.NewPropertyRef(nil, "n", propName)
	agg := newAggregateOperator(plan.NewAggregate(nil, nil, []plan.Expr{groupKey}, []plan.Aggregator{
		{Kind: plan.AggCount, As: "c"},
	}), scan)

	rows := drainAll(t, agg)
	require.Len(t, rows, 2)
	totals := map[string]int64{}
	for _, row := range rows {
		totals[row["group0"].AsString()] = row["c"].AsInt64()
	}
	assert.Equal(t, int64(2), totals["x"])
	assert.Equal(t, int64(1), totals["y"])
}

func TestAggregateOperatorSumAvgMinMax(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(10)})
	r.addNode(1, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(20)})
	r.addNode(2, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(30)})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	ageExpr := plan.NewPropertyRef(nil, "n", propAge)
	agg := newAggregateOperator(plan.NewAggregate(nil, nil, nil, []plan.Aggregator{
		{Kind: plan.AggSum, Input: ageExpr, As: "sum"},
		{Kind: plan.AggAvg, Input: ageExpr, As: "avg"},
		{Kind: plan.AggMin, Input: ageExpr, As: "min"},
		{Kind: plan.AggMax, Input: ageExpr, As: "max"},
	}), scan)

	rows := drainAll(t, agg)
	require.Len(t, rows, 1)
	assert.Equal(t, 60.0, rows[0]["sum"].AsFloat64())
	assert.Equal(t, 20.0, rows[0]["avg"].AsFloat64())
	assert.Equal(t, int64(10), rows[0]["min"].AsInt64())
	assert.Equal(t, int64(30), rows[0]["max"].AsInt64())
}

func TestSortOperatorOrdersAscendingByDefaultAndAppliesLimit(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(30)})
	r.addNode(1, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(10)})
	r.addNode(2, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(20)})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	limit := int64(2)
	sortOp := newSortOperator(plan.NewSort(nil, nil, []plan.SortKey{
		{Expr: plan.NewPropertyRef(nil, "n", propAge), Descending: false},
	}, &limit), scan)

	rows := drainAll(t, sortOp)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
	assert.Equal(t, int64(20), rows[1]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestSortOperatorDescending(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(1)})
	r.addNode(1, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(3)})
	r.addNode(2, 1, map[graph.PropertyKey]graph.Value{propAge: graph.Int64(2)})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	sortOp := newSortOperator(plan.NewSort(nil, nil, []plan.SortKey{
		{Expr: plan.NewPropertyRef(nil, "n", propAge), Descending: true},
	}, nil), scan)

	rows := drainAll(t, sortOp)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[0]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
	assert.Equal(t, int64(1), rows[2]["n"].AsMap()[propertyMapKey(propAge)].AsInt64())
}

func TestDistinctOperatorRemovesDuplicateRows(t *testing.T) {
	r := newFakeReader()
	r.addNode(0, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("dup")})
	r.addNode(1, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("dup")})
	r.addNode(2, 1, map[graph.PropertyKey]graph.Value{propName: graph.String("unique")})

	scan := newScanOperator(plan.NewScan(nil, "n", nil, nil), newScanCtx(r))
	project := newProjectOperator(plan.NewProject(nil, nil, []plan.ProjectColumn{
		{As: "name", Expr: plan.NewPropertyRef(nil, "n", propName)},
	}), scan)
	distinct := newDistinctOperator(plan.NewDistinct(nil, nil), project)

	rows := drainAll(t, distinct)
	assert.Len(t, rows, 2)
}

func TestBuildNilPhysicalPlanReturnsNilOperator(t *testing.T) {
	op, err := Build(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, op)
}
