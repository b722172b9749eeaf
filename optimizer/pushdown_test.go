package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

func TestPushdownFiltersSinksSingleVariablePredicateIntoScan(t *testing.T) {
	scan := plan.NewScan(nil, "n", nil, nil)
	pred := plan.NewBinaryExpr(nil, plan.OpGt, plan.NewPropertyRef(nil, "n", 1), plan.NewLiteral(nil, graph.Int64(18)))
	filter := plan.NewFilter(nil, scan, pred)

	got := PushdownFilters(filter)

	result, ok := got.(*plan.Scan)
	require.True(t, ok, "a single-variable filter over a scan must collapse into the scan itself")
	assert.Same(t, pred, result.Filter)
}

func TestPushdownFiltersCombinesWithExistingScanFilterViaAnd(t *testing.T) {
	existing := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "n", 1), plan.NewLiteral(nil, graph.Int64(1)))
	scan := plan.NewScan(nil, "n", nil, existing)
	pred := plan.NewBinaryExpr(nil, plan.OpGt, plan.NewPropertyRef(nil, "n", 2), plan.NewLiteral(nil, graph.Int64(18)))
	filter := plan.NewFilter(nil, scan, pred)

	got := PushdownFilters(filter)

	result, ok := got.(*plan.Scan)
	require.True(t, ok)
	combined, ok := result.Filter.(*plan.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, plan.OpAnd, combined.Op)
	assert.Same(t, existing, combined.Left)
	assert.Same(t, pred, combined.Right)
}

func TestPushdownFiltersLeavesMultiVariablePredicateInPlace(t *testing.T) {
	left := plan.NewScan(nil, "a", nil, nil)
	right := plan.NewScan(nil, "b", nil, nil)
	join := plan.NewJoin(nil, left, right, nil, plan.JoinInner)
	pred := plan.NewBinaryExpr(nil, plan.OpEq,
		plan.NewPropertyRef(nil, "a", 1), plan.NewPropertyRef(nil, "b", 1))
	filter := plan.NewFilter(nil, join, pred)

	got := PushdownFilters(filter)

	result, ok := got.(*plan.Filter)
	require.True(t, ok, "a predicate referencing two variables must not be pushed into any single scan")
	assert.Same(t, pred, result.Predicate)
}

func TestPushdownFiltersRecursesThroughNonFilterAncestors(t *testing.T) {
	scan := plan.NewScan(nil, "n", nil, nil)
	pred := plan.NewBinaryExpr(nil, plan.OpGt, plan.NewPropertyRef(nil, "n", 1), plan.NewLiteral(nil, graph.Int64(18)))
	filter := plan.NewFilter(nil, scan, pred)
	proj := plan.NewProject(nil, filter, []plan.ProjectColumn{{As: "n", Expr: plan.NewVariable(nil, "n")}})

	got := PushdownFilters(proj)

	result, ok := got.(*plan.Project)
	require.True(t, ok)
	sunk, ok := result.Input.(*plan.Scan)
	require.True(t, ok, "pushdown must recurse into a Project's child and still sink the filter below it")
	assert.Same(t, pred, sunk.Filter)
}

func TestPushdownProjectionsRecordsReferencedPropertiesOnScan(t *testing.T) {
	scan := plan.NewScan(nil, "n", nil, nil)
	proj := plan.NewProject(nil, scan, []plan.ProjectColumn{
		{As: "name", Expr: plan.NewPropertyRef(nil, "n", 5)},
		{As: "age", Expr: plan.NewPropertyRef(nil, "n", 7)},
	})

	PushdownProjections(proj)

	assert.ElementsMatch(t, []graph.PropertyKey{5, 7}, scan.ReferencedProps)
}

func TestPushdownProjectionsLeavesUnreferencedScanNil(t *testing.T) {
	scan := plan.NewScan(nil, "n", nil, nil)
	other := plan.NewScan(nil, "m", nil, nil)
	join := plan.NewJoin(nil, scan, other, nil, plan.JoinInner)

	PushdownProjections(join)

	assert.Nil(t, scan.ReferencedProps)
}

func TestReferencesOnlyDetectsForeignVariable(t *testing.T) {
	own := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "n", 1), plan.NewLiteral(nil, graph.Int64(1)))
	assert.True(t, referencesOnly(own, "n"))

	foreign := plan.NewBinaryExpr(nil, plan.OpEq, plan.NewPropertyRef(nil, "n", 1), plan.NewPropertyRef(nil, "m", 1))
	assert.False(t, referencesOnly(foreign, "n"))
}
