package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

func nodeRow(entity string, props map[graph.PropertyKey]graph.Value) Row {
	m := make(map[string]graph.Value, len(props))
	for k, v := range props {
		m[propertyMapKey(k)] = v
	}
	return Row{entity: graph.Map(m)}
}

func TestEvalLiteralReturnsItsValue(t *testing.T) {
	got := Eval(plan.NewLiteral(nil, graph.Int64(7)), Row{})
	assert.Equal(t, graph.Int64(7), got)
}

func TestEvalVariableUnboundIsNull(t *testing.T) {
	got := Eval(plan.NewVariable(nil, "missing"), Row{"n": graph.Int64(1)})
	assert.True(t, got.IsNull())
}

func TestEvalVariableBoundReturnsRowValue(t *testing.T) {
	got := Eval(plan.NewVariable(nil, "n"), Row{"n": graph.Int64(9)})
	assert.Equal(t, graph.Int64(9), got)
}

func TestEvalPropertyRefMissingKeyIsNull(t *testing.T) {
	row := nodeRow("n", map[graph.PropertyKey]graph.Value{1: graph.Int64(5)})
	got := Eval(plan.NewPropertyRef(nil, "n", 2), row)
	assert.True(t, got.IsNull(), "property access on a missing key must evaluate to null, not error")
}

func TestEvalPropertyRefPresentKeyReturnsValue(t *testing.T) {
	row := nodeRow("n", map[graph.PropertyKey]graph.Value{1: graph.String("ada")})
	got := Eval(plan.NewPropertyRef(nil, "n", 1), row)
	assert.Equal(t, graph.String("ada"), got)
}

func TestEvalBinaryEqualityWithNullOperandsMatchesThreeValuedLogic(t *testing.T) {
	nullLit := plan.NewLiteral(nil, graph.Null)
	one := plan.NewLiteral(nil, graph.Int64(1))

	assert.True(t, Eval(plan.NewBinaryExpr(nil, plan.OpEq, nullLit, nullLit), Row{}).IsNull())
	assert.False(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpEq, nullLit, one), Row{}))
	assert.True(t, Eval(plan.NewBinaryExpr(nil, plan.OpNeq, nullLit, one), Row{}).IsNull())
}

func TestEvalBinaryComparisonOperators(t *testing.T) {
	a := plan.NewLiteral(nil, graph.Int64(3))
	b := plan.NewLiteral(nil, graph.Int64(5))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpLt, a, b), Row{}))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpLte, a, a), Row{}))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpGt, b, a), Row{}))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpGte, b, b), Row{}))
}

func TestEvalBinaryAndOrShortCircuitOnBoolCoercion(t *testing.T) {
	t1 := plan.NewLiteral(nil, graph.Bool(true))
	f1 := plan.NewLiteral(nil, graph.Bool(false))
	assert.False(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpAnd, t1, f1), Row{}))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpOr, f1, t1), Row{}))
}

func TestEvalBinaryStringOperators(t *testing.T) {
	s := plan.NewLiteral(nil, graph.String("hello world"))
	prefix := plan.NewLiteral(nil, graph.String("hello"))
	sub := plan.NewLiteral(nil, graph.String("wor"))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpStartsWith, s, prefix), Row{}))
	assert.True(t, EvalBool(plan.NewBinaryExpr(nil, plan.OpContains, s, sub), Row{}))
}

func TestEvalArithmeticIntegerStaysInteger(t *testing.T) {
	a := plan.NewLiteral(nil, graph.Int64(10))
	b := plan.NewLiteral(nil, graph.Int64(4))
	got := Eval(plan.NewBinaryExpr(nil, plan.OpAdd, a, b), Row{})
	assert.Equal(t, graph.Int64(14), got)

	div := Eval(plan.NewBinaryExpr(nil, plan.OpDiv, a, b), Row{})
	assert.Equal(t, graph.Int64(2), div, "integer division truncates")
}

func TestEvalArithmeticDivideByZeroIsNull(t *testing.T) {
	a := plan.NewLiteral(nil, graph.Int64(10))
	zero := plan.NewLiteral(nil, graph.Int64(0))
	got := Eval(plan.NewBinaryExpr(nil, plan.OpDiv, a, zero), Row{})
	assert.True(t, got.IsNull())
}

func TestEvalArithmeticMixedKindPromotesToFloat(t *testing.T) {
	a := plan.NewLiteral(nil, graph.Int64(5))
	b := plan.NewLiteral(nil, graph.Float64(0.5))
	got := Eval(plan.NewBinaryExpr(nil, plan.OpAdd, a, b), Row{})
	assert.Equal(t, graph.Float64(5.5), got)
}

func TestEvalUnaryOperators(t *testing.T) {
	n := plan.NewLiteral(nil, graph.Int64(5))
	assert.Equal(t, graph.Int64(-5), Eval(plan.NewUnaryExpr(nil, plan.OpNeg, n), Row{}))
	assert.True(t, EvalBool(plan.NewUnaryExpr(nil, plan.OpNot, plan.NewLiteral(nil, graph.Bool(false))), Row{}))
	assert.True(t, EvalBool(plan.NewUnaryExpr(nil, plan.OpIsNull, plan.NewLiteral(nil, graph.Null)), Row{}))
	assert.True(t, EvalBool(plan.NewUnaryExpr(nil, plan.OpIsNotNull, n), Row{}))
}

func TestEvalFunctionCoalesceReturnsFirstNonNull(t *testing.T) {
	call := plan.NewFunctionCall(nil, "coalesce", []plan.Expr{
		plan.NewLiteral(nil, graph.Null),
		plan.NewLiteral(nil, graph.Int64(42)),
	})
	assert.Equal(t, graph.Int64(42), Eval(call, Row{}))
}

func TestEvalFunctionIdReadsEntityIDKey(t *testing.T) {
	row := nodeRow("n", map[graph.PropertyKey]graph.Value{})
	m := row["n"].AsMap()
	m[entityIDKey] = graph.Int64(123)

	call := plan.NewFunctionCall(nil, "id", []plan.Expr{plan.NewVariable(nil, "n")})
	assert.Equal(t, graph.Int64(123), Eval(call, row))
}

func TestEvalFunctionUnknownNameIsNull(t *testing.T) {
	call := plan.NewFunctionCall(nil, "nosuchfunction", nil)
	assert.True(t, Eval(call, Row{}).IsNull())
}

func TestEvalUnknownExprKindIsNull(t *testing.T) {
	assert.True(t, Eval(nil, Row{}).IsNull())
}
