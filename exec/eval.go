package exec

import (
	"strings"

	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

// Eval evaluates a scalar expression against a row of bound variables,
// returning graph.Null for references to unbound variables or properties
// absent on a bound entity (spec §4.5: "property access on a missing key
// evaluates to null rather than erroring", mirrored from Cypher semantics
// the teacher's executor already implements for MATCH/WHERE).
func Eval(e plan.Expr, row Row) graph.Value {
	switch ex := e.(type) {
	case nil:
		return graph.Null
	case *plan.Literal:
		return ex.Value
	case *plan.Variable:
		if v, ok := row[ex.Name]; ok {
			return v
		}
		return graph.Null
	case *plan.PropertyRef:
		entity, ok := row[ex.Entity]
		if !ok || entity.Kind != graph.KindMap {
			return graph.Null
		}
		if v, ok := entity.AsMap()[propertyMapKey(ex.Property)]; ok {
			return v
		}
		return graph.Null
	case *plan.BinaryExpr:
		return evalBinary(ex, row)
	case *plan.UnaryExpr:
		return evalUnary(ex, row)
	case *plan.FunctionCall:
		return evalFunction(ex, row)
	default:
		return graph.Null
	}
}

// EvalBool evaluates e and coerces the result to a boolean for Filter/WHERE
// use, treating null and non-bool results as false rather than erroring —
// matching Cypher's three-valued-logic collapse at predicate boundaries.
func EvalBool(e plan.Expr, row Row) bool {
	v := Eval(e, row)
	return v.Kind == graph.KindBool && v.AsBool()
}

func evalBinary(ex *plan.BinaryExpr, row Row) graph.Value {
	if ex.Op == plan.OpAnd {
		return graph.Bool(EvalBool(ex.Left, row) && EvalBool(ex.Right, row))
	}
	if ex.Op == plan.OpOr {
		return graph.Bool(EvalBool(ex.Left, row) || EvalBool(ex.Right, row))
	}

	l := Eval(ex.Left, row)
	r := Eval(ex.Right, row)
	if l.IsNull() || r.IsNull() {
		return graph.Null
	}

	switch ex.Op {
	case plan.OpEq:
		return graph.Bool(l.Equal(r))
	case plan.OpNeq:
		return graph.Bool(!l.Equal(r))
	case plan.OpLt:
		return graph.Bool(compareValues(l, r) < 0)
	case plan.OpLte:
		return graph.Bool(compareValues(l, r) <= 0)
	case plan.OpGt:
		return graph.Bool(compareValues(l, r) > 0)
	case plan.OpGte:
		return graph.Bool(compareValues(l, r) >= 0)
	case plan.OpStartsWith:
		return graph.Bool(strings.HasPrefix(asString(l), asString(r)))
	case plan.OpContains:
		return graph.Bool(strings.Contains(asString(l), asString(r)))
	case plan.OpAdd, plan.OpSub, plan.OpMul, plan.OpDiv:
		return evalArith(ex.Op, l, r)
	default:
		return graph.Null
	}
}

func evalArith(op plan.BinaryOp, l, r graph.Value) graph.Value {
	if l.Kind == graph.KindInt64 && r.Kind == graph.KindInt64 {
		a, b := l.AsInt64(), r.AsInt64()
		switch op {
		case plan.OpAdd:
			return graph.Int64(a + b)
		case plan.OpSub:
			return graph.Int64(a - b)
		case plan.OpMul:
			return graph.Int64(a * b)
		case plan.OpDiv:
			if b == 0 {
				return graph.Null
			}
			return graph.Int64(a / b)
		}
	}
	a, b := asFloat(l), asFloat(r)
	switch op {
	case plan.OpAdd:
		return graph.Float64(a + b)
	case plan.OpSub:
		return graph.Float64(a - b)
	case plan.OpMul:
		return graph.Float64(a * b)
	case plan.OpDiv:
		if b == 0 {
			return graph.Null
		}
		return graph.Float64(a / b)
	default:
		return graph.Null
	}
}

func evalUnary(ex *plan.UnaryExpr, row Row) graph.Value {
	switch ex.Op {
	case plan.OpNot:
		return graph.Bool(!EvalBool(ex.Operand, row))
	case plan.OpNeg:
		v := Eval(ex.Operand, row)
		if v.Kind == graph.KindInt64 {
			return graph.Int64(-v.AsInt64())
		}
		if v.Kind == graph.KindFloat64 {
			return graph.Float64(-v.AsFloat64())
		}
		return graph.Null
	case plan.OpIsNull:
		return graph.Bool(Eval(ex.Operand, row).IsNull())
	case plan.OpIsNotNull:
		return graph.Bool(!Eval(ex.Operand, row).IsNull())
	default:
		return graph.Null
	}
}

// evalFunction implements the handful of scalar functions exec's Eval
// supports directly. The name is looked up at each evaluation; an unknown
// name evaluates to null.
func evalFunction(ex *plan.FunctionCall, row Row) graph.Value {
	switch strings.ToLower(ex.Name) {
	case "id":
		if len(ex.Args) != 1 {
			return graph.Null
		}
		v, ok := row[variableName(ex.Args[0])]
		if !ok || v.Kind != graph.KindMap {
			return graph.Null
		}
		if id, ok := v.AsMap()[entityIDKey]; ok {
			return id
		}
		return graph.Null
	case "coalesce":
		for _, a := range ex.Args {
			if v := Eval(a, row); !v.IsNull() {
				return v
			}
		}
		return graph.Null
	default:
		return graph.Null
	}
}

func variableName(e plan.Expr) string {
	if v, ok := e.(*plan.Variable); ok {
		return v.Name
	}
	return ""
}

func asString(v graph.Value) string {
	if v.Kind == graph.KindString {
		return v.AsString()
	}
	return v.String()
}

func asFloat(v graph.Value) float64 {
	switch v.Kind {
	case graph.KindInt64:
		return float64(v.AsInt64())
	case graph.KindFloat64:
		return v.AsFloat64()
	default:
		return 0
	}
}
