// Package plan defines Grafeo's logical plan algebra: the typed tree a
// parser hands to the optimizer (spec §4.4). No teacher analogue exists —
// the teacher's Cypher frontend walks its AST directly and executes inline
// (pkg/cypher/executor.go) rather than lowering to an intermediate
// representation — so this package is new, built to the spec's algebra in
// the teacher's struct-per-node, doc-comment-per-type declaration style
// (pkg/cypher/ast_builder.go).
package plan

import (
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// Expr is a scalar expression evaluated per row: a predicate, a projection,
// an aggregator argument, or a sort key. Every concrete Expr carries an
// optional source Span so a parse or evaluation error can be reported
// against the original query text (spec §6: "Parsers MUST preserve source
// spans on each node").
type Expr interface {
	exprNode()
	Span() *gerrors.Span
}

type exprBase struct {
	span *gerrors.Span
}

func (exprBase) exprNode() {}
func (b exprBase) Span() *gerrors.Span { return b.span }

// Literal is a constant value embedded directly in the plan.
type Literal struct {
	exprBase
	Value graph.Value
}

// NewLiteral builds a Literal with an attached span.
func NewLiteral(span *gerrors.Span, v graph.Value) *Literal {
	return &Literal{exprBase: exprBase{span: span}, Value: v}
}

// Variable refers to a row-scoped binding introduced by an earlier operator
// (e.g. the node bound by a Scan, or the edge bound by an Expand).
type Variable struct {
	exprBase
	Name string
}

func NewVariable(span *gerrors.Span, name string) *Variable {
	return &Variable{exprBase: exprBase{span: span}, Name: name}
}

// PropertyRef projects a property off a bound variable, e.g. `n.age`.
type PropertyRef struct {
	exprBase
	Entity   string
	Property graph.PropertyKey
}

func NewPropertyRef(span *gerrors.Span, entity string, prop graph.PropertyKey) *PropertyRef {
	return &PropertyRef{exprBase: exprBase{span: span}, Entity: entity, Property: prop}
}

// BinaryOp enumerates the binary operators the executor's expression
// evaluator supports.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpStartsWith
	OpContains
)

// BinaryExpr applies a BinaryOp to two sub-expressions. Null operands
// propagate to a null result rather than raising an error (spec §7: "yield
// null values, not errors").
type BinaryExpr struct {
	exprBase
	Op          BinaryOp
	Left, Right Expr
}

func NewBinaryExpr(span *gerrors.Span, op BinaryOp, left, right Expr) *BinaryExpr {
	return &BinaryExpr{exprBase: exprBase{span: span}, Op: op, Left: left, Right: right}
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpIsNull
	OpIsNotNull
)

type UnaryExpr struct {
	exprBase
	Op      UnaryOp
	Operand Expr
}

func NewUnaryExpr(span *gerrors.Span, op UnaryOp, operand Expr) *UnaryExpr {
	return &UnaryExpr{exprBase: exprBase{span: span}, Op: op, Operand: operand}
}

// FunctionCall invokes a named scalar or aggregate function (e.g. `count`,
// `coalesce`, `toUpper`) with the given arguments. The executor looks Name
// up in its builtin function table each time the call is evaluated; an
// unknown name evaluates to null.
type FunctionCall struct {
	exprBase
	Name string
	Args []Expr
}

func NewFunctionCall(span *gerrors.Span, name string, args []Expr) *FunctionCall {
	return &FunctionCall{exprBase: exprBase{span: span}, Name: name, Args: args}
}

// AggregatorKind enumerates the aggregate functions Aggregate nodes support.
type AggregatorKind int

const (
	AggCount AggregatorKind = iota
	AggCountDistinct
	AggSum
	AggAvg
	AggMin
	AggMax
	AggCollect
)

// Aggregator binds an AggregatorKind over an expression to an output alias.
type Aggregator struct {
	Kind  AggregatorKind
	Input Expr
	As    string
}

// SortKey pairs a sort expression with ascending/descending order.
type SortKey struct {
	Expr       Expr
	Descending bool
}
