package plan

import (
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// Kind identifies a logical plan node's operator, one of the fixed algebra
// spec §4.4 enumerates.
type Kind int

const (
	KindScan Kind = iota
	KindExpand
	KindFilter
	KindProject
	KindJoin
	KindAggregate
	KindSort
	KindShortestPath
	KindVariableLengthPath
	KindUnion
	KindDistinct
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindScan:
		return "Scan"
	case KindExpand:
		return "Expand"
	case KindFilter:
		return "Filter"
	case KindProject:
		return "Project"
	case KindJoin:
		return "Join"
	case KindAggregate:
		return "Aggregate"
	case KindSort:
		return "Sort"
	case KindShortestPath:
		return "ShortestPath"
	case KindVariableLengthPath:
		return "VariableLengthPath"
	case KindUnion:
		return "Union"
	case KindDistinct:
		return "Distinct"
	case KindInsert:
		return "Insert"
	case KindUpdate:
		return "Update"
	case KindDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Node is one logical plan operator. Every concrete node type carries the
// source span it was parsed from, so the planner can surface span-anchored
// diagnostics unchanged all the way from the original query text through
// optimization (spec §6).
type Node interface {
	Kind() Kind
	Span() *gerrors.Span
	Children() []Node
	Binds() string // the row variable this node introduces, "" if none
}

type base struct {
	span  *gerrors.Span
	binds string
}

func (b base) Span() *gerrors.Span { return b.span }
func (b base) Binds() string       { return b.binds }

// Scan reads nodes (optionally filtered by label and a pushed-down
// predicate) and binds them to As.
type Scan struct {
	base
	As     string
	Label  *graph.LabelID
	Filter Expr
	// ReferencedProps is populated by optimizer.PushdownProjections with the
	// set of properties referenced anywhere above this Scan (spec §4.4 step
	// 2). Nothing reads it: lowering and the executor's scan emit every
	// property regardless. Nil means "not yet computed".
	ReferencedProps []graph.PropertyKey
}

func NewScan(span *gerrors.Span, as string, label *graph.LabelID, filter Expr) *Scan {
	return &Scan{base: base{span: span, binds: as}, As: as, Label: label, Filter: filter}
}
func (s *Scan) Kind() Kind         { return KindScan }
func (s *Scan) Children() []Node   { return nil }

// Expand walks the adjacency of every row bound by Input, joining in edges
// (and the node at their far end) matching EdgeType and Direction.
type Expand struct {
	base
	Input     Node
	Src       string
	EdgeAs    string
	DstAs     string
	EdgeType  *graph.EdgeTypeID
	Direction graph.Direction
}

func NewExpand(span *gerrors.Span, input Node, src, edgeAs, dstAs string, edgeType *graph.EdgeTypeID, dir graph.Direction) *Expand {
	return &Expand{base: base{span: span, binds: dstAs}, Input: input, Src: src, EdgeAs: edgeAs, DstAs: dstAs, EdgeType: edgeType, Direction: dir}
}
func (e *Expand) Kind() Kind       { return KindExpand }
func (e *Expand) Children() []Node { return []Node{e.Input} }

// Filter narrows Input's rows to those for which Predicate evaluates truthy.
type Filter struct {
	base
	Input     Node
	Predicate Expr
}

func NewFilter(span *gerrors.Span, input Node, predicate Expr) *Filter {
	return &Filter{base: base{span: span}, Input: input, Predicate: predicate}
}
func (f *Filter) Kind() Kind       { return KindFilter }
func (f *Filter) Children() []Node { return []Node{f.Input} }

// ProjectColumn names one output column and the expression producing it.
type ProjectColumn struct {
	As   string
	Expr Expr
}

// Project computes a new row shape from Input, evaluating each Columns
// entry per row.
type Project struct {
	base
	Input   Node
	Columns []ProjectColumn
}

func NewProject(span *gerrors.Span, input Node, columns []ProjectColumn) *Project {
	return &Project{base: base{span: span}, Input: input, Columns: columns}
}
func (p *Project) Kind() Kind       { return KindProject }
func (p *Project) Children() []Node { return []Node{p.Input} }

// JoinKind enumerates the join semantics spec §4.4 names.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinAnti
	JoinSemi
)

func (k JoinKind) String() string {
	switch k {
	case JoinLeft:
		return "LEFT"
	case JoinAnti:
		return "ANTI"
	case JoinSemi:
		return "SEMI"
	default:
		return "INNER"
	}
}

// Join combines rows from Left and Right matching Predicate, under Kind's
// semantics. The optimizer's DPccp pass may reorder a connected tree of
// Joins; Predicate stays attached to the pair it was written against so
// reordering can re-derive which predicates apply to which pairing.
type Join struct {
	base
	Left, Right Node
	Predicate   Expr
	JoinKind    JoinKind
}

func NewJoin(span *gerrors.Span, left, right Node, predicate Expr, kind JoinKind) *Join {
	return &Join{base: base{span: span}, Left: left, Right: right, Predicate: predicate, JoinKind: kind}
}
func (j *Join) Kind() Kind       { return KindJoin }
func (j *Join) Children() []Node { return []Node{j.Left, j.Right} }

// Aggregate groups Input's rows by GroupKeys and computes Aggregators per
// group.
type Aggregate struct {
	base
	Input       Node
	GroupKeys   []Expr
	Aggregators []Aggregator
}

func NewAggregate(span *gerrors.Span, input Node, groupKeys []Expr, aggregators []Aggregator) *Aggregate {
	return &Aggregate{base: base{span: span}, Input: input, GroupKeys: groupKeys, Aggregators: aggregators}
}
func (a *Aggregate) Kind() Kind       { return KindAggregate }
func (a *Aggregate) Children() []Node { return []Node{a.Input} }

// Sort orders Input's rows by Keys, optionally truncating to Limit rows.
type Sort struct {
	base
	Input Node
	Keys  []SortKey
	Limit *int64
}

func NewSort(span *gerrors.Span, input Node, keys []SortKey, limit *int64) *Sort {
	return &Sort{base: base{span: span}, Input: input, Keys: keys, Limit: limit}
}
func (s *Sort) Kind() Kind       { return KindSort }
func (s *Sort) Children() []Node { return []Node{s.Input} }

// PathBounds constrains how many hops a path operator may traverse.
type PathBounds struct {
	Min int
	Max int // 0 means unbounded
}

// ShortestPath finds (a) shortest path(s) between the rows Src and Dst
// bind, subject to EdgeFilter and Bounds.
type ShortestPath struct {
	base
	Input      Node
	Src, Dst   string
	As         string
	EdgeFilter Expr
	Direction  graph.Direction
	Bounds     PathBounds
}

func NewShortestPath(span *gerrors.Span, input Node, src, dst, as string, edgeFilter Expr, dir graph.Direction, bounds PathBounds) *ShortestPath {
	return &ShortestPath{base: base{span: span, binds: as}, Input: input, Src: src, Dst: dst, As: as, EdgeFilter: edgeFilter, Direction: dir, Bounds: bounds}
}
func (s *ShortestPath) Kind() Kind       { return KindShortestPath }
func (s *ShortestPath) Children() []Node { return []Node{s.Input} }

// VariableLengthPath expands Input's Src binding through Min..Max hops in
// Direction, binding the resulting path (or its terminal node, depending on
// the frontend's return shape) to As.
type VariableLengthPath struct {
	base
	Input     Node
	Src       string
	As        string
	Min, Max  int
	Direction graph.Direction
	EdgeType  *graph.EdgeTypeID
}

func NewVariableLengthPath(span *gerrors.Span, input Node, src, as string, min, max int, dir graph.Direction, edgeType *graph.EdgeTypeID) *VariableLengthPath {
	return &VariableLengthPath{base: base{span: span, binds: as}, Input: input, Src: src, As: as, Min: min, Max: max, Direction: dir, EdgeType: edgeType}
}
func (v *VariableLengthPath) Kind() Kind       { return KindVariableLengthPath }
func (v *VariableLengthPath) Children() []Node { return []Node{v.Input} }

// Union concatenates the rows of every input, which must share a row shape.
type Union struct {
	base
	Inputs []Node
	All    bool // UNION ALL (no dedup) vs UNION (deduped)
}

func NewUnion(span *gerrors.Span, inputs []Node, all bool) *Union {
	return &Union{base: base{span: span}, Inputs: inputs, All: all}
}
func (u *Union) Kind() Kind       { return KindUnion }
func (u *Union) Children() []Node { return u.Inputs }

// Distinct removes duplicate rows from Input, comparing the full row.
type Distinct struct {
	base
	Input Node
}

func NewDistinct(span *gerrors.Span, input Node) *Distinct {
	return &Distinct{base: base{span: span}, Input: input}
}
func (d *Distinct) Kind() Kind       { return KindDistinct }
func (d *Distinct) Children() []Node { return []Node{d.Input} }

// PropertySet assigns Value to Key as part of an Insert or Update node.
type PropertySet struct {
	Key   graph.PropertyKey
	Value Expr
}

// Insert creates new nodes (Labels/Properties) or, when Edge is set, a new
// edge between two already-bound rows.
type Insert struct {
	base
	As         string
	Labels     []graph.LabelID
	Properties []PropertySet
	EdgeType   *graph.EdgeTypeID
	EdgeSrc    string
	EdgeDst    string
	Input      Node // nil for a standalone CREATE; set when chained after a MATCH
}

func NewInsert(span *gerrors.Span, input Node, as string) *Insert {
	return &Insert{base: base{span: span, binds: as}, As: as, Input: input}
}
func (i *Insert) Kind() Kind { return KindInsert }
func (i *Insert) Children() []Node {
	if i.Input == nil {
		return nil
	}
	return []Node{i.Input}
}

// Update applies property sets and/or label add/remove to the row Input
// binds as Target.
type Update struct {
	base
	Input        Node
	Target       string
	SetProps     []PropertySet
	AddLabels    []graph.LabelID
	RemoveLabels []graph.LabelID
}

func NewUpdate(span *gerrors.Span, input Node, target string) *Update {
	return &Update{base: base{span: span}, Input: input, Target: target}
}
func (u *Update) Kind() Kind       { return KindUpdate }
func (u *Update) Children() []Node { return []Node{u.Input} }

// Delete removes the rows bound by each of Targets. Detach controls whether
// incident edges are removed along with a node (Neo4j's DETACH DELETE) or
// the delete is rejected when live edges remain.
type Delete struct {
	base
	Input   Node
	Targets []string
	Detach  bool
}

func NewDelete(span *gerrors.Span, input Node, targets []string, detach bool) *Delete {
	return &Delete{base: base{span: span}, Input: input, Targets: targets, Detach: detach}
}
func (d *Delete) Kind() Kind       { return KindDelete }
func (d *Delete) Children() []Node { return []Node{d.Input} }

// Walk visits n and every descendant in pre-order, calling visit on each.
// Used by the optimizer's pushdown passes and by exec's lowering step to
// traverse a frozen plan tree without hand-writing Children() recursion at
// every call site.
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children() {
		Walk(c, visit)
	}
}
