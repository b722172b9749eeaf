package optimizer

import (
	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

// PhysicalKind names the concrete operator implementation chosen for a
// logical node, distinguishing shapes the logical algebra itself doesn't
// (e.g. Join's HashJoin vs LeapfrogJoin, Scan's sequential vs index-assisted
// forms) — spec §4.4 step 5: "each logical op maps to one or more physical
// operators based on predicate shape and available indexes".
type PhysicalKind int

const (
	PhysicalSeqScan PhysicalKind = iota
	PhysicalIndexScan
	PhysicalFilter
	PhysicalProject
	PhysicalExpand
	PhysicalHashJoin
	PhysicalLeapfrogJoin
	PhysicalAggregate
	PhysicalSort
	PhysicalExternalSort
	PhysicalShortestPath
	PhysicalVariableLengthPath
	PhysicalUnion
	PhysicalDistinct
	PhysicalInsert
	PhysicalUpdate
	PhysicalDelete
)

// PhysicalPlan wraps a logical plan.Node with the physical operator chosen
// for it and any index the executor should use, mirroring the logical tree
// shape so exec's lowering step can walk both in lockstep.
type PhysicalPlan struct {
	Logical  plan.Node
	Physical PhysicalKind
	Index    *catalog.IndexDef // non-nil when Physical == PhysicalIndexScan
	Children []*PhysicalPlan
}

// Lower maps every node in a logical plan tree to a PhysicalPlan, choosing
// index-assisted scans where schema declares a usable index, multi-way
// leapfrog joins where three or more Scan/Expand legs share a join
// variable (the spec's "triangle pattern" case), and hash joins otherwise,
// and PhysicalExternalSort when Stats estimates the input above
// sortSpillThreshold (spec §4.4 step 5, §4.5's memory-budget spill rule).
// exec.Build builds the same in-memory sort for PhysicalExternalSort as for
// PhysicalSort; no sort spills to disk.
func Lower(n plan.Node, schema *catalog.SchemaManager, stats *Stats) *PhysicalPlan {
	if n == nil {
		return nil
	}

	children := make([]*PhysicalPlan, 0, len(n.Children()))
	for _, c := range n.Children() {
		children = append(children, Lower(c, schema, stats))
	}

	p := &PhysicalPlan{Logical: n, Children: children}

	switch node := n.(type) {
	case *plan.Scan:
		p.Physical = PhysicalSeqScan
		if node.Label != nil && schema != nil {
			if refEq, ok := scanEqualityProperty(node); ok {
				for _, idx := range schema.IndexesFor(*node.Label) {
					if idx.Property == refEq {
						def := idx
						p.Physical = PhysicalIndexScan
						p.Index = &def
						break
					}
				}
			}
		}
	case *plan.Filter:
		p.Physical = PhysicalFilter
	case *plan.Project:
		p.Physical = PhysicalProject
	case *plan.Expand:
		p.Physical = PhysicalExpand
	case *plan.Join:
		if isTrianglePattern(node) {
			p.Physical = PhysicalLeapfrogJoin
		} else {
			p.Physical = PhysicalHashJoin
		}
	case *plan.Aggregate:
		p.Physical = PhysicalAggregate
	case *plan.Sort:
		card := 0.0
		if stats != nil && len(children) > 0 {
			card = leafCardinality(children[0].Logical, stats)
		}
		if card > sortSpillThreshold {
			p.Physical = PhysicalExternalSort
		} else {
			p.Physical = PhysicalSort
		}
	case *plan.ShortestPath:
		p.Physical = PhysicalShortestPath
	case *plan.VariableLengthPath:
		p.Physical = PhysicalVariableLengthPath
	case *plan.Union:
		p.Physical = PhysicalUnion
	case *plan.Distinct:
		p.Physical = PhysicalDistinct
	case *plan.Insert:
		p.Physical = PhysicalInsert
	case *plan.Update:
		p.Physical = PhysicalUpdate
	case *plan.Delete:
		p.Physical = PhysicalDelete
	}

	return p
}

// sortSpillThreshold is the estimated row count above which Sort lowers to
// PhysicalExternalSort rather than PhysicalSort (spec §4.5: "external
// merge-sort when memory budget is exceeded" — approximated here by
// cardinality since Lower has no live memory-budget reading). The label is
// the only effect: exec.Build runs the same in-memory sort for both, and
// session.Session does not revisit the choice or consult memory_limit.
const sortSpillThreshold = 1_000_000

// scanEqualityProperty reports the single property an index-eligible
// top-level equality predicate on node's Filter tests, if its filter has
// that shape: `<scan var>.<prop> = <literal>` in either operand order.
func scanEqualityProperty(node *plan.Scan) (graph.PropertyKey, bool) {
	bin, ok := node.Filter.(*plan.BinaryExpr)
	if !ok || bin.Op != plan.OpEq {
		return 0, false
	}
	if ref, ok := bin.Left.(*plan.PropertyRef); ok && ref.Entity == node.As {
		if _, isLit := bin.Right.(*plan.Literal); isLit {
			return ref.Property, true
		}
	}
	if ref, ok := bin.Right.(*plan.PropertyRef); ok && ref.Entity == node.As {
		if _, isLit := bin.Left.(*plan.Literal); isLit {
			return ref.Property, true
		}
	}
	return 0, false
}

// isTrianglePattern reports whether a Join's inputs form a pattern where
// three or more Scan/Expand legs share a single join variable — the case
// LeapfrogJoin's multi-way trie intersection wins over a binary hash join
// (spec §4.5).
func isTrianglePattern(j *plan.Join) bool {
	vars := make(map[string]int)
	var count func(n plan.Node)
	count = func(n plan.Node) {
		if n == nil {
			return
		}
		if b := n.Binds(); b != "" {
			vars[b]++
		}
		for _, c := range n.Children() {
			count(c)
		}
	}
	count(j.Left)
	count(j.Right)
	for _, c := range vars {
		if c >= 3 {
			return true
		}
	}
	return false
}
