package optimizer

import (
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

// PushdownFilters sinks a Filter's predicate into the Scan beneath it when
// the predicate only references that scan's bound variable, implementing
// spec §4.4 step 1. Filters that reference multiple variables (e.g. a join
// predicate written as a WHERE clause) are left in place; join predicate
// extraction is dpccp.go's job, not this pass's.
func PushdownFilters(root plan.Node) plan.Node {
	switch n := root.(type) {
	case *plan.Filter:
		input := PushdownFilters(n.Input)
		if scan, ok := input.(*plan.Scan); ok && referencesOnly(n.Predicate, scan.As) {
			if scan.Filter == nil {
				scan.Filter = n.Predicate
			} else {
				scan.Filter = plan.NewBinaryExpr(n.Span(), plan.OpAnd, scan.Filter, n.Predicate)
			}
			return scan
		}
		n.Input = input
		return n
	default:
		rewriteChildren(root, PushdownFilters)
		return root
	}
}

// PushdownProjections prunes each Scan to the set of properties actually
// referenced anywhere at or above it, implementing spec §4.4 step 2.
// Scan carries no explicit projection list in the current algebra (plan.Scan
// always yields the full row); this pass instead records referenced
// properties onto the Scan via ReferencedProps. Neither Lower nor the
// executor reads ReferencedProps, so every Scan still emits all of its
// node's properties.
func PushdownProjections(root plan.Node) {
	refs := make(map[string]map[graph.PropertyKey]struct{})
	plan.Walk(root, func(n plan.Node) {
		collectPropertyRefs(n, refs)
	})
	plan.Walk(root, func(n plan.Node) {
		if s, ok := n.(*plan.Scan); ok {
			if props, ok := refs[s.As]; ok {
				s.ReferencedProps = make([]graph.PropertyKey, 0, len(props))
				for p := range props {
					s.ReferencedProps = append(s.ReferencedProps, p)
				}
			}
		}
	})
}

func collectPropertyRefs(n plan.Node, refs map[string]map[graph.PropertyKey]struct{}) {
	var walkExpr func(e plan.Expr)
	walkExpr = func(e plan.Expr) {
		switch ex := e.(type) {
		case *plan.PropertyRef:
			set, ok := refs[ex.Entity]
			if !ok {
				set = make(map[graph.PropertyKey]struct{})
				refs[ex.Entity] = set
			}
			set[ex.Property] = struct{}{}
		case *plan.BinaryExpr:
			walkExpr(ex.Left)
			walkExpr(ex.Right)
		case *plan.UnaryExpr:
			walkExpr(ex.Operand)
		case *plan.FunctionCall:
			for _, a := range ex.Args {
				walkExpr(a)
			}
		}
	}

	switch node := n.(type) {
	case *plan.Filter:
		walkExpr(node.Predicate)
	case *plan.Project:
		for _, c := range node.Columns {
			walkExpr(c.Expr)
		}
	case *plan.Join:
		walkExpr(node.Predicate)
	case *plan.Sort:
		for _, k := range node.Keys {
			walkExpr(k.Expr)
		}
	case *plan.Aggregate:
		for _, k := range node.GroupKeys {
			walkExpr(k)
		}
		for _, a := range node.Aggregators {
			walkExpr(a.Input)
		}
	}
}

// referencesOnly reports whether every PropertyRef/Variable inside e names
// entity var, meaning a Filter wrapping a single-variable predicate is safe
// to sink into that variable's Scan.
func referencesOnly(e plan.Expr, v string) bool {
	ok := true
	var walk func(e plan.Expr)
	walk = func(e plan.Expr) {
		switch ex := e.(type) {
		case *plan.PropertyRef:
			if ex.Entity != v {
				ok = false
			}
		case *plan.Variable:
			if ex.Name != v {
				ok = false
			}
		case *plan.BinaryExpr:
			walk(ex.Left)
			walk(ex.Right)
		case *plan.UnaryExpr:
			walk(ex.Operand)
		case *plan.FunctionCall:
			for _, a := range ex.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return ok
}

// rewriteChildren replaces each of n's children in place with rewrite(child),
// for the node kinds that expose mutable child slots. Kinds with immutable
// or non-rewritable children (Scan, Insert without Input) are no-ops.
func rewriteChildren(n plan.Node, rewrite func(plan.Node) plan.Node) {
	switch node := n.(type) {
	case *plan.Expand:
		node.Input = rewrite(node.Input)
	case *plan.Filter:
		node.Input = rewrite(node.Input)
	case *plan.Project:
		node.Input = rewrite(node.Input)
	case *plan.Join:
		node.Left = rewrite(node.Left)
		node.Right = rewrite(node.Right)
	case *plan.Aggregate:
		node.Input = rewrite(node.Input)
	case *plan.Sort:
		node.Input = rewrite(node.Input)
	case *plan.ShortestPath:
		node.Input = rewrite(node.Input)
	case *plan.VariableLengthPath:
		node.Input = rewrite(node.Input)
	case *plan.Union:
		for i, in := range node.Inputs {
			node.Inputs[i] = rewrite(in)
		}
	case *plan.Distinct:
		node.Input = rewrite(node.Input)
	case *plan.Update:
		node.Input = rewrite(node.Input)
	case *plan.Delete:
		node.Input = rewrite(node.Input)
	case *plan.Insert:
		if node.Input != nil {
			node.Input = rewrite(node.Input)
		}
	}
}
