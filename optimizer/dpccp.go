package optimizer

import (
	"math/bits"

	"github.com/grafeo-db/grafeo/plan"
)

// joinEdge records a predicate connecting two leaves of the join graph, by
// leaf index.
type joinEdge struct {
	a, b int
	pred plan.Expr
}

// joinGraph is the flattened view of a tree of plan.Join nodes: every
// non-Join descendant becomes a leaf, and every Join's predicate becomes an
// edge between the leaves it (transitively) connects.
type joinGraph struct {
	leaves []plan.Node
	edges  []joinEdge
}

// flattenJoins collects every leaf under a (possibly nested) Join subtree
// and every predicate found along the way.
func flattenJoins(n plan.Node) *joinGraph {
	g := &joinGraph{}
	var collectLeaves func(n plan.Node) []int
	collectLeaves = func(n plan.Node) []int {
		if j, ok := n.(*plan.Join); ok {
			left := collectLeaves(j.Left)
			right := collectLeaves(j.Right)
			if j.Predicate != nil && len(left) > 0 && len(right) > 0 {
				g.edges = append(g.edges, joinEdge{a: left[0], b: right[0], pred: j.Predicate})
			}
			return append(left, right...)
		}
		idx := len(g.leaves)
		g.leaves = append(g.leaves, n)
		return []int{idx}
	}
	collectLeaves(n)
	return g
}

// connected reports whether the subset (as a bitmask over leaf indices) is
// connected in g — every pair of leaves in the subset reachable from one
// another via edges whose endpoints both lie in the subset.
func (g *joinGraph) connected(subset uint64) bool {
	if bits.OnesCount64(subset) <= 1 {
		return true
	}
	start := bits.TrailingZeros64(subset)
	visited := uint64(1) << uint(start)
	frontier := visited
	for frontier != 0 {
		next := uint64(0)
		for _, e := range g.edges {
			am := uint64(1) << uint(e.a)
			bm := uint64(1) << uint(e.b)
			if subset&am == 0 || subset&bm == 0 {
				continue
			}
			if frontier&am != 0 && visited&bm == 0 {
				next |= bm
			}
			if frontier&bm != 0 && visited&am == 0 {
				next |= am
			}
		}
		visited |= next
		frontier = next
	}
	return visited == subset
}

// connectingEdges returns every edge whose two endpoints fall one in left
// and one in right.
func (g *joinGraph) connectingEdges(left, right uint64) []joinEdge {
	var out []joinEdge
	for _, e := range g.edges {
		am := uint64(1) << uint(e.a)
		bm := uint64(1) << uint(e.b)
		if (left&am != 0 && right&bm != 0) || (left&bm != 0 && right&am != 0) {
			out = append(out, e)
		}
	}
	return out
}

// planEntry is one dynamic-programming table cell: the best known plan for
// a leaf subset, its estimated cost, and its estimated cardinality.
type planEntry struct {
	node        plan.Node
	cost        float64
	cardinality float64
}

// dpccpMaxLeaves bounds DPccp's subset enumeration, which is exponential in
// the leaf count. Past this, ReorderJoins falls back to left-deep greedy
// (spec §4.4 step 3: "otherwise fall back to left-deep greedy").
const dpccpMaxLeaves = 12

// ReorderJoins rewrites a connected tree of Join nodes into the
// minimum-estimated-cost bushy join tree via DPccp (Dynamic Programming
// over Connected subgraph Complement Pairs), falling back to a left-deep
// greedy order when the join graph has more leaves than dpccpMaxLeaves or
// is not fully connected (spec §4.4 step 3). Non-Join nodes pass through
// untouched other than having their own children recursively reordered.
func ReorderJoins(n plan.Node, stats *Stats) plan.Node {
	if n == nil {
		return nil
	}
	if _, ok := n.(*plan.Join); !ok {
		rewriteChildren(n, func(c plan.Node) plan.Node { return ReorderJoins(c, stats) })
		return n
	}

	g := flattenJoins(n)
	for i, leaf := range g.leaves {
		g.leaves[i] = ReorderJoins(leaf, stats)
	}

	full := uint64(1)<<uint(len(g.leaves)) - 1
	if len(g.leaves) > dpccpMaxLeaves || !g.connected(full) {
		return leftDeepGreedy(g, stats)
	}
	return dpccp(g, stats)
}

// leafCardinality estimates a leaf's row count: a Scan uses Stats directly;
// anything else (an already-lowered subtree) falls back to a flat default,
// since only Scan carries a label to look up.
func leafCardinality(n plan.Node, stats *Stats) float64 {
	if s, ok := n.(*plan.Scan); ok {
		return stats.ScanCardinality(s.Label)
	}
	return 1000
}

// dpccp runs the classic DPccp dynamic program: for every subset of leaves
// in increasing size order, for every way of splitting it into two
// connected complementary halves joined by at least one edge, keep the
// cheapest known combination.
func dpccp(g *joinGraph, stats *Stats) plan.Node {
	n := len(g.leaves)
	full := uint64(1)<<uint(n) - 1
	table := make(map[uint64]planEntry, 1<<uint(n))

	for i, leaf := range g.leaves {
		table[uint64(1)<<uint(i)] = planEntry{node: leaf, cost: 0, cardinality: leafCardinality(leaf, stats)}
	}

	for subset := uint64(1); subset <= full; subset++ {
		if bits.OnesCount64(subset) < 2 || !g.connected(subset) {
			continue
		}
		var best *planEntry
		// Enumerate every non-empty proper sub-subset as the "left" half;
		// its complement within subset is the "right" half.
		for left := (subset - 1) & subset; left != 0; left = (left - 1) & subset {
			right := subset &^ left
			if left == 0 || right == 0 || left > right {
				continue // dedup symmetric splits
			}
			leftEntry, okL := table[left]
			rightEntry, okR := table[right]
			if !okL || !okR {
				continue
			}
			edges := g.connectingEdges(left, right)
			if len(edges) == 0 {
				continue // not a valid ccp split: no predicate connects them
			}
			card := JoinCardinality(leftEntry.cardinality, rightEntry.cardinality, 1.0/float64(len(edges)+1))
			cost := leftEntry.cost + rightEntry.cost + HashJoinCost(leftEntry.cardinality, rightEntry.cardinality, card)
			if best == nil || cost < best.cost {
				joined := plan.NewJoin(nil, leftEntry.node, rightEntry.node, edges[0].pred, plan.JoinInner)
				best = &planEntry{node: joined, cost: cost, cardinality: card}
			}
		}
		if best != nil {
			table[subset] = *best
		}
	}

	if entry, ok := table[full]; ok {
		return entry.node
	}
	return leftDeepGreedy(g, stats)
}

// leftDeepGreedy joins leaves one at a time, always picking the
// cheapest-looking next leaf by estimated cardinality, producing a
// left-deep plan when DPccp's subset search is skipped or fails to cover
// every leaf (disconnected join graph).
func leftDeepGreedy(g *joinGraph, stats *Stats) plan.Node {
	if len(g.leaves) == 0 {
		return nil
	}
	order := make([]int, len(g.leaves))
	for i := range order {
		order[i] = i
	}
	cards := make([]float64, len(g.leaves))
	for i, leaf := range g.leaves {
		cards[i] = leafCardinality(leaf, stats)
	}
	for i := 0; i < len(order); i++ {
		minIdx := i
		for j := i + 1; j < len(order); j++ {
			if cards[order[j]] < cards[order[minIdx]] {
				minIdx = j
			}
		}
		order[i], order[minIdx] = order[minIdx], order[i]
	}

	result := g.leaves[order[0]]
	covered := uint64(1) << uint(order[0])
	for _, idx := range order[1:] {
		leaf := g.leaves[idx]
		leafMask := uint64(1) << uint(idx)
		var pred plan.Expr
		for _, e := range g.connectingEdges(covered, leafMask) {
			pred = e.pred
			break
		}
		result = plan.NewJoin(nil, result, leaf, pred, plan.JoinInner)
		covered |= leafMask
	}
	return result
}
