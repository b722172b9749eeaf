package txn

// GC drives version-chain reclamation: it never runs on its own timer in
// this package (the caller decides cadence; nothing in session calls
// Sweep), but always computes the same watermark: the oldest
// active reader's pinned epoch, or the latest committed epoch if no reader
// is active (spec §4.1: "garbage collection ... driven by the oldest
// active reader's start epoch").
type GC struct {
	snapshots *SnapshotRegistry
	nodes     *ChainTable
	edges     *ChainTable
	epochs    *EpochCounter
}

// NewGC wires a GC sweep to the given snapshot registry, node/edge chain
// tables, and epoch counter.
func NewGC(snapshots *SnapshotRegistry, nodes, edges *ChainTable, epochs *EpochCounter) *GC {
	return &GC{snapshots: snapshots, nodes: nodes, edges: edges, epochs: epochs}
}

// Watermark returns the epoch below which no version can still be needed by
// any active reader: the oldest open snapshot's pinned epoch if any reader
// is active, or the most recently committed epoch otherwise (everything is
// safe to compact up to "now" when nobody is reading an old snapshot).
func (g *GC) Watermark() uint64 {
	if oldest, ok := g.snapshots.OldestActive(); ok {
		return oldest
	}
	current := g.epochs.Current()
	if current == 0 {
		return 0
	}
	return current - 1
}

// Sweep compacts every node and edge version chain down to the current
// watermark.
func (g *GC) Sweep() {
	watermark := g.Watermark()
	g.nodes.Compact(watermark)
	g.edges.Compact(watermark)
}
