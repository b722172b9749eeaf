package storage

import (
	"sort"
	"sync"

	"github.com/grafeo-db/grafeo/graph"
)

// adjacencyChunkSize bounds how many edge ids a single immutable chunk
// holds before a new chunk is started. Keeping chunks fixed-size lets
// expand operators stream a node's adjacency without copying the whole
// list, mirroring spec §4.3's chunked representation.
const adjacencyChunkSize = 256

// adjacencyChunk is an immutable, sorted-by-EdgeID run of adjacency
// entries. Immutability lets concurrent readers iterate a chunk without
// locking; new edges land in the owning list's delta buffer instead of
// mutating a chunk in place.
type adjacencyChunk struct {
	edges []graph.EdgeID
	other []graph.NodeID // the neighbor at the far end of edges[i]
}

// adjacencyList holds one node's edges in one direction: a sequence of
// sealed chunks plus a small delta buffer absorbing recent writes, and a
// tombstone set for edges removed since the owning chunks were sealed.
// Generalizes the teacher's outgoingEdges/incomingEdges
// map[NodeID]map[EdgeID]struct{} (pkg/storage/memory.go) into a structure
// that can be compacted and iterated in EdgeID order for merge/leapfrog
// joins (spec §4.4, §5).
type adjacencyList struct {
	mu        sync.RWMutex
	chunks    []adjacencyChunk
	deltaE    []graph.EdgeID
	deltaN    []graph.NodeID
	tombstone map[graph.EdgeID]struct{}
}

func newAdjacencyList() *adjacencyList {
	return &adjacencyList{tombstone: make(map[graph.EdgeID]struct{})}
}

// add appends a new edge to the delta buffer, compacting into a sealed
// chunk once the buffer reaches adjacencyChunkSize.
func (l *adjacencyList) add(edge graph.EdgeID, neighbor graph.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deltaE = append(l.deltaE, edge)
	l.deltaN = append(l.deltaN, neighbor)
	if len(l.deltaE) >= adjacencyChunkSize {
		l.sealLocked()
	}
}

// sealLocked moves the current delta buffer into a new sorted chunk. Caller
// must hold l.mu.
func (l *adjacencyList) sealLocked() {
	if len(l.deltaE) == 0 {
		return
	}
	idx := make([]int, len(l.deltaE))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return l.deltaE[idx[a]] < l.deltaE[idx[b]] })

	chunk := adjacencyChunk{
		edges: make([]graph.EdgeID, len(idx)),
		other: make([]graph.NodeID, len(idx)),
	}
	for i, j := range idx {
		chunk.edges[i] = l.deltaE[j]
		chunk.other[i] = l.deltaN[j]
	}
	l.chunks = append(l.chunks, chunk)
	l.deltaE = nil
	l.deltaN = nil
}

// remove tombstones edge so iteration skips it, without rewriting sealed
// chunks. A compaction pass later drops tombstoned entries for real.
func (l *adjacencyList) remove(edge graph.EdgeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tombstone[edge] = struct{}{}
}

// AdjacencyEntry pairs an edge id with the neighbor node at the other end,
// the unit Neighbors hands back to callers outside the package (exec's
// Expand operator, txn.Manager's pass-through).
type AdjacencyEntry struct {
	Edge     graph.EdgeID
	Neighbor graph.NodeID
}

// snapshot returns a defensive copy of every live (edge, neighbor) pair,
// sealed chunks first in EdgeID order, then the unsealed delta buffer.
func (l *adjacencyList) snapshot() []AdjacencyEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AdjacencyEntry, 0, l.liveCountLocked())
	for _, c := range l.chunks {
		for i, e := range c.edges {
			if _, dead := l.tombstone[e]; dead {
				continue
			}
			out = append(out, AdjacencyEntry{Edge: e, Neighbor: c.other[i]})
		}
	}
	for i, e := range l.deltaE {
		if _, dead := l.tombstone[e]; dead {
			continue
		}
		out = append(out, AdjacencyEntry{Edge: e, Neighbor: l.deltaN[i]})
	}
	return out
}

func (l *adjacencyList) liveCountLocked() int {
	n := 0
	for _, c := range l.chunks {
		n += len(c.edges)
	}
	return n + len(l.deltaE)
}

// degree returns the number of live edges, used by the optimizer's
// cardinality estimation for Expand operators.
func (l *adjacencyList) degree() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := l.liveCountLocked() - len(l.tombstone)
	if n < 0 {
		n = 0
	}
	return n
}

// compact drops tombstoned entries by rebuilding sealed chunks from
// scratch. Intended to run off the hot path (e.g. during checkpointing)
// under the per-list lock so readers never observe a half-compacted list.
func (l *adjacencyList) compact() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tombstone) == 0 {
		return
	}
	l.sealLocked()

	var edges []graph.EdgeID
	var neighbors []graph.NodeID
	for _, c := range l.chunks {
		for i, e := range c.edges {
			if _, dead := l.tombstone[e]; dead {
				continue
			}
			edges = append(edges, e)
			neighbors = append(neighbors, c.other[i])
		}
	}

	l.chunks = nil
	for start := 0; start < len(edges); start += adjacencyChunkSize {
		end := start + adjacencyChunkSize
		if end > len(edges) {
			end = len(edges)
		}
		l.chunks = append(l.chunks, adjacencyChunk{
			edges: append([]graph.EdgeID(nil), edges[start:end]...),
			other: append([]graph.NodeID(nil), neighbors[start:end]...),
		})
	}
	l.tombstone = make(map[graph.EdgeID]struct{})
}

// AdjacencyIndex owns the outgoing and incoming adjacency lists for every
// node, keyed densely by NodeID.
type AdjacencyIndex struct {
	mu  sync.RWMutex
	out []*adjacencyList
	in  []*adjacencyList
}

// NewAdjacencyIndex creates an empty adjacency index.
func NewAdjacencyIndex() *AdjacencyIndex { return &AdjacencyIndex{} }

func (a *AdjacencyIndex) ensure(id graph.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := int(id) + 1
	for len(a.out) < n {
		a.out = append(a.out, newAdjacencyList())
	}
	for len(a.in) < n {
		a.in = append(a.in, newAdjacencyList())
	}
}

// AddEdge records edge (src -> dst) in both the src outgoing list and the
// dst incoming list.
func (a *AdjacencyIndex) AddEdge(edge graph.EdgeID, src, dst graph.NodeID) {
	a.ensure(src)
	a.ensure(dst)
	a.mu.RLock()
	outList := a.out[src]
	inList := a.in[dst]
	a.mu.RUnlock()
	outList.add(edge, dst)
	inList.add(edge, src)
}

// RemoveEdge tombstones edge out of both the src and dst lists.
func (a *AdjacencyIndex) RemoveEdge(edge graph.EdgeID, src, dst graph.NodeID) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(src) < len(a.out) {
		a.out[src].remove(edge)
	}
	if int(dst) < len(a.in) {
		a.in[dst].remove(edge)
	}
}

// Neighbors returns the live (edge, neighbor) pairs for id in the given
// direction. Both reports the union of outgoing and incoming.
func (a *AdjacencyIndex) Neighbors(id graph.NodeID, dir graph.Direction) []AdjacencyEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id) >= len(a.out) {
		return nil
	}
	switch dir {
	case graph.Outgoing:
		return a.out[id].snapshot()
	case graph.Incoming:
		return a.in[id].snapshot()
	default:
		return append(a.out[id].snapshot(), a.in[id].snapshot()...)
	}
}

// Degree returns the live edge count for id in the given direction, used by
// the optimizer's cardinality estimator for Expand operators.
func (a *AdjacencyIndex) Degree(id graph.NodeID, dir graph.Direction) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id) >= len(a.out) {
		return 0
	}
	switch dir {
	case graph.Outgoing:
		return a.out[id].degree()
	case graph.Incoming:
		return a.in[id].degree()
	default:
		return a.out[id].degree() + a.in[id].degree()
	}
}

// Compact runs tombstone compaction over every adjacency list. Intended to
// be invoked by the checkpoint coordinator between checkpoints, never on
// the query hot path.
func (a *AdjacencyIndex) Compact() {
	a.mu.RLock()
	lists := make([]*adjacencyList, 0, len(a.out)+len(a.in))
	lists = append(lists, a.out...)
	lists = append(lists, a.in...)
	a.mu.RUnlock()
	for _, l := range lists {
		l.compact()
	}
}
