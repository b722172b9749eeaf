// Package storage implements Grafeo's physical storage layer: append-only
// node/edge arenas, chunked adjacency lists, the write-ahead log, checkpoint
// coordination, and the Badger-backed secondary index and encryption
// facilities (spec §4, §6).
package storage

import (
	"sync"

	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// NodeArena is an append-only, epoch-tagged store of NodeRecord values
// indexed densely by graph.NodeID. It generalizes the teacher's
// map[NodeID]*Node (pkg/storage/memory.go) from a hash map to a
// growable slice: ids are assigned monotonically by the arena itself
// (spec §3: "dense 64-bit identifiers assigned monotonically"), which a
// hash map cannot guarantee, and reclamation happens by epoch rather than
// by explicit delete so MVCC readers holding an older snapshot keep seeing
// a record txn.Manager has logically removed until GC decides it's safe.
type NodeArena struct {
	mu       sync.RWMutex
	records  []graph.NodeRecord
	props    []propertySet
	overflow *graph.LabelOverflow
	free     []graph.NodeID
}

// propertySet is the per-record property storage: a dense map from
// PropertyKey to Value. Kept alongside NodeRecord rather than inline in it
// because the record must stay fixed-size while the property set does not.
type propertySet map[graph.PropertyKey]graph.Value

// NewNodeArena creates an empty node arena.
func NewNodeArena() *NodeArena {
	return &NodeArena{overflow: graph.NewLabelOverflow()}
}

// Allocate reserves a new NodeID, preferring a freed slot before growing the
// arena, and stores rec under it. The caller is responsible for setting
// rec.Id to the returned id before any reader observes it.
func (a *NodeArena) Allocate(epoch uint64) graph.NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.records[id] = graph.NodeRecord{Id: id, CreatedEpoch: epoch}
		a.props[id] = nil
		return id
	}

	id := graph.NodeID(len(a.records))
	a.records = append(a.records, graph.NodeRecord{Id: id, CreatedEpoch: epoch})
	a.props = append(a.props, nil)
	return id
}

// Get returns a copy of the record for id. The bool is false if id was never
// allocated or has been reclaimed.
func (a *NodeArena) Get(id graph.NodeID) (graph.NodeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.records)) {
		return graph.NodeRecord{}, false
	}
	rec := a.records[id]
	if rec.Flags.Has(graph.FlagDeleted) {
		return graph.NodeRecord{}, false
	}
	return rec, true
}

// GetRaw returns the stored record for id regardless of its deleted flag,
// for txn.Manager's internal bookkeeping of provisional (not-yet-committed)
// allocations, which are marked deleted until commit specifically to hide
// them from Get.
func (a *NodeArena) GetRaw(id graph.NodeID) (graph.NodeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.records)) {
		return graph.NodeRecord{}, false
	}
	return a.records[id], true
}

// Put overwrites the stored record for id. Used by txn.Manager to install a
// new version after commit validation succeeds.
func (a *NodeArena) Put(rec graph.NodeRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(rec.Id) >= uint64(len(a.records)) {
		return gerrors.New(gerrors.KindNotFound, "node id out of range")
	}
	a.records[rec.Id] = rec
	return nil
}

// Properties returns the live property set for id.
func (a *NodeArena) Properties(id graph.NodeID) (map[graph.PropertyKey]graph.Value, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.props)) {
		return nil, false
	}
	set := a.props[id]
	if set == nil {
		return map[graph.PropertyKey]graph.Value{}, true
	}
	out := make(map[graph.PropertyKey]graph.Value, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out, true
}

// SetProperty assigns value to key on id's property set, replacing any prior
// binding. A KindNull value removes the key entirely, matching the spec's
// "setting a property to null removes it" edge case.
func (a *NodeArena) SetProperty(id graph.NodeID, key graph.PropertyKey, value graph.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(id) >= uint64(len(a.props)) {
		return gerrors.New(gerrors.KindNotFound, "node id out of range")
	}
	if a.props[id] == nil {
		a.props[id] = make(propertySet)
	}
	if value.IsNull() {
		delete(a.props[id], key)
	} else {
		a.props[id][key] = value
	}
	a.records[id].PropCount = uint32(len(a.props[id]))
	return nil
}

// Overflow returns the label-overflow table backing records with more than
// graph.MaxInlineLabels labels.
func (a *NodeArena) Overflow() *graph.LabelOverflow { return a.overflow }

// Free marks id's slot as reclaimable. The caller must have already ensured
// no active snapshot can still observe id (txn.Manager's GC sweep owns this
// decision); the arena itself does no epoch bookkeeping beyond storing
// CreatedEpoch.
func (a *NodeArena) Free(id graph.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(id) >= uint64(len(a.records)) {
		return
	}
	a.records[id].Flags.Set(graph.FlagDeleted)
	a.props[id] = nil
	a.overflow.Forget(id)
	a.free = append(a.free, id)
}

// Len returns the number of allocated slots, including reclaimed ones still
// pinned by a free slot (i.e. the arena's high-water mark).
func (a *NodeArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// EdgeArena is the edge-side analogue of NodeArena.
type EdgeArena struct {
	mu      sync.RWMutex
	records []graph.EdgeRecord
	props   []propertySet
	free    []graph.EdgeID
}

// NewEdgeArena creates an empty edge arena.
func NewEdgeArena() *EdgeArena { return &EdgeArena{} }

// Allocate reserves a new EdgeID, preferring a freed slot before growing.
func (a *EdgeArena) Allocate(epoch uint64) graph.EdgeID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.records[id] = graph.EdgeRecord{Id: id, CreatedEpoch: epoch}
		a.props[id] = nil
		return id
	}

	id := graph.EdgeID(len(a.records))
	a.records = append(a.records, graph.EdgeRecord{Id: id, CreatedEpoch: epoch})
	a.props = append(a.props, nil)
	return id
}

func (a *EdgeArena) Get(id graph.EdgeID) (graph.EdgeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.records)) {
		return graph.EdgeRecord{}, false
	}
	rec := a.records[id]
	if rec.Flags.Has(graph.FlagDeleted) {
		return graph.EdgeRecord{}, false
	}
	return rec, true
}

// GetRaw returns the stored record for id regardless of its deleted flag;
// see NodeArena.GetRaw.
func (a *EdgeArena) GetRaw(id graph.EdgeID) (graph.EdgeRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.records)) {
		return graph.EdgeRecord{}, false
	}
	return a.records[id], true
}

func (a *EdgeArena) Put(rec graph.EdgeRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(rec.Id) >= uint64(len(a.records)) {
		return gerrors.New(gerrors.KindNotFound, "edge id out of range")
	}
	a.records[rec.Id] = rec
	return nil
}

func (a *EdgeArena) Properties(id graph.EdgeID) (map[graph.PropertyKey]graph.Value, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if uint64(id) >= uint64(len(a.props)) {
		return nil, false
	}
	set := a.props[id]
	if set == nil {
		return map[graph.PropertyKey]graph.Value{}, true
	}
	out := make(map[graph.PropertyKey]graph.Value, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out, true
}

func (a *EdgeArena) SetProperty(id graph.EdgeID, key graph.PropertyKey, value graph.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(id) >= uint64(len(a.props)) {
		return gerrors.New(gerrors.KindNotFound, "edge id out of range")
	}
	if a.props[id] == nil {
		a.props[id] = make(propertySet)
	}
	if value.IsNull() {
		delete(a.props[id], key)
	} else {
		a.props[id][key] = value
	}
	a.records[id].PropCount = uint32(len(a.props[id]))
	return nil
}

func (a *EdgeArena) Free(id graph.EdgeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(id) >= uint64(len(a.records)) {
		return
	}
	a.records[id].Flags.Set(graph.FlagDeleted)
	a.props[id] = nil
	a.free = append(a.free, id)
}

func (a *EdgeArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}
