package txn

import (
	"sync"
	"sync/atomic"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/storage"
)

// opKind tags one buffered mutation inside an open Transaction. Mirrors the
// teacher's OperationType/Operation pairing (pkg/storage/transaction.go)
// but carries graph.* ids/values instead of whole Node/Edge pointers, since
// Grafeo's records are fixed-size and properties live in a separate map.
type opKind int

const (
	opCreateNode opKind = iota
	opDeleteNode
	opSetNodeProp
	opAddLabel
	opRemoveLabel
	opCreateEdge
	opDeleteEdge
	opSetEdgeProp
)

type bufferedOp struct {
	kind  opKind
	node  graph.NodeID
	edge  graph.EdgeID
	key   graph.PropertyKey
	value graph.Value
	label graph.LabelID
	etype graph.EdgeTypeID
	src   graph.NodeID
	dst   graph.NodeID
}

// Transaction is a single unit of work: operations are buffered here and
// only applied to the shared Store when Commit succeeds, matching the
// teacher's "buffer operations, apply atomically on commit" strategy
// (pkg/storage/transaction.go's doc comment) generalized to snapshot
// isolation instead of a single global lock held for the operation's
// lifetime.
type Transaction struct {
	mu       sync.Mutex
	id       uint64
	snapshot Snapshot
	status   Status
	ops      []bufferedOp
	newNodes map[graph.NodeID]struct{} // provisional, not yet real until commit
	newEdges map[graph.EdgeID]struct{}
	touchedN map[graph.NodeID]struct{}
	touchedE map[graph.EdgeID]struct{}
	metadata map[string]string
	mgr      *Manager
}

// Status is a transaction's lifecycle state.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

// ID returns the transaction's identifier, as logged in every WAL frame it
// produces.
func (tx *Transaction) ID() uint64 { return tx.id }

// Snapshot returns the read snapshot this transaction was pinned to at
// Begin, the epoch session.Session uses to stamp provisional node/edge
// allocations before a real commit epoch is assigned.
func (tx *Transaction) Snapshot() Snapshot { return tx.snapshot }

// SetMetadata attaches request-scoped metadata (e.g. application or user
// identity) to the transaction, readable through Metadata(); Commit does
// not log or persist it. Generalized from
// the teacher's `Transaction.SetMetadata` (Neo4j's `tx.setMetaData()`
// equivalent).
func (tx *Transaction) SetMetadata(key, value string) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.metadata == nil {
		tx.metadata = make(map[string]string)
	}
	tx.metadata[key] = value
}

// Metadata returns a copy of the transaction's metadata map.
func (tx *Transaction) Metadata() map[string]string {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make(map[string]string, len(tx.metadata))
	for k, v := range tx.metadata {
		out[k] = v
	}
	return out
}

func (tx *Transaction) mustBeActive() error {
	if tx.status != StatusActive {
		return gerrors.TransactionAborted.WithHint("transaction already committed or rolled back")
	}
	return nil
}

// CreateNode reserves a new NodeID, provisionally invisible to every other
// transaction until this one commits.
func (tx *Transaction) CreateNode(epoch uint64) (graph.NodeID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return 0, err
	}
	id := tx.mgr.store.Nodes.Allocate(epoch)
	rec, _ := tx.mgr.store.Nodes.GetRaw(id)
	rec.Flags.Set(graph.FlagDeleted) // provisional: hidden until commit
	_ = tx.mgr.store.Nodes.Put(rec)

	tx.newNodes[id] = struct{}{}
	tx.touchedN[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opCreateNode, node: id})
	return id, nil
}

// DeleteNode buffers a delete of an existing node.
func (tx *Transaction) DeleteNode(id graph.NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedN[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opDeleteNode, node: id})
	return nil
}

// SetNodeProperty buffers a property assignment (or removal, via a null
// value) on an existing or just-created node.
func (tx *Transaction) SetNodeProperty(id graph.NodeID, key graph.PropertyKey, value graph.Value) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedN[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opSetNodeProp, node: id, key: key, value: value})
	return nil
}

// AddLabel buffers adding lbl to an existing or just-created node.
func (tx *Transaction) AddLabel(id graph.NodeID, lbl graph.LabelID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedN[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opAddLabel, node: id, label: lbl})
	return nil
}

// RemoveLabel buffers removing lbl from a node.
func (tx *Transaction) RemoveLabel(id graph.NodeID, lbl graph.LabelID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedN[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opRemoveLabel, node: id, label: lbl})
	return nil
}

// CreateEdge reserves a new EdgeID between src and dst, provisionally
// invisible until commit.
func (tx *Transaction) CreateEdge(epoch uint64, etype graph.EdgeTypeID, src, dst graph.NodeID) (graph.EdgeID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return 0, err
	}
	id := tx.mgr.store.Edges.Allocate(epoch)
	rec, _ := tx.mgr.store.Edges.GetRaw(id)
	rec.Flags.Set(graph.FlagDeleted)
	_ = tx.mgr.store.Edges.Put(rec)

	tx.newEdges[id] = struct{}{}
	tx.touchedE[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opCreateEdge, edge: id, etype: etype, src: src, dst: dst})
	return id, nil
}

// DeleteEdge buffers a delete of an existing edge.
func (tx *Transaction) DeleteEdge(id graph.EdgeID, src, dst graph.NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedE[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opDeleteEdge, edge: id, src: src, dst: dst})
	return nil
}

// SetEdgeProperty buffers a property assignment on an edge.
func (tx *Transaction) SetEdgeProperty(id graph.EdgeID, key graph.PropertyKey, value graph.Value) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.touchedE[id] = struct{}{}
	tx.ops = append(tx.ops, bufferedOp{kind: opSetEdgeProp, edge: id, key: key, value: value})
	return nil
}

// Manager owns the shared physical Store, the epoch counter and snapshot
// registry, and the single commit latch every transaction serializes
// through at commit time — the same shape as the teacher's
// `engine.mu.Lock()` around `Transaction.Commit`
// (pkg/storage/transaction.go), generalized into a proper 6-step MVCC
// commit protocol (spec §4.1).
type Manager struct {
	commitMu sync.Mutex

	epochs    *EpochCounter
	snapshots *SnapshotRegistry
	store     *storage.Store
	wal       *storage.WAL
	schema    *catalog.SchemaManager
	nodeChains *ChainTable
	edgeChains *ChainTable

	nodeHeadEpoch map[graph.NodeID]uint64
	edgeHeadEpoch map[graph.EdgeID]uint64

	nextTxID atomic.Uint64
}

// NewManager wires a transaction manager over store, optionally logging to
// wal (nil disables durability, e.g. for pure in-memory sessions) and
// enforcing schema constraints via schemaMgr (nil disables constraint
// checking).
func NewManager(store *storage.Store, wal *storage.WAL, schemaMgr *catalog.SchemaManager) *Manager {
	return &Manager{
		epochs:        NewEpochCounter(),
		snapshots:     NewSnapshotRegistry(),
		store:         store,
		wal:           wal,
		schema:        schemaMgr,
		nodeChains:    NewChainTable(),
		edgeChains:    NewChainTable(),
		nodeHeadEpoch: make(map[graph.NodeID]uint64),
		edgeHeadEpoch: make(map[graph.EdgeID]uint64),
	}
}

// GC returns a GC sweep bound to this manager's bookkeeping.
func (m *Manager) GC() *GC {
	return NewGC(m.snapshots, m.nodeChains, m.edgeChains, m.epochs)
}

// CurrentEpoch returns the most recently committed epoch (0 before any
// commit). session/admin.go's wal_checkpoint() and to_memory() use it to
// stamp the snapshot they take, so recovery replays only later commits.
func (m *Manager) CurrentEpoch() uint64 { return m.epochs.Current() - 1 }

// Begin opens a new transaction pinned at the most recently committed
// epoch, so it observes a consistent snapshot unaffected by later commits
// (spec §4.1 snapshot isolation).
func (m *Manager) Begin() *Transaction {
	current := m.epochs.Current()
	readEpoch := uint64(0)
	if current > 0 {
		readEpoch = current - 1
	}
	snap := m.snapshots.Open(readEpoch)

	return &Transaction{
		id:       m.nextTxID.Add(1),
		snapshot: snap,
		status:   StatusActive,
		newNodes: make(map[graph.NodeID]struct{}),
		newEdges: make(map[graph.EdgeID]struct{}),
		touchedN: make(map[graph.NodeID]struct{}),
		touchedE: make(map[graph.EdgeID]struct{}),
		mgr:      m,
	}
}

// Abort discards every buffered operation. Provisional node/edge
// allocations stay permanently tombstoned in the arena — ids are never
// reused while any snapshot could still reference the epoch they were
// allocated at (spec §3) — matching the teacher's Rollback, which simply
// discards the pending buffer (pkg/storage/transaction.go).
func (m *Manager) Abort(tx *Transaction) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}
	tx.status = StatusAborted
	m.snapshots.Close(tx.snapshot)

	if m.wal != nil {
		_, _ = m.wal.Append(storage.RecAbort, tx.id, nil)
	}
	return nil
}

// Commit validates the transaction's write set against the current
// version-chain heads, and if no conflict is found, allocates a commit
// epoch, applies every buffered operation to the Store, logs each op plus
// a Commit frame to the WAL, and publishes new chain versions — the spec
// §4.1 six-step protocol, serialized through Manager's single commit latch
// exactly as the teacher serializes Commit through `engine.mu`.
func (m *Manager) Commit(tx *Transaction) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.mustBeActive(); err != nil {
		return err
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	// Step 1: write-write conflict detection. A node/edge this transaction
	// touched (but did not itself create) must not have been committed
	// again since this transaction's snapshot was taken.
	for id := range tx.touchedN {
		if _, created := tx.newNodes[id]; created {
			continue
		}
		if head, ok := m.nodeHeadEpoch[id]; ok && head > tx.snapshot.Epoch {
			m.snapshots.Close(tx.snapshot)
			tx.status = StatusAborted
			return gerrors.WriteConflict.WithHint("node modified by another transaction since this one began")
		}
	}
	for id := range tx.touchedE {
		if _, created := tx.newEdges[id]; created {
			continue
		}
		if head, ok := m.edgeHeadEpoch[id]; ok && head > tx.snapshot.Epoch {
			m.snapshots.Close(tx.snapshot)
			tx.status = StatusAborted
			return gerrors.WriteConflict.WithHint("edge modified by another transaction since this one began")
		}
	}

	// Step 2: schema constraint validation, before any durable write lands.
	if m.schema != nil {
		if err := m.validateConstraints(tx); err != nil {
			m.snapshots.Close(tx.snapshot)
			tx.status = StatusAborted
			return err
		}
	}

	// Step 3: allocate the commit epoch.
	commitEpoch := m.epochs.Advance()

	// Step 4: apply buffered ops to the Store and log each to the WAL.
	if err := m.applyAndLog(tx, commitEpoch); err != nil {
		tx.status = StatusAborted
		m.snapshots.Close(tx.snapshot)
		return err
	}

	// Step 5: publish version-chain heads.
	m.publishVersions(tx, commitEpoch)

	// Step 6: log the Commit frame and release.
	if m.wal != nil {
		payload, err := storage.EncodeOp(storage.OpCommit{Epoch: commitEpoch})
		if err != nil {
			return err
		}
		if _, err := m.wal.Append(storage.RecCommit, tx.id, payload); err != nil {
			return err
		}
	}

	tx.status = StatusCommitted
	m.snapshots.Close(tx.snapshot)
	return nil
}

// validateConstraints checks every buffered property write against any
// UNIQUE constraint declared on a label the touched node carries, including
// labels this same transaction is in the process of attaching (spec §9
// schema layer, enforced "inside txn.Manager's commit validation"). It reads
// via GetRaw, since a newly created node's record is still marked
// provisional (deleted) at this point in the commit sequence.
func (m *Manager) validateConstraints(tx *Transaction) error {
	labelOverrides := make(map[graph.NodeID]map[graph.LabelID]bool)
	for _, op := range tx.ops {
		switch op.kind {
		case opAddLabel:
			overrides, ok := labelOverrides[op.node]
			if !ok {
				overrides = make(map[graph.LabelID]bool)
				labelOverrides[op.node] = overrides
			}
			overrides[op.label] = true
		case opRemoveLabel:
			overrides, ok := labelOverrides[op.node]
			if !ok {
				overrides = make(map[graph.LabelID]bool)
				labelOverrides[op.node] = overrides
			}
			overrides[op.label] = false
		}
	}

	hasLabel := func(id graph.NodeID, rec graph.NodeRecord, l graph.LabelID) bool {
		if overrides, ok := labelOverrides[id]; ok {
			if v, ok := overrides[l]; ok {
				return v
			}
		}
		return rec.HasLabel(l)
	}

	for _, op := range tx.ops {
		if op.kind != opSetNodeProp {
			continue
		}
		rec, ok := m.store.Nodes.GetRaw(op.node)
		if !ok {
			continue
		}
		for l := graph.LabelID(0); l < graph.MaxInlineLabels; l++ {
			if !hasLabel(op.node, rec, l) {
				continue
			}
			for _, c := range m.schema.ConstraintsFor(l) {
				if c.Kind != catalog.ConstraintUnique || c.Property != op.key {
					continue
				}
				if err := m.schema.CheckUnique(c.Name, op.value, op.node); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// applyAndLog mutates the Store per tx.ops, assigning commitEpoch to every
// newly created node/edge, and writes the corresponding WAL frame for each
// op (when m.wal is non-nil).
func (m *Manager) applyAndLog(tx *Transaction, commitEpoch uint64) error {
	for _, op := range tx.ops {
		switch op.kind {
		case opCreateNode:
			rec, _ := m.store.Nodes.GetRaw(op.node)
			rec.Flags.Clear(graph.FlagDeleted)
			rec.CreatedEpoch = commitEpoch
			if err := m.store.Nodes.Put(rec); err != nil {
				return err
			}
			if err := m.logOp(tx.id, storage.RecCreateNode, storage.OpCreateNode{ID: op.node, Epoch: commitEpoch}); err != nil {
				return err
			}
		case opDeleteNode:
			m.store.Nodes.Free(op.node)
			if err := m.logOp(tx.id, storage.RecDeleteNode, storage.OpDeleteNode{ID: op.node}); err != nil {
				return err
			}
		case opSetNodeProp:
			if err := m.store.Nodes.SetProperty(op.node, op.key, op.value); err != nil {
				return err
			}
			m.registerUniqueForNode(op.node, op.key, op.value)
			if err := m.logOp(tx.id, storage.RecSetProperty, storage.OpSetProperty{Owner: uint64(op.node), Key: op.key, Value: op.value}); err != nil {
				return err
			}
		case opAddLabel:
			applyLabel(m.store, op.node, op.label, true)
			if err := m.logOp(tx.id, storage.RecAddLabel, storage.OpAddLabel{Node: op.node, Label: op.label}); err != nil {
				return err
			}
		case opRemoveLabel:
			applyLabel(m.store, op.node, op.label, false)
			if err := m.logOp(tx.id, storage.RecRemoveLabel, storage.OpRemoveLabel{Node: op.node, Label: op.label}); err != nil {
				return err
			}
		case opCreateEdge:
			rec, _ := m.store.Edges.GetRaw(op.edge)
			rec.Flags.Clear(graph.FlagDeleted)
			rec.Type, rec.Src, rec.Dst = op.etype, op.src, op.dst
			rec.CreatedEpoch = commitEpoch
			if err := m.store.Edges.Put(rec); err != nil {
				return err
			}
			m.store.Adjacency.AddEdge(op.edge, op.src, op.dst)
			if err := m.logOp(tx.id, storage.RecCreateEdge, storage.OpCreateEdge{ID: op.edge, Type: op.etype, Src: op.src, Dst: op.dst, Epoch: commitEpoch}); err != nil {
				return err
			}
		case opDeleteEdge:
			m.store.Edges.Free(op.edge)
			m.store.Adjacency.RemoveEdge(op.edge, op.src, op.dst)
			if err := m.logOp(tx.id, storage.RecDeleteEdge, storage.OpDeleteEdge{ID: op.edge, Src: op.src, Dst: op.dst}); err != nil {
				return err
			}
		case opSetEdgeProp:
			if err := m.store.Edges.SetProperty(op.edge, op.key, op.value); err != nil {
				return err
			}
			if err := m.logOp(tx.id, storage.RecSetProperty, storage.OpSetProperty{IsEdge: true, Owner: uint64(op.edge), Key: op.key, Value: op.value}); err != nil {
				return err
			}
		}
	}
	return nil
}

// registerUniqueForNode records nodeID's ownership of value under every
// UNIQUE constraint scoped to a label nodeID currently carries and to key,
// so the next transaction's validateConstraints sees this write. A no-op
// when schema tracking is disabled.
func (m *Manager) registerUniqueForNode(nodeID graph.NodeID, key graph.PropertyKey, value graph.Value) {
	if m.schema == nil {
		return
	}
	rec, ok := m.store.Nodes.GetRaw(nodeID)
	if !ok {
		return
	}
	for l := graph.LabelID(0); l < graph.MaxInlineLabels; l++ {
		if !rec.HasLabel(l) {
			continue
		}
		for _, c := range m.schema.ConstraintsFor(l) {
			if c.Kind == catalog.ConstraintUnique && c.Property == key {
				m.schema.RegisterUnique(c.Name, value, nodeID)
			}
		}
	}
}

func (m *Manager) logOp(txID uint64, typ storage.RecordType, op interface{}) error {
	if m.wal == nil {
		return nil
	}
	payload, err := storage.EncodeOp(op)
	if err != nil {
		return err
	}
	_, err = m.wal.Append(typ, txID, payload)
	return err
}

// publishVersions pushes a new Chain head for every touched node/edge and
// advances the head-epoch bookkeeping Commit's conflict check reads.
func (m *Manager) publishVersions(tx *Transaction, commitEpoch uint64) {
	for id := range tx.touchedN {
		rec, ok := m.store.Nodes.Get(id)
		props, _ := m.store.Nodes.Properties(id)
		m.nodeChains.Chain(uint64(id)).Push(Version{
			Epoch:     commitEpoch,
			Record:    rec,
			Props:     props,
			Tombstone: !ok,
		})
		m.nodeHeadEpoch[id] = commitEpoch
	}
	for id := range tx.touchedE {
		rec, ok := m.store.Edges.Get(id)
		props, _ := m.store.Edges.Properties(id)
		m.edgeChains.Chain(uint64(id)).Push(Version{
			Epoch:     commitEpoch,
			Record:    rec,
			Props:     props,
			Tombstone: !ok,
		})
		m.edgeHeadEpoch[id] = commitEpoch
	}
}

// applyLabel mirrors storage.applyLabel but lives here since Manager is the
// only caller that needs to mutate labels outside of WAL replay.
func applyLabel(store *storage.Store, id graph.NodeID, label graph.LabelID, set bool) {
	rec, ok := store.Nodes.GetRaw(id)
	if !ok {
		return
	}
	if label < graph.MaxInlineLabels {
		if set {
			rec.SetLabel(label)
		} else {
			rec.ClearLabel(label)
		}
	} else {
		if set {
			rec.Flags.Set(graph.FlagHasOverflowLabels)
			store.Nodes.Overflow().Add(id, label)
		} else {
			store.Nodes.Overflow().Remove(id, label)
		}
	}
	_ = store.Nodes.Put(rec)
}

// ReadNode resolves id as visible at snap: the current arena record if it
// was last modified at or before snap.Epoch, otherwise the matching entry
// from its version chain. Used by exec's Scan/Expand operators so a running
// query never observes a commit that happened after it took its snapshot
// (spec §4.1, §4.5).
func (m *Manager) ReadNode(id graph.NodeID, snap Snapshot) (graph.NodeRecord, map[graph.PropertyKey]graph.Value, bool) {
	if head, ok := m.nodeHeadEpoch[id]; !ok || head <= snap.Epoch {
		rec, ok := m.store.Nodes.Get(id)
		if !ok {
			return graph.NodeRecord{}, nil, false
		}
		props, _ := m.store.Nodes.Properties(id)
		return rec, props, true
	}
	v, ok := m.nodeChains.Chain(uint64(id)).At(snap.Epoch)
	if !ok || v.Tombstone {
		return graph.NodeRecord{}, nil, false
	}
	return v.Record.(graph.NodeRecord), v.Props, true
}

// ReadEdge is ReadNode's edge-side counterpart.
func (m *Manager) ReadEdge(id graph.EdgeID, snap Snapshot) (graph.EdgeRecord, map[graph.PropertyKey]graph.Value, bool) {
	if head, ok := m.edgeHeadEpoch[id]; !ok || head <= snap.Epoch {
		rec, ok := m.store.Edges.Get(id)
		if !ok {
			return graph.EdgeRecord{}, nil, false
		}
		props, _ := m.store.Edges.Properties(id)
		return rec, props, true
	}
	v, ok := m.edgeChains.Chain(uint64(id)).At(snap.Epoch)
	if !ok || v.Tombstone {
		return graph.EdgeRecord{}, nil, false
	}
	return v.Record.(graph.EdgeRecord), v.Props, true
}

// NodeCount and EdgeCount return the arena high-water marks, used by exec's
// Scan operator to bound its iteration.
func (m *Manager) NodeCount() int { return m.store.Nodes.Len() }
func (m *Manager) EdgeCount() int { return m.store.Edges.Len() }

// Neighbors exposes the adjacency index for exec's Expand operator.
func (m *Manager) Neighbors(id graph.NodeID, dir graph.Direction) []storage.AdjacencyEntry {
	return m.store.Adjacency.Neighbors(id, dir)
}
