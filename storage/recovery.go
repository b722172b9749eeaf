package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// The Op* types are the payload shapes WAL frames carry for each
// RecordType (spec §6's record-type list). txn.Manager encodes one of
// these per mutation before calling WAL.Append; Recover decodes and
// replays them in the same order they were written.
type OpCreateNode struct {
	ID    graph.NodeID
	Epoch uint64
}

type OpDeleteNode struct {
	ID graph.NodeID
}

type OpCreateEdge struct {
	ID    graph.EdgeID
	Type  graph.EdgeTypeID
	Src   graph.NodeID
	Dst   graph.NodeID
	Epoch uint64
}

type OpDeleteEdge struct {
	ID  graph.EdgeID
	Src graph.NodeID
	Dst graph.NodeID
}

type OpSetProperty struct {
	IsEdge bool
	Owner  uint64
	Key    graph.PropertyKey
	Value  graph.Value
}

type OpRemoveProperty struct {
	IsEdge bool
	Owner  uint64
	Key    graph.PropertyKey
}

type OpAddLabel struct {
	Node  graph.NodeID
	Label graph.LabelID
}

type OpRemoveLabel struct {
	Node  graph.NodeID
	Label graph.LabelID
}

// OpCommit payload marks the boundary of a durable transaction; only ops
// buffered under the same tx_id as a Commit frame are ever replayed (spec
// §6 recovery contract: "replay only CRC-valid Commit-backed transactions").
type OpCommit struct {
	Epoch uint64
}

func EncodeOp(op interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&op); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "encode wal op", err)
	}
	return buf.Bytes(), nil
}

func decodeOp(payload []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(out); err != nil {
		return gerrors.Wrap(gerrors.KindCorruption, "decode wal op", err)
	}
	return nil
}

func init() {
	gob.Register(OpCreateNode{})
	gob.Register(OpDeleteNode{})
	gob.Register(OpCreateEdge{})
	gob.Register(OpDeleteEdge{})
	gob.Register(OpSetProperty{})
	gob.Register(OpRemoveProperty{})
	gob.Register(OpAddLabel{})
	gob.Register(OpRemoveLabel{})
	gob.Register(OpCommit{})
}

// pendingTx buffers a transaction's ops until either a Commit or Abort frame
// resolves it, or the log ends without either (treated as abort).
type pendingTx struct {
	records []Record
}

// Recover rebuilds a *Store by loading the most recent checkpoint (if any)
// via coord, then replaying every WAL frame after that checkpoint's
// sequence, applying only the ops of transactions whose Commit frame was
// itself CRC-valid (spec §4.2 "deterministic recovery", I4). Replay stops
// at the first torn frame per storage.ReadAll's contract; frames after a
// corrupt-but-complete frame are never reached because ReadAll already
// returned an error there, which Recover propagates.
func Recover(dir string, coord *CheckpointCoordinator) (*Store, uint64, error) {
	var (
		store     *Store
		baseEpoch uint64
	)

	if epoch, ok, err := coord.LatestEpoch(); err != nil {
		return nil, 0, err
	} else if ok {
		store, err = coord.Load(epoch)
		if err != nil {
			return nil, 0, err
		}
		baseEpoch = epoch
	} else {
		store = NewStore()
	}

	pending := make(map[uint64]*pendingTx)
	var maxEpoch uint64 = baseEpoch

	err := ReadAll(dir, func(rec Record) error {
		switch rec.Type {
		case RecCheckpoint:
			return nil
		case RecCommit:
			var commit OpCommit
			if err := decodeOp(rec.Payload, &commit); err != nil {
				return err
			}
			tx := pending[rec.TxID]
			delete(pending, rec.TxID)
			if tx == nil {
				return nil
			}
			if commit.Epoch <= baseEpoch {
				return nil // already reflected in the loaded checkpoint
			}
			if commit.Epoch > maxEpoch {
				maxEpoch = commit.Epoch
			}
			return applyOps(store, tx.records)
		case RecAbort:
			delete(pending, rec.TxID)
			return nil
		default:
			tx := pending[rec.TxID]
			if tx == nil {
				tx = &pendingTx{}
				pending[rec.TxID] = tx
			}
			tx.records = append(tx.records, rec)
			return nil
		}
	})
	if err != nil {
		return nil, 0, err
	}

	return store, maxEpoch, nil
}

// applyOps replays one committed transaction's buffered ops against store,
// in the order they were originally written.
func applyOps(store *Store, records []Record) error {
	for _, rec := range records {
		switch rec.Type {
		case RecCreateNode:
			var op OpCreateNode
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			for store.Nodes.Len() <= int(op.ID) {
				store.Nodes.Allocate(op.Epoch)
			}
		case RecDeleteNode:
			var op OpDeleteNode
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			store.Nodes.Free(op.ID)
		case RecCreateEdge:
			var op OpCreateEdge
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			for store.Edges.Len() <= int(op.ID) {
				store.Edges.Allocate(op.Epoch)
			}
			rec2, _ := store.Edges.Get(op.ID)
			rec2.Type, rec2.Src, rec2.Dst = op.Type, op.Src, op.Dst
			if err := store.Edges.Put(rec2); err != nil {
				return err
			}
			store.Adjacency.AddEdge(op.ID, op.Src, op.Dst)
		case RecDeleteEdge:
			var op OpDeleteEdge
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			store.Edges.Free(op.ID)
			store.Adjacency.RemoveEdge(op.ID, op.Src, op.Dst)
		case RecSetProperty:
			var op OpSetProperty
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			if op.IsEdge {
				if err := store.Edges.SetProperty(graph.EdgeID(op.Owner), op.Key, op.Value); err != nil {
					return err
				}
			} else {
				if err := store.Nodes.SetProperty(graph.NodeID(op.Owner), op.Key, op.Value); err != nil {
					return err
				}
			}
		case RecRemoveProperty:
			var op OpRemoveProperty
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			if op.IsEdge {
				if err := store.Edges.SetProperty(graph.EdgeID(op.Owner), op.Key, graph.Null); err != nil {
					return err
				}
			} else {
				if err := store.Nodes.SetProperty(graph.NodeID(op.Owner), op.Key, graph.Null); err != nil {
					return err
				}
			}
		case RecAddLabel:
			var op OpAddLabel
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			applyLabel(store, op.Node, op.Label, true)
		case RecRemoveLabel:
			var op OpRemoveLabel
			if err := decodeOp(rec.Payload, &op); err != nil {
				return err
			}
			applyLabel(store, op.Node, op.Label, false)
		}
	}
	return nil
}

func applyLabel(store *Store, id graph.NodeID, label graph.LabelID, set bool) {
	rec, ok := store.Nodes.Get(id)
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
