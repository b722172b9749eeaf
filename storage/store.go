package storage

import (
	"bytes"
	"encoding/gob"

	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// Store bundles the in-memory physical layer a single Grafeo database
// instance owns: node and edge arenas plus the adjacency index built over
// them. Session and txn.Manager operate on a shared *Store; checkpoint.go
// and recovery.go serialize and restore it wholesale.
type Store struct {
	Nodes      *NodeArena
	Edges      *EdgeArena
	Adjacency  *AdjacencyIndex
}

// NewStore creates an empty physical store.
func NewStore() *Store {
	return &Store{
		Nodes:     NewNodeArena(),
		Edges:     NewEdgeArena(),
		Adjacency: NewAdjacencyIndex(),
	}
}

// snapshotDTO is the gob-serializable projection of a Store used for
// checkpoint snapshots. Kept separate from the live Store so arena
// internals (mutexes, freelists) never leak into the on-disk format.
type snapshotDTO struct {
	Epoch      uint64
	Nodes      []nodeDTO
	Edges      []edgeDTO
	Overflow   map[graph.NodeID][]graph.LabelID
}

type nodeDTO struct {
	Rec   graph.NodeRecord
	Props map[graph.PropertyKey]graph.Value
}

type edgeDTO struct {
	Rec   graph.EdgeRecord
	Props map[graph.PropertyKey]graph.Value
}

// Snapshot renders the store's current state at epoch into a gob-encoded
// byte slice, ready for compression and atomic write by
// CheckpointCoordinator (spec §4.2: "flushes a consistent snapshot of the
// storage substrate to disk").
func (s *Store) Snapshot(epoch uint64) ([]byte, error) {
	dto := snapshotDTO{
		Epoch:    epoch,
		Overflow: make(map[graph.NodeID][]graph.LabelID),
	}

	n := s.Nodes.Len()
	for i := 0; i < n; i++ {
		id := graph.NodeID(i)
		rec, ok := s.Nodes.Get(id)
		if !ok {
			continue
		}
		props, _ := s.Nodes.Properties(id)
		dto.Nodes = append(dto.Nodes, nodeDTO{Rec: rec, Props: props})
		if rec.Flags.Has(graph.FlagHasOverflowLabels) {
			if labels := s.Nodes.Overflow().Labels(id); len(labels) > 0 {
				dto.Overflow[id] = labels
			}
		}
	}

	m := s.Edges.Len()
	for i := 0; i < m; i++ {
		id := graph.EdgeID(i)
		rec, ok := s.Edges.Get(id)
		if !ok {
			continue
		}
		props, _ := s.Edges.Properties(id)
		dto.Edges = append(dto.Edges, edgeDTO{Rec: rec, Props: props})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&dto); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "encode snapshot", err)
	}
	return buf.Bytes(), nil
}

// Restore builds a new Store from the state encoded in data, rebuilding
// arenas and adjacency lists from scratch, and returns it with the
// snapshot's epoch. Used by recovery.go after loading the most recent
// checkpoint file.
func Restore(data []byte) (*Store, uint64, error) {
	var dto snapshotDTO
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&dto); err != nil {
		return nil, 0, gerrors.Wrap(gerrors.KindCorruption, "decode snapshot", err)
	}

	s := NewStore()
	for _, nd := range dto.Nodes {
		for s.Nodes.Len() <= int(nd.Rec.Id) {
			s.Nodes.Allocate(nd.Rec.CreatedEpoch)
		}
		if err := s.Nodes.Put(nd.Rec); err != nil {
			return nil, 0, err
		}
		for k, v := range nd.Props {
			if err := s.Nodes.SetProperty(nd.Rec.Id, k, v); err != nil {
				return nil, 0, err
			}
		}
	}
	for id, labels := range dto.Overflow {
		for _, l := range labels {
			s.Nodes.Overflow().Add(id, l)
		}
	}

	for _, ed := range dto.Edges {
		for s.Edges.Len() <= int(ed.Rec.Id) {
			s.Edges.Allocate(ed.Rec.CreatedEpoch)
		}
		if err := s.Edges.Put(ed.Rec); err != nil {
			return nil, 0, err
		}
		for k, v := range ed.Props {
			if err := s.Edges.SetProperty(ed.Rec.Id, k, v); err != nil {
				return nil, 0, err
			}
		}
		if ed.Rec.IsLive() {
			s.Adjacency.AddEdge(ed.Rec.Id, ed.Rec.Src, ed.Rec.Dst)
		}
	}

	return s, dto.Epoch, nil
}
