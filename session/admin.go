package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/storage"
	"github.com/grafeo-db/grafeo/txn"
)

// InfoResult is the `info()` admin operation's result (spec §4.7: "mode,
// counts, persistence state"), grounded on the teacher's DBStats
// (pkg/nornicdb/db.go) extended with the persistence fields a storage
// engine that isn't always backed by badger needs to report.
type InfoResult struct {
	Path          string `json:"path"`
	InMemory      bool   `json:"in_memory"`
	ReadOnly      bool   `json:"read_only"`
	NodeCount     int64  `json:"node_count"`
	EdgeCount     int64  `json:"edge_count"`
	SchemaVersion uint64 `json:"schema_version"`
	FormatVersion int    `json:"format_version"`
}

// Info reports mode, entity counts, and persistence state.
func (s *Session) Info() InfoResult {
	db := s.db
	return InfoResult{
		Path:          db.opts.Path,
		InMemory:      db.opts.Path == "",
		ReadOnly:      db.opts.ReadOnly,
		NodeCount:     int64(db.store.Nodes.Len()),
		EdgeCount:     int64(db.store.Edges.Len()),
		SchemaVersion: db.schema.Version(),
		FormatVersion: formatVersion,
	}
}

// DetailedStats is the `detailed_stats()` admin operation's result (spec
// §4.7: "memory use by arena, index sizes"), a breakdown the plain Info
// summary deliberately omits.
type DetailedStats struct {
	NodeArenaLen    int            `json:"node_arena_len"`
	EdgeArenaLen    int            `json:"edge_arena_len"`
	NodeArenaBytes  string         `json:"node_arena_bytes"`
	EdgeArenaBytes  string         `json:"edge_arena_bytes"`
	LabelCount      int            `json:"label_count"`
	EdgeTypeCount   int            `json:"edge_type_count"`
	PropertyKeys    int            `json:"property_key_count"`
	ConstraintCount int            `json:"constraint_count"`
	IndexSizes      map[string]int `json:"index_sizes"`
}

// approxNodeRecordBytes and approxEdgeRecordBytes are rough per-record
// sizes used only to render a human-readable magnitude in DetailedStats;
// they are not an accounting of actual allocator overhead.
const (
	approxNodeRecordBytes = 40
	approxEdgeRecordBytes = 48
)

// DetailedStats reports per-arena memory estimates and index cardinality.
func (s *Session) DetailedStats() DetailedStats {
	db := s.db
	nodeLen := db.store.Nodes.Len()
	edgeLen := db.store.Edges.Len()

	indexSizes := make(map[string]int)
	for _, def := range db.schema.Snapshot().Indexes {
		labelName, _ := db.catalog.LabelName(def.Label)
		count := 0
		for i := 0; i < nodeLen; i++ {
			rec, ok := db.store.Nodes.Get(graph.NodeID(i))
			if ok && rec.HasLabel(def.Label) {
				count++
			}
		}
		indexSizes[fmt.Sprintf("%s:%s", def.Name, labelName)] = count
	}

	return DetailedStats{
		NodeArenaLen:    nodeLen,
		EdgeArenaLen:    edgeLen,
		NodeArenaBytes:  humanize.Bytes(uint64(nodeLen * approxNodeRecordBytes)),
		EdgeArenaBytes:  humanize.Bytes(uint64(edgeLen * approxEdgeRecordBytes)),
		LabelCount:      db.catalog.LabelCount(),
		EdgeTypeCount:   db.catalog.EdgeTypeCount(),
		PropertyKeys:    db.catalog.PropertyKeyCount(),
		ConstraintCount: len(db.schema.Snapshot().Constraints),
		IndexSizes:      indexSizes,
	}
}

// SchemaInfo is the `schema()` admin operation's result (spec §4.7:
// "labels, edge-types, property keys").
type SchemaInfo struct {
	Labels       []string             `json:"labels"`
	EdgeTypes    []string             `json:"edge_types"`
	PropertyKeys []string             `json:"property_keys"`
	Constraints  []catalog.Constraint `json:"constraints"`
	Indexes      []catalog.IndexDef   `json:"indexes"`
}

// Schema reports the catalog's interned names plus every declared
// constraint and index.
func (s *Session) Schema() SchemaInfo {
	snap := s.db.schema.Snapshot()
	labels := s.db.catalog.LabelNames()
	edgeTypes := s.db.catalog.EdgeTypeNames()
	propKeys := s.db.catalog.PropertyKeyNames()
	sort.Strings(labels)
	sort.Strings(edgeTypes)
	sort.Strings(propKeys)
	return SchemaInfo{
		Labels:       labels,
		EdgeTypes:    edgeTypes,
		PropertyKeys: propKeys,
		Constraints:  snap.Constraints,
		Indexes:      snap.Indexes,
	}
}

// ValidationReport is the `validate()` admin operation's result: an
// integrity sweep over every live record, per spec §4.7 ("walks all live
// records and verifies invariants 1-5"). Only the invariants checkable by
// walking the live graph (I1, I2) are checked here; I5's conservativeness
// is the index package's own concern (see index/*_test.go). I3 is enforced
// at commit time by txn.Manager, not by a post-hoc sweep. I4 is a
// round-trip property — "replay from the latest checkpoint reproduces live
// state byte-for-byte" — that only a close-then-reopen test can observe;
// session.TestPersistentReopenRecoversCommittedNodes,
// TestCheckpointThenReopenReplaysOnlyPostCheckpointWrites and
// TestPersistentThousandNodeInsertSurvivesReopen (recovery_test.go) cover
// it end-to-end instead of duplicating it in this live sweep.
type ValidationReport struct {
	OK           bool     `json:"ok"`
	NodesChecked int      `json:"nodes_checked"`
	EdgesChecked int      `json:"edges_checked"`
	Violations   []string `json:"violations,omitempty"`
}

// Validate walks every live node and edge, checking:
//   - I1: every live edge's src and dst resolve to live nodes.
//   - I2: every outgoing adjacency entry has a matching incoming entry,
//     when backward edges are enabled.
// It never repairs what it finds (spec: "corruption detected during
// validate is reported, never silently healed").
func (s *Session) Validate() ValidationReport {
	db := s.db
	report := ValidationReport{OK: true}

	nodeLen := db.store.Nodes.Len()
	for i := 0; i < nodeLen; i++ {
		if _, ok := db.store.Nodes.Get(graph.NodeID(i)); ok {
			report.NodesChecked++
		}
	}

	edgeLen := db.store.Edges.Len()
	for i := 0; i < edgeLen; i++ {
		id := graph.EdgeID(i)
		rec, ok := db.store.Edges.Get(id)
		if !ok {
			continue
		}
		report.EdgesChecked++

		if _, ok := db.store.Nodes.Get(rec.Src); !ok {
			report.OK = false
			report.Violations = append(report.Violations,
				fmt.Sprintf("I1: edge %s references dead src node %s", id, rec.Src))
		}
		if _, ok := db.store.Nodes.Get(rec.Dst); !ok {
			report.OK = false
			report.Violations = append(report.Violations,
				fmt.Sprintf("I1: edge %s references dead dst node %s", id, rec.Dst))
		}

		if !db.opts.BackwardEdges {
			continue
		}
		found := false
		for _, entry := range db.store.Adjacency.Neighbors(rec.Dst, graph.Incoming) {
			if entry.Edge == id {
				found = true
				break
			}
		}
		if !found {
			report.OK = false
			report.Violations = append(report.Violations,
				fmt.Sprintf("I2: edge %s missing matching incoming adjacency entry at node %s", id, rec.Dst))
		}
	}

	return report
}

// WALStatus is the `wal_status()` admin operation's result.
type WALStatus struct {
	InMemory              bool   `json:"in_memory"`
	Sequence              uint64 `json:"sequence"`
	SyncMode              string `json:"sync_mode"`
	HasCheckpoint         bool   `json:"has_checkpoint"`
	LatestCheckpointEpoch uint64 `json:"latest_checkpoint_epoch"`
}

// WALStatus reports the write-ahead log's current sequence number and the
// most recent checkpoint watermark.
func (s *Session) WALStatus() (WALStatus, error) {
	db := s.db
	if db.wal == nil {
		return WALStatus{InMemory: true, SyncMode: string(db.opts.SyncMode)}, nil
	}
	epoch, has, err := db.checkpoint.LatestEpoch()
	if err != nil {
		return WALStatus{}, err
	}
	return WALStatus{
		Sequence:              db.wal.Sequence(),
		SyncMode:              string(db.opts.SyncMode),
		HasCheckpoint:         has,
		LatestCheckpointEpoch: epoch,
	}, nil
}

// WALCheckpoint forces an immediate checkpoint of the current store state,
// the `wal_checkpoint()` admin operation. It is a no-op returning
// Unsupported for an in-memory database, which has no WAL to checkpoint.
func (s *Session) WALCheckpoint() error {
	db := s.db
	if db.wal == nil || db.checkpoint == nil {
		return gerrors.New(gerrors.KindUnsupported, "wal_checkpoint requires a persistent database")
	}
	epoch := db.manager.CurrentEpoch()
	if err := db.checkpoint.Checkpoint(db.store, epoch); err != nil {
		return err
	}
	path := filepath.Join(db.opts.Path, metadataFileName)
	desc, err := readDescriptor(path)
	if err != nil {
		desc = descriptor{FormatVersion: formatVersion, Model: ModelLPG}
	}
	desc.LatestCheckpoint = epoch
	desc.SchemaVersion = db.schema.Version()
	return writeDescriptor(path, desc)
}

// Save writes the database's current live contents to path in the
// Neo4j-compatible interchange JSON format (storage/interchange.go), the
// `save(path)` admin operation (spec §4.7, property R2: "save(path) →
// open(path) preserves all visible entities and their properties").
func (s *Session) Save(path string) error {
	export := storage.ToExport(s.db.store, s.db.catalog)
	data, err := export.MarshalJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "write export file", err)
	}
	return nil
}

// ToMemory opens a fresh in-memory Database whose store is a deep copy of
// this session's database at its current committed epoch, the
// `to_memory()` admin operation — useful for taking a disposable working
// copy of a persistent database without touching its files. The returned
// Database owns its own worker pool and must be closed independently.
func (s *Session) ToMemory() (*Database, error) {
	epoch := s.db.manager.CurrentEpoch()
	raw, err := s.db.store.Snapshot(epoch)
	if err != nil {
		return nil, err
	}
	store, _, err := storage.Restore(raw)
	if err != nil {
		return nil, err
	}

	memOpts := *s.db.opts
	memOpts.Path = ""
	memOpts.ReadOnly = false

	mem := &Database{
		opts:    &memOpts,
		store:   store,
		catalog: s.db.catalog,
		schema:  s.db.schema,
		cache:   NewPlanCache(DefaultPlanCacheSize),
	}
	mem.manager = txn.NewManager(store, nil, mem.schema)
	mem.startPool()
	return mem, nil
}
