// Package session provides Grafeo's embedding API: the Database/Session
// facade that owns a single database instance's storage, catalog, and
// transaction manager, and drives query execution and direct mutation
// through them.
//
// This mirrors the teacher's pkg/nornicdb.DB (Open/Close plus a flat method
// set for every operation) generalized onto Grafeo's arena+MVCC storage
// model instead of the teacher's pluggable storage.Engine, and onto
// explicit Begin/Commit/Rollback transactions instead of auto-committing
// every call.
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/config"
	"github.com/grafeo-db/grafeo/exec"
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/optimizer"
	"github.com/grafeo-db/grafeo/plan"
	"github.com/grafeo-db/grafeo/storage"
	"github.com/grafeo-db/grafeo/txn"
)

// metadataFileName is the database descriptor spec §6 names
// ("P/metadata — database descriptor: {format-version, model, ...}").
const metadataFileName = "metadata"

// formatVersion is bumped whenever the on-disk layout changes
// incompatibly.
const formatVersion = 1

// Model names the graph model a database was opened under. Grafeo's core
// only implements LPG; RDF is an external adapter per spec §1's scope note,
// but the descriptor still carries the field so a future adapter can assert
// it opened the right kind of store.
type Model string

const (
	ModelLPG Model = "LPG"
	ModelRDF Model = "RDF"
)

// descriptor is the JSON-encoded contents of P/metadata. encoding/json
// rather than encoding/gob here (unlike the checkpoint snapshot format)
// because the descriptor is meant to be human-inspectable by the admin CLI
// and external tooling without decoding through Go-specific gob streams.
type descriptor struct {
	FormatVersion   int      `json:"format_version"`
	Model           Model    `json:"model"`
	LatestCheckpoint uint64  `json:"latest_checkpoint_epoch"`
	SchemaVersion   uint64   `json:"schema_version"`
	Features        []string `json:"feature_flags,omitempty"`
}

// Database owns one Grafeo instance's physical and transactional state. A
// Database is safe for concurrent use by multiple Sessions, matching the
// teacher's DB (pkg/nornicdb/db.go), which is itself shared across
// concurrently-serving goroutines.
type Database struct {
	opts *config.Options

	store      *storage.Store
	catalog    *catalog.Catalog
	schema     *catalog.SchemaManager
	wal        *storage.WAL
	checkpoint *storage.CheckpointCoordinator
	manager    *txn.Manager
	cache      *PlanCache

	poolMu sync.Mutex
	pool   *exec.WorkerPool
	poolCt context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// Open creates or reopens a database per opts. opts.Path == "" opens a pure
// in-memory instance with no WAL and no checkpoint coordinator, matching
// spec §6 ("path — persistent if set, in-memory if absent").
func Open(opts *config.Options) (*Database, error) {
	if opts == nil {
		opts = config.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	db := &Database{
		opts:    opts,
		catalog: catalog.New(),
		schema:  catalog.NewSchemaManager(),
		cache:   NewPlanCache(DefaultPlanCacheSize),
	}

	if opts.Path == "" {
		db.store = storage.NewStore()
		db.manager = txn.NewManager(db.store, nil, db.schema)
		db.startPool()
		return db, nil
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "create database directory", err)
	}

	walDir := filepath.Join(opts.Path, "wal")
	mode := storageSyncMode(opts.SyncMode)
	wal, err := storage.Open(walDir, mode)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "open WAL", err)
	}

	coord, err := storage.NewCheckpointCoordinator(opts.Path, wal)
	if err != nil {
		wal.Close()
		return nil, err
	}

	store, epoch, err := storage.Recover(walDir, coord)
	if err != nil {
		wal.Close()
		return nil, gerrors.Wrap(gerrors.KindCorruption, "recover database", err)
	}

	if err := db.writeDescriptorIfMissing(opts.Path, epoch); err != nil {
		wal.Close()
		return nil, err
	}

	db.store = store
	db.wal = wal
	db.checkpoint = coord
	if opts.ReadOnly {
		db.manager = txn.NewManager(db.store, nil, db.schema)
	} else {
		db.manager = txn.NewManager(db.store, wal, db.schema)
	}
	db.startPool()
	return db, nil
}

func (db *Database) startPool() {
	ctx, cancel := context.WithCancel(context.Background())
	db.poolCt, db.cancel = ctx, cancel
	db.pool = exec.NewWorkerPool(ctx, db.opts.Threads)
}

// writeDescriptorIfMissing creates P/metadata on first open; subsequent
// opens leave the existing descriptor untouched beyond what save()/
// checkpointing update explicitly.
func (db *Database) writeDescriptorIfMissing(dir string, latestCheckpoint uint64) error {
	path := filepath.Join(dir, metadataFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	desc := descriptor{FormatVersion: formatVersion, Model: ModelLPG, LatestCheckpoint: latestCheckpoint}
	return writeDescriptor(path, desc)
}

func writeDescriptor(path string, desc descriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return gerrors.Wrap(gerrors.KindIO, "encode metadata descriptor", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return gerrors.Wrap(gerrors.KindIO, "write metadata descriptor", err)
	}
	return nil
}

func readDescriptor(path string) (descriptor, error) {
	var desc descriptor
	data, err := os.ReadFile(path)
	if err != nil {
		return desc, gerrors.Wrap(gerrors.KindIO, "read metadata descriptor", err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, gerrors.Wrap(gerrors.KindCorruption, "parse metadata descriptor", err)
	}
	return desc, nil
}

func storageSyncMode(m config.SyncMode) storage.SyncMode {
	switch m {
	case config.SyncNormal:
		return storage.SyncNormal
	case config.SyncOff:
		return storage.SyncOff
	default:
		return storage.SyncFull
	}
}

// Close releases the worker pool and, for a persistent database, flushes
// and closes the WAL — matching the teacher's Close (pkg/nornicdb/db.go:
// "Close WAL first to ensure all writes are flushed").
func (db *Database) Close() error {
	var err error
	db.closeOnce.Do(func() {
		db.poolMu.Lock()
		if db.pool != nil {
			db.pool.Close()
		}
		if db.cancel != nil {
			db.cancel()
		}
		db.poolMu.Unlock()

		if db.wal != nil {
			err = db.wal.Close()
		}
	})
	return err
}

// NewSession opens a Session bound to db. Sessions are lightweight and
// cheap to create; the Database they share owns all actual state.
func (db *Database) NewSession() *Session {
	return &Session{db: db}
}

// Session is one caller's view of a Database: at most one open explicit
// transaction at a time, plus the query-execution and direct-mutation
// entry points spec §6 names. A Session is not safe for concurrent use by
// multiple goroutines (mirroring the teacher's Transaction, which is
// single-goroutine by convention); open one Session per goroutine.
type Session struct {
	db *Database
	tx *txn.Transaction
}

// Begin opens an explicit transaction. Panics are not used for "already in
// a transaction" — it returns TransactionAborted the same way an invalid
// operation on an already-committed transaction does, since both are
// caller sequencing errors.
func (s *Session) Begin() error {
	if s.tx != nil {
		return gerrors.TransactionAborted.WithHint("session already has an open transaction")
	}
	if s.db.opts.ReadOnly {
		return gerrors.New(gerrors.KindUnsupported, "database opened read_only")
	}
	s.tx = s.db.manager.Begin()
	return nil
}

// Commit commits the session's open transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return gerrors.TransactionAborted.WithHint("no open transaction")
	}
	err := s.db.manager.Commit(s.tx)
	s.tx = nil
	return err
}

// Rollback aborts the session's open transaction, discarding every
// buffered operation.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return gerrors.TransactionAborted.WithHint("no open transaction")
	}
	err := s.db.manager.Abort(s.tx)
	s.tx = nil
	return err
}

// withAutoTx runs fn against an explicit transaction if the session has
// one open, or against a new transaction it commits (or aborts, on error)
// itself otherwise — the same "operations outside an explicit transaction
// still go through the transaction path" guarantee spec §6 requires of the
// direct mutation APIs.
func (s *Session) withAutoTx(fn func(tx *txn.Transaction) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	tx := s.db.manager.Begin()
	if err := fn(tx); err != nil {
		s.db.manager.Abort(tx)
		return err
	}
	return s.db.manager.Commit(tx)
}

// CreateNode creates a node with the given labels and properties,
// returning its id. Property keys and labels are interned in the
// database's catalog on first use (spec §3).
func (s *Session) CreateNode(labels []string, properties map[string]graph.Value) (graph.NodeID, error) {
	var id graph.NodeID
	err := s.withAutoTx(func(tx *txn.Transaction) error {
		var err error
		id, err = tx.CreateNode(tx.Snapshot().Epoch)
		if err != nil {
			return err
		}
		for _, name := range labels {
			lbl, err := s.db.catalog.InternLabel(name)
			if err != nil {
				return err
			}
			if err := tx.AddLabel(id, lbl); err != nil {
				return err
			}
		}
		for name, v := range properties {
			key, err := s.db.catalog.InternPropertyKey(name)
			if err != nil {
				return err
			}
			if err := tx.SetNodeProperty(id, key, v); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

// AddNodeLabel attaches label to an existing node, interning it if new.
func (s *Session) AddNodeLabel(id graph.NodeID, label string) error {
	return s.withAutoTx(func(tx *txn.Transaction) error {
		lbl, err := s.db.catalog.InternLabel(label)
		if err != nil {
			return err
		}
		return tx.AddLabel(id, lbl)
	})
}

// RemoveNodeLabel detaches label from an existing node. Unknown labels are
// a no-op (nothing could have had it set).
func (s *Session) RemoveNodeLabel(id graph.NodeID, label string) error {
	lbl, ok := s.db.catalog.LookupLabel(label)
	if !ok {
		return nil
	}
	return s.withAutoTx(func(tx *txn.Transaction) error {
		return tx.RemoveLabel(id, lbl)
	})
}

// GetNodeLabels returns the label names set on id under the session's
// current read view (the open transaction's snapshot, or a fresh
// auto-snapshot if none is open).
func (s *Session) GetNodeLabels(id graph.NodeID) ([]string, error) {
	snap := s.readSnapshot()
	rec, _, ok := s.db.manager.ReadNode(id, snap)
	if !ok {
		return nil, gerrors.NotFound.WithHint("node does not exist under this snapshot")
	}
	var names []string
	for l := graph.LabelID(0); l < graph.MaxInlineLabels; l++ {
		if rec.HasLabel(l) {
			if name, ok := s.db.catalog.LabelName(l); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (s *Session) readSnapshot() txn.Snapshot {
	if s.tx != nil {
		return s.tx.Snapshot()
	}
	tx := s.db.manager.Begin()
	snap := tx.Snapshot()
	s.db.manager.Abort(tx)
	return snap
}

// QueryResult is a streamable chunk sequence plus the schema (column
// names) it carries, spec §6's "execute(query) → QueryResult (a
// streamable chunk sequence plus schema)".
type QueryResult struct {
	Columns []string
	Chunks  []*exec.Chunk
}

// Execute runs a pre-planned logical query (the parser → core boundary,
// spec §6) through pushdown, join reordering, physical lowering, and the
// vectorized executor, returning every produced chunk. Parsing query text
// into a plan.Node is an external collaborator's job (spec §1); Session
// only ever consumes the logical plan tree itself.
func (s *Session) Execute(ctx context.Context, root plan.Node) (*QueryResult, error) {
	cacheKey := PlanCacheKey(root, s.db.schema.Version())
	pp, ok := s.db.cache.Get(cacheKey)
	if !ok {
		stats := optimizer.NewStats()
		pushed := optimizer.PushdownFilters(root)
		optimizer.PushdownProjections(pushed)
		reordered := optimizer.ReorderJoins(pushed, stats)
		pp = optimizer.Lower(reordered, s.db.schema, stats)
		s.db.cache.Set(cacheKey, pp)
	}

	snap := s.readSnapshot()
	execCtx := &exec.Context{
		Reader:   s.db.manager,
		Snapshot: snap,
		Schema:   s.db.schema,
		Stats:    optimizer.NewStats(),
	}

	op, err := exec.Build(pp, execCtx)
	if err != nil {
		return nil, err
	}
	defer op.Close()

	chunks, err := exec.RunPipeline(ctx, s.db.pool, op)
	if err != nil {
		return nil, err
	}
	return &QueryResult{Columns: op.Columns(), Chunks: chunks}, nil
}
