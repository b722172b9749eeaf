package catalog

import (
	"fmt"
	"sync"

	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// ConstraintKind enumerates the constraint types Grafeo enforces at commit
// time (spec §9 schema layer). Only uniqueness and existence constraints are
// modeled — Neo4j's node-key constraint is the composite generalization of
// both and is out of scope for the current schema surface.
type ConstraintKind int

const (
	ConstraintUnique ConstraintKind = iota
	ConstraintExists
)

func (k ConstraintKind) String() string {
	if k == ConstraintExists {
		return "EXISTS"
	}
	return "UNIQUE"
}

// Constraint is a named schema rule scoped to a label and a property.
type Constraint struct {
	Name     string
	Kind     ConstraintKind
	Label    graph.LabelID
	Property graph.PropertyKey
}

// IndexKind names the physical index structure an IndexDef requests,
// mirroring the index package's five structures (spec §5).
type IndexKind int

const (
	IndexHash IndexKind = iota
	IndexBTree
	IndexTrie
	IndexZoneMap
	IndexBloom
)

func (k IndexKind) String() string {
	switch k {
	case IndexHash:
		return "HASH"
	case IndexBTree:
		return "BTREE"
	case IndexTrie:
		return "TRIE"
	case IndexZoneMap:
		return "ZONEMAP"
	case IndexBloom:
		return "BLOOM"
	default:
		return "UNKNOWN"
	}
}

// IndexDef declares a secondary index the optimizer may choose to use.
// Building and maintaining the physical structure is the index package's
// job; SchemaManager only tracks the declaration and enforces uniqueness of
// names.
type IndexDef struct {
	Name     string
	Kind     IndexKind
	Label    graph.LabelID
	Property graph.PropertyKey
}

// uniqueTracker holds the live value set for one UNIQUE constraint, keyed by
// a comparable projection of graph.Value (Value itself is not comparable
// when it carries a list/map payload, so scalar constraints are the only
// ones enforced — spec's property graph model does not require uniqueness
// over composite/collection-valued properties).
type uniqueTracker struct {
	mu     sync.RWMutex
	values map[interface{}]graph.NodeID
}

// SchemaManager enforces constraints and tracks index declarations,
// generalizing the teacher's SchemaManager (pkg/storage/schema.go) from
// name-keyed maps of map[string]any properties to catalog.Catalog-interned
// ids and graph.Value. RW-locked per spec §9's global catalog-state
// requirement.
type SchemaManager struct {
	mu          sync.RWMutex
	constraints map[string]Constraint
	byLabel     map[graph.LabelID][]Constraint
	uniques     map[string]*uniqueTracker // keyed by constraint name
	indexes     map[string]IndexDef
	version     uint64
}

// Version returns a counter bumped on every schema change (constraint or
// index addition). session.Session uses it as part of the plan cache key
// so a plan built before a new index or constraint existed is never reused
// after one appears.
func (sm *SchemaManager) Version() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.version
}

// NewSchemaManager creates an empty schema manager.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{
		constraints: make(map[string]Constraint),
		byLabel:     make(map[graph.LabelID][]Constraint),
		uniques:     make(map[string]*uniqueTracker),
		indexes:     make(map[string]IndexDef),
	}
}

// AddConstraint registers a constraint. Re-adding a constraint with the same
// name is idempotent, matching the teacher's CREATE ... IF NOT EXISTS
// semantics.
func (sm *SchemaManager) AddConstraint(c Constraint) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.constraints[c.Name]; exists {
		return nil
	}
	sm.constraints[c.Name] = c
	sm.byLabel[c.Label] = append(sm.byLabel[c.Label], c)
	if c.Kind == ConstraintUnique {
		sm.uniques[c.Name] = &uniqueTracker{values: make(map[interface{}]graph.NodeID)}
	}
	sm.version++
	return nil
}

// ConstraintsFor returns every constraint scoped to label.
func (sm *SchemaManager) ConstraintsFor(label graph.LabelID) []Constraint {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]Constraint, len(sm.byLabel[label]))
	copy(out, sm.byLabel[label])
	return out
}

// scalarKey projects a graph.Value down to a Go-comparable key for the
// uniqueness map. Non-scalar kinds (list, map) cannot violate a UNIQUE
// constraint under the current schema surface and return ok=false.
func scalarKey(v graph.Value) (interface{}, bool) {
	switch v.Kind {
	case graph.KindBool:
		return v.AsBool(), true
	case graph.KindInt64:
		return v.AsInt64(), true
	case graph.KindFloat64:
		return v.AsFloat64(), true
	case graph.KindString:
		return v.AsString(), true
	case graph.KindBytes:
		return string(v.AsBytes()), true
	case graph.KindTemporal:
		return v.AsTemporal().UnixNano(), true
	default:
		return nil, false
	}
}

// CheckUnique validates that value does not already belong to a node other
// than excludeNode under the named constraint. Called from txn.Manager's
// commit validation (spec §4.1 step 3) before a write is allowed to land.
func (sm *SchemaManager) CheckUnique(constraintName string, value graph.Value, excludeNode graph.NodeID) error {
	sm.mu.RLock()
	tracker, exists := sm.uniques[constraintName]
	sm.mu.RUnlock()
	if !exists {
		return nil
	}

	key, ok := scalarKey(value)
	if !ok {
		return nil
	}

	tracker.mu.RLock()
	defer tracker.mu.RUnlock()
	if owner, found := tracker.values[key]; found && owner != excludeNode {
		return gerrors.New(gerrors.KindConstraintViolation,
			fmt.Sprintf("constraint %q violated: value already bound to %s", constraintName, owner)).
			WithHint("choose a distinct value or delete the conflicting node first")
	}
	return nil
}

// RegisterUnique records that nodeID now owns value under constraintName.
// Must be called only after CheckUnique has passed within the same commit.
func (sm *SchemaManager) RegisterUnique(constraintName string, value graph.Value, nodeID graph.NodeID) {
	sm.mu.RLock()
	tracker, exists := sm.uniques[constraintName]
	sm.mu.RUnlock()
	if !exists {
		return
	}
	key, ok := scalarKey(value)
	if !ok {
		return
	}
	tracker.mu.Lock()
	tracker.values[key] = nodeID
	tracker.mu.Unlock()
}

// UnregisterUnique releases nodeID's ownership of value, e.g. on property
// update or node deletion.
func (sm *SchemaManager) UnregisterUnique(constraintName string, value graph.Value) {
	sm.mu.RLock()
	tracker, exists := sm.uniques[constraintName]
	sm.mu.RUnlock()
	if !exists {
		return
	}
	key, ok := scalarKey(value)
	if !ok {
		return
	}
	tracker.mu.Lock()
	delete(tracker.values, key)
	tracker.mu.Unlock()
}

// CheckExists validates an EXISTS constraint: present reports whether the
// node actually carries a value for the constrained property.
func (sm *SchemaManager) CheckExists(constraintName string, present bool) error {
	if present {
		return nil
	}
	return gerrors.New(gerrors.KindConstraintViolation,
		fmt.Sprintf("constraint %q violated: required property missing", constraintName))
}

// AddIndex registers an index declaration. Idempotent on name like
// AddConstraint.
func (sm *SchemaManager) AddIndex(def IndexDef) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.indexes[def.Name]; exists {
		return nil
	}
	sm.indexes[def.Name] = def
	sm.version++
	return nil
}

// IndexesFor returns every index declared against label.
func (sm *SchemaManager) IndexesFor(label graph.LabelID) []IndexDef {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []IndexDef
	for _, def := range sm.indexes {
		if def.Label == label {
			out = append(out, def)
		}
	}
	return out
}

// Index looks up an index declaration by name.
func (sm *SchemaManager) Index(name string) (IndexDef, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	def, ok := sm.indexes[name]
	return def, ok
}

// Snapshot is a point-in-time dump of schema state for the admin `schema`
// operation (spec §4.7).
type Snapshot struct {
	Constraints []Constraint
	Indexes     []IndexDef
}

// Snapshot returns a copy of all constraints and index declarations.
func (sm *SchemaManager) Snapshot() Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	s := Snapshot{
		Constraints: make([]Constraint, 0, len(sm.constraints)),
		Indexes:     make([]IndexDef, 0, len(sm.indexes)),
	}
	for _, c := range sm.constraints {
		s.Constraints = append(s.Constraints, c)
	}
	for _, d := range sm.indexes {
		s.Indexes = append(s.Indexes, d)
	}
	return s
}
