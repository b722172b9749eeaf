// Package catalog holds the global, read-write-locked dictionary state that
// maps label, edge-type, and property-key names to the dense identifiers
// graph records carry (spec §9: "global catalog state ... guarded by a
// read-write lock"). Names are interned once and never renumbered, so a
// LabelID embedded in an arena snapshot remains valid for the database's
// lifetime.
package catalog

import (
	"sync"

	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// MaxDictionaryWidth bounds the number of distinct names any one dictionary
// (labels, edge types, or property keys) may intern, per Open Question (b):
// a name that would exceed this is rejected as ResourceExhausted rather than
// silently accepted, since the width is baked into on-disk identifier
// encodings.
const MaxDictionaryWidth = 1 << 20

// dictionary is a bidirectional name<->id intern table, generalized from
// the teacher's SchemaManager RWMutex pattern (pkg/storage/schema.go) to a
// dense-identifier allocator instead of a name-keyed map of rich objects.
type dictionary struct {
	mu       sync.RWMutex
	byName   map[string]uint64
	byID     []string
}

func newDictionary() *dictionary {
	return &dictionary{byName: make(map[string]uint64)}
}

func (d *dictionary) intern(name string) (uint64, error) {
	d.mu.RLock()
	if id, ok := d.byName[name]; ok {
		d.mu.RUnlock()
		return id, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byName[name]; ok {
		return id, nil
	}
	if len(d.byID) >= MaxDictionaryWidth {
		return 0, gerrors.ResourceExhausted.WithHint("too many distinct names interned in one dictionary")
	}
	id := uint64(len(d.byID))
	d.byID = append(d.byID, name)
	d.byName[name] = id
	return id, nil
}

func (d *dictionary) lookup(name string) (uint64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byName[name]
	return id, ok
}

func (d *dictionary) name(id uint64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id >= uint64(len(d.byID)) {
		return "", false
	}
	return d.byID[id], true
}

func (d *dictionary) len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

func (d *dictionary) names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.byID))
	copy(out, d.byID)
	return out
}

// Catalog owns the three interned dictionaries a graph database needs:
// node labels, edge types, and property keys. A single Catalog is shared
// across all sessions and arenas opened against the same database.
type Catalog struct {
	labels     *dictionary
	edgeTypes  *dictionary
	propKeys   *dictionary
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		labels:    newDictionary(),
		edgeTypes: newDictionary(),
		propKeys:  newDictionary(),
	}
}

// InternLabel returns the LabelID for name, assigning a new one if name has
// not been seen before.
func (c *Catalog) InternLabel(name string) (graph.LabelID, error) {
	id, err := c.labels.intern(name)
	return graph.LabelID(id), err
}

// LookupLabel returns the LabelID for name without assigning one.
func (c *Catalog) LookupLabel(name string) (graph.LabelID, bool) {
	id, ok := c.labels.lookup(name)
	return graph.LabelID(id), ok
}

// LabelName resolves a LabelID back to its interned name.
func (c *Catalog) LabelName(id graph.LabelID) (string, bool) {
	return c.labels.name(uint64(id))
}

// LabelCount returns the number of distinct labels interned so far.
func (c *Catalog) LabelCount() int { return c.labels.len() }

// InternEdgeType returns the EdgeTypeID for name, assigning a new one if
// needed.
func (c *Catalog) InternEdgeType(name string) (graph.EdgeTypeID, error) {
	id, err := c.edgeTypes.intern(name)
	return graph.EdgeTypeID(id), err
}

// LookupEdgeType returns the EdgeTypeID for name without assigning one.
func (c *Catalog) LookupEdgeType(name string) (graph.EdgeTypeID, bool) {
	id, ok := c.edgeTypes.lookup(name)
	return graph.EdgeTypeID(id), ok
}

// EdgeTypeName resolves an EdgeTypeID back to its interned name.
func (c *Catalog) EdgeTypeName(id graph.EdgeTypeID) (string, bool) {
	return c.edgeTypes.name(uint64(id))
}

// EdgeTypeCount returns the number of distinct edge types interned so far.
func (c *Catalog) EdgeTypeCount() int { return c.edgeTypes.len() }

// InternPropertyKey returns the PropertyKey for name, assigning a new one if
// needed.
func (c *Catalog) InternPropertyKey(name string) (graph.PropertyKey, error) {
	id, err := c.propKeys.intern(name)
	return graph.PropertyKey(id), err
}

// LookupPropertyKey returns the PropertyKey for name without assigning one.
func (c *Catalog) LookupPropertyKey(name string) (graph.PropertyKey, bool) {
	id, ok := c.propKeys.lookup(name)
	return graph.PropertyKey(id), ok
}

// PropertyKeyName resolves a PropertyKey back to its interned name.
func (c *Catalog) PropertyKeyName(id graph.PropertyKey) (string, bool) {
	return c.propKeys.name(uint64(id))
}

// PropertyKeyCount returns the number of distinct property keys interned so far.
func (c *Catalog) PropertyKeyCount() int { return c.propKeys.len() }

// LabelNames returns every interned label name, for the admin `schema`
// operation (spec §4.7).
func (c *Catalog) LabelNames() []string { return c.labels.names() }

// EdgeTypeNames returns every interned edge-type name.
func (c *Catalog) EdgeTypeNames() []string { return c.edgeTypes.names() }

// PropertyKeyNames returns every interned property-key name.
func (c *Catalog) PropertyKeyNames() []string { return c.propKeys.names() }
