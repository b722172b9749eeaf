// Package graph defines the labeled-property-graph data model: dense
// 64-bit identifiers, fixed-size node/edge records, the property value
// tagged union, and the invariants that bind them (spec §3).
//
// Ids are never reused while a referencing version chain survives — see
// txn.Manager for the epoch-based reclamation that enforces this.
package graph

import "fmt"

// NodeID is a dense, monotonically assigned 64-bit node identifier.
type NodeID uint64

func (id NodeID) String() string { return fmt.Sprintf("n%d", uint64(id)) }

// EdgeID is a dense, monotonically assigned 64-bit edge identifier.
type EdgeID uint64

func (id EdgeID) String() string { return fmt.Sprintf("e%d", uint64(id)) }

// PropertyKey is a dense identifier for an interned property name.
type PropertyKey uint64

// LabelID is a dense identifier for an interned node label.
type LabelID uint64

// EdgeTypeID is a dense identifier for an interned edge type.
type EdgeTypeID uint64

// InvalidID is returned by lookups that fail to resolve an identifier.
const InvalidID = ^uint64(0)

// Direction selects which side of an adjacency list to traverse.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "out"
	case Incoming:
		return "in"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}
