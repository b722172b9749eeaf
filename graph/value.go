package graph

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// ValueKind is the closed tag of the property value union (spec §3, §9:
// "polymorphic values MUST be represented as a closed tagged union, never
// interface{} at the storage boundary"). Every Value carries exactly one
// Kind, and accessors panic if asked for the wrong one so mismatched use
// fails loudly at the call site instead of silently reading zero values.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindBytes
	KindTemporal
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTemporal:
		return "temporal"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the tagged union every property and expression result is
// represented as. Only the field matching Kind is meaningful; the rest are
// zero. This mirrors the teacher's property values (stored as untyped
// map[string]any) but closes the type space per spec §3/§9 so the exec
// engine can switch on Kind instead of doing a Go type-switch on interface{}
// at every tuple.
type Value struct {
	Kind ValueKind

	boolVal   bool
	intVal    int64
	floatVal  float64
	strVal    string
	bytesVal  []byte
	timeVal   time.Time
	listVal   []Value
	mapVal    map[string]Value
}

// Null is the single null value; all Kind == KindNull values compare equal.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value         { return Value{Kind: KindBool, boolVal: b} }
func Int64(i int64) Value       { return Value{Kind: KindInt64, intVal: i} }
func Float64(f float64) Value   { return Value{Kind: KindFloat64, floatVal: f} }
func String(s string) Value     { return Value{Kind: KindString, strVal: s} }
func Bytes(b []byte) Value      { return Value{Kind: KindBytes, bytesVal: b} }
func Temporal(t time.Time) Value { return Value{Kind: KindTemporal, timeVal: t} }
func List(vs []Value) Value     { return Value{Kind: KindList, listVal: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, mapVal: m} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) AsBool() bool {
	v.mustBe(KindBool)
	return v.boolVal
}

func (v Value) AsInt64() int64 {
	v.mustBe(KindInt64)
	return v.intVal
}

func (v Value) AsFloat64() float64 {
	v.mustBe(KindFloat64)
	return v.floatVal
}

func (v Value) AsString() string {
	v.mustBe(KindString)
	return v.strVal
}

func (v Value) AsBytes() []byte {
	v.mustBe(KindBytes)
	return v.bytesVal
}

func (v Value) AsTemporal() time.Time {
	v.mustBe(KindTemporal)
	return v.timeVal
}

func (v Value) AsList() []Value {
	v.mustBe(KindList)
	return v.listVal
}

func (v Value) AsMap() map[string]Value {
	v.mustBe(KindMap)
	return v.mapVal
}

func (v Value) mustBe(k ValueKind) {
	if v.Kind != k {
		panic(fmt.Sprintf("graph: Value is %s, not %s", v.Kind, k))
	}
}

// Equal compares two values by Kind and underlying payload. Lists and maps
// compare structurally. Temporal values compare via time.Time.Equal so
// differing monotonic readings of the same instant still match.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt64:
		return v.intVal == other.intVal
	case KindFloat64:
		return v.floatVal == other.floatVal
	case KindString:
		return v.strVal == other.strVal
	case KindBytes:
		if len(v.bytesVal) != len(other.bytesVal) {
			return false
		}
		for i := range v.bytesVal {
			if v.bytesVal[i] != other.bytesVal[i] {
				return false
			}
		}
		return true
	case KindTemporal:
		return v.timeVal.Equal(other.timeVal)
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, a := range v.mapVal {
			b, ok := other.mapVal[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a human-readable form, used by diagnostics and the admin
// CLI's value dumps, never by the storage layer.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
	case KindInt64:
		return fmt.Sprintf("%d", v.intVal)
	case KindFloat64:
		return fmt.Sprintf("%g", v.floatVal)
	case KindString:
		return v.strVal
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytesVal))
	case KindTemporal:
		return v.timeVal.Format(time.RFC3339Nano)
	case KindList:
		return fmt.Sprintf("list(%d)", len(v.listVal))
	case KindMap:
		return fmt.Sprintf("map(%d)", len(v.mapVal))
	default:
		return "?"
	}
}

// valueWire is the exported projection gob actually serializes; Value's own
// fields are unexported so a reflection-based encoder (gob, json) would
// otherwise silently drop them. Snapshot and WAL op payloads depend on this
// round-tripping exactly.
type valueWire struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	Byt  []byte
	Time time.Time
	List []Value
	Map  map[string]Value
}

// GobEncode implements gob.GobEncoder so Value can be embedded in
// gob-serialized snapshots and WAL op payloads despite its unexported
// fields.
func (v Value) GobEncode() ([]byte, error) {
	w := valueWire{
		Kind: v.Kind,
		Bool: v.boolVal,
		Int:  v.intVal,
		Flt:  v.floatVal,
		Str:  v.strVal,
		Byt:  v.bytesVal,
		Time: v.timeVal,
		List: v.listVal,
		Map:  v.mapVal,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (v *Value) GobDecode(data []byte) error {
	var w valueWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	v.Kind = w.Kind
	v.boolVal = w.Bool
	v.intVal = w.Int
	v.floatVal = w.Flt
	v.strVal = w.Str
	v.bytesVal = w.Byt
	v.timeVal = w.Time
	v.listVal = w.List
	v.mapVal = w.Map
	return nil
}
