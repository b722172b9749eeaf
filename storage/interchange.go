package storage

import (
	"encoding/json"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
)

// Export is the Neo4j-JSON-compatible interchange format, adapted from the
// teacher's Neo4jExport/ToNeo4jExport/FromNeo4jExport (pkg/storage/types.go,
// pkg/storage/loader.go) so a Grafeo database can hand off data to the
// wider Neo4j tooling ecosystem (neo4j-admin import, apoc.import.json) at
// the storage boundary, outside any query-language surface. Only the export
// direction (ToExport) exists; the package has no import function.
type Export struct {
	Nodes         []ExportNode `json:"nodes"`
	Relationships []ExportRel  `json:"relationships"`
}

type ExportNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

type ExportRel struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
	Properties map[string]any `json:"properties"`
}

// valueToAny converts a graph.Value to a plain Go value suitable for
// encoding/json, recursing through lists and maps.
func valueToAny(v graph.Value) any {
	switch v.Kind {
	case graph.KindNull:
		return nil
	case graph.KindBool:
		return v.AsBool()
	case graph.KindInt64:
		return v.AsInt64()
	case graph.KindFloat64:
		return v.AsFloat64()
	case graph.KindString:
		return v.AsString()
	case graph.KindBytes:
		return v.AsBytes()
	case graph.KindTemporal:
		return v.AsTemporal()
	case graph.KindList:
		list := v.AsList()
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = valueToAny(e)
		}
		return out
	case graph.KindMap:
		m := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = valueToAny(e)
		}
		return out
	default:
		return nil
	}
}

// anyToValue is the inverse of valueToAny for JSON decoded into
// interface{}. Nothing outside its own recursion calls it.
func anyToValue(a any) graph.Value {
	switch t := a.(type) {
	case nil:
		return graph.Null
	case bool:
		return graph.Bool(t)
	case float64:
		return graph.Float64(t)
	case string:
		return graph.String(t)
	case []any:
		list := make([]graph.Value, len(t))
		for i, e := range t {
			list[i] = anyToValue(e)
		}
		return graph.List(list)
	case map[string]any:
		m := make(map[string]graph.Value, len(t))
		for k, e := range t {
			m[k] = anyToValue(e)
		}
		return graph.Map(m)
	default:
		return graph.Null
	}
}

// ToExport renders the live contents of store into the Neo4j-compatible
// interchange format, resolving label/edge-type/property-key ids to names
// through cat.
func ToExport(store *Store, cat *catalog.Catalog) *Export {
	export := &Export{}

	n := store.Nodes.Len()
	for i := 0; i < n; i++ {
		id := graph.NodeID(i)
		rec, ok := store.Nodes.Get(id)
		if !ok {
			continue
		}
		var labels []string
		for l := graph.LabelID(0); l < graph.MaxInlineLabels; l++ {
			if rec.HasLabel(l) {
				if name, ok := cat.LabelName(l); ok {
					labels = append(labels, name)
				}
			}
		}
		for _, l := range store.Nodes.Overflow().Labels(id) {
			if name, ok := cat.LabelName(l); ok {
				labels = append(labels, name)
			}
		}

		props, _ := store.Nodes.Properties(id)
		out := make(map[string]any, len(props))
		for k, v := range props {
			if name, ok := cat.PropertyKeyName(k); ok {
				out[name] = valueToAny(v)
			}
		}

		export.Nodes = append(export.Nodes, ExportNode{
			ID:         id.String(),
			Labels:     labels,
			Properties: out,
		})
	}

	m := store.Edges.Len()
	for i := 0; i < m; i++ {
		id := graph.EdgeID(i)
		rec, ok := store.Edges.Get(id)
		if !ok {
			continue
		}
		typeName, _ := cat.EdgeTypeName(rec.Type)
		props, _ := store.Edges.Properties(id)
		out := make(map[string]any, len(props))
		for k, v := range props {
			if name, ok := cat.PropertyKeyName(k); ok {
				out[name] = valueToAny(v)
			}
		}

		export.Relationships = append(export.Relationships, ExportRel{
			ID:         id.String(),
			Type:       typeName,
			StartNode:  rec.Src.String(),
			EndNode:    rec.Dst.String(),
			Properties: out,
		})
	}

	return export
}

// MarshalJSON renders an Export as indented JSON, matching the teacher's
// json.MarshalIndent("", "  ") convention for interchange files.
func (e *Export) MarshalJSON() ([]byte, error) {
	type alias Export
	data, err := json.MarshalIndent((*alias)(e), "", "  ")
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "marshal export", err)
	}
	return data, nil
}
