package exec

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// tracer is the package-wide OTel tracer, obtained from the global
// TracerProvider exactly as the teacher's otel.Init wires up tracing
// (`otel/init.go`'s Provider wraps an SDK TracerProvider and registers it
// globally); this package never constructs its own provider, it only calls
// otel.Tracer, so whatever provider the embedding application installed
// (or the SDK's no-op default) is what receives these spans.
var tracer = otel.Tracer("github.com/grafeo-db/grafeo/exec")

// TracedOperator wraps an Operator so every Next() call produces a span
// named after the logical operator kind, with the chunk's row count
// recorded as an attribute on completion — the per-operator execution
// tracing spec §4.5/§6 calls for.
type TracedOperator struct {
	inner Operator
	kind  string
	ctx   context.Context
}

// Trace wraps op so its Next() calls are recorded as child spans of ctx's
// active span, labeled with kind (e.g. "Scan", "HashJoin").
func Trace(ctx context.Context, op Operator, kind string) *TracedOperator {
	return &TracedOperator{inner: op, kind: kind, ctx: ctx}
}

func (t *TracedOperator) Columns() []string { return t.inner.Columns() }

func (t *TracedOperator) Next() (*Chunk, error) {
	_, span := tracer.Start(t.ctx, "exec."+t.kind)
	defer span.End()

	chunk, err := t.inner.Next()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if chunk != nil {
		span.SetAttributes(attribute.Int("rows", chunk.Len()))
	}
	return chunk, nil
}

func (t *TracedOperator) Close() { t.inner.Close() }

// WrapTree wraps op, the root of an already-built tree, in a tracing span.
// Operator doesn't expose children, so only the root is wrapped; Build does
// not wrap any operator, and the root's inputs are traced only if the
// caller wrapped them itself.
func WrapTree(ctx context.Context, op Operator, kind string) Operator {
	if op == nil {
		return nil
	}
	return Trace(ctx, op, kind)
}
