package exec

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/optimizer"
	"github.com/grafeo-db/grafeo/plan"
)

// meter is the package-wide OTel meter, obtained the same way trace.go
// obtains its tracer — from the global MeterProvider the embedding
// application installs (spec §11's cardinality-miss-ratio instrument).
var meter = otel.Meter("github.com/grafeo-db/grafeo/exec")

var cardinalityMissRatio, _ = meter.Float64Histogram(
	"grafeo.exec.cardinality_miss_ratio",
	metric.WithDescription("observed row count divided by the optimizer's estimate, recorded once per Scan/Join on pipeline completion"),
)

// replanThreshold is the observed-vs-estimated cardinality ratio (in either
// direction) that triggers a bounded re-plan (spec §4.4 "Adaptive
// execution": "if a pipeline's observed cardinality deviates from the
// optimizer's estimate by 3x or more, the executor may re-plan the
// remainder of the pipeline once").
const replanThreshold = 3.0

// AdaptiveMonitor watches one pipeline's operators for cardinality
// deviation and triggers at most one re-plan, per spec §4.4 and the open
// question it resolves (§9(c): "adaptive execution re-plans at most once
// per pipeline to bound worst-case replanning overhead").
type AdaptiveMonitor struct {
	mu        sync.Mutex
	replanned bool
	stats     *optimizer.Stats
	ctx       context.Context
}

// NewAdaptiveMonitor creates a monitor bound to stats, the same cardinality
// model the optimizer used to produce the plan being executed.
func NewAdaptiveMonitor(ctx context.Context, stats *optimizer.Stats) *AdaptiveMonitor {
	return &AdaptiveMonitor{stats: stats, ctx: ctx}
}

// Observe records a Scan or Join's estimated-vs-actual cardinality, firing
// back the recommendation to re-plan the remainder of the pipeline. It is
// idempotent past the first re-plan: a pipeline re-plans at most once no
// matter how many more operators deviate afterward.
func (m *AdaptiveMonitor) Observe(estimated, actual float64) (shouldReplan bool) {
	if estimated <= 0 {
		estimated = 1
	}
	ratio := actual / estimated
	if ratio < 1 {
		if ratio == 0 {
			ratio = 1
		} else {
			ratio = 1 / ratio
		}
	}
	cardinalityMissRatio.Record(m.ctx, ratio)

	if ratio < replanThreshold {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replanned {
		return false
	}
	m.replanned = true
	return true
}

// Replan re-optimizes the logical subtree rooted at remainder using the
// monitor's Stats, presumably refreshed with the actual cardinalities
// Observe has collected so far, and lowers it to a fresh PhysicalPlan. The
// caller is responsible for splicing the result back in place of the
// original remainder and rebuilding only that subtree's operators;
// session.Session does not call Replan or AdaptiveMonitor.
func Replan(remainder plan.Node, schema *catalog.SchemaManager, stats *optimizer.Stats) *optimizer.PhysicalPlan {
	pushed := optimizer.PushdownFilters(remainder)
	optimizer.PushdownProjections(pushed)
	reordered := optimizer.ReorderJoins(pushed, stats)
	return optimizer.Lower(reordered, schema, stats)
}
