// Package optimizer implements Grafeo's cost-based optimization passes over
// a frozen logical plan.Node tree: filter/projection pushdown, DPccp join
// reordering with a left-deep greedy fallback, histogram-driven cardinality
// estimation, and physical lowering (spec §4.4). The teacher's Cypher
// frontend has no equivalent stage — patterns execute in the order they
// were written (`pkg/cypher/executor.go`) — so every file in this package
// is new, grounded directly on the spec's optimization-pass list rather
// than on teacher code.
package optimizer

import (
	"math"

	"github.com/grafeo-db/grafeo/graph"
)

// Histogram is an equi-width numeric histogram over one (label, property)
// pair, used to estimate the selectivity of range and equality predicates
// without scanning the underlying data (spec §4.4 step 4).
type Histogram struct {
	Min, Max float64
	Buckets  []uint64 // Buckets[i] counts values in [Min+i*width, Min+(i+1)*width)
	NullCount uint64
	Total     uint64
}

func (h *Histogram) width() float64 {
	if len(h.Buckets) == 0 || h.Max <= h.Min {
		return 0
	}
	return (h.Max - h.Min) / float64(len(h.Buckets))
}

// EstimateEquality returns the estimated number of rows matching value ==.
func (h *Histogram) EstimateEquality(value float64) float64 {
	if h.Total == 0 || len(h.Buckets) == 0 {
		return 0
	}
	w := h.width()
	if w <= 0 {
		return float64(h.Total) / float64(len(h.Buckets)+1)
	}
	idx := int(math.Floor((value - h.Min) / w))
	if idx < 0 || idx >= len(h.Buckets) {
		return 0
	}
	// Assume values are roughly uniform within a bucket.
	return float64(h.Buckets[idx])
}

// EstimateRange returns the estimated number of rows in [lo, hi].
func (h *Histogram) EstimateRange(lo, hi float64) float64 {
	if h.Total == 0 || len(h.Buckets) == 0 {
		return 0
	}
	w := h.width()
	if w <= 0 {
		return float64(h.Total)
	}
	var sum float64
	for i, c := range h.Buckets {
		bucketLo := h.Min + float64(i)*w
		bucketHi := bucketLo + w
		overlap := math.Min(bucketHi, hi) - math.Max(bucketLo, lo)
		if overlap <= 0 {
			continue
		}
		frac := overlap / w
		if frac > 1 {
			frac = 1
		}
		sum += frac * float64(c)
	}
	return sum
}

// histogramKey identifies one tracked histogram.
type histogramKey struct {
	label graph.LabelID
	prop  graph.PropertyKey
}

// Stats is the cardinality model the cost formulas in spec §4.4 step 4
// read from: per-label row counts, per-(label,property) histograms, and
// per-edge-type average out-degree. The optimizer only ever reads it.
// Session.Execute passes an empty NewStats() and nothing outside tests
// fills it in, so estimates fall back to the coarse defaults below.
type Stats struct {
	LabelCounts      map[graph.LabelID]uint64
	Histograms       map[histogramKey]*Histogram
	EdgeTypeOutDegree map[graph.EdgeTypeID]float64
	TotalNodes       uint64
	TotalEdges       uint64
}

// NewStats creates an empty statistics model; all estimates fall back to
// coarse defaults until populated.
func NewStats() *Stats {
	return &Stats{
		LabelCounts:       make(map[graph.LabelID]uint64),
		Histograms:        make(map[histogramKey]*Histogram),
		EdgeTypeOutDegree: make(map[graph.EdgeTypeID]float64),
	}
}

// SetHistogram installs or replaces the histogram for (label, prop).
func (s *Stats) SetHistogram(label graph.LabelID, prop graph.PropertyKey, h *Histogram) {
	s.Histograms[histogramKey{label, prop}] = h
}

// Histogram looks up the histogram for (label, prop), if one has been
// computed.
func (s *Stats) Histogram(label graph.LabelID, prop graph.PropertyKey) (*Histogram, bool) {
	h, ok := s.Histograms[histogramKey{label, prop}]
	return h, ok
}

// ScanCardinality estimates |rows| for a label-scoped scan, defaulting to
// TotalNodes when label is nil (full scan) or the label is unseen.
func (s *Stats) ScanCardinality(label *graph.LabelID) float64 {
	if label == nil {
		return float64(s.TotalNodes)
	}
	if c, ok := s.LabelCounts[*label]; ok {
		return float64(c)
	}
	return float64(s.TotalNodes) * 0.1 // unseen label: conservative 10% guess
}

// ExpandCardinality estimates the output row count of an Expand over
// inputCardinality source rows through edgeType, per spec §4.4's
// "expand cost ≈ Σ out-degree" formula.
func (s *Stats) ExpandCardinality(inputCardinality float64, edgeType *graph.EdgeTypeID) float64 {
	degree := 1.0
	if edgeType != nil {
		if d, ok := s.EdgeTypeOutDegree[*edgeType]; ok {
			degree = d
		}
	} else if s.TotalNodes > 0 {
		degree = float64(s.TotalEdges) / float64(s.TotalNodes)
	}
	return inputCardinality * degree
}

// JoinCardinality estimates a hash join's output size: spec §4.4's
// "join cost ≈ |left|·log|right|+|output|", where output is approximated
// as |left|·|right| scaled by the join's estimated selectivity (0.1 when
// selectivity is not positive).
func JoinCardinality(left, right float64, selectivity float64) float64 {
	if selectivity <= 0 {
		selectivity = 0.1
	}
	return left * right * selectivity
}

// HashJoinCost implements spec §4.4's cost formula directly.
func HashJoinCost(left, right, output float64) float64 {
	if right < 2 {
		right = 2
	}
	return left*math.Log2(right) + output
}
