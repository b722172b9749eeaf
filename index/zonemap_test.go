package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneMapEmptyNeverMayContain(t *testing.T) {
	z := NewZoneMap()
	assert.False(t, z.MayContainRange(0, 100))
	_, _, ok := z.MinMax()
	assert.False(t, ok)
}

func TestZoneMapObserveNarrowsBounds(t *testing.T) {
	z := NewZoneMap()
	z.Observe(5, false)
	z.Observe(1, false)
	z.Observe(9, false)

	min, max, ok := z.MinMax()
	require.True(t, ok)
	assert.Equal(t, 1.0, min)
	assert.Equal(t, 9.0, max)
}

func TestZoneMapMayContainRangeIsConservative(t *testing.T) {
	z := NewZoneMap()
	z.Observe(10, false)
	z.Observe(20, false)

	assert.True(t, z.MayContainRange(15, 25), "overlapping range must be reported as possibly present")
	assert.True(t, z.MayContainRange(0, 10), "touching the boundary must be reported as possibly present")
	assert.False(t, z.MayContainRange(21, 30), "a range strictly outside [min,max] must be safely skippable")
	assert.False(t, z.MayContainRange(0, 9), "a range strictly below min must be safely skippable")
}

func TestZoneMapHasNullTracksNullObservations(t *testing.T) {
	z := NewZoneMap()
	assert.False(t, z.HasNull())
	z.Observe(0, true)
	assert.True(t, z.HasNull())
}

func TestZoneMapMayContainRangeNeverFalseNegativeUnderRandomObservations(t *testing.T) {
	z := NewZoneMap()
	values := []float64{42, 17, 99, -3, 56}
	for _, v := range values {
		z.Observe(v, false)
	}
	for _, v := range values {
		assert.True(t, z.MayContainRange(v, v), "a zone map must never rule out a value it actually observed")
	}
}
