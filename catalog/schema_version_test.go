package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaManagerVersionBumpsOnConstraintAndIndex(t *testing.T) {
	sm := NewSchemaManager()
	assert.Equal(t, uint64(0), sm.Version())

	require.NoError(t, sm.AddConstraint(Constraint{Name: "unique_name", Kind: ConstraintUnique, Label: 1, Property: 2}))
	assert.Equal(t, uint64(1), sm.Version())

	require.NoError(t, sm.AddIndex(IndexDef{Name: "idx_name", Kind: IndexHash, Label: 1, Property: 2}))
	assert.Equal(t, uint64(2), sm.Version())

	// Re-adding the same named constraint is idempotent and must not bump
	// the version again.
	require.NoError(t, sm.AddConstraint(Constraint{Name: "unique_name", Kind: ConstraintUnique, Label: 1, Property: 2}))
	assert.Equal(t, uint64(2), sm.Version())
}

func TestCatalogNameListings(t *testing.T) {
	c := New()
	_, err := c.InternLabel("Person")
	require.NoError(t, err)
	_, err = c.InternLabel("Agent")
	require.NoError(t, err)
	_, err = c.InternEdgeType("KNOWS")
	require.NoError(t, err)
	_, err = c.InternPropertyKey("name")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Person", "Agent"}, c.LabelNames())
	assert.ElementsMatch(t, []string{"KNOWS"}, c.EdgeTypeNames())
	assert.ElementsMatch(t, []string{"name"}, c.PropertyKeyNames())
}
