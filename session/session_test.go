package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/config"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/plan"
)

func openMemDB(t *testing.T) *Database {
	t.Helper()
	opts := config.DefaultOptions()
	opts.Threads = 2
	db, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateNodeAutoCommits(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()

	id, err := s.CreateNode([]string{"Person"}, map[string]graph.Value{
		"name": graph.String("ada"),
	})
	require.NoError(t, err)

	labels, err := s.GetNodeLabels(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Person"}, labels)
}

func TestExplicitTransactionRollback(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()

	require.NoError(t, s.Begin())
	id, err := s.CreateNode(nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Rollback())

	s2 := db.NewSession()
	_, err = s2.GetNodeLabels(id)
	assert.Error(t, err, "a rolled-back node must not be visible to a fresh session")
}

func TestBeginTwiceFails(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	require.NoError(t, s.Begin())
	defer s.Rollback()

	err := s.Begin()
	assert.Error(t, err)
}

func TestReadOnlyRejectsTransactions(t *testing.T) {
	dir := t.TempDir()
	opts := config.DefaultOptions()
	opts.Path = dir
	db, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	opts.ReadOnly = true
	roDB, err := Open(opts)
	require.NoError(t, err)
	defer roDB.Close()

	s := roDB.NewSession()
	assert.Error(t, s.Begin())
}

func TestExecuteScanReturnsCreatedNodes(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()

	for i := 0; i < 3; i++ {
		_, err := s.CreateNode([]string{"Person"}, nil)
		require.NoError(t, err)
	}

	scan := plan.NewScan(nil, "n", nil, nil)
	result, err := s.Execute(context.Background(), scan)
	require.NoError(t, err)

	total := 0
	for _, chunk := range result.Chunks {
		total += chunk.Len()
	}
	assert.Equal(t, 3, total)
}

func TestPlanCacheReusesEntryAcrossExecutions(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	_, err := s.CreateNode(nil, nil)
	require.NoError(t, err)

	scan := plan.NewScan(nil, "n", nil, nil)
	key := PlanCacheKey(scan, db.schema.Version())

	_, err = s.Execute(context.Background(), scan)
	require.NoError(t, err)

	_, ok := db.cache.Get(key)
	assert.True(t, ok, "executing a plan should populate the plan cache under its fingerprint key")
}
