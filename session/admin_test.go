package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafeo-db/grafeo/config"
	"github.com/grafeo-db/grafeo/graph"
)

func TestInfoReportsCounts(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	_, err := s.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)

	info := s.Info()
	assert.True(t, info.InMemory)
	assert.Equal(t, int64(1), info.NodeCount)
}

func TestSchemaListsInternedNames(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	_, err := s.CreateNode([]string{"Person", "Agent"}, map[string]graph.Value{
		"name": graph.String("ada"),
	})
	require.NoError(t, err)

	info := s.Schema()
	assert.ElementsMatch(t, []string{"Person", "Agent"}, info.Labels)
	assert.Contains(t, info.PropertyKeys, "name")
}

func TestValidatePassesOnCleanDatabase(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	n1, err := s.CreateNode(nil, nil)
	require.NoError(t, err)
	n2, err := s.CreateNode(nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Begin())
	_, err = s.tx.CreateEdge(s.tx.Snapshot().Epoch, 0, n1, n2)
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	report := s.Validate()
	assert.True(t, report.OK)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 2, report.NodesChecked)
	assert.Equal(t, 1, report.EdgesChecked)
}

func TestWALStatusInMemory(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	status, err := s.WALStatus()
	require.NoError(t, err)
	assert.True(t, status.InMemory)
}

func TestWALCheckpointRequiresPersistentDatabase(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	assert.Error(t, s.WALCheckpoint())
}

func TestWALCheckpointOnPersistentDatabase(t *testing.T) {
	dir := t.TempDir()
	opts := config.DefaultOptions()
	opts.Path = dir
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	s := db.NewSession()
	_, err = s.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.WALCheckpoint())

	status, err := s.WALStatus()
	require.NoError(t, err)
	assert.True(t, status.HasCheckpoint)
}

func TestSaveWritesInterchangeJSON(t *testing.T) {
	db := openMemDB(t)
	s := db.NewSession()
	_, err := s.CreateNode([]string{"Person"}, map[string]graph.Value{
		"name": graph.String("ada"),
	})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, s.Save(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	nodes, ok := parsed["nodes"].([]interface{})
	require.True(t, ok)
	assert.Len(t, nodes, 1)
}

func TestToMemoryForksIndependentStore(t *testing.T) {
	dir := t.TempDir()
	opts := config.DefaultOptions()
	opts.Path = dir
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	s := db.NewSession()
	_, err = s.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)

	mem, err := s.ToMemory()
	require.NoError(t, err)
	defer mem.Close()

	memSession := mem.NewSession()
	assert.Equal(t, int64(1), memSession.Info().NodeCount)
	assert.True(t, memSession.Info().InMemory)

	_, err = s.CreateNode([]string{"Person"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), memSession.Info().NodeCount, "fork must not observe writes made to the original after forking")
}
