package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metrosim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Import(context.Background(), testDataset()))
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(LocalPath(t.TempDir()), "metrosim.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, s.Path())

	version, err := getSchemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "metrosim.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Import(ctx, testDataset()))
	require.NoError(t, s.SaveAgents(ctx, 1, 5, testAgents(2)))
	require.NoError(t, s.SetRunInput(ctx, 1, "runs/1/input.json", models.Generation{Seed: 5, Agents: 2}))
	s.Close()

	// Reopening runs the integrity checks on the existing file.
	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.CountAgents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	run, err := s.GetRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &models.Generation{Seed: 5, Agents: 2}, run.InputGeneration)
}

func TestSQLiteStore_SaveAgentsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	// A duplicate id violates the primary key halfway through the insert.
	agents := testAgents(3)
	agents[2].ID = 1
	require.Error(t, s.SaveAgents(ctx, 1, 9, agents))

	n, err := s.CountAgents(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	pop, err := s.GetPopulation(ctx, 1)
	require.NoError(t, err)
	assert.False(t, pop.Generated)
	assert.Nil(t, pop.RandomSeed)
}

func TestSQLiteStore_SaveAgentsCancelled(t *testing.T) {
	s := newTestSQLite(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.SaveAgents(ctx, 1, 9, testAgents(3)))

	n, err := s.CountAgents(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_SaveRunResultsRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	good := &models.RunResults{AgentResults: []models.AgentResult{{AgentID: 1, Mode: "Car"}}}
	require.NoError(t, s.SaveRunResults(ctx, 1, "out.json", good))

	bad := &models.RunResults{AgentResults: []models.AgentResult{
		{AgentID: 2, Mode: "Car"},
		{AgentID: 2, Mode: "Car"},
	}}
	require.Error(t, s.SaveRunResults(ctx, 1, "out2.json", bad))

	results, err := s.ListAgentResults(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1, "the first ingestion survives")
	assert.Equal(t, int64(1), results[0].AgentID)
	run, err := s.GetRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "out.json", run.OutputPath)
}

func TestSQLiteStore_ImportKeepsInputGeneration(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.SetRunInput(ctx, 1, "in.json", models.Generation{Seed: 3, Agents: 4}))
	require.NoError(t, s.Import(ctx, testDataset()))

	run, err := s.GetRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, &models.Generation{Seed: 3, Agents: 4}, run.InputGeneration)
	assert.Equal(t, models.RunInputWritten, run.Status)
}

func TestUpsertSQL(t *testing.T) {
	got := upsertSQL("nodes", "id", "network_id", "name")
	want := "INSERT INTO nodes (id, network_id, name) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET network_id = excluded.network_id, name = excluded.name"
	assert.Equal(t, want, got)
}
