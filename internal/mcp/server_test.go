package mcp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/blob"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

func ptr[T any](v T) *T { return &v }

func testDataset() *models.Dataset {
	return &models.Dataset{
		Networks:  []models.Network{{ID: 1, Name: "n"}},
		RoadTypes: []models.RoadType{{ID: 1, NetworkID: 1, Name: "road", Congestion: models.CongestionFreeFlow, DefaultSpeed: 36, DefaultLanes: 1}},
		Nodes:     []models.Node{{ID: 1, NetworkID: 1}, {ID: 2, NetworkID: 1}},
		Edges:     []models.Edge{{ID: 1, NetworkID: 1, Source: 1, Target: 2, RoadTypeID: 1, Length: 100}},
		Zones: []models.Zone{
			{ID: 1, NetworkID: 1, NodeID: ptr(int64(1))},
			{ID: 2, NetworkID: 1, NodeID: ptr(int64(2))},
		},
		Vehicles: []models.Vehicle{{ID: 1, Name: "car", Length: 8, SpeedFunction: models.SpeedBase}},
		Preferences: []models.Preferences{{
			ID: 1, ModeModel: "First",
			TStar: sampling.Const(28800), Delta: sampling.Const(0),
			Beta: sampling.Const(5), Gamma: sampling.Const(20),
			DepartureModel: "ConstantDepartureTime", DepTime: sampling.Const(27000),
			VOT: sampling.Const(15), VehicleID: 1,
		}},
		ODMatrices:  []models.ODMatrix{{ID: 1}},
		ODPairs:     []models.ODPair{{ID: 1, MatrixID: 1, Origin: 1, Destination: 2, Size: 3}},
		Populations: []models.Population{{ID: 1, NetworkID: 1, Name: "p"}},
		Segments:    []models.Segment{{ID: 1, PopulationID: 1, PreferencesID: 1, MatrixID: 1}},
		ParameterSets: []models.ParameterSet{{
			ID: 1, PeriodStart: 0, PeriodEnd: 300, PeriodInterval: 300,
			LearningModel: models.LearningLinear, MaxIterations: 5, UpdateRatio: 1,
		}},
		Runs: []models.Run{{ID: 1, PopulationID: 1, NetworkID: 1, ParameterSetID: 1}},
	}
}

// newTestServer builds a server over an in-memory repository.
// stateDir may be empty to disable auditing.
func newTestServer(t *testing.T, stateDir string) *Server {
	t.Helper()
	repo := store.NewMemoryStore()
	require.NoError(t, repo.Import(context.Background(), testDataset()))

	docs, err := blob.NewFileStore(filepath.Join(t.TempDir(), "documents"))
	require.NoError(t, err)

	runner := jobs.NewRunner(nil, nil, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	svc := workflow.NewService(repo, docs, runner, workflow.Options{})
	s := NewServer(&Config{Name: "test-server", Version: "v1.0.0", StateDir: stateDir}, svc)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, "")

	assert.NotNil(t, s.server)
	assert.NotNil(t, s.svc)
	assert.Nil(t, s.auditLogger, "auditing is disabled without a state dir")
}

func TestNewServer_CreatesAuditLog(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), ".metrosim")
	s := newTestServer(t, stateDir)

	require.NotNil(t, s.auditLogger)
	assert.FileExists(t, filepath.Join(stateDir, AuditFile))
}

func TestClose(t *testing.T) {
	s := newTestServer(t, t.TempDir())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "Close is idempotent")
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	s := newTestServer(t, "")

	for _, tool := range []string{toolGenerate, toolClearAgents, toolWriteInput, toolIngest, toolJobStatus, toolRunStatus} {
		assert.Contains(t, s.toolLimiters, tool)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	s := newTestServer(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "Run did not return after context cancellation")
	}
}
