package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/blob"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ratelimit"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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
		ODPairs:     []models.ODPair{{ID: 1, MatrixID: 1, Origin: 1, Destination: 2, Size: 4}},
		Populations: []models.Population{{ID: 1, NetworkID: 1, Name: "p"}},
		Segments:    []models.Segment{{ID: 1, PopulationID: 1, PreferencesID: 1, MatrixID: 1}},
		ParameterSets: []models.ParameterSet{{
			ID: 1, PeriodStart: 0, PeriodEnd: 300, PeriodInterval: 300,
			LearningModel: models.LearningLinear, MaxIterations: 5, UpdateRatio: 1,
		}},
		Runs: []models.Run{{ID: 1, PopulationID: 1, NetworkID: 1, ParameterSetID: 1}},
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *workflow.Service) {
	t.Helper()
	s := newTestServer(t)
	return s.Router(), s.svc
}

func newTestServer(t *testing.T) *Server {
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
	return New(svc, nil, "test")
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) jobs.Job {
	t.Helper()
	var job jobs.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	return job
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/v1/populations/1/generate?wait=true", "")

	w := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "metrosim_jobs_total")
}

func TestGenerateAsync(t *testing.T) {
	r, svc := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/populations/1/generate", `{"seed": 8}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decodeJob(t, w)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, "/v1/jobs/"+job.ID, w.Header().Get("Location"))

	done, err := svc.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusSucceeded, done.Status)

	w = do(t, r, http.MethodGet, "/v1/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeJob(t, w)
	assert.Equal(t, "generated 4 agents for population 1 (seed 8)", got.Message)
}

func TestGenerateWaitReportsFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/populations/1/generate?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jobs.StatusSucceeded, decodeJob(t, w).Status)

	w = do(t, r, http.MethodPost, "/v1/populations/1/generate?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	job := decodeJob(t, w)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "agents have already been generated for this population", job.Message)
}

func TestWriteInputAndRunStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/populations/1/generate?wait=true", "").Code)

	w := do(t, r, http.MethodPost, "/v1/runs/1/input?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jobs.StatusSucceeded, decodeJob(t, w).Status)

	w = do(t, r, http.MethodGet, "/v1/runs/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, models.RunInputWritten, run.Status)
	assert.NotEmpty(t, run.InputPath)

	w = do(t, r, http.MethodDelete, "/v1/populations/1/agents?wait=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deleted 4 agents of population 1", decodeJob(t, w).Message)
}

func TestIngestMissingOutputFailsJob(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/runs/1/ingest?wait=true", `{"output": "nowhere.json"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jobs.StatusFailed, decodeJob(t, w).Status)
}

func TestBusyTargetConflicts(t *testing.T) {
	r, svc := newTestRouter(t)

	release := make(chan struct{})
	_, err := svc.Submit(workflow.Task{
		Kind:   jobs.KindGenerate,
		Target: workflow.PopulationTarget(1),
		Func: func(ctx context.Context) (string, error) {
			<-release
			return "", nil
		},
	})
	require.NoError(t, err)
	defer close(release)

	w := do(t, r, http.MethodPost, "/v1/populations/1/generate", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "another job is already running")

	w = do(t, r, http.MethodPost, "/v1/populations/1/generate?wait=true", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown population", http.MethodPost, "/v1/populations/9/generate", "", http.StatusNotFound},
		{"unknown run", http.MethodPost, "/v1/runs/9/input", "", http.StatusNotFound},
		{"unknown run status", http.MethodGet, "/v1/runs/9", "", http.StatusNotFound},
		{"unknown job", http.MethodGet, "/v1/jobs/nope", "", http.StatusNotFound},
		{"bad id", http.MethodPost, "/v1/runs/abc/ingest", "", http.StatusBadRequest},
		{"negative id", http.MethodDelete, "/v1/populations/-1/agents", "", http.StatusBadRequest},
		{"bad body", http.MethodPost, "/v1/populations/1/generate", `{"seed": "x"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRateLimitPerClient(t *testing.T) {
	s := newTestServer(t)
	s.limiter = ratelimit.NewLimiter(0, 2)
	r := s.Router()

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/v1/runs/1", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/v1/runs/1", "").Code)

	w := do(t, r, http.MethodGet, "/v1/runs/1", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/1", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	r.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/health", "").Code)
}
