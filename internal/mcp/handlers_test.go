package mcp

import (
	"context"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ratelimit"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

func TestHandleGenerate_Wait(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, out, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{
		PopulationID: 1, Seed: ptr(int64(5)), Wait: true,
	})
	require.NoError(t, err)
	require.Equal(t, string(jobs.StatusSucceeded), out.Status, out.Message)
	assert.Equal(t, "generated 3 agents for population 1 (seed 5)", out.Message)
	assert.Equal(t, workflow.PopulationTarget(1), out.Target)
	assert.Equal(t, []string{workflow.PopulationTarget(1)}, out.Claims)
	assert.NotNil(t, out.FinishedAt, "expected finished_at on a completed job")
}

func TestHandleGenerate_AlreadyGeneratedIsJobFailure(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, _, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1, Wait: true})
	require.NoError(t, err)

	_, out, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1, Wait: true})
	require.NoError(t, err, "a failed job is not a tool error")
	assert.Equal(t, string(jobs.StatusFailed), out.Status)
	assert.Equal(t, "agents have already been generated for this population", out.Message)
}

func TestHandleGenerate_UnknownPopulation(t *testing.T) {
	s := newTestServer(t, "")

	_, _, err := s.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{PopulationID: 42})
	assert.ErrorIs(t, err, simerr.ErrNotFound)
}

func TestHandleSubmitAndJobStatus(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, started, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1})
	require.NoError(t, err)
	require.NotEmpty(t, started.ID)
	_, err = s.svc.Wait(ctx, started.ID)
	require.NoError(t, err)

	_, out, err := s.handleJobStatus(ctx, &sdk.CallToolRequest{}, JobStatusInput{JobID: started.ID})
	require.NoError(t, err)
	assert.Equal(t, string(jobs.StatusSucceeded), out.Status)
	assert.Equal(t, string(jobs.KindGenerate), out.Kind)

	_, _, err = s.handleJobStatus(ctx, &sdk.CallToolRequest{}, JobStatusInput{JobID: "missing"})
	assert.Error(t, err, "expected error for unknown job")
}

func TestHandleBusyTarget(t *testing.T) {
	s := newTestServer(t, "")

	release := make(chan struct{})
	defer close(release)
	_, err := s.svc.Submit(workflow.Task{
		Kind:   jobs.KindGenerate,
		Target: workflow.PopulationTarget(1),
		Func: func(ctx context.Context) (string, error) {
			<-release
			return "", nil
		},
	})
	require.NoError(t, err)

	for _, wait := range []bool{false, true} {
		_, _, err := s.handleClearAgents(context.Background(), &sdk.CallToolRequest{}, ClearAgentsInput{PopulationID: 1, Wait: wait})
		if assert.ErrorIs(t, err, simerr.ErrJobInFlight, "wait=%v", wait) {
			assert.Regexp(t, "^another job is already running", err.Error(), "wait=%v", wait)
		}
	}
}

func TestHandleBusyPopulationBlocksRunJobs(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, _, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1, Wait: true})
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	_, err = s.svc.Submit(workflow.Task{
		Kind:   jobs.KindClearAgents,
		Target: workflow.PopulationTarget(1),
		Func: func(ctx context.Context) (string, error) {
			<-release
			return "", nil
		},
	})
	require.NoError(t, err)

	_, _, err = s.handleWriteInput(ctx, &sdk.CallToolRequest{}, WriteInputInput{RunID: 1})
	assert.ErrorIs(t, err, simerr.ErrJobInFlight)
	_, _, err = s.handleIngest(ctx, &sdk.CallToolRequest{}, IngestInput{RunID: 1})
	assert.ErrorIs(t, err, simerr.ErrJobInFlight)
}

func TestHandleRunLifecycle(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, out, err := s.handleRunStatus(ctx, &sdk.CallToolRequest{}, RunStatusInput{RunID: 1})
	require.NoError(t, err)
	assert.Equal(t, string(models.RunCreated), out.Status)

	_, _, err = s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1, Wait: true})
	require.NoError(t, err)
	_, job, err := s.handleWriteInput(ctx, &sdk.CallToolRequest{}, WriteInputInput{RunID: 1, Wait: true})
	require.NoError(t, err)
	require.Equal(t, string(jobs.StatusSucceeded), job.Status, job.Message)
	assert.Equal(t, []string{workflow.RunTarget(1), workflow.PopulationTarget(1)}, job.Claims)

	_, out, err = s.handleRunStatus(ctx, &sdk.CallToolRequest{}, RunStatusInput{RunID: 1})
	require.NoError(t, err)
	assert.Equal(t, string(models.RunInputWritten), out.Status)
	assert.NotEmpty(t, out.InputPath)
	assert.Nil(t, out.Summary, "expected no summary before ingestion")

	_, job, err = s.handleIngest(ctx, &sdk.CallToolRequest{}, IngestInput{RunID: 1, Output: "runs/1/missing.json", Wait: true})
	require.NoError(t, err, "a failed job is not a tool error")
	assert.Equal(t, string(jobs.StatusFailed), job.Status)

	_, out, err = s.handleRunStatus(ctx, &sdk.CallToolRequest{}, RunStatusInput{RunID: 1})
	require.NoError(t, err)
	assert.Equal(t, string(models.RunFailed), out.Status)
}

func TestHandleRunStatus_UnknownRun(t *testing.T) {
	s := newTestServer(t, "")

	_, _, err := s.handleRunStatus(context.Background(), &sdk.CallToolRequest{}, RunStatusInput{RunID: 99})
	assert.ErrorIs(t, err, simerr.ErrNotFound)
}

func TestHandleJobStatus_RateLimited(t *testing.T) {
	s := newTestServer(t, "")
	s.toolLimiters = ratelimit.ToolLimiters{
		toolJobStatus: ratelimit.NewLimiter(0, 1),
	}

	_, _, _ = s.handleJobStatus(context.Background(), &sdk.CallToolRequest{}, JobStatusInput{JobID: "x"})
	_, _, err := s.handleJobStatus(context.Background(), &sdk.CallToolRequest{}, JobStatusInput{JobID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestHandlers_AuditEntries(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)
	ctx := context.Background()

	_, job, err := s.handleGenerate(ctx, &sdk.CallToolRequest{}, GenerateInput{PopulationID: 1, Seed: ptr(int64(3)), Wait: true})
	require.NoError(t, err)
	_, _, _ = s.handleIngest(ctx, &sdk.CallToolRequest{}, IngestInput{RunID: 77, Output: "private/out.json"})
	s.auditLogger.Close()

	entries := readAuditEntries(t, dir)
	require.Len(t, entries, 2)

	gen := entries[0]
	assert.Equal(t, toolGenerate, gen.Tool)
	assert.Equal(t, "success", gen.Status)
	assert.Equal(t, job.ID, gen.JobID)
	assert.Equal(t, "3", gen.Params["seed"])
	assert.Equal(t, "1", gen.Params["population_id"])

	ing := entries[1]
	assert.Equal(t, toolIngest, ing.Tool)
	assert.Equal(t, "error", ing.Status)
	assert.Equal(t, "(set)", ing.Params["output"])
}
