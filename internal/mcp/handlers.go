package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ratelimit"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

const (
	toolGenerate    = "metrosim_generate"
	toolClearAgents = "metrosim_clear_agents"
	toolWriteInput  = "metrosim_write_input"
	toolIngest      = "metrosim_ingest"
	toolJobStatus   = "metrosim_job_status"
	toolRunStatus   = "metrosim_run_status"
)

// registerTools registers all metrosim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolGenerate,
		Description: "Synthesize the agents of a population from its segments",
	}, s.handleGenerate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolClearAgents,
		Description: "Delete every agent of a population so it can be generated again",
	}, s.handleClearAgents)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolWriteInput,
		Description: "Write the simulator input documents of a run",
	}, s.handleWriteInput)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolIngest,
		Description: "Read a run's simulator output and store its results",
	}, s.handleIngest)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolJobStatus,
		Description: "Get the status of a job started by another metrosim tool",
	}, s.handleJobStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolRunStatus,
		Description: "Get a run's lifecycle status and, once ingested, a summary of its results",
	}, s.handleRunStatus)
}

func (s *Server) handleGenerate(ctx context.Context, req *sdk.CallToolRequest, args GenerateInput) (_ *sdk.CallToolResult, out JobOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolGenerate, start, out.ID, retErr, sanitizeToolParams(map[string]any{
			"population_id": args.PopulationID, "seed": seedParam(args.Seed), "wait": args.Wait,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolGenerate); err != nil {
		return nil, JobOutput{}, err
	}

	task, err := s.svc.GenerateTask(ctx, args.PopulationID, args.Seed)
	if err != nil {
		return nil, JobOutput{}, toolError(err)
	}
	return s.start(ctx, task, args.Wait)
}

func (s *Server) handleClearAgents(ctx context.Context, req *sdk.CallToolRequest, args ClearAgentsInput) (_ *sdk.CallToolResult, out JobOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolClearAgents, start, out.ID, retErr, sanitizeToolParams(map[string]any{
			"population_id": args.PopulationID, "wait": args.Wait,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolClearAgents); err != nil {
		return nil, JobOutput{}, err
	}

	task, err := s.svc.ClearAgentsTask(ctx, args.PopulationID)
	if err != nil {
		return nil, JobOutput{}, toolError(err)
	}
	return s.start(ctx, task, args.Wait)
}

func (s *Server) handleWriteInput(ctx context.Context, req *sdk.CallToolRequest, args WriteInputInput) (_ *sdk.CallToolResult, out JobOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolWriteInput, start, out.ID, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "wait": args.Wait,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolWriteInput); err != nil {
		return nil, JobOutput{}, err
	}

	task, err := s.svc.WriteInputTask(ctx, args.RunID)
	if err != nil {
		return nil, JobOutput{}, toolError(err)
	}
	return s.start(ctx, task, args.Wait)
}

func (s *Server) handleIngest(ctx context.Context, req *sdk.CallToolRequest, args IngestInput) (_ *sdk.CallToolResult, out JobOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolIngest, start, out.ID, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "output": args.Output, "wait": args.Wait,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolIngest); err != nil {
		return nil, JobOutput{}, err
	}

	task, err := s.svc.IngestTask(ctx, args.RunID, args.Output)
	if err != nil {
		return nil, JobOutput{}, toolError(err)
	}
	return s.start(ctx, task, args.Wait)
}

func (s *Server) handleJobStatus(ctx context.Context, req *sdk.CallToolRequest, args JobStatusInput) (_ *sdk.CallToolResult, out JobOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolJobStatus, start, args.JobID, retErr, sanitizeToolParams(map[string]any{
			"job_id": args.JobID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolJobStatus); err != nil {
		return nil, JobOutput{}, err
	}

	job, ok := s.svc.Job(args.JobID)
	if !ok {
		return nil, JobOutput{}, fmt.Errorf("job %q not found", args.JobID)
	}
	return nil, jobOutput(job), nil
}

func (s *Server) handleRunStatus(ctx context.Context, req *sdk.CallToolRequest, args RunStatusInput) (_ *sdk.CallToolResult, out RunStatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(toolRunStatus, start, "", retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolRunStatus); err != nil {
		return nil, RunStatusOutput{}, err
	}

	repo := s.svc.Repository()
	run, err := repo.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, RunStatusOutput{}, toolError(err)
	}

	out = RunStatusOutput{
		RunID:      run.ID,
		Status:     string(run.Status),
		InputPath:  run.InputPath,
		OutputPath: run.OutputPath,
	}
	if run.Status == models.RunIngested {
		results, err := repo.ListAgentResults(ctx, run.ID)
		if err != nil {
			return nil, RunStatusOutput{}, toolError(err)
		}
		summary := models.Summarize(results)
		out.Summary = &summary
	}
	return nil, out, nil
}

// start submits task, or runs it to completion when wait is set. A job that
// ran and failed is reported through its status, not as a tool error.
func (s *Server) start(ctx context.Context, task workflow.Task, wait bool) (*sdk.CallToolResult, JobOutput, error) {
	if wait {
		job, err := s.svc.Run(ctx, task)
		if job.ID == "" && err != nil {
			return nil, JobOutput{}, toolError(err)
		}
		return nil, jobOutput(job), nil
	}

	job, err := s.svc.Submit(task)
	if err != nil {
		return nil, JobOutput{}, toolError(err)
	}
	return nil, jobOutput(job), nil
}

// toolError keeps the sentinel chain but leads with the user-facing message.
func toolError(err error) error {
	msg := simerr.Describe(err)
	if msg == err.Error() {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func seedParam(seed *int64) any {
	if seed == nil {
		return nil
	}
	return *seed
}
