package mcp

import (
	"time"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
)

// GenerateInput defines the input for the metrosim_generate tool.
type GenerateInput struct {
	PopulationID int64  `json:"population_id" jsonschema:"Id of the population to synthesize agents for"`
	Seed         *int64 `json:"seed,omitempty" jsonschema:"Random seed; defaults to the population's recorded seed or a fresh one"`
	Wait         bool   `json:"wait,omitempty" jsonschema:"Run to completion before returning (default: false)"`
}

// ClearAgentsInput defines the input for the metrosim_clear_agents tool.
type ClearAgentsInput struct {
	PopulationID int64 `json:"population_id" jsonschema:"Id of the population whose agents are deleted"`
	Wait         bool  `json:"wait,omitempty" jsonschema:"Run to completion before returning (default: false)"`
}

// WriteInputInput defines the input for the metrosim_write_input tool.
type WriteInputInput struct {
	RunID int64 `json:"run_id" jsonschema:"Id of the run to write the simulator input for"`
	Wait  bool  `json:"wait,omitempty" jsonschema:"Run to completion before returning (default: false)"`
}

// IngestInput defines the input for the metrosim_ingest tool.
type IngestInput struct {
	RunID  int64  `json:"run_id" jsonschema:"Id of the run whose output is ingested"`
	Output string `json:"output,omitempty" jsonschema:"Output document name inside the document directory; defaults to runs/<id>/output.json"`
	Wait   bool   `json:"wait,omitempty" jsonschema:"Run to completion before returning (default: false)"`
}

// JobOutput describes a job started or inspected through MCP.
type JobOutput struct {
	ID         string     `json:"id" jsonschema:"Job id"`
	Kind       string     `json:"kind" jsonschema:"Operation the job performs"`
	Target     string     `json:"target" jsonschema:"Population or run the job works on"`
	Claims     []string   `json:"claims,omitempty" jsonschema:"Every target the job holds while it runs"`
	Status     string     `json:"status" jsonschema:"pending, running, succeeded or failed"`
	Message    string     `json:"message,omitempty" jsonschema:"Human-readable result or failure description"`
	CreatedAt  time.Time  `json:"created_at" jsonschema:"When the job was accepted"`
	FinishedAt *time.Time `json:"finished_at,omitempty" jsonschema:"When the job finished"`
}

func jobOutput(j jobs.Job) JobOutput {
	return JobOutput{
		ID:         j.ID,
		Kind:       string(j.Kind),
		Target:     j.Target,
		Claims:     j.Claims,
		Status:     string(j.Status),
		Message:    j.Message,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}

// JobStatusInput defines the input for the metrosim_job_status tool.
type JobStatusInput struct {
	JobID string `json:"job_id" jsonschema:"Id returned when the job was started"`
}

// RunStatusInput defines the input for the metrosim_run_status tool.
type RunStatusInput struct {
	RunID int64 `json:"run_id" jsonschema:"Id of the run"`
}

// RunStatusOutput reports a run's lifecycle and, once ingested, its results.
type RunStatusOutput struct {
	RunID      int64              `json:"run_id" jsonschema:"Id of the run"`
	Status     string             `json:"status" jsonschema:"created, input_written, ingested or failed"`
	InputPath  string             `json:"input_path,omitempty" jsonschema:"Input document written for the run"`
	OutputPath string             `json:"output_path,omitempty" jsonschema:"Output document ingested for the run"`
	Summary    *models.RunSummary `json:"summary,omitempty" jsonschema:"Aggregate agent results, present once ingested"`
}
