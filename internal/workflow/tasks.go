package workflow

import (
	"context"
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
)

// Task is an operation bound to its arguments, ready to hand to the runner.
type Task struct {
	Kind   jobs.Kind
	Target string
	// Also lists further targets the job holds while it runs.
	Also []string
	Func jobs.Func
}

// PopulationTarget is the job target for work on a population's agents.
func PopulationTarget(id int64) string {
	return fmt.Sprintf("population:%d", id)
}

// RunTarget is the job target for work on a run.
func RunTarget(id int64) string {
	return fmt.Sprintf("run:%d", id)
}

// GenerateTask synthesizes a population. The population must exist.
func (s *Service) GenerateTask(ctx context.Context, populationID int64, seed *int64) (Task, error) {
	if _, err := s.repo.GetPopulation(ctx, populationID); err != nil {
		return Task{}, err
	}
	return Task{
		Kind:   jobs.KindGenerate,
		Target: PopulationTarget(populationID),
		Func: func(ctx context.Context) (string, error) {
			res, err := s.GeneratePopulation(ctx, populationID, seed)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("generated %d agents for population %d (seed %d)",
				res.Agents, res.PopulationID, res.Seed), nil
		},
	}, nil
}

// ClearAgentsTask deletes a population's agents. The population must exist.
func (s *Service) ClearAgentsTask(ctx context.Context, populationID int64) (Task, error) {
	if _, err := s.repo.GetPopulation(ctx, populationID); err != nil {
		return Task{}, err
	}
	return Task{
		Kind:   jobs.KindClearAgents,
		Target: PopulationTarget(populationID),
		Func: func(ctx context.Context) (string, error) {
			n, err := s.ClearAgents(ctx, populationID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("deleted %d agents of population %d", n, populationID), nil
		},
	}, nil
}

// WriteInputTask writes a run's input document. The run must exist. The job
// also holds the run's population so its agents cannot change underneath.
func (s *Service) WriteInputTask(ctx context.Context, runID int64) (Task, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return Task{}, err
	}
	return Task{
		Kind:   jobs.KindWriteInput,
		Target: RunTarget(runID),
		Also:   []string{PopulationTarget(run.PopulationID)},
		Func: func(ctx context.Context) (string, error) {
			res, err := s.WriteInput(ctx, runID)
			if err != nil {
				return "", err
			}
			r := res.Report
			return fmt.Sprintf("wrote input of run %d: %d agents, %d with a car mode, %d skipped",
				res.RunID, r.Agents, r.CarAgents, r.SkippedCar), nil
		},
	}, nil
}

// IngestTask ingests a run's output document. The run must exist. Like
// WriteInputTask it also holds the run's population.
func (s *Service) IngestTask(ctx context.Context, runID int64, output string) (Task, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return Task{}, err
	}
	return Task{
		Kind:   jobs.KindIngest,
		Target: RunTarget(runID),
		Also:   []string{PopulationTarget(run.PopulationID)},
		Func: func(ctx context.Context) (string, error) {
			res, err := s.Ingest(ctx, runID, output)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("ingested run %d: %d agent results, %d path segments, %d edge results",
				res.RunID, res.AgentResults, res.PathSegments, res.EdgeResults), nil
		},
	}, nil
}

// Submit starts t in the background.
func (s *Service) Submit(t Task) (jobs.Job, error) {
	return s.runner.Submit(t.Kind, t.Target, t.Func, t.Also...)
}

// Run executes t on the calling goroutine.
func (s *Service) Run(ctx context.Context, t Task) (jobs.Job, error) {
	return s.runner.Run(ctx, t.Kind, t.Target, t.Func, t.Also...)
}

// Job returns a tracked job.
func (s *Service) Job(id string) (jobs.Job, bool) {
	return s.runner.Get(id)
}

// Wait blocks until a tracked job finishes.
func (s *Service) Wait(ctx context.Context, id string) (jobs.Job, error) {
	return s.runner.Wait(ctx, id)
}
