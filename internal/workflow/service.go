// Package workflow wires the translation layer together: it reads inputs
// from the repository, runs synthesis, assembly and ingestion, and writes the
// results back. Every operation is also available as a job.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/blob"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/document"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/graph"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/ingest"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/logging"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/metrics"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/synthesis"
)

// Service runs the translation operations against one repository and one
// document store.
type Service struct {
	repo     store.Repository
	docs     blob.Store
	runner   *jobs.Runner
	logger   *slog.Logger
	compress bool
}

// Options configures a Service.
type Options struct {
	// Compress writes input documents gzip-compressed.
	Compress bool
	Logger   *slog.Logger
}

// NewService creates a Service. runner may be shared with other services.
func NewService(repo store.Repository, docs blob.Store, runner *jobs.Runner, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:     repo,
		docs:     docs,
		runner:   runner,
		logger:   logger,
		compress: opts.Compress,
	}
}

// Repository returns the underlying store.
func (s *Service) Repository() store.Repository {
	return s.repo
}

// GenerateResult describes a finished synthesis.
type GenerateResult struct {
	PopulationID int64 `json:"population_id"`
	Agents       int   `json:"agents"`
	Seed         int64 `json:"seed"`
}

// GeneratePopulation synthesizes and stores the agents of a population.
//
// The seed is, in order of preference: the seed argument, the population's
// recorded seed, or a fresh one. The seed actually used is stored with the
// agents. Nothing is stored unless every agent was created.
func (s *Service) GeneratePopulation(ctx context.Context, populationID int64, seed *int64) (*GenerateResult, error) {
	pop, err := s.repo.GetPopulation(ctx, populationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load population: %w", err)
	}
	if pop.Generated {
		return nil, fmt.Errorf("population %d: %w", pop.ID, simerr.ErrAlreadyGenerated)
	}

	used := resolveSeed(seed, pop.RandomSeed)
	segments, err := s.loadSegments(ctx, pop.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("synthesizing population", "population", pop.ID, "segments", len(segments), "seed", used)
	agents, err := synthesis.Synthesize(ctx, pop.ID, segments, sampling.NewRand(used))
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize population %d: %w", pop.ID, err)
	}

	if err := s.repo.SaveAgents(ctx, pop.ID, used, agents); err != nil {
		return nil, fmt.Errorf("failed to save agents: %w", err)
	}
	metrics.AgentsSynthesized.Add(float64(len(agents)))
	s.logger.Info("population generated", "population", pop.ID, "agents", len(agents), "seed", used)

	return &GenerateResult{PopulationID: pop.ID, Agents: len(agents), Seed: used}, nil
}

func resolveSeed(explicit, recorded *int64) int64 {
	switch {
	case explicit != nil:
		return *explicit
	case recorded != nil:
		return *recorded
	default:
		return sampling.NewSeed()
	}
}

func (s *Service) loadSegments(ctx context.Context, populationID int64) ([]synthesis.Segment, error) {
	rows, err := s.repo.ListSegments(ctx, populationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	segments := make([]synthesis.Segment, 0, len(rows))
	for _, row := range rows {
		prefs, err := s.repo.GetPreferences(ctx, row.PreferencesID)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", row.ID, err)
		}
		pairs, err := s.repo.ListODPairs(ctx, row.MatrixID)
		if err != nil {
			return nil, fmt.Errorf("segment %d: failed to list OD pairs: %w", row.ID, err)
		}
		segments = append(segments, synthesis.Segment{Preferences: *prefs, Pairs: pairs})
	}
	return segments, nil
}

// ClearAgents deletes a population's agents so it can be generated again.
func (s *Service) ClearAgents(ctx context.Context, populationID int64) (int, error) {
	n, err := s.repo.DeleteAgents(ctx, populationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete agents: %w", err)
	}
	s.logger.Info("agents cleared", "population", populationID, "agents", n)
	return n, nil
}

// WriteInputResult describes a written input document.
type WriteInputResult struct {
	RunID  int64           `json:"run_id"`
	Path   string          `json:"path"`
	Report document.Report `json:"report"`
}

// WriteInput assembles the run's input document, stores it and marks the run
// input_written. On failure the run is marked failed.
func (s *Service) WriteInput(ctx context.Context, runID int64) (*WriteInputResult, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	res, err := s.writeInput(ctx, run)
	if err != nil {
		s.markFailed(run.ID, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) writeInput(ctx context.Context, run *models.Run) (*WriteInputResult, error) {
	pop, err := s.repo.GetPopulation(ctx, run.PopulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load population: %w", err)
	}
	if !pop.Generated {
		return nil, simerr.Configf("population %d has no agents; generate it first", pop.ID)
	}
	params, err := s.repo.GetParameterSet(ctx, run.ParameterSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	g, err := s.buildGraph(ctx, run.NetworkID)
	if err != nil {
		return nil, err
	}
	zones, err := s.repo.ListZones(ctx, run.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	vehicles, err := s.repo.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	agents, err := s.repo.ListAgents(ctx, pop.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	input, report, err := document.Assemble(document.AssembleInput{
		Graph:      g,
		Agents:     agents,
		Zones:      zones,
		Vehicles:   vehicles,
		Parameters: *params,
		Seed:       document.RunSeed(*run),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble input for run %d: %w", run.ID, err)
	}
	if report.SkippedCar > 0 {
		metrics.AgentsSkipped.Add(float64(report.SkippedCar))
		s.logger.Warn("agents without a resolvable origin or destination get no car mode",
			"run", run.ID, "skipped", report.SkippedCar)
	}

	path, err := s.docs.Write(ctx, blob.RunInputName(run.ID, s.compress), input)
	if err != nil {
		return nil, fmt.Errorf("failed to write input document: %w", err)
	}
	if err := s.repo.SetRunInput(ctx, run.ID, path, generationOf(pop, len(agents))); err != nil {
		return nil, fmt.Errorf("failed to record input document: %w", err)
	}
	s.logger.Info("input written", "run", run.ID, "agents", report.Agents,
		"car_agents", report.CarAgents, "path", blob.RedactPath(path))

	return &WriteInputResult{RunID: run.ID, Path: path, Report: report}, nil
}

// generationOf stamps the current agents of a generated population.
func generationOf(pop *models.Population, agents int) models.Generation {
	gen := models.Generation{Agents: agents}
	if pop.RandomSeed != nil {
		gen.Seed = *pop.RandomSeed
	}
	return gen
}

// checkGeneration fails when the population's agents are no longer the ones
// the run's input was assembled from. Output records pair with agents by
// position. Runs without a recorded input are not checked.
func checkGeneration(run *models.Run, pop *models.Population, agents int) error {
	want := run.InputGeneration
	if want == nil {
		return nil
	}
	if !pop.Generated {
		return simerr.Assertf("population %d has no agents, but the input of run %d was written for %d agents (seed %d)",
			pop.ID, run.ID, want.Agents, want.Seed)
	}
	if got := generationOf(pop, agents); got != *want {
		return simerr.Assertf("population %d was regenerated after the input of run %d was written: "+
			"now %d agents (seed %d), input had %d agents (seed %d)",
			pop.ID, run.ID, got.Agents, got.Seed, want.Agents, want.Seed)
	}
	return nil
}

// IngestResult describes an ingested output document.
type IngestResult struct {
	RunID        int64             `json:"run_id"`
	Path         string            `json:"path"`
	AgentResults int               `json:"agent_results"`
	PathSegments int               `json:"path_segments"`
	EdgeResults  int               `json:"edge_results"`
	Summary      models.RunSummary `json:"summary"`
}

// Ingest reads the run's output document and replaces the run's results with
// its contents. An empty output name selects runs/<id>/output.json, falling
// back to output.json.gz. On failure the run is marked failed and any
// previous results are kept.
func (s *Service) Ingest(ctx context.Context, runID int64, output string) (*IngestResult, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	res, err := s.ingest(ctx, run, output)
	if err != nil {
		s.markFailed(run.ID, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) ingest(ctx context.Context, run *models.Run, output string) (*IngestResult, error) {
	var out document.Output
	name, err := s.readOutput(ctx, run.ID, output, &out)
	if err != nil {
		return nil, err
	}
	path, err := s.docs.Path(name)
	if err != nil {
		return nil, err
	}

	params, err := s.repo.GetParameterSet(ctx, run.ParameterSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	g, err := s.buildGraph(ctx, run.NetworkID)
	if err != nil {
		return nil, err
	}
	pop, err := s.repo.GetPopulation(ctx, run.PopulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load population: %w", err)
	}
	agents, err := s.repo.ListAgents(ctx, pop.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if err := checkGeneration(run, pop, len(agents)); err != nil {
		return nil, err
	}

	results, err := ingest.Ingest(g, agents, *params, &out, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest output of run %d: %w", run.ID, err)
	}
	if err := s.repo.SaveRunResults(ctx, run.ID, path, results); err != nil {
		return nil, fmt.Errorf("failed to save run results: %w", err)
	}

	segments := 0
	for _, p := range results.RoadPaths {
		segments += len(p.Segments)
	}
	metrics.ResultsIngested.WithLabelValues("agent").Add(float64(len(results.AgentResults)))
	metrics.ResultsIngested.WithLabelValues("path_segment").Add(float64(segments))
	metrics.ResultsIngested.WithLabelValues("edge").Add(float64(len(results.EdgeResults)))
	s.logger.Info("output ingested", "run", run.ID, "agents", len(results.AgentResults),
		"path_segments", segments, "edge_results", len(results.EdgeResults))

	return &IngestResult{
		RunID:        run.ID,
		Path:         path,
		AgentResults: len(results.AgentResults),
		PathSegments: segments,
		EdgeResults:  len(results.EdgeResults),
		Summary:      models.Summarize(results.AgentResults),
	}, nil
}

func (s *Service) readOutput(ctx context.Context, runID int64, output string, out *document.Output) (string, error) {
	if output != "" {
		if err := s.docs.Read(ctx, output, out); err != nil {
			return "", fmt.Errorf("failed to read output document: %w", err)
		}
		return output, nil
	}

	plain := blob.RunOutputName(runID, false)
	err := s.docs.Read(ctx, plain, out)
	if err == nil {
		return plain, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read output document: %w", err)
	}
	compressed := blob.RunOutputName(runID, true)
	if err := s.docs.Read(ctx, compressed, out); err != nil {
		return "", fmt.Errorf("failed to read output document: %w", err)
	}
	return compressed, nil
}

func (s *Service) buildGraph(ctx context.Context, networkID int64) (*graph.Graph, error) {
	if _, err := s.repo.GetNetwork(ctx, networkID); err != nil {
		return nil, fmt.Errorf("failed to load network: %w", err)
	}
	nodes, err := s.repo.ListNodes(ctx, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	edges, err := s.repo.ListEdges(ctx, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	roadTypes, err := s.repo.ListRoadTypes(ctx, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list road types: %w", err)
	}
	g, err := graph.Build(nodes, edges, roadTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph of network %d: %w", networkID, err)
	}
	return g, nil
}

// markFailed records a failed run. It uses a fresh context so a cancelled job
// still leaves the run marked.
func (s *Service) markFailed(runID int64, cause error) {
	if err := s.repo.SetRunStatus(context.Background(), runID, models.RunFailed); err != nil {
		s.logger.Warn("failed to mark run failed", "run", runID, "error", err, "cause", cause)
	}
}
