// Package store defines the repository interfaces the translation layer
// reads its inputs from and writes its results to, with SQLite and
// in-memory implementations.
package store

import (
	"context"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
)

// NetworkStore reads road networks. Lists are ordered by id; that order is
// the simulator index order.
type NetworkStore interface {
	GetNetwork(ctx context.Context, id int64) (*models.Network, error)
	ListNodes(ctx context.Context, networkID int64) ([]models.Node, error)
	ListEdges(ctx context.Context, networkID int64) ([]models.Edge, error)
	ListRoadTypes(ctx context.Context, networkID int64) ([]models.RoadType, error)
	ListZones(ctx context.Context, networkID int64) ([]models.Zone, error)
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// PopulationStore reads population definitions and owns the agent set.
type PopulationStore interface {
	GetPopulation(ctx context.Context, id int64) (*models.Population, error)
	ListSegments(ctx context.Context, populationID int64) ([]models.Segment, error)
	GetPreferences(ctx context.Context, id int64) (*models.Preferences, error)
	ListODPairs(ctx context.Context, matrixID int64) ([]models.ODPair, error)

	// SaveAgents inserts all agents, records seed on the population and marks
	// it generated, in one atomic write. It fails with
	// simerr.ErrAlreadyGenerated if the population is already generated.
	SaveAgents(ctx context.Context, populationID, seed int64, agents []models.Agent) error

	// DeleteAgents removes every agent of the population and clears its
	// generated flag. It returns the number of agents removed.
	DeleteAgents(ctx context.Context, populationID int64) (int, error)

	ListAgents(ctx context.Context, populationID int64) ([]models.Agent, error)
	CountAgents(ctx context.Context, populationID int64) (int, error)
}

// RunStore reads runs and owns their results.
type RunStore interface {
	GetRun(ctx context.Context, id int64) (*models.Run, error)
	GetParameterSet(ctx context.Context, id int64) (*models.ParameterSet, error)

	// SetRunInput records the input document path and the population
	// generation it was assembled from, and marks the run input_written.
	SetRunInput(ctx context.Context, runID int64, path string, gen models.Generation) error
	SetRunStatus(ctx context.Context, runID int64, status models.RunStatus) error

	// SaveRunResults replaces all results of the run, records the output
	// path and marks the run ingested, in one atomic write.
	SaveRunResults(ctx context.Context, runID int64, outputPath string, res *models.RunResults) error

	ListAgentResults(ctx context.Context, runID int64) ([]models.AgentResult, error)
	ListRoadPaths(ctx context.Context, runID int64) ([]models.AgentRoadPath, error)
	ListEdgeResults(ctx context.Context, runID int64) ([]models.EdgeResult, error)
}

// Repository is the full store used by the workflow service.
type Repository interface {
	NetworkStore
	PopulationStore
	RunStore

	// Import upserts every record of the dataset in one atomic write.
	Import(ctx context.Context, ds *models.Dataset) error

	// Export returns every curated record in a form Import accepts.
	// Agents and run results are not exported.
	Export(ctx context.Context) (*models.Dataset, error)
	Close() error
}
