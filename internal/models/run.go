package models

// LearningModelKind selects the day-to-day learning rule of the simulator.
type LearningModelKind string

const (
	LearningExponential LearningModelKind = "Exponential"
	LearningLinear      LearningModelKind = "Linear"
	LearningQuadratic   LearningModelKind = "Quadratic"
)

// ParameterSet holds the global simulation parameters of a run.
// Times are in seconds after midnight.
type ParameterSet struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	PeriodStart    float64 `json:"period_start" yaml:"period_start"`
	PeriodEnd      float64 `json:"period_end" yaml:"period_end"`
	PeriodInterval float64 `json:"period_interval" yaml:"period_interval"`

	LearningModel LearningModelKind `json:"learning_model" yaml:"learning_model"`
	LearningAlpha float64           `json:"learning_alpha,omitempty" yaml:"learning_alpha,omitempty"`

	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
	UpdateRatio   float64 `json:"update_ratio" yaml:"update_ratio"`

	EdgeApproxBound  float64 `json:"edge_approx_bound" yaml:"edge_approx_bound"`
	SpaceApproxBound float64 `json:"space_approx_bound" yaml:"space_approx_bound"`
}

// RunStatus tracks where a run is in the document round trip.
type RunStatus string

const (
	RunCreated      RunStatus = "created"
	RunInputWritten RunStatus = "input_written"
	RunIngested     RunStatus = "ingested"
	RunFailed       RunStatus = "failed"
)

// Run binds a population, a network and a parameter set.
type Run struct {
	ID             int64  `json:"id" yaml:"id"`
	ProjectID      int64  `json:"project_id" yaml:"project_id"`
	Name           string `json:"name" yaml:"name"`
	PopulationID   int64  `json:"population_id" yaml:"population_id"`
	NetworkID      int64  `json:"network_id" yaml:"network_id"`
	ParameterSetID int64  `json:"parameter_set_id" yaml:"parameter_set_id"`

	RandomSeed *int64    `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
	Status     RunStatus `json:"status" yaml:"status"`
	InputPath  string    `json:"input_path,omitempty" yaml:"input_path,omitempty"`
	OutputPath string    `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// InputGeneration is the population generation the input document was
	// assembled from. Nil until an input is written.
	InputGeneration *Generation `json:"input_generation,omitempty" yaml:"input_generation,omitempty"`
}

// Generation identifies one synthesis of a population's agents. Synthesis is
// deterministic given the seed, so two generations with the same seed and
// agent count hold the same agents.
type Generation struct {
	Seed   int64 `json:"seed" yaml:"seed"`
	Agents int   `json:"agents" yaml:"agents"`
}

// AgentResult is the simulated outcome for one agent.
type AgentResult struct {
	RunID         int64   `json:"run_id"`
	AgentID       int64   `json:"agent_id"`
	Mode          string  `json:"mode"`
	Utility       float64 `json:"utility"`
	DepartureTime float64 `json:"departure_time"`
	ArrivalTime   float64 `json:"arrival_time"`
	TravelTime    float64 `json:"travel_time"`
	Surplus       float64 `json:"surplus"`

	// ExpectedArrivalTime is only set for Car agents.
	ExpectedArrivalTime *float64 `json:"expected_arrival_time,omitempty"`
}

// PathSegment is one edge traversal of a realized route.
type PathSegment struct {
	EdgeID     int64   `json:"edge_id"`
	EntryTime  float64 `json:"entry_time"`
	TravelTime float64 `json:"travel_time"`
}

// AgentRoadPath is the realized route of a Car agent.
type AgentRoadPath struct {
	RunID    int64         `json:"run_id"`
	AgentID  int64         `json:"agent_id"`
	Segments []PathSegment `json:"segments"`
}

// EdgeResult is one time sample of an edge's simulated conditions.
//
// Congestion is not computed by the translation layer and is always zero.
type EdgeResult struct {
	RunID      int64   `json:"run_id"`
	EdgeID     int64   `json:"edge_id"`
	Time       float64 `json:"time"`
	Congestion float64 `json:"congestion"`
	TravelTime float64 `json:"travel_time"`
	Speed      float64 `json:"speed"`
}

// RunResults is everything ingested for one run.
type RunResults struct {
	AgentResults []AgentResult   `json:"agent_results"`
	RoadPaths    []AgentRoadPath `json:"road_paths"`
	EdgeResults  []EdgeResult    `json:"edge_results"`
}

// RunSummary aggregates a run's agent results.
type RunSummary struct {
	Agents            int     `json:"agents"`
	CarAgents         int     `json:"car_agents"`
	MeanUtility       float64 `json:"mean_utility"`
	MeanSurplus       float64 `json:"mean_surplus"`
	MeanDepartureTime float64 `json:"mean_departure_time"`
	MeanTravelTime    float64 `json:"mean_travel_time"`
}

// Summarize aggregates results. Means are zero for an empty slice.
func Summarize(results []AgentResult) RunSummary {
	s := RunSummary{Agents: len(results)}
	if len(results) == 0 {
		return s
	}
	for _, r := range results {
		if r.Mode == "Car" {
			s.CarAgents++
		}
		s.MeanUtility += r.Utility
		s.MeanSurplus += r.Surplus
		s.MeanDepartureTime += r.DepartureTime
		s.MeanTravelTime += r.TravelTime
	}
	n := float64(len(results))
	s.MeanUtility /= n
	s.MeanSurplus /= n
	s.MeanDepartureTime /= n
	s.MeanTravelTime /= n
	return s
}
