package document

import (
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/graph"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// BaselineVehicle is appended to every vehicle list so the simulator always
// has a reference vehicle to compare against.
var BaselineVehicle = VehicleEntry{
	Name:          "base",
	Length:        1.0,
	SpeedFunction: SpeedFunction{Kind: "Base"},
}

// AssembleInput is everything the assembler reads.
type AssembleInput struct {
	Graph      *graph.Graph
	Agents     []models.Agent
	Zones      []models.Zone
	Vehicles   []models.Vehicle
	Parameters models.ParameterSet
	Seed       int64
}

// Report counts what went into an input document.
type Report struct {
	Agents     int   `json:"agents"`
	CarAgents  int   `json:"car_agents"`
	SkippedCar int   `json:"skipped_car"`
	Vehicles   int   `json:"vehicles"`
	Seed       int64 `json:"seed"`
}

// RunSeed returns the run's configured seed, or a fresh one. Call it once per
// assembly and reuse the value for everything that assembly samples.
func RunSeed(run models.Run) int64 {
	if run.RandomSeed != nil {
		return *run.RandomSeed
	}
	return sampling.NewSeed()
}

// Assemble builds the simulator input document.
//
// An agent whose origin or destination zone does not resolve to a graph node
// keeps its mode-choice and schedule data but gets no Car mode; this is
// counted in Report.SkippedCar and is not an error.
func Assemble(in AssembleInput) (*Input, Report, error) {
	rep := Report{Agents: len(in.Agents), Seed: in.Seed}
	p := in.Parameters
	if p.PeriodEnd <= p.PeriodStart {
		return nil, rep, simerr.Configf("period end %g must be after start %g", p.PeriodEnd, p.PeriodStart)
	}
	if p.PeriodInterval <= 0 {
		return nil, rep, simerr.Configf("period interval must be positive, got %g", p.PeriodInterval)
	}
	learning, err := learningModel(p)
	if err != nil {
		return nil, rep, err
	}

	zoneNodes := make(map[int64]int, len(in.Zones))
	for _, z := range in.Zones {
		if z.NodeID == nil {
			continue
		}
		if idx, ok := in.Graph.Nodes.Index(*z.NodeID); ok {
			zoneNodes[z.ID] = idx
		}
	}

	// First pass: which agents get a Car mode, and which vehicles they use.
	type od struct{ origin, destination int }
	resolved := make([]*od, len(in.Agents))
	used := make(map[int64]bool)
	for i, a := range in.Agents {
		o, okO := zoneNodes[a.Origin]
		d, okD := zoneNodes[a.Destination]
		if !okO || !okD {
			rep.SkippedCar++
			continue
		}
		resolved[i] = &od{o, d}
		used[a.VehicleID] = true
	}

	vehicleIndex := make(map[int64]int, len(used))
	vehicles := make([]VehicleEntry, 0, len(used)+1)
	for _, v := range in.Vehicles {
		if !used[v.ID] {
			continue
		}
		entry, err := vehicleEntry(v)
		if err != nil {
			return nil, rep, err
		}
		vehicleIndex[v.ID] = len(vehicles)
		vehicles = append(vehicles, entry)
	}
	vehicles = append(vehicles, BaselineVehicle)
	rep.Vehicles = len(vehicles)

	period := [2]float64{p.PeriodStart, p.PeriodEnd}
	agents := make([]AgentEntry, len(in.Agents))
	for i, a := range in.Agents {
		entry := AgentEntry{
			ID:         a.ID,
			Modes:      []ModeEntry{},
			ModeChoice: a.ModeChoice,
			ScheduleUtility: ScheduleUtility{
				Beta:           a.Beta,
				Gamma:          a.Gamma,
				TStarLow:       a.TStar,
				TStarHigh:      a.TStar + a.Delta,
				DesiredArrival: a.DesiredArrival,
			},
		}
		if r := resolved[i]; r != nil {
			vi, ok := vehicleIndex[a.VehicleID]
			if !ok {
				return nil, rep, simerr.Dangling("vehicle", a.VehicleID, fmt.Sprintf("agent %d", a.ID))
			}
			entry.Modes = append(entry.Modes, ModeEntry{Car: CarMode{
				Origin:              r.origin,
				Destination:         r.destination,
				Vehicle:             vi,
				DepartureTimePeriod: period,
				DepartureTimeModel:  a.DepartureTime,
				UtilityModel:        UtilityModel{Alpha: a.VOT / 3600},
			}})
			rep.CarAgents++
		}
		agents[i] = entry
	}

	return &Input{
		Network: NetworkSection{RoadNetwork: RoadNetwork{
			Graph:    graphSection(in.Graph),
			Vehicles: vehicles,
		}},
		Agents: agents,
		Parameters: Parameters{
			Period:              period,
			LearningModel:       learning,
			ConvergenceCriteria: []ConvergenceCriterion{{MaxIteration: p.MaxIterations}},
			RandomSeed:          in.Seed,
			UpdateRatio:         p.UpdateRatio,
			Network: NetworkParameters{RoadNetwork: RoadNetworkParameters{
				EdgeApproxBound:      p.EdgeApproxBound,
				SpaceApproxBound:     p.SpaceApproxBound,
				WeightSimplification: WeightSimplification{Interval: p.PeriodInterval},
			}},
		},
	}, rep, nil
}

func graphSection(g *graph.Graph) GraphSection {
	nodes := make([]NodeEntry, g.Nodes.Len())
	for i, id := range g.Nodes.IDs() {
		nodes[i] = NodeEntry{ID: id}
	}
	edges := make([]EdgeEntry, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = EdgeEntry{
			Source: e.Source,
			Target: e.Target,
			Attrs: EdgeAttrs{
				ID:                e.ID,
				BaseSpeed:         e.Speed,
				Length:            e.Length,
				Lanes:             e.Lanes,
				SpeedDensity:      e.SpeedDensity,
				BottleneckOutflow: e.Outflow,
			},
		}
	}
	return GraphSection{EdgeProperty: "directed", Nodes: nodes, Edges: edges}
}

func vehicleEntry(v models.Vehicle) (VehicleEntry, error) {
	entry := VehicleEntry{Name: v.Name, Length: v.Length}
	switch v.SpeedFunction {
	case models.SpeedBase, "":
		entry.SpeedFunction = SpeedFunction{Kind: "Base"}
	case models.SpeedUpperBound:
		entry.SpeedFunction = SpeedFunction{Kind: "UpperBound", Value: v.SpeedValue / 3.6}
	case models.SpeedMultiplicator:
		entry.SpeedFunction = SpeedFunction{Kind: "Multiplicator", Value: v.SpeedValue}
	default:
		return VehicleEntry{}, simerr.Configf("vehicle %d has unknown speed function %q", v.ID, v.SpeedFunction)
	}
	return entry, nil
}

func learningModel(p models.ParameterSet) (LearningModel, error) {
	switch p.LearningModel {
	case models.LearningExponential:
		return LearningModel{Kind: "Exponential", Alpha: p.LearningAlpha}, nil
	case models.LearningLinear, models.LearningQuadratic:
		return LearningModel{Kind: string(p.LearningModel)}, nil
	}
	return LearningModel{}, simerr.Configf("unknown learning model %q", p.LearningModel)
}
