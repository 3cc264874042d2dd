// Package ingest turns a simulator output document into per-agent, per-path
// and per-edge result records, using the same indexing as the input document
// the run was given.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/document"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/graph"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// CarMode is the mode name under which road results are reported.
const CarMode = "Car"

// TimeGrid returns start, start+interval, ... up to and including end.
func TimeGrid(start, end, interval float64) ([]float64, error) {
	if interval <= 0 {
		return nil, simerr.Configf("period interval must be positive, got %g", interval)
	}
	if end < start {
		return nil, simerr.Configf("period end %g is before start %g", end, start)
	}
	var grid []float64
	for k := 0; ; k++ {
		t := start + float64(k)*interval
		if t > end {
			break
		}
		grid = append(grid, t)
	}
	return grid, nil
}

// Ingest maps an output document onto result records. agents must be the
// population's agents in the order they were written to the input document.
//
// Nothing is returned unless the whole document reconciles; callers persist
// the result in one bulk write.
func Ingest(g *graph.Graph, agents []models.Agent, params models.ParameterSet, out *document.Output, runID int64) (*models.RunResults, error) {
	if len(out.AgentResults) != len(agents) {
		return nil, simerr.Assertf("output has %d agent results but the population has %d agents",
			len(out.AgentResults), len(agents))
	}

	res := &models.RunResults{
		AgentResults: make([]models.AgentResult, 0, len(agents)),
	}
	for i, ao := range out.AgentResults {
		agent := agents[i]
		ar, path, err := agentResult(g, ao, agent.ID, runID)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
		}
		res.AgentResults = append(res.AgentResults, ar)
		if path != nil {
			res.RoadPaths = append(res.RoadPaths, *path)
		}
	}

	edges, err := edgeResults(g, params, out.Weights, runID)
	if err != nil {
		return nil, err
	}
	res.EdgeResults = edges
	return res, nil
}

func agentResult(g *graph.Graph, ao document.AgentOutput, agentID, runID int64) (models.AgentResult, *models.AgentRoadPath, error) {
	mode, body, err := ao.RealizedMode()
	if err != nil {
		return models.AgentResult{}, nil, err
	}
	ar := models.AgentResult{
		RunID:         runID,
		AgentID:       agentID,
		Mode:          mode,
		Utility:       ao.Utility,
		DepartureTime: ao.DepartureTime,
		ArrivalTime:   ao.ArrivalTime,
		TravelTime:    ao.ArrivalTime - ao.DepartureTime,
		Surplus:       ao.PreDayResults.ExpectedUtility,
	}
	if mode != CarMode {
		return ar, nil, nil
	}

	if c, ok := ao.PreDayResults.Choices[CarMode]; ok && c.ExpectedArrivalTime != nil {
		v := *c.ExpectedArrivalTime
		ar.ExpectedArrivalTime = &v
	}

	var road document.RoadResult
	if err := json.Unmarshal(body, &road); err != nil {
		return models.AgentResult{}, nil, simerr.Assertf("decoding Car mode results: %v", err)
	}
	segments, err := ReconstructPath(g, road.Route, road.RoadBreakpoints, ao.ArrivalTime)
	if err != nil {
		return models.AgentResult{}, nil, err
	}
	return ar, &models.AgentRoadPath{RunID: runID, AgentID: agentID, Segments: segments}, nil
}

// ReconstructPath walks route and breakpoints in lockstep. Step i lasts until
// breakpoint i+1; the last step lasts until arrival.
func ReconstructPath(g *graph.Graph, route []int, breakpoints []float64, arrival float64) ([]models.PathSegment, error) {
	if len(route) != len(breakpoints) {
		return nil, simerr.Assertf("route has %d edges but %d breakpoints", len(route), len(breakpoints))
	}
	segments := make([]models.PathSegment, len(route))
	for i, idx := range route {
		edgeID, ok := g.EdgeIndex.ID(idx)
		if !ok {
			return nil, simerr.Dangling("edge index", int64(idx), "route")
		}
		end := arrival
		if i+1 < len(breakpoints) {
			end = breakpoints[i+1]
		}
		segments[i] = models.PathSegment{
			EdgeID:     edgeID,
			EntryTime:  breakpoints[i],
			TravelTime: end - breakpoints[i],
		}
	}
	return segments, nil
}

func edgeResults(g *graph.Graph, params models.ParameterSet, w document.Weights, runID int64) ([]models.EdgeResult, error) {
	if len(w.RoadNetwork) != len(g.Edges) {
		return nil, simerr.Assertf("weights hold %d travel-time functions but the graph has %d edges",
			len(w.RoadNetwork), len(g.Edges))
	}
	grid, err := TimeGrid(params.PeriodStart, params.PeriodEnd, params.PeriodInterval)
	if err != nil {
		return nil, err
	}

	out := make([]models.EdgeResult, 0, len(g.Edges)*len(grid))
	for i, e := range g.Edges {
		tts, err := travelTimes(w.RoadNetwork[i], grid)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", e.ID, err)
		}
		for k, t := range grid {
			tt := tts[k]
			if tt <= 0 {
				return nil, simerr.Assertf("edge %d has non-positive travel time %g at %g", e.ID, tt, t)
			}
			out = append(out, models.EdgeResult{
				RunID:      runID,
				EdgeID:     e.ID,
				Time:       t,
				TravelTime: tt,
				Speed:      e.Length / tt,
			})
		}
	}
	return out, nil
}

// travelTimes evaluates f at every grid point. A piecewise function must be
// sampled exactly on the grid.
func travelTimes(f document.TravelTimeFunction, grid []float64) ([]float64, error) {
	out := make([]float64, len(grid))
	switch f := f.(type) {
	case document.ConstantTTF:
		for k := range out {
			out[k] = f.Value
		}
	case document.PiecewiseTTF:
		if err := checkGrid(f.DepartureTimes(), grid); err != nil {
			return nil, err
		}
		for k, p := range f.Points {
			out[k] = p.TravelTime
		}
	default:
		return nil, simerr.Assertf("unsupported travel-time function %T", f)
	}
	return out, nil
}

func checkGrid(declared, expected []float64) error {
	if len(declared) != len(expected) {
		return simerr.Assertf("piecewise function has %d departure times, expected %d on the period grid",
			len(declared), len(expected))
	}
	for k := range expected {
		if declared[k] != expected[k] {
			return simerr.Assertf("piecewise departure time %d is %g, expected %g", k, declared[k], expected[k])
		}
	}
	return nil
}
