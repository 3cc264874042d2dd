package ingest

import (
	"encoding/json"
	"testing"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/document"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/graph"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineGraph builds n edges 0->1->...->n with ids 100+index and length
// 300 m each.
func lineGraph(t *testing.T, n int) *graph.Graph {
	t.Helper()
	nodes := make([]models.Node, n+1)
	for i := range nodes {
		nodes[i] = models.Node{ID: int64(i + 1)}
	}
	edges := make([]models.Edge, n)
	for i := range edges {
		edges[i] = models.Edge{
			ID:         int64(100 + i),
			Source:     int64(i + 1),
			Target:     int64(i + 2),
			RoadTypeID: 1,
			Length:     300,
		}
	}
	g, err := graph.Build(nodes, edges, []models.RoadType{{ID: 1, DefaultSpeed: 50, DefaultLanes: 1}})
	require.NoError(t, err)
	return g
}

func params() models.ParameterSet {
	return models.ParameterSet{PeriodStart: 0, PeriodEnd: 600, PeriodInterval: 300}
}

func constantWeights(n int, v float64) document.Weights {
	w := document.Weights{RoadNetwork: make([]document.TravelTimeFunction, n)}
	for i := range w.RoadNetwork {
		w.RoadNetwork[i] = document.ConstantTTF{Value: v}
	}
	return w
}

func carOutput(t *testing.T, dep, arr float64, route []int, bps []float64) document.AgentOutput {
	t.Helper()
	body, err := json.Marshal(document.RoadResult{Route: route, RoadBreakpoints: bps})
	require.NoError(t, err)
	expected := arr - 10
	return document.AgentOutput{
		DepartureTime: dep,
		ArrivalTime:   arr,
		Utility:       -4,
		ModeResults:   map[string]json.RawMessage{"Car": body},
		PreDayResults: document.PreDayOutput{
			ExpectedUtility: -3.5,
			Choices:         map[string]document.PreDayChoice{"Car": {ExpectedArrivalTime: &expected}},
		},
	}
}

func TestTimeGrid(t *testing.T) {
	grid, err := TimeGrid(0, 600, 300)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 300, 600}, grid)

	grid, err = TimeGrid(100, 650, 300)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 400}, grid)

	grid, err = TimeGrid(50, 50, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{50}, grid)

	_, err = TimeGrid(0, 600, 0)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
	_, err = TimeGrid(600, 0, 300)
	assert.ErrorIs(t, err, simerr.ErrConfiguration)
}

func TestReconstructPath(t *testing.T) {
	g := lineGraph(t, 10)
	segs, err := ReconstructPath(g, []int{5, 9, 2}, []float64{0, 120, 300}, 400)
	require.NoError(t, err)
	assert.Equal(t, []models.PathSegment{
		{EdgeID: 105, EntryTime: 0, TravelTime: 120},
		{EdgeID: 109, EntryTime: 120, TravelTime: 180},
		{EdgeID: 102, EntryTime: 300, TravelTime: 100},
	}, segs)
}

func TestReconstructPathErrors(t *testing.T) {
	g := lineGraph(t, 3)
	_, err := ReconstructPath(g, []int{0, 1}, []float64{0}, 10)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)

	_, err = ReconstructPath(g, []int{0, 7}, []float64{0, 5}, 10)
	assert.ErrorIs(t, err, simerr.ErrDanglingReference)
}

func TestIngest(t *testing.T) {
	g := lineGraph(t, 2)
	agents := []models.Agent{{ID: 1}, {ID: 2}}
	walk, err := json.Marshal(map[string]float64{"distance": 200})
	require.NoError(t, err)

	out := &document.Output{
		AgentResults: []document.AgentOutput{
			carOutput(t, 100, 400, []int{0, 1}, []float64{100, 250}),
			{
				DepartureTime: 50,
				ArrivalTime:   80,
				Utility:       -1,
				ModeResults:   map[string]json.RawMessage{"Walk": walk},
				PreDayResults: document.PreDayOutput{ExpectedUtility: -0.5},
			},
		},
		Weights: document.Weights{RoadNetwork: []document.TravelTimeFunction{
			document.ConstantTTF{Value: 30},
			document.PiecewiseTTF{Points: []document.Breakpoint{{0, 10}, {300, 20}, {600, 60}}},
		}},
	}

	res, err := Ingest(g, agents, params(), out, 7)
	require.NoError(t, err)

	require.Len(t, res.AgentResults, 2)
	car := res.AgentResults[0]
	assert.Equal(t, int64(7), car.RunID)
	assert.Equal(t, int64(1), car.AgentID)
	assert.Equal(t, "Car", car.Mode)
	assert.Equal(t, 300.0, car.TravelTime)
	assert.Equal(t, -3.5, car.Surplus)
	require.NotNil(t, car.ExpectedArrivalTime)
	assert.Equal(t, 390.0, *car.ExpectedArrivalTime)

	walker := res.AgentResults[1]
	assert.Equal(t, "Walk", walker.Mode)
	assert.Equal(t, 30.0, walker.TravelTime)
	assert.Nil(t, walker.ExpectedArrivalTime)

	require.Len(t, res.RoadPaths, 1, "only Car agents get a path")
	assert.Equal(t, int64(1), res.RoadPaths[0].AgentID)
	assert.Equal(t, []models.PathSegment{
		{EdgeID: 100, EntryTime: 100, TravelTime: 150},
		{EdgeID: 101, EntryTime: 250, TravelTime: 150},
	}, res.RoadPaths[0].Segments)

	require.Len(t, res.EdgeResults, 6)
	assert.Equal(t, models.EdgeResult{RunID: 7, EdgeID: 100, Time: 300, TravelTime: 30, Speed: 10}, res.EdgeResults[1])
	assert.Equal(t, models.EdgeResult{RunID: 7, EdgeID: 101, Time: 600, TravelTime: 60, Speed: 5}, res.EdgeResults[5])
	for _, e := range res.EdgeResults {
		assert.Zero(t, e.Congestion)
	}
}

func TestIngestAgentCountMismatch(t *testing.T) {
	g := lineGraph(t, 1)
	out := &document.Output{
		AgentResults: []document.AgentOutput{carOutput(t, 0, 10, []int{0}, []float64{0})},
		Weights:      constantWeights(1, 5),
	}
	res, err := Ingest(g, []models.Agent{{ID: 1}, {ID: 2}}, params(), out, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)
	assert.Nil(t, res)
}

func TestIngestPiecewiseGridMismatch(t *testing.T) {
	g := lineGraph(t, 1)
	out := &document.Output{
		Weights: document.Weights{RoadNetwork: []document.TravelTimeFunction{
			document.PiecewiseTTF{Points: []document.Breakpoint{{0, 10}, {300, 20}}},
		}},
	}
	_, err := Ingest(g, nil, params(), out, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)

	out.Weights.RoadNetwork[0] = document.PiecewiseTTF{Points: []document.Breakpoint{{0, 10}, {300, 20}, {900, 20}}}
	_, err = Ingest(g, nil, params(), out, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)
}

func TestIngestWeightCountMismatch(t *testing.T) {
	g := lineGraph(t, 2)
	_, err := Ingest(g, nil, params(), &document.Output{Weights: constantWeights(1, 5)}, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)
}

func TestIngestNonPositiveTravelTime(t *testing.T) {
	g := lineGraph(t, 1)
	_, err := Ingest(g, nil, params(), &document.Output{Weights: constantWeights(1, 0)}, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)
}

func TestIngestRequiresSingleMode(t *testing.T) {
	g := lineGraph(t, 1)
	out := &document.Output{
		AgentResults: []document.AgentOutput{{ModeResults: map[string]json.RawMessage{}}},
		Weights:      constantWeights(1, 5),
	}
	_, err := Ingest(g, []models.Agent{{ID: 1}}, params(), out, 1)
	assert.ErrorIs(t, err, simerr.ErrAssertionFailed)
}
