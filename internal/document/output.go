package document

import (
	"encoding/json"
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// Output is the simulator's result document.
type Output struct {
	AgentResults []AgentOutput `json:"agent_results"`
	Weights      Weights       `json:"weights"`
}

// AgentOutput is the outcome of one agent, in input order.
type AgentOutput struct {
	DepartureTime float64 `json:"departure_time"`
	ArrivalTime   float64 `json:"arrival_time"`
	Utility       float64 `json:"utility"`

	// ModeResults has exactly one key: the realized mode. Only Car results
	// are decoded further.
	ModeResults   map[string]json.RawMessage `json:"mode_results"`
	PreDayResults PreDayOutput               `json:"pre_day_results"`
}

// RoadResult is the Car entry of ModeResults.
type RoadResult struct {
	Route           []int           `json:"route"`
	RoadBreakpoints []float64       `json:"road_breakpoints"`
	Choices         json.RawMessage `json:"choices,omitempty"`
}

type PreDayOutput struct {
	ExpectedUtility float64                 `json:"expected_utility"`
	Choices         map[string]PreDayChoice `json:"choices"`
}

type PreDayChoice struct {
	ExpectedDepartureTime *float64 `json:"expected_departure_time,omitempty"`
	ExpectedArrivalTime   *float64 `json:"expected_arrival_time,omitempty"`
}

// RealizedMode returns the single mode of the agent's results.
func (a AgentOutput) RealizedMode() (string, json.RawMessage, error) {
	if len(a.ModeResults) != 1 {
		return "", nil, simerr.Assertf("mode_results must hold exactly one mode, got %d", len(a.ModeResults))
	}
	for mode, raw := range a.ModeResults {
		return mode, raw, nil
	}
	return "", nil, nil
}

// Weights holds the final travel-time function snapshot, one per edge in
// graph order.
type Weights struct {
	RoadNetwork []TravelTimeFunction
}

func (w *Weights) UnmarshalJSON(data []byte) error {
	var raw struct {
		RoadNetwork []json.RawMessage `json:"road_network"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.RoadNetwork = make([]TravelTimeFunction, len(raw.RoadNetwork))
	for i, r := range raw.RoadNetwork {
		f, err := DecodeTravelTimeFunction(r)
		if err != nil {
			return fmt.Errorf("weights.road_network[%d]: %w", i, err)
		}
		w.RoadNetwork[i] = f
	}
	return nil
}

func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]TravelTimeFunction{"road_network": w.RoadNetwork})
}

// TravelTimeFunction gives an edge's travel time as a function of the entry
// time.
type TravelTimeFunction interface {
	isTravelTimeFunction()
}

// ConstantTTF has the same travel time at every departure time.
type ConstantTTF struct {
	Value float64
}

// Breakpoint is one (departure time, travel time) sample.
type Breakpoint struct {
	DepartureTime float64
	TravelTime    float64
}

// PiecewiseTTF interpolates linearly between breakpoints.
type PiecewiseTTF struct {
	Points []Breakpoint
}

func (ConstantTTF) isTravelTimeFunction()  {}
func (PiecewiseTTF) isTravelTimeFunction() {}

func (c ConstantTTF) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{"Constant": c.Value})
}

func (p PiecewiseTTF) MarshalJSON() ([]byte, error) {
	pts := make([][2]float64, len(p.Points))
	for i, b := range p.Points {
		pts[i] = [2]float64{b.DepartureTime, b.TravelTime}
	}
	return json.Marshal(map[string][][2]float64{"Piecewise": pts})
}

// DepartureTimes returns the declared sample times.
func (p PiecewiseTTF) DepartureTimes() []float64 {
	out := make([]float64, len(p.Points))
	for i, b := range p.Points {
		out[i] = b.DepartureTime
	}
	return out
}

// DecodeTravelTimeFunction parses {"Constant": x} or
// {"Piecewise": [[t, tt], ...]}. Any other tag is rejected.
func DecodeTravelTimeFunction(data []byte) (TravelTimeFunction, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, simerr.Assertf("travel-time function is not a tagged object: %v", err)
	}
	if len(obj) != 1 {
		return nil, simerr.Assertf("travel-time function must have exactly one tag, got %d", len(obj))
	}
	for tag, body := range obj {
		switch tag {
		case "Constant":
			var v float64
			if err := json.Unmarshal(body, &v); err != nil {
				return nil, simerr.Assertf("decoding Constant travel time: %v", err)
			}
			return ConstantTTF{Value: v}, nil
		case "Piecewise":
			var pts [][2]float64
			if err := json.Unmarshal(body, &pts); err != nil {
				return nil, simerr.Assertf("decoding Piecewise travel time: %v", err)
			}
			p := PiecewiseTTF{Points: make([]Breakpoint, len(pts))}
			for i, pt := range pts {
				p.Points[i] = Breakpoint{DepartureTime: pt[0], TravelTime: pt[1]}
			}
			return p, nil
		default:
			return nil, simerr.Assertf("unknown travel-time function tag %q", tag)
		}
	}
	return nil, nil
}
