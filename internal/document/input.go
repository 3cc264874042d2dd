// Package document defines the simulator's input and output documents and
// assembles the input document from relational records.
package document

import (
	"encoding/json"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/choice"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/graph"
)

// Input is the hierarchical document handed to the simulator.
type Input struct {
	Network    NetworkSection `json:"network"`
	Agents     []AgentEntry   `json:"agents"`
	Parameters Parameters     `json:"parameters"`
}

type NetworkSection struct {
	RoadNetwork RoadNetwork `json:"road_network"`
}

type RoadNetwork struct {
	Graph    GraphSection   `json:"graph"`
	Vehicles []VehicleEntry `json:"vehicles"`
}

type GraphSection struct {
	EdgeProperty string      `json:"edge_property"`
	Nodes        []NodeEntry `json:"nodes"`
	Edges        []EdgeEntry `json:"edges"`
}

type NodeEntry struct {
	ID int64 `json:"id"`
}

// EdgeEntry is serialized as [source_index, target_index, attributes].
type EdgeEntry struct {
	Source int
	Target int
	Attrs  EdgeAttrs
}

func (e EdgeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Source, e.Target, e.Attrs})
}

type EdgeAttrs struct {
	ID                int64              `json:"id"`
	BaseSpeed         float64            `json:"base_speed"`
	Length            float64            `json:"length"`
	Lanes             int                `json:"lanes"`
	SpeedDensity      graph.SpeedDensity `json:"speed_density"`
	BottleneckOutflow *float64           `json:"bottleneck_outflow,omitempty"`
}

type VehicleEntry struct {
	Name          string        `json:"name"`
	Length        float64       `json:"length"`
	SpeedFunction SpeedFunction `json:"speed_function"`
}

// SpeedFunction is a vehicle speed function: "Base", {"UpperBound": v}
// with v in m/s, or {"Multiplicator": f}.
type SpeedFunction struct {
	Kind  string
	Value float64
}

func (s SpeedFunction) MarshalJSON() ([]byte, error) {
	if s.Kind == "Base" {
		return []byte(`"Base"`), nil
	}
	return json.Marshal(map[string]float64{s.Kind: s.Value})
}

// AgentEntry is one agent of the input document.
type AgentEntry struct {
	ID              int64             `json:"id"`
	Modes           []ModeEntry       `json:"modes"`
	ModeChoice      choice.ModeChoice `json:"mode_choice"`
	ScheduleUtility ScheduleUtility   `json:"schedule_utility"`
}

// ModeEntry is serialized as {"Car": [0, {...}]}.
type ModeEntry struct {
	Car CarMode
}

func (m ModeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][2]any{"Car": {0, m.Car}})
}

type CarMode struct {
	Origin              int                  `json:"origin"`
	Destination         int                  `json:"destination"`
	Vehicle             int                  `json:"vehicle"`
	DepartureTimePeriod [2]float64           `json:"departure_time_period"`
	DepartureTimeModel  choice.DepartureTime `json:"departure_time_model"`
	UtilityModel        UtilityModel         `json:"utility_model"`
}

// UtilityModel is serialized as {"Proportional": alpha} with alpha the
// value of time per second.
type UtilityModel struct {
	Alpha float64
}

func (u UtilityModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{"Proportional": u.Alpha})
}

// ScheduleUtility is serialized as {"AlphaBetaGamma": {...}}.
type ScheduleUtility struct {
	Beta           float64
	Gamma          float64
	TStarLow       float64
	TStarHigh      float64
	DesiredArrival bool
}

func (s ScheduleUtility) MarshalJSON() ([]byte, error) {
	type abg struct {
		Beta           float64 `json:"beta"`
		Gamma          float64 `json:"gamma"`
		TStarLow       float64 `json:"t_star_low"`
		TStarHigh      float64 `json:"t_star_high"`
		DesiredArrival bool    `json:"desired_arrival"`
	}
	return json.Marshal(map[string]abg{"AlphaBetaGamma": abg(s)})
}

type Parameters struct {
	Period              [2]float64             `json:"period"`
	LearningModel       LearningModel          `json:"learning_model"`
	ConvergenceCriteria []ConvergenceCriterion `json:"convergence_criteria"`
	RandomSeed          int64                  `json:"random_seed"`
	UpdateRatio         float64                `json:"update_ratio"`
	Network             NetworkParameters      `json:"network"`
}

// LearningModel is serialized as {"Exponential": alpha}, "Linear" or
// "Quadratic".
type LearningModel struct {
	Kind  string
	Alpha float64
}

func (l LearningModel) MarshalJSON() ([]byte, error) {
	if l.Kind == "Exponential" {
		return json.Marshal(map[string]float64{"Exponential": l.Alpha})
	}
	return json.Marshal(l.Kind)
}

// ConvergenceCriterion is serialized as {"MaxIteration": n}.
type ConvergenceCriterion struct {
	MaxIteration int `json:"MaxIteration"`
}

type NetworkParameters struct {
	RoadNetwork RoadNetworkParameters `json:"road_network"`
}

type RoadNetworkParameters struct {
	EdgeApproxBound      float64              `json:"edge_approx_bound"`
	SpaceApproxBound     float64              `json:"space_approx_bound"`
	WeightSimplification WeightSimplification `json:"weight_simplification"`
}

type WeightSimplification struct {
	Interval float64 `json:"Interval"`
}
