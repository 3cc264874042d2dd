package models

// Network is a road network: the container for nodes, edges and zones.
type Network struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// CongestionKind selects the speed-density relationship of a road type.
type CongestionKind string

const (
	CongestionFreeFlow   CongestionKind = "FreeFlow"
	CongestionBottleneck CongestionKind = "Bottleneck"
	CongestionLogDensity CongestionKind = "LogDensity"
	CongestionBpr        CongestionKind = "Bpr"
	CongestionLinear     CongestionKind = "Linear"
)

// RoadType holds the defaults and congestion model shared by a class of
// edges.
type RoadType struct {
	ID        int64  `json:"id" yaml:"id"`
	NetworkID int64  `json:"network_id" yaml:"network_id"`
	Name      string `json:"name" yaml:"name"`

	Congestion CongestionKind `json:"congestion" yaml:"congestion"`

	// DefaultSpeed in km/h, used when an edge has no speed of its own.
	DefaultSpeed float64 `json:"default_speed" yaml:"default_speed"`
	DefaultLanes int     `json:"default_lanes" yaml:"default_lanes"`

	// Capacity in vehicles per hour per lane; required for bottlenecks.
	Capacity *float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// Param1 and Param2 parametrize the congestion function:
	// LogDensity uses Param1 as its shape, Bpr uses (alpha, beta),
	// Linear uses Param1 as the jam density.
	Param1 *float64 `json:"param1,omitempty" yaml:"param1,omitempty"`
	Param2 *float64 `json:"param2,omitempty" yaml:"param2,omitempty"`
}

// Node is a network intersection.
type Node struct {
	ID        int64  `json:"id" yaml:"id"`
	NetworkID int64  `json:"network_id" yaml:"network_id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Edge is a directed road link between two nodes.
type Edge struct {
	ID         int64  `json:"id" yaml:"id"`
	NetworkID  int64  `json:"network_id" yaml:"network_id"`
	Source     int64  `json:"source" yaml:"source"`
	Target     int64  `json:"target" yaml:"target"`
	RoadTypeID int64  `json:"road_type_id" yaml:"road_type_id"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`

	// Length in meters.
	Length float64 `json:"length" yaml:"length"`

	// Speed in km/h; nil falls back to the road type default.
	Speed *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	Lanes *int     `json:"lanes,omitempty" yaml:"lanes,omitempty"`
}

// Zone is an origin/destination area attached to at most one node.
type Zone struct {
	ID        int64  `json:"id" yaml:"id"`
	NetworkID int64  `json:"network_id" yaml:"network_id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	NodeID    *int64 `json:"node_id,omitempty" yaml:"node_id,omitempty"`
}

// SpeedFunctionKind selects how a vehicle's speed relates to the edge speed.
type SpeedFunctionKind string

const (
	SpeedBase          SpeedFunctionKind = "Base"
	SpeedUpperBound    SpeedFunctionKind = "UpperBound"
	SpeedMultiplicator SpeedFunctionKind = "Multiplicator"
)

// Vehicle is a vehicle type available to agents.
type Vehicle struct {
	ID     int64   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Length float64 `json:"length" yaml:"length"`

	SpeedFunction SpeedFunctionKind `json:"speed_function" yaml:"speed_function"`
	// SpeedValue is the bound in km/h (UpperBound) or the factor (Multiplicator).
	SpeedValue float64 `json:"speed_value,omitempty" yaml:"speed_value,omitempty"`
}
