// Package graph maps a relational road network onto the compact, 0-based
// directed graph consumed by the simulator.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// kmhToMs converts km/h to m/s.
const kmhToMs = 1 / 3.6

// SpeedDensity is the functional form linking density to speed on an edge.
type SpeedDensity interface {
	isSpeedDensity()
}

type (
	FreeFlow   struct{}
	Bottleneck struct{}
	LogDensity struct{ A float64 }
	Bpr        struct{ Alpha, Beta float64 }
	Linear     struct{ JamDensity float64 }
)

func (FreeFlow) isSpeedDensity()   {}
func (Bottleneck) isSpeedDensity() {}
func (LogDensity) isSpeedDensity() {}
func (Bpr) isSpeedDensity()        {}
func (Linear) isSpeedDensity()     {}

func (FreeFlow) MarshalJSON() ([]byte, error)   { return []byte(`"FreeFlow"`), nil }
func (Bottleneck) MarshalJSON() ([]byte, error) { return []byte(`"Bottleneck"`), nil }

func (l LogDensity) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{"LogDensity": l.A})
}

func (b Bpr) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]float64{"Bpr": {"alpha": b.Alpha, "beta": b.Beta}})
}

func (l Linear) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]float64{"Linear": {"jam_density": l.JamDensity}})
}

// Edge is an edge in simulator terms.
type Edge struct {
	ID     int64
	Source int
	Target int

	Speed  float64 // m/s
	Length float64 // m
	Lanes  int

	// Outflow is the bottleneck capacity in vehicles per second; nil unless
	// the road type models a bottleneck.
	Outflow *float64

	SpeedDensity SpeedDensity
}

// Graph is the indexed view of one network. Edge i of Edges has index i in
// EdgeIndex.
type Graph struct {
	Nodes     *IndexMap
	EdgeIndex *IndexMap
	Edges     []Edge
}

// Build indexes nodes and edges in the order given. Every edge endpoint must
// be one of nodes and every road type must be one of roadTypes.
func Build(nodes []models.Node, edges []models.Edge, roadTypes []models.RoadType) (*Graph, error) {
	nodeIDs := make([]int64, len(nodes))
	for i, n := range nodes {
		nodeIDs[i] = n.ID
	}
	nodeIndex, err := NewIndexMap(nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("indexing nodes: %w", err)
	}

	types := make(map[int64]models.RoadType, len(roadTypes))
	for _, rt := range roadTypes {
		types[rt.ID] = rt
	}

	edgeIDs := make([]int64, len(edges))
	out := make([]Edge, len(edges))
	for i, e := range edges {
		edgeIDs[i] = e.ID
		from := fmt.Sprintf("edge %d", e.ID)

		src, ok := nodeIndex.Index(e.Source)
		if !ok {
			return nil, simerr.Dangling("node", e.Source, from)
		}
		tgt, ok := nodeIndex.Index(e.Target)
		if !ok {
			return nil, simerr.Dangling("node", e.Target, from)
		}
		rt, ok := types[e.RoadTypeID]
		if !ok {
			return nil, simerr.Dangling("road type", e.RoadTypeID, from)
		}

		ge, err := convertEdge(e, rt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", from, err)
		}
		ge.Source, ge.Target = src, tgt
		out[i] = ge
	}

	edgeIndex, err := NewIndexMap(edgeIDs)
	if err != nil {
		return nil, fmt.Errorf("indexing edges: %w", err)
	}

	return &Graph{Nodes: nodeIndex, EdgeIndex: edgeIndex, Edges: out}, nil
}

func convertEdge(e models.Edge, rt models.RoadType) (Edge, error) {
	speed := rt.DefaultSpeed
	if e.Speed != nil {
		speed = *e.Speed
	}
	lanes := rt.DefaultLanes
	if e.Lanes != nil {
		lanes = *e.Lanes
	}
	if speed <= 0 {
		return Edge{}, simerr.Configf("speed must be positive, got %g km/h", speed)
	}
	if lanes <= 0 {
		return Edge{}, simerr.Configf("lanes must be positive, got %d", lanes)
	}

	ge := Edge{
		ID:     e.ID,
		Speed:  speed * kmhToMs,
		Length: e.Length,
		Lanes:  lanes,
	}

	switch rt.Congestion {
	case models.CongestionFreeFlow, "":
		ge.SpeedDensity = FreeFlow{}
	case models.CongestionBottleneck:
		if rt.Capacity == nil {
			return Edge{}, simerr.Configf("bottleneck road type %d has no capacity", rt.ID)
		}
		outflow := *rt.Capacity * float64(lanes) / 3600
		ge.Outflow = &outflow
		ge.SpeedDensity = Bottleneck{}
	case models.CongestionLogDensity:
		a, err := param(rt, rt.Param1, "param1")
		if err != nil {
			return Edge{}, err
		}
		ge.SpeedDensity = LogDensity{A: a}
	case models.CongestionBpr:
		alpha, err := param(rt, rt.Param1, "param1")
		if err != nil {
			return Edge{}, err
		}
		beta, err := param(rt, rt.Param2, "param2")
		if err != nil {
			return Edge{}, err
		}
		ge.SpeedDensity = Bpr{Alpha: alpha, Beta: beta}
	case models.CongestionLinear:
		jam, err := param(rt, rt.Param1, "param1")
		if err != nil {
			return Edge{}, err
		}
		ge.SpeedDensity = Linear{JamDensity: jam}
	default:
		return Edge{}, simerr.Configf("road type %d has unknown congestion kind %q", rt.ID, rt.Congestion)
	}
	return ge, nil
}

func param(rt models.RoadType, p *float64, name string) (float64, error) {
	if p == nil {
		return 0, simerr.Configf("%s road type %d requires %s", rt.Congestion, rt.ID, name)
	}
	return *p, nil
}
