package models

// Dataset is a bulk import of curated inputs, loaded from YAML or JSON.
// Records carry their relational ids so references can be written by hand.
type Dataset struct {
	Networks      []Network      `json:"networks,omitempty" yaml:"networks,omitempty"`
	RoadTypes     []RoadType     `json:"road_types,omitempty" yaml:"road_types,omitempty"`
	Nodes         []Node         `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Edges         []Edge         `json:"edges,omitempty" yaml:"edges,omitempty"`
	Zones         []Zone         `json:"zones,omitempty" yaml:"zones,omitempty"`
	Vehicles      []Vehicle      `json:"vehicles,omitempty" yaml:"vehicles,omitempty"`
	Preferences   []Preferences  `json:"preferences,omitempty" yaml:"preferences,omitempty"`
	ODMatrices    []ODMatrix     `json:"od_matrices,omitempty" yaml:"od_matrices,omitempty"`
	ODPairs       []ODPair       `json:"od_pairs,omitempty" yaml:"od_pairs,omitempty"`
	Populations   []Population   `json:"populations,omitempty" yaml:"populations,omitempty"`
	Segments      []Segment      `json:"segments,omitempty" yaml:"segments,omitempty"`
	ParameterSets []ParameterSet `json:"parameter_sets,omitempty" yaml:"parameter_sets,omitempty"`
	Runs          []Run          `json:"runs,omitempty" yaml:"runs,omitempty"`
}

// Size returns the number of records in the dataset.
func (d *Dataset) Size() int {
	return len(d.Networks) + len(d.RoadTypes) + len(d.Nodes) + len(d.Edges) +
		len(d.Zones) + len(d.Vehicles) + len(d.Preferences) + len(d.ODMatrices) +
		len(d.ODPairs) + len(d.Populations) + len(d.Segments) +
		len(d.ParameterSets) + len(d.Runs)
}
