package models

import (
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/choice"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
)

// Preferences is the statistical profile of one population segment.
// Distributions a model does not use may be left unset.
type Preferences struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Mode choice
	ModeModel string                `json:"mode_model" yaml:"mode_model"`
	ModeU     sampling.Distribution `json:"mode_u,omitempty" yaml:"mode_u,omitempty"`
	ModeMu    sampling.Distribution `json:"mode_mu,omitempty" yaml:"mode_mu,omitempty"`

	// Time preferences, in seconds (TStar, Delta) and utility per second
	// (Beta, Gamma).
	TStar sampling.Distribution `json:"t_star" yaml:"t_star"`
	Delta sampling.Distribution `json:"delta" yaml:"delta"`
	Beta  sampling.Distribution `json:"beta" yaml:"beta"`
	Gamma sampling.Distribution `json:"gamma" yaml:"gamma"`

	// Departure time choice
	DepartureModel string                `json:"departure_model" yaml:"departure_model"`
	DepU           sampling.Distribution `json:"dep_u,omitempty" yaml:"dep_u,omitempty"`
	DepMu          sampling.Distribution `json:"dep_mu,omitempty" yaml:"dep_mu,omitempty"`
	DepTime        sampling.Distribution `json:"dep_time,omitempty" yaml:"dep_time,omitempty"`

	// VOT is the value of time per hour.
	VOT sampling.Distribution `json:"vot" yaml:"vot"`

	VehicleID int64 `json:"vehicle_id" yaml:"vehicle_id"`

	// DesiredArrival marks TStar as a desired arrival time rather than a
	// desired departure time.
	DesiredArrival bool `json:"desired_arrival" yaml:"desired_arrival"`
}

// ODMatrix groups the OD pairs of one segment.
type ODMatrix struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ODPair is a trip count between two zones.
type ODPair struct {
	ID          int64 `json:"id" yaml:"id"`
	MatrixID    int64 `json:"matrix_id" yaml:"matrix_id"`
	Origin      int64 `json:"origin" yaml:"origin"`
	Destination int64 `json:"destination" yaml:"destination"`
	Size        int   `json:"size" yaml:"size"`
}

// Population is a set of segments synthesized together.
type Population struct {
	ID        int64  `json:"id" yaml:"id"`
	NetworkID int64  `json:"network_id" yaml:"network_id"`
	Name      string `json:"name" yaml:"name"`
	Generated bool   `json:"generated" yaml:"generated"`

	// RandomSeed fixes the synthesis seed; after synthesis it holds the
	// seed that was actually used.
	RandomSeed *int64 `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
}

// Segment pairs one Preferences profile with one OD matrix.
type Segment struct {
	ID            int64 `json:"id" yaml:"id"`
	PopulationID  int64 `json:"population_id" yaml:"population_id"`
	PreferencesID int64 `json:"preferences_id" yaml:"preferences_id"`
	MatrixID      int64 `json:"matrix_id" yaml:"matrix_id"`
}

// Agent is one synthesized trip maker. IDs run from 1 within a population.
type Agent struct {
	ID           int64 `json:"id"`
	PopulationID int64 `json:"population_id"`
	Origin       int64 `json:"origin"`
	Destination  int64 `json:"destination"`

	ModeChoice choice.ModeChoice `json:"mode_choice"`

	TStar float64 `json:"t_star"`
	Delta float64 `json:"delta"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	DesiredArrival bool `json:"desired_arrival"`

	DepartureTime choice.DepartureTime `json:"departure_time"`

	VehicleID int64   `json:"vehicle_id"`
	VOT       float64 `json:"vot"`
}
