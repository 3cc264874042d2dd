// Package synthesis expands OD matrices and behavioral preferences into
// individual synthetic agents.
//
// Sampling is strictly sequential: one generator per population advances
// segment by segment and attribute by attribute in a fixed order, so a seed
// reproduces the whole population. Do not parallelize without a
// parallel-safe stream splitting scheme.
package synthesis

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/choice"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/models"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/sampling"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
)

// Segment is one Preferences profile with the OD pairs it applies to.
type Segment struct {
	Preferences models.Preferences
	Pairs       []models.ODPair
}

// Size returns the number of trips in the segment.
func (s Segment) Size() int {
	n := 0
	for _, p := range s.Pairs {
		n += p.Size
	}
	return n
}

// draws holds one array per stochastic attribute of a segment. Arrays a
// model does not use stay nil.
type draws struct {
	modeU, modeMu             []float64
	tStar, delta, beta, gamma []float64
	depU, depMu, depTime      []float64
	vot                       []float64
}

// Synthesize creates one agent per trip of every segment. Agent ids run
// from 1 across all segments; agent i of a segment reads position i of
// every attribute array.
func Synthesize(ctx context.Context, populationID int64, segments []Segment, rng *rand.Rand) ([]models.Agent, error) {
	total := 0
	for _, seg := range segments {
		for _, p := range seg.Pairs {
			if p.Size < 0 {
				return nil, simerr.Configf("OD pair %d has negative size %d", p.ID, p.Size)
			}
		}
		total += seg.Size()
	}

	agents := make([]models.Agent, 0, total)
	nextID := int64(1)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prefs := seg.Preferences

		modeModel, err := choice.ParseModeModel(prefs.ModeModel)
		if err != nil {
			return nil, fmt.Errorf("preferences %d: %w", prefs.ID, err)
		}
		depModel, err := choice.ParseDepartureModel(prefs.DepartureModel)
		if err != nil {
			return nil, fmt.Errorf("preferences %d: %w", prefs.ID, err)
		}

		size := seg.Size()
		d, err := drawSegment(prefs, modeModel, depModel, size, rng)
		if err != nil {
			return nil, fmt.Errorf("preferences %d: %w", prefs.ID, err)
		}

		i := 0
		for _, pair := range seg.Pairs {
			for k := 0; k < pair.Size; k++ {
				mc, err := choice.EncodeModeChoice(modeModel, at(d.modeU, i), at(d.modeMu, i))
				if err != nil {
					return nil, err
				}
				dt, err := choice.EncodeDepartureTime(depModel, at(d.depU, i), at(d.depMu, i), at(d.depTime, i))
				if err != nil {
					return nil, err
				}
				agents = append(agents, models.Agent{
					ID:             nextID,
					PopulationID:   populationID,
					Origin:         pair.Origin,
					Destination:    pair.Destination,
					ModeChoice:     mc,
					TStar:          d.tStar[i],
					Delta:          d.delta[i],
					Beta:           d.beta[i],
					Gamma:          d.gamma[i],
					DesiredArrival: prefs.DesiredArrival,
					DepartureTime:  dt,
					VehicleID:      prefs.VehicleID,
					VOT:            d.vot[i],
				})
				nextID++
				i++
			}
		}
	}
	return agents, nil
}

// drawSegment draws every attribute array of a segment. The order of the
// calls below fixes the generator's trajectory and must not change.
func drawSegment(p models.Preferences, mode choice.ModeModel, dep choice.DepartureModel, n int, rng *rand.Rand) (*draws, error) {
	var d draws
	steps := []struct {
		name string
		use  bool
		dist sampling.Distribution
		dst  *[]float64
	}{
		{"mode_u", mode != choice.ModeFirst, p.ModeU, &d.modeU},
		{"mode_mu", mode == choice.ModeLogit, p.ModeMu, &d.modeMu},
		{"t_star", true, p.TStar, &d.tStar},
		{"delta", true, p.Delta, &d.delta},
		{"beta", true, p.Beta, &d.beta},
		{"gamma", true, p.Gamma, &d.gamma},
		{"dep_u", dep == choice.DepartureLogitModel, p.DepU, &d.depU},
		{"dep_mu", dep == choice.DepartureLogitModel, p.DepMu, &d.depMu},
		{"dep_time", dep == choice.DepartureConstantModel, p.DepTime, &d.depTime},
		{"vot", true, p.VOT, &d.vot},
	}
	for _, s := range steps {
		if !s.use {
			continue
		}
		v, err := sampling.Sample(s.dist, n, rng)
		if err != nil {
			return nil, fmt.Errorf("sampling %s: %w", s.name, err)
		}
		*s.dst = v
	}
	return &d, nil
}

func at(v []float64, i int) float64 {
	if v == nil {
		return 0
	}
	return v[i]
}
