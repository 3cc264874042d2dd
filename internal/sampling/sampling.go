// Package sampling draws arrays of values from the small family of
// distributions used to describe behavioral preferences.
package sampling

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"gonum.org/v1/gonum/stat/distuv"
)

// Kind identifies a distribution family.
type Kind string

const (
	Constant  Kind = "Constant"
	Uniform   Kind = "Uniform"
	Normal    Kind = "Normal"
	LogNormal Kind = "LogNormal"
)

// pcgStream is the fixed second PCG word; only the seed varies between jobs.
const pcgStream = 0x9e3779b97f4a7c15

// Distribution describes how one scalar attribute is drawn.
//
// For LogNormal, Mean and Std are the parameters of the underlying normal
// distribution: a draw is exp(N(Mean, Std)).
type Distribution struct {
	Kind Kind     `json:"kind" yaml:"kind"`
	Mean float64  `json:"mean" yaml:"mean"`
	Std  *float64 `json:"std,omitempty" yaml:"std,omitempty"`
}

// Const returns a constant distribution.
func Const(v float64) Distribution {
	return Distribution{Kind: Constant, Mean: v}
}

// New returns a distribution of the given kind with a standard deviation.
func New(kind Kind, mean, std float64) Distribution {
	return Distribution{Kind: kind, Mean: mean, Std: &std}
}

// IsZero reports whether d was never set.
func (d Distribution) IsZero() bool {
	return d.Kind == ""
}

// Validate checks that d is complete for its kind.
func (d Distribution) Validate() error {
	switch d.Kind {
	case Constant:
		return nil
	case Uniform, Normal, LogNormal:
		if d.Std == nil {
			return simerr.Configf("%s distribution requires std", d.Kind)
		}
		if *d.Std < 0 {
			return simerr.Configf("%s distribution has negative std %g", d.Kind, *d.Std)
		}
		return nil
	case "":
		return simerr.Configf("distribution kind is not set")
	default:
		return simerr.Configf("unknown distribution kind %q", d.Kind)
	}
}

// NewRand returns a generator whose output depends only on seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// NewSeed draws a fresh positive seed from the operating system.
func NewSeed() int64 {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			// crypto/rand never fails on supported platforms
			panic(err)
		}
		if s := int64(binary.LittleEndian.Uint64(b[:]) >> 1); s != 0 {
			return s
		}
	}
}

// Sample draws n values from d using rng. Draws happen in index order, so
// an identical seed and call sequence reproduce identical output.
func Sample(d Distribution, n int, rng *rand.Rand) ([]float64, error) {
	if n < 0 {
		return nil, simerr.Configf("sample count must be non-negative, got %d", n)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := make([]float64, n)
	if d.Kind == Constant {
		for i := range out {
			out[i] = d.Mean
		}
		return out, nil
	}

	std := *d.Std
	var draw func() float64
	switch d.Kind {
	case Uniform:
		u := distuv.Uniform{Min: d.Mean - std, Max: d.Mean + std, Src: rng}
		draw = u.Rand
	case Normal:
		nd := distuv.Normal{Mu: d.Mean, Sigma: std, Src: rng}
		draw = nd.Rand
	case LogNormal:
		ln := distuv.LogNormal{Mu: d.Mean, Sigma: std, Src: rng}
		draw = ln.Rand
	}
	for i := range out {
		out[i] = draw()
	}
	return out, nil
}
