package sampling

import (
	"math"
	"testing"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/simerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleConstant(t *testing.T) {
	rng := NewRand(1)
	got, err := Sample(Const(7.5), 4, rng)
	require.NoError(t, err)
	assert.Equal(t, []float64{7.5, 7.5, 7.5, 7.5}, got)
}

func TestSampleConstantIgnoresStd(t *testing.T) {
	got, err := Sample(New(Constant, 3, 100), 2, NewRand(1))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, got)
}

func TestSampleUniformWithinBounds(t *testing.T) {
	got, err := Sample(New(Uniform, 10, 2), 1000, NewRand(42))
	require.NoError(t, err)
	require.Len(t, got, 1000)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, 8.0)
		assert.LessOrEqual(t, v, 12.0)
	}
}

func TestSampleNormalMoments(t *testing.T) {
	got, err := Sample(New(Normal, 5, 1), 20000, NewRand(7))
	require.NoError(t, err)
	var sum float64
	for _, v := range got {
		sum += v
	}
	assert.InDelta(t, 5.0, sum/float64(len(got)), 0.05)
}

func TestSampleLogNormalUsesUnderlyingNormal(t *testing.T) {
	got, err := Sample(New(LogNormal, 0, 0.5), 20000, NewRand(11))
	require.NoError(t, err)
	var sumLog float64
	for _, v := range got {
		require.Greater(t, v, 0.0)
		sumLog += math.Log(v)
	}
	assert.InDelta(t, 0.0, sumLog/float64(len(got)), 0.02)
}

func TestSampleReproducible(t *testing.T) {
	draw := func() [][]float64 {
		rng := NewRand(2024)
		var out [][]float64
		for _, d := range []Distribution{New(Normal, 1, 2), New(Uniform, 0, 1), New(LogNormal, 0, 1)} {
			v, err := Sample(d, 50, rng)
			require.NoError(t, err)
			out = append(out, v)
		}
		return out
	}
	assert.Equal(t, draw(), draw())
}

func TestSampleDifferentSeedsDiffer(t *testing.T) {
	a, err := Sample(New(Normal, 0, 1), 10, NewRand(1))
	require.NoError(t, err)
	b, err := Sample(New(Normal, 0, 1), 10, NewRand(2))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSampleErrors(t *testing.T) {
	tests := []struct {
		name string
		d    Distribution
		n    int
	}{
		{"normal without std", Distribution{Kind: Normal, Mean: 1}, 3},
		{"uniform without std", Distribution{Kind: Uniform, Mean: 1}, 3},
		{"lognormal without std", Distribution{Kind: LogNormal, Mean: 1}, 3},
		{"negative std", New(Normal, 0, -1), 3},
		{"negative count", Const(1), -1},
		{"unset kind", Distribution{}, 1},
		{"unknown kind", Distribution{Kind: "Gamma"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sample(tt.d, tt.n, NewRand(1))
			assert.ErrorIs(t, err, simerr.ErrConfiguration)
		})
	}
}

func TestSampleZeroCount(t *testing.T) {
	got, err := Sample(New(Normal, 0, 1), 0, NewRand(1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewSeedPositive(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Greater(t, NewSeed(), int64(0))
	}
}
