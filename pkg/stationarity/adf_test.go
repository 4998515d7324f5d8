package stationarity

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whiteNoise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func trendingWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	level := 100.0
	for i := range out {
		level += 0.5 + rng.NormFloat64()
		out[i] = level
	}
	return out
}

func TestLocalTester_WhiteNoiseIsStationary(t *testing.T) {
	res, err := NewLocalTester().Test(context.Background(), whiteNoise(500, 1))
	require.NoError(t, err)

	assert.True(t, res.IsStationary)
	assert.Less(t, res.PValue, 0.01)
	assert.Less(t, res.Statistic, res.CriticalValues.OnePercent)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Greater(t, res.NObs, 400)
	assert.GreaterOrEqual(t, res.UsedLag, 0)
}

func TestLocalTester_TrendingWalkIsNotStationary(t *testing.T) {
	res, err := NewLocalTester().Test(context.Background(), trendingWalk(500, 2))
	require.NoError(t, err)

	assert.False(t, res.IsStationary)
	assert.Greater(t, res.PValue, 0.1)
}

func TestLocalTester_DropsNonFinite(t *testing.T) {
	clean := whiteNoise(200, 3)
	dirty := make([]float64, 0, len(clean)+3)
	dirty = append(dirty, math.NaN())
	dirty = append(dirty, clean[:100]...)
	dirty = append(dirty, math.Inf(1))
	dirty = append(dirty, clean[100:]...)
	dirty = append(dirty, math.NaN())

	tester := NewLocalTester()
	want, err := tester.Test(context.Background(), clean)
	require.NoError(t, err)
	got, err := tester.Test(context.Background(), dirty)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLocalTester_FixedMaxLag(t *testing.T) {
	tester := &LocalTester{Significance: 0.05, MaxLag: 0}
	res, err := tester.Test(context.Background(), whiteNoise(100, 4))
	require.NoError(t, err)
	assert.Equal(t, 0, res.UsedLag)
	assert.Equal(t, 99, res.NObs)
}

func TestLocalTester_Errors(t *testing.T) {
	tester := NewLocalTester()

	_, err := tester.Test(context.Background(), []float64{1, 2, math.NaN(), 3})
	assert.True(t, errors.Is(err, ErrTooFewObservations))

	_, err = tester.Test(context.Background(), []float64{5, 5, 5, 5, 5, 5, 5, 5})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tester.Test(ctx, whiteNoise(50, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMacKinnonPValue(t *testing.T) {
	tests := []struct {
		name  string
		stat  float64
		want  float64
		delta float64
	}{
		{name: "Above tau max", stat: 3, want: 1, delta: 0},
		{name: "Below tau min", stat: -20, want: 0, delta: 0},
		{name: "Near 5% critical value", stat: -2.86, want: 0.05, delta: 0.002},
		{name: "Large p region", stat: 0, want: 0.9585, delta: 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MacKinnonPValue(tt.stat), tt.delta)
		})
	}

	// p 值随统计量单调递增
	prev := 0.0
	for s := -6.0; s <= 2.0; s += 0.25 {
		p := MacKinnonPValue(s)
		assert.GreaterOrEqual(t, p, prev, "stat %.2f", s)
		prev = p
	}
}

func TestMacKinnonCritical(t *testing.T) {
	cv := MacKinnonCritical(100)
	assert.InDelta(t, -3.43035-6.5393/100-16.786/1e4-79.433/1e6, cv.OnePercent, 1e-12)
	assert.InDelta(t, -2.8909, cv.FivePercent, 1e-4)
	assert.InDelta(t, -2.56677-1.5384/100-2.809/1e4, cv.TenPercent, 1e-12)

	large := MacKinnonCritical(100000)
	assert.InDelta(t, -2.86154, large.FivePercent, 1e-3)
}

func TestConservative(t *testing.T) {
	c := Conservative()
	assert.False(t, c.IsStationary)
	assert.Equal(t, 1.0, c.PValue)
	assert.Equal(t, SourceFallback, c.Source)
	assert.True(t, math.IsNaN(c.Statistic))
}
