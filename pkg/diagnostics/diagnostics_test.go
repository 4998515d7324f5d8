package diagnostics

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairlab/pkg/stationarity"
)

func ar1(n int, phi float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := 1; i < n; i++ {
		x[i] = phi*x[i-1] + rng.NormFloat64()
	}
	return x
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := 1; i < n; i++ {
		x[i] = x[i-1] + rng.NormFloat64()
	}
	return x
}

func noise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([]float64, n)
	for i := range x {
		x[i] = rng.NormFloat64()
	}
	return x
}

func TestHalfLife_MeanRevertingAR1(t *testing.T) {
	hl, ok := HalfLife(ar1(2000, 0.9, 1))
	require.True(t, ok)
	// -ln2 / ln 0.9 ≈ 6.58
	assert.InDelta(t, 6.58, hl, 1.5)
}

func TestHalfLife_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
	}{
		{name: "Random walk", series: randomWalk(10000, 42)},
		{name: "Explosive", series: func() []float64 {
			x := make([]float64, 50)
			x[0] = 1
			for i := 1; i < len(x); i++ {
				x[i] = 1.05*x[i-1] + 0.01
			}
			return x
		}()},
		{name: "Alternating", series: ar1(500, -0.6, 3)},
		{name: "Too short", series: []float64{1, 2}},
		{name: "Constant", series: []float64{3, 3, 3, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := HalfLife(tt.series)
			assert.False(t, ok)
		})
	}

	hl, _ := HalfLife(ar1(500, -0.6, 3))
	assert.True(t, math.IsInf(hl, 1))
}

func TestHalfLife_SlowReversionBeyondOneYear(t *testing.T) {
	// b = 0.999 -> half-life ≈ 693 > 252
	x := make([]float64, 400)
	x[0] = 100
	for i := 1; i < len(x); i++ {
		x[i] = 0.999 * x[i-1]
	}
	hl, ok := HalfLife(x)
	assert.False(t, ok)
	assert.Greater(t, hl, MaxHalfLife)
}

func TestHurst_WhiteNoise(t *testing.T) {
	// 未修正的 R/S 在小样本下偏高，n=4096 时白噪声落在 0.53-0.56 附近
	for seed := int64(1); seed <= 5; seed++ {
		h := Hurst(noise(4096, seed))
		assert.InDelta(t, 0.54, h, 0.05, "seed %d", seed)
	}
}

func TestHurst_PositiveAR1AboveWhiteNoise(t *testing.T) {
	// φ=0.3 的水平序列短程正相关，R/S 斜率高于同一组冲击的白噪声
	for seed := int64(1); seed <= 5; seed++ {
		h := Hurst(ar1(4096, 0.3, seed))
		assert.Greater(t, h, 0.5, "seed %d", seed)
		assert.Greater(t, h, Hurst(noise(4096, seed)), "seed %d", seed)
		assert.InDelta(t, 0.58, h, 0.06, "seed %d", seed)
	}
}

func TestHurst_AntiPersistent(t *testing.T) {
	// 过差分的白噪声 ε[t] - ε[t-1]，累积偏差有界
	e := noise(4097, 8)
	x := make([]float64, 4096)
	for i := range x {
		x[i] = e[i+1] - e[i]
	}
	h := Hurst(x)
	assert.Less(t, h, 0.5)
	assert.Less(t, h, Hurst(noise(4096, 7)))
}

func TestHurst_TrendingLevels(t *testing.T) {
	h := Hurst(randomWalk(4096, 9))
	assert.Greater(t, h, 0.7)
	assert.LessOrEqual(t, h, 1.0)
}

func TestHurst_SkipsNaNGaps(t *testing.T) {
	x := noise(2048, 11)

	warm := append(make([]float64, 0, 2098), nanSlice(50)...)
	warm = append(warm, x...)
	assert.Equal(t, Hurst(x), Hurst(warm), "leading warm-up NaNs are ignored")

	// 两段水平相差 100 的噪声：若跨 NaN 拼接，大块会把跳变当成趋势
	shifted := noise(2048, 12)
	for i := range shifted {
		shifted[i] += 100
	}
	gapped := append(append(append([]float64{}, x...), math.NaN()), shifted...)
	assert.Less(t, Hurst(gapped), 0.65)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func TestHalfLife_PairsOnlyAdjacentPoints(t *testing.T) {
	// 两段 x[t] = 0.5·x[t-1]，中间一个 NaN；拼接会引入 (6.25, 100) 这一对
	decay := []float64{100, 50, 25, 12.5, 6.25}
	x := append(append(append([]float64{}, decay...), math.NaN()), decay...)

	hl, ok := HalfLife(x)
	require.True(t, ok)
	assert.InDelta(t, 1.0, hl, 1e-9)

	hl, ok = HalfLife([]float64{math.NaN(), 1, math.NaN(), 2, math.NaN()})
	assert.False(t, ok)
	assert.True(t, math.IsNaN(hl))
}

func TestHurst_Degenerate(t *testing.T) {
	assert.Equal(t, 0.5, Hurst(noise(19, 1)), "fewer than 20 points")
	assert.Equal(t, 0.5, Hurst(noise(40, 1)), "only one lag fits in n/4")
	assert.Equal(t, 0.5, Hurst(make([]float64, 200)), "zero variance chunks")
}

func TestTradeCycle(t *testing.T) {
	z := []float64{0, 2.5, 1.0, 0.3, 0, -2.2, -0.4, math.NaN(), 2.1, 1.5, 0.5, 0, 3, 0.2}

	res := TradeCycle(z, 2.0, 0.5)
	require.True(t, res.Valid)
	assert.Equal(t, 4, res.Episodes)
	assert.InDelta(t, 1.5, res.Length, 1e-12)
	assert.InDelta(t, 1.0, res.SuccessRate, 1e-12)
}

func TestTradeCycle_TooFewEpisodes(t *testing.T) {
	res := TradeCycle([]float64{0, 2.5, 0.1, -2.5, 0.1, 2.4}, 2.0, 0.5)
	assert.False(t, res.Valid)
	assert.Equal(t, 2, res.Episodes)
	assert.True(t, math.IsNaN(res.Length))
}

type stubTester struct {
	result stationarity.Result
	err    error
	calls  int
	got    []float64
}

func (s *stubTester) Test(ctx context.Context, values []float64) (stationarity.Result, error) {
	s.calls++
	s.got = values
	return s.result, s.err
}

func TestAnalyzer_DelegatesOnceWithCleanSeries(t *testing.T) {
	values := ar1(300, 0.8, 4)
	values[0] = math.NaN()
	values[1] = math.NaN()

	tester := &stubTester{result: stationarity.Result{PValue: 0.001, IsStationary: true, Source: stationarity.SourceLocal}}
	res := NewAnalyzer(tester).Analyze(context.Background(), values, nil, Thresholds{Entry: 2, Exit: 0.5})

	assert.Equal(t, 1, tester.calls)
	assert.Len(t, tester.got, 298)
	assert.True(t, res.Stationarity.IsStationary)
	assert.True(t, res.HalfLifeValid)
	assert.False(t, res.TradeCycle.Valid)
	assert.Equal(t, "strong mean reversion", res.Interpretation())
}

func TestAnalyzer_ConservativeFallback(t *testing.T) {
	failing := &stubTester{err: errors.New("service down")}
	res := NewAnalyzer(failing).Analyze(context.Background(), ar1(300, 0.8, 4), nil, Thresholds{Entry: 2, Exit: 0.5})
	assert.False(t, res.Stationarity.IsStationary)
	assert.Equal(t, 1.0, res.Stationarity.PValue)
	assert.Equal(t, stationarity.SourceFallback, res.Stationarity.Source)

	short := &stubTester{}
	res = NewAnalyzer(short).Analyze(context.Background(), []float64{1, 2, 3, math.NaN(), 4, 5, 6, 7, 8, 9}, nil, Thresholds{Entry: 2, Exit: 0.5})
	assert.Equal(t, 0, short.calls, "fewer than 10 clean points never reach the tester")
	assert.Equal(t, 1.0, res.Stationarity.PValue)

	res = NewAnalyzer(nil).Analyze(context.Background(), ar1(100, 0.5, 1), nil, Thresholds{Entry: 2, Exit: 0.5})
	assert.False(t, res.Stationarity.IsStationary)
}

func TestAnalyzer_WithLocalTester(t *testing.T) {
	res := NewAnalyzer(stationarity.NewLocalTester()).
		Analyze(context.Background(), ar1(500, 0.5, 11), nil, Thresholds{Entry: 2, Exit: 0.5})

	assert.True(t, res.Stationarity.IsStationary)
	assert.Equal(t, stationarity.SourceLocal, res.Stationarity.Source)

	wire := res.ToAPI()
	assert.Equal(t, res.Stationarity.IsStationary, wire.Stationarity.IsStationary)
	assert.Equal(t, res.HurstExponent, wire.HurstExponent.Float64())
}
