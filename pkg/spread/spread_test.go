package spread

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// pairSeries 生成 B 为随机游走、A = alpha + beta*B + noise 的对齐序列
func pairSeries(n int, alpha, beta, noise float64, seed int64) *pricedata.AlignedSeries {
	rng := rand.New(rand.NewSource(seed))
	s := &pricedata.AlignedSeries{
		SymbolA: "A",
		SymbolB: "B",
		Dates:   make([]time.Time, n),
		PricesA: make([]float64, n),
		PricesB: make([]float64, n),
	}
	b := 100.0
	for i := 0; i < n; i++ {
		b += rng.NormFloat64()
		s.Dates[i] = start.AddDate(0, 0, i)
		s.PricesB[i] = b
		s.PricesA[i] = alpha + beta*b + noise*rng.NormFloat64()
	}
	return s
}

func allConfigs() []Config {
	return []Config{
		{Model: ModelOLS, Lookback: 20},
		{Model: ModelKalman, KalmanInitialLookback: 15, KalmanProcessNoise: 1e-5},
		{Model: ModelEuclidean, Lookback: 20, Normalization: NormalizeZScore},
		{Model: ModelEuclidean, Lookback: 20, Normalization: NormalizeMinMax},
		{Model: ModelEuclidean, Lookback: 20, Normalization: NormalizeRelative},
		{Model: ModelRatio},
	}
}

func TestModels_LengthAndWarmUp(t *testing.T) {
	series := pairSeries(120, 3, 2, 0.5, 1)

	for _, cfg := range allConfigs() {
		t.Run(string(cfg.Model)+"/"+string(cfg.Normalization), func(t *testing.T) {
			model, err := New(cfg)
			require.NoError(t, err)

			out, err := model.Compute(context.Background(), series)
			require.NoError(t, err)
			require.Equal(t, series.Len(), out.Len())
			assert.Equal(t, cfg.WarmUp(), out.WarmUp)
			assert.Equal(t, model.WarmUp(), out.WarmUp)

			for i := 0; i < out.WarmUp; i++ {
				assert.True(t, math.IsNaN(out.Points[i].Value), "value[%d] inside warm-up", i)
			}
			for i := out.WarmUp; i < out.Len(); i++ {
				assert.True(t, stats.IsFinite(out.Points[i].Value), "value[%d] after warm-up", i)
			}

			if !cfg.Model.HasHedgeRatio() {
				for _, p := range out.Points {
					assert.True(t, math.IsNaN(p.Alpha))
					assert.True(t, math.IsNaN(p.Beta))
				}
			}
		})
	}
}

func TestOLS_PerfectLinearRelationship(t *testing.T) {
	series := pairSeries(200, 3, 2, 0, 7)

	model, err := New(Config{Model: ModelOLS, Lookback: 30})
	require.NoError(t, err)
	out, err := model.Compute(context.Background(), series)
	require.NoError(t, err)

	for i := 29; i < out.Len(); i++ {
		p := out.Points[i]
		assert.InDelta(t, 3.0, p.Alpha, 1e-6, "alpha[%d]", i)
		assert.InDelta(t, 2.0, p.Beta, 1e-8, "beta[%d]", i)
		assert.InDelta(t, 0.0, p.Value, 1e-6, "value[%d]", i)
	}
}

func TestOLS_CollinearWindowEmitsNaN(t *testing.T) {
	series := pairSeries(10, 3, 2, 0, 3)
	for i := 0; i < 5; i++ {
		series.PricesB[i] = 50
	}

	out, err := (&OLSModel{Lookback: 5}).Compute(context.Background(), series)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out.Points[4].Value), "constant regressor window")
	assert.True(t, math.IsNaN(out.Points[4].Beta))
	assert.True(t, stats.IsFinite(out.Points[9].Value))
}

func TestKalmanState_ConvergesFromMisspecifiedPrior(t *testing.T) {
	series := pairSeries(300, 3, 2, 0, 11)
	state := NewKalmanState(0, 1, 1e-6, 1e-4)

	innovations := make([]float64, 0, series.Len())
	for i := range series.PricesA {
		y, ok := state.Step(series.PricesA[i], series.PricesB[i])
		require.True(t, ok)
		innovations = append(innovations, math.Abs(y))
	}

	assert.InDelta(t, 2.0, state.Beta, 1e-2)
	assert.InDelta(t, 3.0, state.Alpha, 0.5)

	tail := stats.Mean(innovations[len(innovations)-20:])
	assert.Less(t, tail, 0.1)
	assert.Less(t, tail, innovations[0]/100, "innovation should shrink toward zero")
}

func TestKalmanState_SkipsDegenerateUpdate(t *testing.T) {
	state := NewKalmanState(1, 2, 0, 0)
	state.P = [2][2]float64{{0, 0}, {0, 0}}

	y, ok := state.Step(10, 3)
	assert.False(t, ok)
	assert.InDelta(t, 3.0, y, 1e-12)
	assert.Equal(t, 1.0, state.Alpha)
	assert.Equal(t, 2.0, state.Beta)

	_, ok = NewKalmanState(1, 2, 0, 1).Step(math.NaN(), 3)
	assert.False(t, ok)
}

func TestKalman_LinearDataStaysOnRelationship(t *testing.T) {
	series := pairSeries(150, 3, 2, 0, 5)

	model, err := New(Config{Model: ModelKalman, KalmanInitialLookback: 30, KalmanProcessNoise: 1e-5})
	require.NoError(t, err)
	out, err := model.Compute(context.Background(), series)
	require.NoError(t, err)

	assert.True(t, math.IsNaN(out.Points[28].Value))
	for i := 29; i < out.Len(); i++ {
		assert.InDelta(t, 2.0, out.Points[i].Beta, 1e-6, "beta[%d]", i)
		assert.InDelta(t, 3.0, out.Points[i].Alpha, 1e-4, "alpha[%d]", i)
		assert.InDelta(t, 0.0, out.Points[i].Value, 1e-4, "value[%d]", i)
	}
}

func TestKalman_TracksRegimeChange(t *testing.T) {
	series := pairSeries(250, 3, 2, 0, 9)
	for i := 100; i < series.Len(); i++ {
		series.PricesA[i] = 3 + 3*series.PricesB[i]
	}

	model := &KalmanModel{InitialLookback: 30, ProcessNoise: 1e-4, MeasurementNoise: 1e-4}
	out, err := model.Compute(context.Background(), series)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, out.Points[99].Beta, 1e-3)
	last := out.Points[out.Len()-1]
	assert.InDelta(t, 3.0, last.Beta, 0.05)
}

func TestEuclidean_ScaledSeriesHaveZeroDistance(t *testing.T) {
	series := pairSeries(60, 0, 2, 0, 13)

	for _, norm := range []Normalization{NormalizeZScore, NormalizeMinMax, NormalizeRelative} {
		t.Run(string(norm), func(t *testing.T) {
			out, err := (&EuclideanModel{Lookback: 10, Normalization: norm}).Compute(context.Background(), series)
			require.NoError(t, err)
			for i := 9; i < out.Len(); i++ {
				assert.InDelta(t, 0.0, out.Points[i].Value, 1e-9, "value[%d]", i)
			}
		})
	}
}

func TestEuclidean_FlatWindowFallsBackToRelative(t *testing.T) {
	series := pairSeries(5, 0, 1, 0, 17)
	for i := range series.PricesA {
		series.PricesA[i] = 40
	}
	series.PricesB = []float64{10, 11, 12, 13, 15}

	out, err := (&EuclideanModel{Lookback: 5, Normalization: NormalizeZScore}).Compute(context.Background(), series)
	require.NoError(t, err)

	zB := stats.ZScore(15, stats.Mean(series.PricesB), stats.StdDev(series.PricesB))
	assert.InDelta(t, math.Abs(1.0-zB), out.Points[4].Value, 1e-12)
}

func TestRatio(t *testing.T) {
	series := &pricedata.AlignedSeries{
		Dates:   []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)},
		PricesA: []float64{10, 12, 9},
		PricesB: []float64{5, 0, 3},
	}

	out, err := (&RatioModel{}).Compute(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, 0, out.WarmUp)
	assert.InDelta(t, 2.0, out.Points[0].Value, 1e-12)
	assert.True(t, math.IsNaN(out.Points[1].Value), "zero denominator must not divide")
	assert.InDelta(t, 3.0, out.Points[2].Value, 1e-12)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "Unknown model", cfg: Config{Model: "garch"}},
		{name: "OLS lookback too short", cfg: Config{Model: ModelOLS, Lookback: 1}},
		{name: "Kalman init too short", cfg: Config{Model: ModelKalman, KalmanInitialLookback: 1}},
		{name: "Negative process noise", cfg: Config{Model: ModelKalman, KalmanInitialLookback: 10, KalmanProcessNoise: -1}},
		{name: "Bad normalization", cfg: Config{Model: ModelEuclidean, Lookback: 10, Normalization: "l2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCompute_InsufficientData(t *testing.T) {
	series := pairSeries(10, 3, 2, 0.1, 1)

	_, err := (&OLSModel{Lookback: 50}).Compute(context.Background(), series)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pricedata.ErrInsufficientData))
}

func TestCompute_Cancelled(t *testing.T) {
	series := pairSeries(100, 3, 2, 0.1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, cfg := range allConfigs() {
		model, err := New(cfg)
		require.NoError(t, err)
		_, err = model.Compute(ctx, series)
		assert.ErrorIs(t, err, context.Canceled, "model %s", cfg.Model)
	}
}

func TestParse(t *testing.T) {
	m, err := ParseModelType(" Kalman ")
	require.NoError(t, err)
	assert.Equal(t, ModelKalman, m)

	n, err := ParseNormalization("")
	require.NoError(t, err)
	assert.Equal(t, NormalizeZScore, n)

	_, err = ParseModelType("arima")
	assert.Error(t, err)
}

func BenchmarkOLSModel(b *testing.B) {
	series := pairSeries(2520, 3, 2, 0.5, 1)
	model := &OLSModel{Lookback: 60}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = model.Compute(ctx, series)
	}
}
