package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{name: "Simple mean", data: []float64{1, 2, 3, 4, 5}, expected: 3.0},
		{name: "Single value", data: []float64{42}, expected: 42.0},
		{name: "Negative values", data: []float64{-1, -2, -3}, expected: -2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Mean(tt.data), 1e-12)
		})
	}

	assert.True(t, math.IsNaN(Mean(nil)), "empty input has no mean")
}

func TestVariance_SampleAndPopulation(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	// 总体方差 = 4，样本方差 = 32/7
	assert.InDelta(t, 4.0, PopulationVariance(data), 1e-12)
	assert.InDelta(t, 32.0/7.0, Variance(data), 1e-12)
	assert.InDelta(t, 2.0, PopulationStdDev(data), 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(data), 1e-12)

	// 单个观测值退化为总体方差
	assert.Equal(t, 0.0, Variance([]float64{3}))
}

func TestZScore(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		mean     float64
		std      float64
		expected float64
		isNaN    bool
	}{
		{name: "Positive z-score", value: 15, mean: 10, std: 2.5, expected: 2.0},
		{name: "Negative z-score", value: 5, mean: 10, std: 2.5, expected: -2.0},
		{name: "Zero std dev", value: 10, mean: 10, std: 0, isNaN: true},
		{name: "NaN mean", value: 10, mean: math.NaN(), std: 1, isNaN: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ZScore(tt.value, tt.mean, tt.std)
			if tt.isNaN {
				assert.True(t, math.IsNaN(got), "ZScore() = %v, want NaN", got)
				return
			}
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}
}

func TestCalculateWindowStats(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	result := CalculateWindowStats(data, 5)
	assert.InDelta(t, 8.0, result.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), result.Std, 1e-12) // 样本标准差 of [6..10]
	assert.Equal(t, 5, result.Count)

	all := CalculateWindowStats(data, 0)
	assert.Equal(t, 10, all.Count)
	assert.InDelta(t, 5.5, all.Mean, 1e-12)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}

	assert.InDelta(t, 1.0, Correlation(x, []float64{2, 4, 6, 8, 10}), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, []float64{10, 8, 6, 4, 2}), 1e-12)
	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
}

func TestLinearRegression(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{5, 7, 9, 11, 13}

	slope, intercept, ok := LinearRegression(x, y)
	require.True(t, ok)
	assert.InDelta(t, 2.0, slope, 1e-12)
	assert.InDelta(t, 3.0, intercept, 1e-12)

	_, _, ok = LinearRegression([]float64{4, 4, 4}, []float64{1, 2, 3})
	assert.False(t, ok, "constant regressor must be reported as degenerate")
}

func TestOLS_ExactLinearRelationship(t *testing.T) {
	// priceA = 3 + 2 * priceB
	b := []float64{100, 101.5, 99.2, 103.7, 105.1, 98.4, 102.2}
	a := make([]float64, len(b))
	for i := range b {
		a[i] = 3 + 2*b[i]
	}

	alpha, beta, ok := OLS(b, a)
	require.True(t, ok)
	assert.InDelta(t, 3.0, alpha, 1e-6)
	assert.InDelta(t, 2.0, beta, 1e-9)
}

func TestOLS_CollinearWindow(t *testing.T) {
	alpha, beta, ok := OLS([]float64{50, 50, 50, 50}, []float64{1, 2, 3, 4})
	assert.False(t, ok)
	assert.True(t, math.IsNaN(alpha))
	assert.True(t, math.IsNaN(beta))
}

func TestFinite(t *testing.T) {
	in := []float64{1, math.NaN(), 2, math.Inf(1), 3, math.Inf(-1)}
	assert.Equal(t, []float64{1, 2, 3}, Finite(in))
}

func BenchmarkOLS(b *testing.B) {
	x := make([]float64, 60)
	y := make([]float64, 60)
	for i := range x {
		x[i] = 100 + float64(i)*0.3
		y[i] = 5 + 1.7*x[i]
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		OLS(x, y)
	}
}
