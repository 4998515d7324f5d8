// Package stats provides statistical functions and rolling-window tools for price relationship analysis
package stats

import (
	"math"
)

// degenerateEpsilon 判定方差/分母退化的相对阈值
const degenerateEpsilon = 1e-12

// WindowStats 窗口统计结果
type WindowStats struct {
	Mean     float64
	Std      float64
	Variance float64
	Count    int
}

// CalculateWindowStats 计算最近 period 个数据点的均值、样本方差、标准差
// 一次遍历求和，二次遍历求离差，避免大数相减的精度损失
func CalculateWindowStats(data []float64, period int) WindowStats {
	if len(data) == 0 {
		return WindowStats{}
	}

	n := len(data)
	if period <= 0 || period > n {
		period = n
	}
	recent := data[n-period:]

	mean := Mean(recent)
	variance := Variance(recent)

	return WindowStats{
		Mean:     mean,
		Std:      math.Sqrt(variance),
		Variance: variance,
		Count:    len(recent),
	}
}

// Mean 计算均值，空输入返回 NaN
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 计算样本方差（N-1）
// 只有一个观测值时退化为总体方差（结果为 0）
func Variance(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return 0
	}
	return sumSquaredDeviations(data) / float64(n-1)
}

// PopulationVariance 计算总体方差（N）
func PopulationVariance(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return sumSquaredDeviations(data) / float64(len(data))
}

func sumSquaredDeviations(data []float64) float64 {
	mean := Mean(data)
	var ss float64
	for _, val := range data {
		diff := val - mean
		ss += diff * diff
	}
	return ss
}

// StdDev 计算样本标准差
func StdDev(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// PopulationStdDev 计算总体标准差
func PopulationStdDev(data []float64) float64 {
	return math.Sqrt(PopulationVariance(data))
}

// ZScore 计算 Z-Score
// z = (x - μ) / σ，σ 为零或任何输入非有限时返回 NaN（不返回 ±Inf）
func ZScore(value, mean, std float64) float64 {
	if !IsFinite(value) || !IsFinite(mean) || !IsFinite(std) || std <= degenerateEpsilon {
		return math.NaN()
	}
	return (value - mean) / std
}

// Correlation 计算 Pearson 相关系数
// r = Σ[(xi - x̄)(yi - ȳ)] / sqrt[Σ(xi - x̄)² * Σ(yi - ȳ)²]
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	denominator := math.Sqrt(varX * varY)
	if denominator < 1e-10 {
		return 0
	}

	return numerator / denominator
}

// LinearRegression 计算线性回归 y = slope * x + intercept（离差形式）
// x 方差退化时返回 ok=false
func LinearRegression(x, y []float64) (slope, intercept float64, ok bool) {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN(), math.NaN(), false
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, denominator, scale float64
	for i := range x {
		diffX := x[i] - meanX
		numerator += diffX * (y[i] - meanY)
		denominator += diffX * diffX
		scale += x[i] * x[i]
	}

	if denominator <= degenerateEpsilon*math.Max(scale, 1) {
		return math.NaN(), math.NaN(), false
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX
	return slope, intercept, true
}

// OLS 用闭式正规方程拟合 y = alpha + beta * x
// β = (nΣxy − ΣxΣy) / (nΣx² − (Σx)²)，α = (Σy − βΣx) / n
// 分母相对 nΣx² 过小（窗口内 x 近似共线）时返回 ok=false
func OLS(x, y []float64) (alpha, beta float64, ok bool) {
	n := len(x)
	if n != len(y) || n < 2 {
		return math.NaN(), math.NaN(), false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}

	fn := float64(n)
	denominator := fn*sumXX - sumX*sumX
	if !IsFinite(denominator) || math.Abs(denominator) <= degenerateEpsilon*math.Max(fn*sumXX, 1) {
		return math.NaN(), math.NaN(), false
	}

	beta = (fn*sumXY - sumX*sumY) / denominator
	alpha = (sumY - beta*sumX) / fn
	if !IsFinite(alpha) || !IsFinite(beta) {
		return math.NaN(), math.NaN(), false
	}
	return alpha, beta, true
}

// IsFinite 判断是否为有限数（非 NaN、非 ±Inf）
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite 过滤掉 NaN 和 ±Inf，返回新切片
func Finite(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if IsFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// NaNs 返回长度为 n、全部为 NaN 的切片
func NaNs(n int) []float64 {
	out := make([]float64, n)
	nan := math.NaN()
	for i := range out {
		out[i] = nan
	}
	return out
}
