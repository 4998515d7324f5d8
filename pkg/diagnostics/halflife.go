// Package diagnostics measures how strongly a spread series mean-reverts:
// AR(1) half-life, Hurst exponent, stationarity and the empirical trade cycle.
package diagnostics

import (
	"math"

	"github.com/yourusername/pairlab/pkg/stats"
)

// MaxHalfLife 超过一个交易年的半衰期视为不具有均值回归
const MaxHalfLife = 252.0

// HalfLife 拟合 x[t] = a + b·x[t-1]，半衰期 = -ln2 / ln b
// 只用下标相邻且都有限的 (x[t-1], x[t]) 对，NaN 两侧的值不配对
// 只有 0 < b < 1 且 0 < halfLife < 252 时有效；b 不在 (0,1) 时返回 +Inf
func HalfLife(values []float64) (float64, bool) {
	var prev, next []float64
	for t := 1; t < len(values); t++ {
		if stats.IsFinite(values[t-1]) && stats.IsFinite(values[t]) {
			prev = append(prev, values[t-1])
			next = append(next, values[t])
		}
	}
	if len(prev) < 2 {
		return math.NaN(), false
	}

	b, _, ok := stats.LinearRegression(prev, next)
	if !ok {
		return math.NaN(), false
	}
	if b <= 0 || b >= 1 {
		return math.Inf(1), false
	}

	hl := -math.Ln2 / math.Log(b)
	return hl, hl > 0 && hl < MaxHalfLife
}
