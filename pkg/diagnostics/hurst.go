package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/pairlab/pkg/stats"
)

const (
	minHurstLength   = 20
	minHurstLags     = 3
	smallestHurstLag = 8
)

// Hurst 重标极差 (R/S) 分析
// 对 8, 16, 32, ... <= n/4 的块长度，把序列切成不重叠的块，计算每块的 R/S 并取均值，
// 再对 log(mean R/S) ~ log(lag) 做最小二乘，斜率即 Hurst 指数，截断到 [0,1]。
// 块只在连续的有限值片段内切分，NaN 两侧的值不会落在同一块里。
// 有限值不足 20 或可用的 lag 少于 3 个时返回 0.5。
// 未做小样本偏差修正：白噪声在 n=4096 时约为 0.53-0.56。
func Hurst(values []float64) float64 {
	runs := finiteRuns(values)
	n := 0
	for _, r := range runs {
		n += len(r)
	}
	if n < minHurstLength {
		return 0.5
	}

	var logLags, logRS []float64
	for lag := smallestHurstLag; lag <= n/4; lag *= 2 {
		rs, ok := meanRescaledRange(runs, lag)
		if !ok {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(rs))
	}
	if len(logLags) < minHurstLags {
		return 0.5
	}

	_, slope := stat.LinearRegression(logLags, logRS, nil, false)
	if !stats.IsFinite(slope) {
		return 0.5
	}
	return math.Max(0, math.Min(1, slope))
}

// meanRescaledRange 各片段内不重叠块的平均 R/S，标准差为零的块跳过
func meanRescaledRange(runs [][]float64, lag int) (float64, bool) {
	var sum float64
	var count int

	for _, x := range runs {
		for start := 0; start+lag <= len(x); start += lag {
			if rs, ok := rescaledRange(x[start : start+lag]); ok {
				sum += rs
				count++
			}
		}
	}

	if count == 0 {
		return 0, false
	}
	rs := sum / float64(count)
	return rs, rs > 0
}

func rescaledRange(chunk []float64) (float64, bool) {
	mean := stats.Mean(chunk)

	var cum, lo, hi float64
	for _, v := range chunk {
		cum += v - mean
		lo = math.Min(lo, cum)
		hi = math.Max(hi, cum)
	}

	sd := stats.PopulationStdDev(chunk)
	if sd <= 1e-12 {
		return 0, false
	}
	return (hi - lo) / sd, true
}

// finiteRuns 按 NaN/Inf 切分出连续的有限值片段
func finiteRuns(values []float64) [][]float64 {
	var runs [][]float64
	start := -1
	for i, v := range values {
		if stats.IsFinite(v) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, values[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, values[start:])
	}
	return runs
}
