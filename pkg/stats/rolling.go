package stats

// RollingMean 计算滚动均值
// 窗口未满或窗口内含 NaN/Inf 的位置输出 NaN；输出长度与输入一致
func RollingMean(series []float64, window int) []float64 {
	out := NaNs(len(series))
	if window <= 0 {
		return out
	}

	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]
		if !allFinite(w) {
			continue
		}
		out[i] = Mean(w)
	}
	return out
}

// RollingStdDev 计算滚动标准差
// useBessel=true 使用样本标准差（N-1），窗口只有一个观测值时退化为总体标准差
func RollingStdDev(series []float64, window int, useBessel bool) []float64 {
	out := NaNs(len(series))
	if window <= 0 {
		return out
	}

	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]
		if !allFinite(w) {
			continue
		}
		if useBessel && window > 1 {
			out[i] = StdDev(w)
		} else {
			out[i] = PopulationStdDev(w)
		}
	}
	return out
}

// RollingZScore 计算滚动 z-score: (value[i] - mean[i]) / std[i]
// 窗口未满、含 NaN 或标准差为零时输出 NaN，不会产生 ±Inf
func RollingZScore(series []float64, window int) []float64 {
	means := RollingMean(series, window)
	stds := RollingStdDev(series, window, true)

	out := NaNs(len(series))
	for i := range series {
		out[i] = ZScore(series[i], means[i], stds[i])
	}
	return out
}

// FirstValid 返回第一个有限值的下标，不存在时返回 -1
func FirstValid(series []float64) int {
	for i, v := range series {
		if IsFinite(v) {
			return i
		}
	}
	return -1
}

// CountValid 统计有限值的数量
func CountValid(series []float64) int {
	n := 0
	for _, v := range series {
		if IsFinite(v) {
			n++
		}
	}
	return n
}

func allFinite(w []float64) bool {
	for _, v := range w {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}
