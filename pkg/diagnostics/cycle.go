package diagnostics

import (
	"math"

	"github.com/yourusername/pairlab/pkg/stats"
)

// MinCycleEpisodes 报告有效交易周期所需的最少片段数
const MinCycleEpisodes = 3

// CycleResult 实际交易半衰期
type CycleResult struct {
	Length      float64 // 平均片段长度（下标数）
	SuccessRate float64 // 出场时 |z| 小于入场 |z| 的比例
	Episodes    int
	Valid       bool
}

// TradeCycle 扫描 z-score 中的阈值片段
// |z| 首次达到 entry 时开始，之后 |z| <= exit 时结束；片段少于 3 个时无效
func TradeCycle(z []float64, entry, exit float64) CycleResult {
	res := CycleResult{Length: math.NaN(), SuccessRate: math.NaN()}

	inEpisode := false
	var entryIdx int
	var entryZ float64
	var totalLen float64
	var successes int

	for i, v := range z {
		if !stats.IsFinite(v) {
			continue
		}
		abs := math.Abs(v)
		if !inEpisode {
			if abs >= entry {
				inEpisode = true
				entryIdx = i
				entryZ = v
			}
			continue
		}
		if abs <= exit {
			res.Episodes++
			totalLen += float64(i - entryIdx)
			if abs < math.Abs(entryZ) {
				successes++
			}
			inEpisode = false
		}
	}

	if res.Episodes < MinCycleEpisodes {
		return res
	}
	res.Length = totalLen / float64(res.Episodes)
	res.SuccessRate = float64(successes) / float64(res.Episodes)
	res.Valid = true
	return res
}
