package diagnostics

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/stationarity"
	"github.com/yourusername/pairlab/pkg/stats"
)

// Result 均值回归诊断结果
type Result struct {
	HalfLife      float64
	HalfLifeValid bool
	HurstExponent float64
	Stationarity  stationarity.Result
	TradeCycle    CycleResult
}

// Thresholds 交易周期扫描使用的入场/出场阈值
type Thresholds struct {
	Entry float64
	Exit  float64
}

// Analyzer 计算诊断指标，平稳性检验委托给注入的 Tester
type Analyzer struct {
	tester stationarity.Tester
	logger zerolog.Logger
}

// NewAnalyzer 创建诊断器，tester 为 nil 时平稳性结果总是保守值
func NewAnalyzer(tester stationarity.Tester) *Analyzer {
	return &Analyzer{
		tester: tester,
		logger: logging.Component("diagnostics"),
	}
}

// Analyze 对模型输出和 z-score 计算全部诊断
// 平稳性检验每次运行只调用一次；失败时使用保守结果，不返回错误
func (a *Analyzer) Analyze(ctx context.Context, values, z []float64, th Thresholds) Result {
	hl, hlValid := HalfLife(values)
	res := Result{
		HalfLife:      hl,
		HalfLifeValid: hlValid,
		HurstExponent: Hurst(values),
		TradeCycle:    TradeCycle(z, th.Entry, th.Exit),
	}
	res.Stationarity = a.stationarity(ctx, stats.Finite(values))
	return res
}

func (a *Analyzer) stationarity(ctx context.Context, clean []float64) stationarity.Result {
	if len(clean) < stationarity.MinObservations {
		a.logger.Debug().Int("points", len(clean)).Msg("Too few points for stationarity test")
		return stationarity.Conservative()
	}
	if a.tester == nil {
		return stationarity.Conservative()
	}

	res, err := a.tester.Test(ctx, clean)
	if err != nil {
		a.logger.Warn().Err(err).Int("points", len(clean)).
			Msg("Stationarity test failed, using conservative result")
		return stationarity.Conservative()
	}
	return res
}

// ToAPI 转换为接口格式
func (r Result) ToAPI() api.Diagnostics {
	return api.Diagnostics{
		HalfLife:      api.Float(r.HalfLife),
		HalfLifeValid: r.HalfLifeValid,
		HurstExponent: api.Float(r.HurstExponent),
		Stationarity:  r.Stationarity.ToAPI(),
		TradeCycle: api.TradeCycle{
			Length:      api.Float(r.TradeCycle.Length),
			SuccessRate: api.Float(r.TradeCycle.SuccessRate),
			Episodes:    r.TradeCycle.Episodes,
			Valid:       r.TradeCycle.Valid,
		},
	}
}

// Interpretation 简短文字结论，用于报告
func (r Result) Interpretation() string {
	switch {
	case r.Stationarity.IsStationary && r.HalfLifeValid:
		return "strong mean reversion"
	case r.Stationarity.IsStationary || (r.HalfLifeValid && r.HurstExponent < 0.5):
		return "weak mean reversion"
	case r.HurstExponent > 0.5 && !math.IsNaN(r.HurstExponent):
		return "trending"
	default:
		return "no evidence of mean reversion"
	}
}
