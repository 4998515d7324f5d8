package backtest

import (
	"math"

	"github.com/yourusername/pairlab/pkg/stats"
)

// TradingDaysPerYear annualizes per-trade returns.
const TradingDaysPerYear = 252.0

// Aggregate derives the performance summary of one accounting method.
// An empty trade list yields an all-zero summary.
func Aggregate(trades []Trade, method Method, riskFreeRate float64) PerformanceSummary {
	s := PerformanceSummary{Method: method, TotalTrades: len(trades)}
	if len(trades) == 0 {
		return s
	}

	rois := make([]float64, 0, len(trades))
	var holding, cum, peak float64
	var winStreak, lossStreak int
	s.BestTrade = math.Inf(-1)
	s.WorstTrade = math.Inf(1)

	for i := range trades {
		t := &trades[i]
		pnl := t.PnL(method)
		rois = append(rois, t.ROI(method))
		holding += t.HoldingPeriodDays
		s.TotalPnL += pnl
		s.BestTrade = math.Max(s.BestTrade, pnl)
		s.WorstTrade = math.Min(s.WorstTrade, pnl)

		switch {
		case pnl > 0:
			s.WinningTrades++
			s.GrossProfit += pnl
			winStreak++
			lossStreak = 0
		case pnl < 0:
			s.LosingTrades++
			s.GrossLoss += -pnl
			lossStreak++
			winStreak = 0
		default:
			winStreak, lossStreak = 0, 0
		}
		if winStreak > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = winStreak
		}
		if lossStreak > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = lossStreak
		}

		// drawdown of cumulative P&L; the peak starts at zero
		cum += pnl
		peak = math.Max(peak, cum)
		s.MaxDrawdown = math.Max(s.MaxDrawdown, peak-cum)

		dir := &s.Long
		if t.Direction == Short {
			dir = &s.Short
		}
		dir.Trades++
		dir.TotalPnL += pnl
		if pnl > 0 {
			dir.Wins++
		}
	}

	n := float64(len(trades))
	s.WinRate = float64(s.WinningTrades) / n
	s.AvgPnL = s.TotalPnL / n
	s.AvgHoldingDays = holding / n
	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = s.GrossLoss / float64(s.LosingTrades)
	}
	lossRate := float64(s.LosingTrades) / n
	s.Expectancy = s.WinRate*s.AvgWin - lossRate*s.AvgLoss
	s.ProfitFactor = profitFactor(s.GrossProfit, s.GrossLoss)
	s.SharpeRatio = sharpeRatio(rois, s.AvgHoldingDays, riskFreeRate)

	finishDirectional(&s.Long)
	finishDirectional(&s.Short)
	return s
}

// profitFactor is +Inf with profit and no losses, 0 with no profit, never NaN.
func profitFactor(grossProfit, grossLoss float64) float64 {
	switch {
	case grossLoss > 0:
		return grossProfit / grossLoss
	case grossProfit > 0:
		return math.Inf(1)
	default:
		return 0
	}
}

// sharpeRatio annualizes per-trade ROI with 252 / avg holding days periods per year.
// Undefined inputs (fewer than two trades, zero dispersion, zero holding) give 0.
func sharpeRatio(rois []float64, avgHoldingDays, riskFreeRate float64) float64 {
	if len(rois) < 2 || avgHoldingDays <= 0 {
		return 0
	}
	std := stats.StdDev(rois)
	if std == 0 || !stats.IsFinite(std) {
		return 0
	}
	periods := TradingDaysPerYear / avgHoldingDays
	sharpe := (stats.Mean(rois)*periods - riskFreeRate) / (std * math.Sqrt(periods))
	if !stats.IsFinite(sharpe) {
		return 0
	}
	return sharpe
}

func finishDirectional(d *DirectionalStats) {
	if d.Trades == 0 {
		return
	}
	d.WinRate = float64(d.Wins) / float64(d.Trades)
	d.AvgPnL = d.TotalPnL / float64(d.Trades)
}

// Summarize computes both method summaries.
func Summarize(trades []Trade, riskFreeRate float64) (hedged, dollarNeutral PerformanceSummary) {
	return Aggregate(trades, MethodHedged, riskFreeRate), Aggregate(trades, MethodDollarNeutral, riskFreeRate)
}
