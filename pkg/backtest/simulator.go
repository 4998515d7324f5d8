package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/spread"
)

// Simulator replays threshold entry/exit rules against a z-score series.
// It holds at most one position and is deterministic for identical inputs.
type Simulator struct {
	entry      float64
	exit       float64
	maxHolding float64
	capital    decimal.Decimal
	policy     OpenPositionPolicy
	logger     zerolog.Logger
}

// NewSimulator creates a simulator from a validated run configuration.
func NewSimulator(cfg RunConfig) *Simulator {
	return &Simulator{
		entry:      cfg.EntryThreshold,
		exit:       cfg.ExitThreshold,
		maxHolding: cfg.MaxHoldingDays,
		capital:    decimal.NewFromFloat(cfg.CapitalPerTrade),
		policy:     cfg.OpenPositionPolicy,
		logger:     logging.Component("simulator"),
	}
}

// position is the open-trade snapshot taken at entry.
type position struct {
	index   int
	dir     Direction
	zScore  float64
	hedge   float64
	sharesA int64
	sharesB int64
}

// Run walks the series once and returns the closed trades in index order.
func (s *Simulator) Run(ctx context.Context, series *pricedata.AlignedSeries, out *spread.Output, z []float64) ([]Trade, error) {
	n := series.Len()
	if out == nil || out.Len() != n || len(z) != n {
		return nil, fmt.Errorf("simulator: length mismatch (series=%d output=%d zscores=%d)",
			n, outputLen(out), len(z))
	}

	trades := make([]Trade, 0, 16)
	var open *position

	for i := 1; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulator cancelled at index %d: %w", i, err)
		}

		if open != nil {
			reason, ok := s.exitReason(open, series, z[i], i)
			if !ok {
				continue
			}
			trades = append(trades, s.close(open, series, out, z, i, reason))
			open = nil
			// no re-entry on the exit bar
			continue
		}

		dir, ok := s.entrySignal(z[i-1], z[i])
		if !ok {
			continue
		}
		open = s.open(dir, series, out, z[i], i)
	}

	if open != nil {
		switch s.policy {
		case OpenPositionClose:
			trades = append(trades, s.close(open, series, out, z, n-1, ExitEndOfData))
		default:
			s.logger.Debug().
				Int("entry_index", open.index).
				Str("direction", string(open.dir)).
				Msg("Discarding position still open at end of data")
		}
	}
	return trades, nil
}

// entrySignal detects a threshold crossing between two consecutive z-scores.
func (s *Simulator) entrySignal(prev, cur float64) (Direction, bool) {
	if math.IsNaN(prev) || math.IsNaN(cur) {
		return "", false
	}
	if prev > -s.entry && cur <= -s.entry {
		return Long, true
	}
	if prev < s.entry && cur >= s.entry {
		return Short, true
	}
	return "", false
}

func (s *Simulator) exitReason(p *position, series *pricedata.AlignedSeries, z float64, i int) (ExitReason, bool) {
	if !math.IsNaN(z) {
		if p.dir == Long && z >= -s.exit {
			return ExitThreshold, true
		}
		if p.dir == Short && z <= s.exit {
			return ExitThreshold, true
		}
	}
	if series.HoldingDays(p.index, i) >= s.maxHolding {
		return ExitMaxHolding, true
	}
	return "", false
}

func (s *Simulator) open(dir Direction, series *pricedata.AlignedSeries, out *spread.Output, z float64, i int) *position {
	return &position{
		index:   i,
		dir:     dir,
		zScore:  z,
		hedge:   hedgeRatio(out, series, i),
		sharesA: s.shares(series.PricesA[i]),
		sharesB: s.shares(series.PricesB[i]),
	}
}

// shares sizes one leg with half the per-trade capital.
func (s *Simulator) shares(price float64) int64 {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	half := s.capital.Div(decimal.NewFromInt(2))
	return half.Div(decimal.NewFromFloat(price)).Floor().IntPart()
}

func (s *Simulator) close(p *position, series *pricedata.AlignedSeries, out *spread.Output, z []float64, i int, reason ExitReason) Trade {
	entryA, entryB := series.PricesA[p.index], series.PricesB[p.index]
	exitA, exitB := series.PricesA[i], series.PricesB[i]

	t := Trade{
		EntryIndex:        p.index,
		ExitIndex:         i,
		EntryDate:         series.Dates[p.index],
		ExitDate:          series.Dates[i],
		Direction:         p.dir,
		EntryZScore:       p.zScore,
		ExitZScore:        z[i],
		HoldingPeriodDays: series.HoldingDays(p.index, i),
		EntryPriceA:       entryA,
		EntryPriceB:       entryB,
		ExitPriceA:        exitA,
		ExitPriceB:        exitB,
		SharesA:           p.sharesA,
		SharesB:           p.sharesB,
		EntryHedgeRatio:   p.hedge,
		ExitHedgeRatio:    hedgeRatio(out, series, i),
		ExitReason:        reason,
	}

	t.HedgedPnL = p.hedgedPnL(entryA, entryB, exitA, exitB)
	if base := entryA + math.Abs(p.hedge)*entryB; base > 0 {
		t.HedgedROI = t.HedgedPnL / base
	}

	t.DollarNeutralPnL = p.dollarNeutralPnL(entryA, entryB, exitA, exitB)
	deployed := decimal.NewFromInt(p.sharesA).Mul(decimal.NewFromFloat(entryA)).
		Add(decimal.NewFromInt(p.sharesB).Mul(decimal.NewFromFloat(entryB)))
	if deployed.IsPositive() {
		t.DollarNeutralROI = t.DollarNeutralPnL / deployed.InexactFloat64()
	}

	// mark-to-market replay from entry to exit; the running peak starts at zero
	var peakH, peakD float64
	for k := p.index; k <= i; k++ {
		h := p.hedgedPnL(entryA, entryB, series.PricesA[k], series.PricesB[k])
		d := p.dollarNeutralPnL(entryA, entryB, series.PricesA[k], series.PricesB[k])
		peakH = math.Max(peakH, h)
		peakD = math.Max(peakD, d)
		t.HedgedMaxDrawdown = math.Max(t.HedgedMaxDrawdown, peakH-h)
		t.DollarNeutralMaxDrawdown = math.Max(t.DollarNeutralMaxDrawdown, peakD-d)
	}
	return t
}

// hedgedPnL is dir * [(A - A0) - h * (B - B0)] for one unit of A.
func (p *position) hedgedPnL(entryA, entryB, a, b float64) float64 {
	return p.dir.Sign() * ((a - entryA) - p.hedge*(b-entryB))
}

// dollarNeutralPnL is dir * [sharesA * dA - sharesB * dB].
func (p *position) dollarNeutralPnL(entryA, entryB, a, b float64) float64 {
	legA := decimal.NewFromInt(p.sharesA).Mul(decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(entryA)))
	legB := decimal.NewFromInt(p.sharesB).Mul(decimal.NewFromFloat(b).Sub(decimal.NewFromFloat(entryB)))
	return p.dir.Sign() * legA.Sub(legB).InexactFloat64()
}

// hedgeRatio is the model beta for regression models, otherwise the price ratio A/B.
func hedgeRatio(out *spread.Output, series *pricedata.AlignedSeries, i int) float64 {
	if out.Model.HasHedgeRatio() {
		if beta := out.Points[i].Beta; !math.IsNaN(beta) && !math.IsInf(beta, 0) {
			return beta
		}
	}
	if series.PricesB[i] == 0 {
		return math.NaN()
	}
	return series.PricesA[i] / series.PricesB[i]
}

func outputLen(out *spread.Output) int {
	if out == nil {
		return 0
	}
	return out.Len()
}
