package backtest

import (
	"time"

	"github.com/yourusername/pairlab/pkg/diagnostics"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/spread"
)

// Direction is the side of a spread position
type Direction string

const (
	// Long buys A and sells B; entered when the z-score drops through -entry
	Long Direction = "long"
	// Short sells A and buys B; entered when the z-score rises through +entry
	Short Direction = "short"
)

// Sign returns +1 for Long and -1 for Short
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// ExitReason records why a position was closed
type ExitReason string

const (
	ExitThreshold  ExitReason = "exit_threshold"
	ExitMaxHolding ExitReason = "max_holding"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Trade represents a completed round trip. Created only at exit.
type Trade struct {
	EntryIndex        int
	ExitIndex         int
	EntryDate         time.Time
	ExitDate          time.Time
	Direction         Direction
	EntryZScore       float64
	ExitZScore        float64
	HoldingPeriodDays float64

	EntryPriceA float64
	EntryPriceB float64
	ExitPriceA  float64
	ExitPriceB  float64
	SharesA     int64
	SharesB     int64

	HedgedPnL                float64
	DollarNeutralPnL         float64
	HedgedROI                float64
	DollarNeutralROI         float64
	HedgedMaxDrawdown        float64
	DollarNeutralMaxDrawdown float64

	EntryHedgeRatio float64
	ExitHedgeRatio  float64
	ExitReason      ExitReason
}

// Method selects one of the two P&L accounting methods
type Method string

const (
	MethodHedged        Method = "hedged"
	MethodDollarNeutral Method = "dollar_neutral"
)

// PnL returns the trade P&L under the given method
func (t *Trade) PnL(m Method) float64 {
	if m == MethodDollarNeutral {
		return t.DollarNeutralPnL
	}
	return t.HedgedPnL
}

// ROI returns the trade return under the given method
func (t *Trade) ROI(m Method) float64 {
	if m == MethodDollarNeutral {
		return t.DollarNeutralROI
	}
	return t.HedgedROI
}

// DirectionalStats is the breakdown of one direction
type DirectionalStats struct {
	Trades   int
	Wins     int
	WinRate  float64
	TotalPnL float64
	AvgPnL   float64
}

// PerformanceSummary aggregates one accounting method over a trade list
type PerformanceSummary struct {
	Method Method

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64

	GrossProfit  float64
	GrossLoss    float64
	TotalPnL     float64
	AvgPnL       float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	Expectancy   float64
	SharpeRatio  float64
	MaxDrawdown  float64
	BestTrade    float64
	WorstTrade   float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AvgHoldingDays       float64

	Long  DirectionalStats
	Short DirectionalStats
}

// Result contains the complete output of one run
type Result struct {
	RunID     string
	Config    RunConfig
	Series    *pricedata.AlignedSeries
	Output    *spread.Output
	ZScores   []float64
	Warnings  []string
	StartedAt time.Time
	Duration  time.Duration

	Diagnostics diagnostics.Result
	Trades      []Trade

	// nil when the run was diagnostics-only
	Hedged        *PerformanceSummary
	DollarNeutral *PerformanceSummary
}
