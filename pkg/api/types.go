// Package api defines the JSON contract shared by the HTTP, gRPC and NATS transports.
package api

import "time"

// Response is the standard envelope for /api/v1 endpoints.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PricePoint is one inline daily close.
type PricePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// RunConfig carries per-run parameters. Zero values fall back to the server defaults,
// except KalmanProcessNoise, where an explicit 0 selects a constant-parameter filter.
type RunConfig struct {
	ModelType              string   `json:"model_type,omitempty"`
	LookbackWindow         int      `json:"lookback_window,omitempty"`
	ZScoreLookback         int      `json:"zscore_lookback,omitempty"`
	KalmanProcessNoise     *float64 `json:"kalman_process_noise,omitempty"`
	KalmanMeasurementNoise float64  `json:"kalman_measurement_noise,omitempty"`
	KalmanInitialLookback  int      `json:"kalman_initial_lookback,omitempty"`
	EuclideanNormalization string   `json:"euclidean_normalization,omitempty"`
	EntryThreshold         float64  `json:"entry_threshold,omitempty"`
	ExitThreshold          float64  `json:"exit_threshold,omitempty"`
	MaxHoldingDays         float64  `json:"max_holding_days,omitempty"`
	CapitalPerTrade        float64  `json:"capital_per_trade,omitempty"`
	RiskFreeRate           float64  `json:"risk_free_rate,omitempty"`
	OpenPositionPolicy     string   `json:"open_position_policy,omitempty"`
	DiagnosticsOnly        bool     `json:"diagnostics_only,omitempty"`
}

// RunRequest asks for one analysis run. When the inline price arrays are empty
// the server loads both symbols from its price provider.
type RunRequest struct {
	SymbolA string       `json:"symbol_a"`
	SymbolB string       `json:"symbol_b"`
	PricesA []PricePoint `json:"prices_a,omitempty"`
	PricesB []PricePoint `json:"prices_b,omitempty"`
	Config  *RunConfig   `json:"config,omitempty"`
}

// SeriesPoint is one index of the model output joined with its z-score.
type SeriesPoint struct {
	Date   string `json:"date"`
	PriceA Float  `json:"price_a"`
	PriceB Float  `json:"price_b"`
	Value  Float  `json:"value"`
	Alpha  Float  `json:"alpha"`
	Beta   Float  `json:"beta"`
	ZScore Float  `json:"zscore"`
}

// Stationarity mirrors the unit-root test result.
type Stationarity struct {
	Statistic      Float            `json:"statistic"`
	PValue         Float            `json:"p_value"`
	CriticalValues map[string]Float `json:"critical_values"`
	IsStationary   bool             `json:"is_stationary"`
	UsedLag        int              `json:"used_lag"`
	NObs           int              `json:"nobs"`
	Source         string           `json:"source"`
}

// TradeCycle is the empirical threshold-crossing cycle.
type TradeCycle struct {
	Length      Float `json:"length"`
	SuccessRate Float `json:"success_rate"`
	Episodes    int   `json:"episodes"`
	Valid       bool  `json:"valid"`
}

// Diagnostics groups the mean-reversion diagnostics.
type Diagnostics struct {
	HalfLife      Float        `json:"half_life"`
	HalfLifeValid bool         `json:"half_life_valid"`
	HurstExponent Float        `json:"hurst_exponent"`
	Stationarity  Stationarity `json:"stationarity"`
	TradeCycle    TradeCycle   `json:"trade_cycle"`
}

// Trade is one closed simulated trade.
type Trade struct {
	EntryIndex               int    `json:"entry_index"`
	ExitIndex                int    `json:"exit_index"`
	EntryDate                string `json:"entry_date"`
	ExitDate                 string `json:"exit_date"`
	Direction                string `json:"direction"`
	EntryZScore              Float  `json:"entry_zscore"`
	ExitZScore               Float  `json:"exit_zscore"`
	HoldingPeriodDays        Float  `json:"holding_period_days"`
	EntryPriceA              Float  `json:"entry_price_a"`
	EntryPriceB              Float  `json:"entry_price_b"`
	ExitPriceA               Float  `json:"exit_price_a"`
	ExitPriceB               Float  `json:"exit_price_b"`
	SharesA                  int64  `json:"shares_a"`
	SharesB                  int64  `json:"shares_b"`
	HedgedPnL                Float  `json:"hedged_pnl"`
	DollarNeutralPnL         Float  `json:"dollar_neutral_pnl"`
	HedgedROI                Float  `json:"hedged_roi"`
	DollarNeutralROI         Float  `json:"dollar_neutral_roi"`
	HedgedMaxDrawdown        Float  `json:"hedged_max_drawdown"`
	DollarNeutralMaxDrawdown Float  `json:"dollar_neutral_max_drawdown"`
	EntryHedgeRatio          Float  `json:"entry_hedge_ratio"`
	ExitHedgeRatio           Float  `json:"exit_hedge_ratio"`
	ExitReason               string `json:"exit_reason"`
}

// Directional is the per-direction breakdown of a summary.
type Directional struct {
	Trades   int   `json:"trades"`
	Wins     int   `json:"wins"`
	WinRate  Float `json:"win_rate"`
	TotalPnL Float `json:"total_pnl"`
	AvgPnL   Float `json:"avg_pnl"`
}

// Summary is the performance summary of one accounting method.
type Summary struct {
	Method               string      `json:"method"`
	TotalTrades          int         `json:"total_trades"`
	WinningTrades        int         `json:"winning_trades"`
	LosingTrades         int         `json:"losing_trades"`
	WinRate              Float       `json:"win_rate"`
	GrossProfit          Float       `json:"gross_profit"`
	GrossLoss            Float       `json:"gross_loss"`
	TotalPnL             Float       `json:"total_pnl"`
	AvgPnL               Float       `json:"avg_pnl"`
	AvgWin               Float       `json:"avg_win"`
	AvgLoss              Float       `json:"avg_loss"`
	ProfitFactor         Float       `json:"profit_factor"`
	Expectancy           Float       `json:"expectancy"`
	SharpeRatio          Float       `json:"sharpe_ratio"`
	MaxDrawdown          Float       `json:"max_drawdown"`
	BestTrade            Float       `json:"best_trade"`
	WorstTrade           Float       `json:"worst_trade"`
	MaxConsecutiveWins   int         `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int         `json:"max_consecutive_losses"`
	AvgHoldingDays       Float       `json:"avg_holding_days"`
	Long                 Directional `json:"long"`
	Short                Directional `json:"short"`
}

// RunResponse is the full result contract of one run.
type RunResponse struct {
	RunID         string        `json:"run_id"`
	SymbolA       string        `json:"symbol_a"`
	SymbolB       string        `json:"symbol_b"`
	Model         string        `json:"model"`
	WarmUp        int           `json:"warm_up"`
	StartedAt     time.Time     `json:"started_at"`
	DurationMS    float64       `json:"duration_ms"`
	Config        RunConfig     `json:"config"`
	Series        []SeriesPoint `json:"series"`
	Diagnostics   Diagnostics   `json:"diagnostics"`
	Trades        []Trade       `json:"trades"`
	Hedged        *Summary      `json:"hedged,omitempty"`
	DollarNeutral *Summary      `json:"dollar_neutral,omitempty"`
}

// ParamGrid lists the values swept by the optimizer. Empty lists keep the base value.
type ParamGrid struct {
	EntryThresholds []float64 `json:"entry_thresholds,omitempty"`
	ExitThresholds  []float64 `json:"exit_thresholds,omitempty"`
	ZScoreLookbacks []int     `json:"zscore_lookbacks,omitempty"`
	MaxHoldingDays  []float64 `json:"max_holding_days,omitempty"`
}

// OptimizeRequest asks for a grid search over simulator parameters.
type OptimizeRequest struct {
	Run     RunRequest `json:"run"`
	Grid    ParamGrid  `json:"grid"`
	Goal    string     `json:"goal,omitempty"` // sharpe, pnl, win_rate, profit_factor
	Method  string     `json:"method,omitempty"`
	Workers int        `json:"workers,omitempty"`
	TopN    int        `json:"top_n,omitempty"`
}

// OptimizeResult is one ranked parameter set.
type OptimizeResult struct {
	Rank           int     `json:"rank"`
	EntryThreshold float64 `json:"entry_threshold"`
	ExitThreshold  float64 `json:"exit_threshold"`
	ZScoreLookback int     `json:"zscore_lookback"`
	MaxHoldingDays float64 `json:"max_holding_days"`
	Score          Float   `json:"score"`
	Trades         int     `json:"trades"`
	Hedged         Summary `json:"hedged"`
	DollarNeutral  Summary `json:"dollar_neutral"`
}

// OptimizeResponse is the ranked grid-search outcome.
type OptimizeResponse struct {
	RunID      string           `json:"run_id"`
	Goal       string           `json:"goal"`
	Method     string           `json:"method"`
	Evaluated  int              `json:"evaluated"`
	Skipped    int              `json:"skipped"`
	DurationMS float64          `json:"duration_ms"`
	Results    []OptimizeResult `json:"results"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"`
	Stationarity string `json:"stationarity"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
}

// ADFRequest is the body of POST /api/adf-test.
type ADFRequest struct {
	TimeSeries []float64 `json:"time_series"`
}

// ADFResponse is the success body of POST /api/adf-test.
type ADFResponse struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	CriticalValues map[string]float64 `json:"critical_values"`
	IsStationary   bool               `json:"is_stationary"`
}

// ErrorResponse is the error body of POST /api/adf-test.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Job kinds carried over the message queue.
const (
	JobRun      = "run"
	JobOptimize = "optimize"
)

// Job is a queued unit of work.
type Job struct {
	ID       string           `json:"id"`
	Kind     string           `json:"kind"`
	Run      *RunRequest      `json:"run,omitempty"`
	Optimize *OptimizeRequest `json:"optimize,omitempty"`
}

// JobReply answers a Job.
type JobReply struct {
	ID       string            `json:"id"`
	Run      *RunResponse      `json:"run,omitempty"`
	Optimize *OptimizeResponse `json:"optimize,omitempty"`
	Error    string            `json:"error,omitempty"`
}
