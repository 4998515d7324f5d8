package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/diagnostics"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/metrics"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/spread"
	"github.com/yourusername/pairlab/pkg/stationarity"
	"github.com/yourusername/pairlab/pkg/stats"
)

// ErrNoProvider is returned when a run has no inline prices and no provider.
var ErrNoProvider = errors.New("no price provider configured")

// RunInput is one run request. Empty price slices are loaded from the provider.
type RunInput struct {
	SymbolA string
	SymbolB string
	PricesA []pricedata.PricePoint
	PricesB []pricedata.PricePoint
	Config  RunConfig
}

// Runner coordinates the pipeline: align, model, z-score, diagnostics, simulate, aggregate.
type Runner struct {
	provider    pricedata.Provider
	diagnostics *diagnostics.Analyzer
	metrics     *metrics.Registry
	logger      zerolog.Logger
}

// NewRunner creates a runner. provider, tester and m may all be nil.
func NewRunner(provider pricedata.Provider, tester stationarity.Tester, m *metrics.Registry) *Runner {
	return &Runner{
		provider:    provider,
		diagnostics: diagnostics.NewAnalyzer(tester),
		metrics:     m,
		logger:      logging.Component("runner"),
	}
}

// prepared is the part of a run shared by every simulator parameter set.
type prepared struct {
	config RunConfig
	series *pricedata.AlignedSeries
	output *spread.Output
}

// Run executes one complete run. On failure the result is nil.
func (r *Runner) Run(ctx context.Context, in RunInput) (*Result, error) {
	started := time.Now()
	done := r.metrics.RunStarted()
	defer done()

	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).
		Str("symbol_a", in.SymbolA).Str("symbol_b", in.SymbolB).Logger()

	res, err := r.run(ctx, logger, in)
	model := string(in.Config.WithDefaults().ModelType)
	if err != nil {
		r.metrics.ObserveRun(model, outcome(err), time.Since(started))
		logger.Error().Err(err).Msg("Run failed")
		return nil, err
	}

	res.RunID = runID
	res.StartedAt = started
	res.Duration = time.Since(started)
	r.metrics.ObserveRun(model, "success", res.Duration)

	ev := logger.Info().
		Str("model", model).
		Int("points", res.Series.Len()).
		Int("trades", len(res.Trades)).
		Dur("duration", res.Duration)
	if res.Hedged != nil {
		ev = ev.Float64("hedged_pnl", res.Hedged.TotalPnL).Float64("dollar_neutral_pnl", res.DollarNeutral.TotalPnL)
	}
	ev.Msg("Run completed")
	return res, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, in RunInput) (*Result, error) {
	p, err := r.prepare(ctx, logger, in)
	if err != nil {
		return nil, err
	}
	cfg := p.config

	t := time.Now()
	z := stats.RollingZScore(p.output.Values(), cfg.ZScoreLookback)
	r.metrics.ObserveStage("zscore", time.Since(t))
	logger.Debug().
		Int("valid_zscores", stats.CountValid(z)).
		Int("first_zscore", stats.FirstValid(z)).
		Msg("Z-scores computed")

	t = time.Now()
	diag := r.diagnostics.Analyze(ctx, p.output.Values(), z, diagnostics.Thresholds{
		Entry: cfg.EntryThreshold,
		Exit:  cfg.ExitThreshold,
	})
	r.metrics.ObserveStage("diagnostics", time.Since(t))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled after diagnostics: %w", err)
	}
	logger.Debug().
		Float64("half_life", diag.HalfLife).
		Float64("hurst", diag.HurstExponent).
		Float64("p_value", diag.Stationarity.PValue).
		Str("stationarity_source", diag.Stationarity.Source).
		Msg("Diagnostics computed")

	res := &Result{
		Config:      cfg,
		Series:      p.series,
		Output:      p.output,
		ZScores:     z,
		Warnings:    cfg.Warnings(),
		Diagnostics: diag,
		Trades:      []Trade{},
	}
	if cfg.DiagnosticsOnly {
		return res, nil
	}

	trades, hedged, dollarNeutral, err := r.simulate(ctx, p, cfg, z)
	if err != nil {
		return nil, err
	}
	res.Trades = trades
	res.Hedged = &hedged
	res.DollarNeutral = &dollarNeutral
	return res, nil
}

// prepare validates the config, loads and aligns prices and computes the model output.
func (r *Runner) prepare(ctx context.Context, logger zerolog.Logger, in RunInput) (*prepared, error) {
	cfg := in.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	t := time.Now()
	a, err := r.load(ctx, in.SymbolA, in.PricesA)
	if err != nil {
		return nil, err
	}
	b, err := r.load(ctx, in.SymbolB, in.PricesB)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveStage("load", time.Since(t))

	t = time.Now()
	series, err := pricedata.AlignPoints(in.SymbolA, a, in.SymbolB, b, cfg.RequiredLength())
	if err != nil {
		return nil, fmt.Errorf("align %s/%s: %w", in.SymbolA, in.SymbolB, err)
	}
	r.metrics.ObserveStage("align", time.Since(t))
	logger.Debug().Int("aligned", series.Len()).Int("raw_a", len(a)).Int("raw_b", len(b)).Msg("Series aligned")

	t = time.Now()
	model, err := spread.New(cfg.SpreadConfig())
	if err != nil {
		return nil, &ConfigError{Field: "model_type", Msg: err.Error()}
	}
	out, err := model.Compute(ctx, series)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", cfg.ModelType, err)
	}
	r.metrics.ObserveStage("model", time.Since(t))

	return &prepared{config: cfg, series: series, output: out}, nil
}

func (r *Runner) simulate(ctx context.Context, p *prepared, cfg RunConfig, z []float64) ([]Trade, PerformanceSummary, PerformanceSummary, error) {
	t := time.Now()
	trades, err := NewSimulator(cfg).Run(ctx, p.series, p.output, z)
	if err != nil {
		return nil, PerformanceSummary{}, PerformanceSummary{}, err
	}
	hedged, dollarNeutral := Summarize(trades, cfg.RiskFreeRate)
	r.metrics.ObserveStage("simulate", time.Since(t))

	var longs, shorts int
	for i := range trades {
		if trades[i].Direction == Long {
			longs++
		} else {
			shorts++
		}
	}
	r.metrics.AddTrades(string(cfg.ModelType), string(Long), longs)
	r.metrics.AddTrades(string(cfg.ModelType), string(Short), shorts)
	return trades, hedged, dollarNeutral, nil
}

func (r *Runner) load(ctx context.Context, symbol string, inline []pricedata.PricePoint) ([]pricedata.PricePoint, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if r.provider == nil {
		return nil, fmt.Errorf("load %s: %w", symbol, ErrNoProvider)
	}
	points, err := r.provider.Load(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", symbol, err)
	}
	return points, nil
}

func outcome(err error) string {
	switch {
	case IsConfigError(err):
		return "config_error"
	case errors.Is(err, pricedata.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
