package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/stats"
)

// OptimizationGoal defines the optimization objective
type OptimizationGoal string

const (
	GoalSharpeRatio  OptimizationGoal = "sharpe"
	GoalTotalPNL     OptimizationGoal = "pnl"
	GoalWinRate      OptimizationGoal = "win_rate"
	GoalProfitFactor OptimizationGoal = "profit_factor"
	GoalCalmarRatio  OptimizationGoal = "calmar"
)

// ParseGoal parses an optimization goal; empty selects sharpe.
func ParseGoal(s string) (OptimizationGoal, error) {
	switch g := OptimizationGoal(s); g {
	case "":
		return GoalSharpeRatio, nil
	case GoalSharpeRatio, GoalTotalPNL, GoalWinRate, GoalProfitFactor, GoalCalmarRatio:
		return g, nil
	default:
		return "", &ConfigError{Field: "goal", Msg: fmt.Sprintf("unknown optimization goal %q", s)}
	}
}

// ParseMethod parses an accounting method; empty selects hedged.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case "":
		return MethodHedged, nil
	case MethodHedged, MethodDollarNeutral:
		return m, nil
	default:
		return "", &ConfigError{Field: "method", Msg: fmt.Sprintf("unknown accounting method %q", s)}
	}
}

// ParamGrid lists the simulator values to sweep. An empty list keeps the base value.
type ParamGrid struct {
	EntryThresholds []float64
	ExitThresholds  []float64
	ZScoreLookbacks []int
	MaxHoldingDays  []float64
}

// ParamSet is one point of the grid
type ParamSet struct {
	EntryThreshold float64
	ExitThreshold  float64
	ZScoreLookback int
	MaxHoldingDays float64
}

// Apply copies the parameter set onto a run configuration.
func (p ParamSet) Apply(cfg RunConfig) RunConfig {
	cfg.EntryThreshold = p.EntryThreshold
	cfg.ExitThreshold = p.ExitThreshold
	cfg.ZScoreLookback = p.ZScoreLookback
	cfg.MaxHoldingDays = p.MaxHoldingDays
	return cfg
}

// OptimizationResult stores the result of a single parameter combination
type OptimizationResult struct {
	Params        ParamSet
	Hedged        PerformanceSummary
	DollarNeutral PerformanceSummary
	Trades        int
	Score         float64
	Rank          int

	index int
}

// OptimizationReport is the ranked outcome of a grid search
type OptimizationReport struct {
	RunID     string
	Goal      OptimizationGoal
	Method    Method
	Evaluated int
	Skipped   int
	Duration  time.Duration
	Results   []*OptimizationResult
}

// TopN returns the n best results, or all of them when n <= 0.
func (r *OptimizationReport) TopN(n int) []*OptimizationResult {
	if n <= 0 || n > len(r.Results) {
		n = len(r.Results)
	}
	return r.Results[:n]
}

// Optimizer performs grid search over simulator parameters. The spread model is
// computed once; each combination only recomputes z-scores and the simulation.
type Optimizer struct {
	runner     *Runner
	base       RunInput
	grid       ParamGrid
	goal       OptimizationGoal
	method     Method
	maxWorkers int
	logger     zerolog.Logger
}

// NewOptimizer creates a new optimizer
func NewOptimizer(runner *Runner, base RunInput, grid ParamGrid) *Optimizer {
	return &Optimizer{
		runner:     runner,
		base:       base,
		grid:       grid,
		goal:       GoalSharpeRatio,
		method:     MethodHedged,
		maxWorkers: 4,
		logger:     logging.Component("optimizer"),
	}
}

// SetGoal sets the optimization objective
func (opt *Optimizer) SetGoal(goal OptimizationGoal) {
	opt.goal = goal
}

// SetMethod selects which accounting method is scored
func (opt *Optimizer) SetMethod(method Method) {
	opt.method = method
}

// SetMaxWorkers sets the maximum number of parallel workers
func (opt *Optimizer) SetMaxWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}
	opt.maxWorkers = workers
}

// GridSearch evaluates every valid combination and ranks them by score, best first.
func (opt *Optimizer) GridSearch(ctx context.Context) (*OptimizationReport, error) {
	startTime := time.Now()
	report := &OptimizationReport{RunID: uuid.NewString(), Goal: opt.goal, Method: opt.method}
	logger := opt.logger.With().Str("run_id", report.RunID).Logger()

	base := opt.base.Config.WithDefaults()
	combinations := opt.generateCombinations(base)
	if len(combinations) == 0 {
		return nil, fmt.Errorf("no parameter combinations to test")
	}

	// the model does not depend on the swept parameters, so prepare once with the
	// smallest lookback to admit the widest range of series lengths
	in := opt.base
	in.Config = base
	in.Config.ZScoreLookback = minLookback(combinations)
	p, err := opt.runner.prepare(ctx, logger, in)
	if err != nil {
		return nil, err
	}

	valid := make([]ParamSet, 0, len(combinations))
	zCache := make(map[int][]float64)
	values := p.output.Values()
	for _, params := range combinations {
		cfg := params.Apply(base)
		if cfg.Validate() != nil || p.series.Len() < cfg.RequiredLength() {
			report.Skipped++
			continue
		}
		if _, ok := zCache[params.ZScoreLookback]; !ok {
			zCache[params.ZScoreLookback] = stats.RollingZScore(values, params.ZScoreLookback)
		}
		valid = append(valid, params)
	}

	logger.Info().
		Str("goal", string(opt.goal)).
		Str("method", string(opt.method)).
		Int("workers", opt.maxWorkers).
		Int("combinations", len(valid)).
		Int("skipped", report.Skipped).
		Msg("Starting grid search optimization")

	results := make([]*OptimizationResult, 0, len(valid))
	var resultsMutex sync.Mutex
	var wg sync.WaitGroup

	// Create worker pool
	semaphore := make(chan struct{}, opt.maxWorkers)

	for i, params := range valid {
		wg.Add(1)
		go func(idx int, params ParamSet) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if ctx.Err() != nil {
				return
			}

			cfg := params.Apply(base)
			trades, hedged, dollarNeutral, err := opt.runner.simulate(ctx, p, cfg, zCache[params.ZScoreLookback])
			if err != nil {
				logger.Warn().Err(err).Int("combination", idx+1).Msg("Combination failed")
				return
			}

			result := &OptimizationResult{
				Params:        params,
				Hedged:        hedged,
				DollarNeutral: dollarNeutral,
				Trades:        len(trades),
				index:         idx,
			}
			result.Score = opt.score(result)

			resultsMutex.Lock()
			results = append(results, result)
			logger.Debug().
				Int("done", len(results)).
				Int("total", len(valid)).
				Float64("score", result.Score).
				Msg("Combination evaluated")
			resultsMutex.Unlock()
		}(i, params)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grid search cancelled: %w", err)
	}

	// Sort results by score (descending), grid order breaks ties
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].index < results[j].index
	})
	for i, result := range results {
		result.Rank = i + 1
	}

	report.Results = results
	report.Evaluated = len(results)
	report.Duration = time.Since(startTime)

	ev := logger.Info().Int("evaluated", report.Evaluated).Dur("duration", report.Duration)
	if len(results) > 0 {
		best := results[0]
		ev = ev.Float64("best_score", best.Score).
			Float64("best_entry", best.Params.EntryThreshold).
			Float64("best_exit", best.Params.ExitThreshold).
			Int("best_zscore_lookback", best.Params.ZScoreLookback)
	}
	ev.Msg("Grid search completed")
	return report, nil
}

// generateCombinations expands the grid in a fixed order: entry, exit, lookback, holding.
func (opt *Optimizer) generateCombinations(base RunConfig) []ParamSet {
	entries := orDefault(opt.grid.EntryThresholds, base.EntryThreshold)
	exits := orDefault(opt.grid.ExitThresholds, base.ExitThreshold)
	holdings := orDefault(opt.grid.MaxHoldingDays, base.MaxHoldingDays)
	lookbacks := opt.grid.ZScoreLookbacks
	if len(lookbacks) == 0 {
		lookbacks = []int{base.ZScoreLookback}
	}

	combinations := make([]ParamSet, 0, len(entries)*len(exits)*len(lookbacks)*len(holdings))
	for _, entry := range entries {
		for _, exit := range exits {
			for _, lb := range lookbacks {
				for _, hold := range holdings {
					combinations = append(combinations, ParamSet{
						EntryThreshold: entry,
						ExitThreshold:  exit,
						ZScoreLookback: lb,
						MaxHoldingDays: hold,
					})
				}
			}
		}
	}
	return combinations
}

// score maps a result onto the optimization goal; higher is better.
func (opt *Optimizer) score(r *OptimizationResult) float64 {
	s := r.Hedged
	if opt.method == MethodDollarNeutral {
		s = r.DollarNeutral
	}

	switch opt.goal {
	case GoalTotalPNL:
		return s.TotalPnL
	case GoalWinRate:
		return s.WinRate
	case GoalProfitFactor:
		return s.ProfitFactor
	case GoalCalmarRatio:
		if s.MaxDrawdown > 0 {
			return s.TotalPnL / s.MaxDrawdown
		}
		if s.TotalPnL > 0 {
			return math.Inf(1)
		}
		return 0
	default:
		return s.SharpeRatio
	}
}

func orDefault(values []float64, def float64) []float64 {
	if len(values) == 0 {
		return []float64{def}
	}
	return values
}

func minLookback(combinations []ParamSet) int {
	m := combinations[0].ZScoreLookback
	for _, c := range combinations[1:] {
		if c.ZScoreLookback < m {
			m = c.ZScoreLookback
		}
	}
	if m < 2 {
		m = 2
	}
	return m
}
