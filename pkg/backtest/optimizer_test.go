package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimizer_GridSearch(t *testing.T) {
	series := syntheticPair(300, 21)
	base := inputFor(series, runConfig())
	runner := NewRunner(nil, nil, nil)

	opt := NewOptimizer(runner, base, ParamGrid{
		EntryThresholds: []float64{1.5, 2.0},
		ExitThresholds:  []float64{0.5, 3.0},
		ZScoreLookbacks: []int{10, 20},
	})
	opt.SetMaxWorkers(3)

	report, err := opt.GridSearch(context.Background())
	require.NoError(t, err)

	// exit 3.0 is above both entries
	assert.Equal(t, 4, report.Skipped)
	assert.Equal(t, 4, report.Evaluated)
	require.Len(t, report.Results, 4)
	assert.NotEmpty(t, report.RunID)

	for i, r := range report.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, 0.5, r.Params.ExitThreshold)
		assert.Equal(t, r.Hedged.SharpeRatio, r.Score)
		if i > 0 {
			assert.GreaterOrEqual(t, report.Results[i-1].Score, r.Score)
		}
	}
	assert.Len(t, report.TopN(2), 2)
	assert.Len(t, report.TopN(0), 4)
}

func TestOptimizer_MatchesSingleRun(t *testing.T) {
	series := syntheticPair(260, 8)
	base := inputFor(series, runConfig())
	runner := NewRunner(nil, nil, nil)

	opt := NewOptimizer(runner, base, ParamGrid{
		EntryThresholds: []float64{1.75, 2.25},
		ZScoreLookbacks: []int{15, 25},
	})
	opt.SetGoal(GoalTotalPNL)
	opt.SetMethod(MethodDollarNeutral)

	report, err := opt.GridSearch(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Results)

	for _, r := range report.Results {
		in := base
		in.Config = r.Params.Apply(base.Config)
		single, err := runner.Run(context.Background(), in)
		require.NoError(t, err)

		assert.Equal(t, len(single.Trades), r.Trades)
		assert.InDelta(t, single.DollarNeutral.TotalPnL, r.Score, 1e-9)
		assert.InDelta(t, single.Hedged.TotalPnL, r.Hedged.TotalPnL, 1e-9)
	}
}

func TestOptimizer_Deterministic(t *testing.T) {
	series := syntheticPair(220, 2)
	grid := ParamGrid{EntryThresholds: []float64{1.5, 2.0, 2.5}, ExitThresholds: []float64{0.25, 0.5}}

	run := func() []ParamSet {
		opt := NewOptimizer(NewRunner(nil, nil, nil), inputFor(series, runConfig()), grid)
		opt.SetMaxWorkers(8)
		report, err := opt.GridSearch(context.Background())
		require.NoError(t, err)
		out := make([]ParamSet, len(report.Results))
		for i, r := range report.Results {
			out[i] = r.Params
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestOptimizer_Errors(t *testing.T) {
	series := syntheticPair(40, 1)
	opt := NewOptimizer(NewRunner(nil, nil, nil), inputFor(series, runConfig()), ParamGrid{})
	_, err := opt.GridSearch(context.Background())
	assert.ErrorContains(t, err, "insufficient data")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opt = NewOptimizer(NewRunner(nil, nil, nil), inputFor(syntheticPair(200, 1), runConfig()), ParamGrid{})
	_, err = opt.GridSearch(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseGoalAndMethod(t *testing.T) {
	g, err := ParseGoal("")
	require.NoError(t, err)
	assert.Equal(t, GoalSharpeRatio, g)

	g, err = ParseGoal("profit_factor")
	require.NoError(t, err)
	assert.Equal(t, GoalProfitFactor, g)

	_, err = ParseGoal("sortino")
	assert.True(t, IsConfigError(err))

	m, err := ParseMethod("dollar_neutral")
	require.NoError(t, err)
	assert.Equal(t, MethodDollarNeutral, m)

	_, err = ParseMethod("gross")
	assert.Error(t, err)
}

func TestOptimizer_SetMaxWorkersClamps(t *testing.T) {
	opt := NewOptimizer(nil, RunInput{}, ParamGrid{})
	opt.SetMaxWorkers(0)
	assert.Equal(t, 1, opt.maxWorkers)
	opt.SetMaxWorkers(64)
	assert.Equal(t, 16, opt.maxWorkers)
}
