package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairlab/pkg/backtest"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid-search entry/exit thresholds, z-score window and holding limit",
	Long: `Run the threshold strategy for every combination of the given parameter
ranges and rank the combinations by the chosen goal.

Parameters: entry, exit, zscore_lookback, max_holding (format name:min:max:step).

Examples:
  pairlab optimize --symbol-a KO --symbol-b PEP --params entry:1.5:3.0:0.25,exit:0.25:1.0:0.25
  pairlab optimize --symbol-a KO --symbol-b PEP --params zscore_lookback:10:60:10 --goal calmar --workers 8
  pairlab optimize --symbol-a KO --symbol-b PEP --params entry:1:3:0.5 --export results/optimal_params`,
	RunE: runOptimize,
}

var (
	optimizeFlags   runFlags
	optimizeParams  string
	optimizeGoal    string
	optimizeMethod  string
	optimizeWorkers int
	optimizeTop     int
	optimizeExport  string
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeFlags.register(optimizeCmd.Flags())
	optimizeCmd.Flags().StringVar(&optimizeParams, "params", "", "Parameter ranges (name:min:max:step,...)")
	optimizeCmd.Flags().StringVar(&optimizeGoal, "goal", "sharpe", "Optimization goal: sharpe, pnl, win_rate, profit_factor, calmar")
	optimizeCmd.Flags().StringVar(&optimizeMethod, "method", "hedged", "Scored accounting method: hedged, dollar_neutral")
	optimizeCmd.Flags().IntVar(&optimizeWorkers, "workers", 4, "Number of parallel workers")
	optimizeCmd.Flags().IntVar(&optimizeTop, "top", 10, "Number of top results to print")
	optimizeCmd.Flags().StringVar(&optimizeExport, "export", "", "Directory to export the best parameters to (YAML)")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	goal, err := backtest.ParseGoal(optimizeGoal)
	if err != nil {
		return err
	}
	method, err := backtest.ParseMethod(optimizeMethod)
	if err != nil {
		return err
	}
	grid, err := parseParamSpecs(optimizeParams)
	if err != nil {
		return err
	}
	in, err := optimizeFlags.input(cmd.Flags(), cfg)
	if err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	opt := backtest.NewOptimizer(comps.runner, in, grid)
	opt.SetGoal(goal)
	opt.SetMethod(method)
	opt.SetMaxWorkers(optimizeWorkers)

	report, err := opt.GridSearch(ctx)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}

	if err := printOptimization(report, optimizeTop); err != nil {
		return err
	}

	if optimizeExport != "" && len(report.Results) > 0 {
		path, err := backtest.NewParamExporter(optimizeExport).ExportOptimalParams(in, report)
		if err != nil {
			return fmt.Errorf("failed to export parameters: %w", err)
		}
		log.Info().Str("file", path).Msg("Optimal parameters exported")
	}
	return nil
}

// parseParamSpecs parses "name:min:max:step,..." into a grid.
func parseParamSpecs(specs string) (backtest.ParamGrid, error) {
	var grid backtest.ParamGrid
	if strings.TrimSpace(specs) == "" {
		return grid, &backtest.ConfigError{Field: "params", Msg: "no parameters specified (e.g. entry:1.5:3.0:0.25)"}
	}

	for _, spec := range strings.Split(specs, ",") {
		parts := strings.Split(strings.TrimSpace(spec), ":")
		if len(parts) != 4 {
			return grid, &backtest.ConfigError{Field: "params", Msg: fmt.Sprintf("invalid parameter %q (expected name:min:max:step)", spec)}
		}
		name := parts[0]
		var bounds [3]float64
		for i, s := range parts[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return grid, &backtest.ConfigError{Field: "params", Msg: fmt.Sprintf("invalid number %q for %s", s, name)}
			}
			bounds[i] = v
		}
		values, err := expandRange(name, bounds[0], bounds[1], bounds[2])
		if err != nil {
			return grid, err
		}

		switch name {
		case "entry", "entry_threshold":
			grid.EntryThresholds = values
		case "exit", "exit_threshold":
			grid.ExitThresholds = values
		case "max_holding", "max_holding_days":
			grid.MaxHoldingDays = values
		case "zscore_lookback":
			grid.ZScoreLookbacks = make([]int, len(values))
			for i, v := range values {
				grid.ZScoreLookbacks[i] = int(math.Round(v))
			}
		default:
			return grid, &backtest.ConfigError{Field: "params", Msg: fmt.Sprintf("unknown parameter %q", name)}
		}
	}
	return grid, nil
}

func expandRange(name string, min, max, step float64) ([]float64, error) {
	if step <= 0 || max < min {
		return nil, &backtest.ConfigError{Field: "params", Msg: fmt.Sprintf("invalid range for %s: [%v, %v] step %v", name, min, max, step)}
	}
	n := int(math.Floor((max-min)/step+1e-9)) + 1
	values := make([]float64, n)
	for i := range values {
		// rounding keeps 0.1-style steps from drifting
		values[i] = math.Round((min+float64(i)*step)*1e9) / 1e9
	}
	return values, nil
}

func printOptimization(report *backtest.OptimizationReport, top int) error {
	fmt.Printf("Goal: %s   Method: %s   Evaluated: %d   Skipped: %d   Duration: %s\n\n",
		report.Goal, report.Method, report.Evaluated, report.Skipped, report.Duration.Round(1e6))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tENTRY\tEXIT\tZ-LOOKBACK\tMAX-HOLD\tTRADES\tSCORE\tSHARPE\tPNL\tWIN-RATE\tMAX-DD")
	for _, r := range report.TopN(top) {
		s := r.Hedged
		if report.Method == backtest.MethodDollarNeutral {
			s = r.DollarNeutral
		}
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%d\t%.0f\t%d\t%.4f\t%.3f\t%.2f\t%.1f%%\t%.2f\n",
			r.Rank, r.Params.EntryThreshold, r.Params.ExitThreshold, r.Params.ZScoreLookback,
			r.Params.MaxHoldingDays, r.Trades, r.Score, s.SharpeRatio, s.TotalPnL, s.WinRate*100, s.MaxDrawdown)
	}
	return w.Flush()
}
