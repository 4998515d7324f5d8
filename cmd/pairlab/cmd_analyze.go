package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/spread"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze and backtest one pair",
	Long: `Load two symbols from the data directory, model their spread, run the
mean-reversion diagnostics and replay the threshold strategy.

Examples:
  pairlab analyze --symbol-a KO --symbol-b PEP
  pairlab analyze --symbol-a KO --symbol-b PEP --model kalman --entry 1.5 --format json
  pairlab analyze -c configs/pairlab.yaml --save
  pairlab analyze --params results/optimal_params_KO_PEP_20240102_150405.yaml`,
	RunE: runAnalyze,
}

var (
	analyzeFormat string
	analyzeSave   bool
	analyzeParams string
)

// runFlags are the run-block overrides shared by analyze, optimize and replay.
type runFlags struct {
	symbolA, symbolB string
	dataPath         string
	model            string
	normalization    string
	lookback         int
	zLookback        int
	entry, exit      float64
	maxHolding       float64
	capital          float64
	riskFree         float64
	openPolicy       string
	diagnosticsOnly  bool
}

var analyzeFlags runFlags

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.symbolA, "symbol-a", "", "First symbol (overrides data.symbol_a)")
	fs.StringVar(&f.symbolB, "symbol-b", "", "Second symbol (overrides data.symbol_b)")
	fs.StringVar(&f.dataPath, "data", "", "Directory of <SYMBOL>.csv files (overrides data.data_path)")
	fs.StringVar(&f.model, "model", "", "Spread model: ols, kalman, ratio, euclidean")
	fs.StringVar(&f.normalization, "normalization", "", "Euclidean normalization: zscore, minmax, relative")
	fs.IntVar(&f.lookback, "lookback", 0, "Model lookback window")
	fs.IntVar(&f.zLookback, "zscore-lookback", 0, "Z-score window")
	fs.Float64Var(&f.entry, "entry", 0, "Entry threshold")
	fs.Float64Var(&f.exit, "exit", 0, "Exit threshold")
	fs.Float64Var(&f.maxHolding, "max-holding", 0, "Maximum holding period in calendar days")
	fs.Float64Var(&f.capital, "capital", 0, "Capital per trade")
	fs.Float64Var(&f.riskFree, "risk-free", 0, "Annual risk-free rate")
	fs.StringVar(&f.openPolicy, "open-position", "", "Open position at end of data: discard, close")
	fs.BoolVar(&f.diagnosticsOnly, "diagnostics-only", false, "Skip the trading simulation")
}

// apply copies the flags the user set onto config.
func (f *runFlags) apply(fs *pflag.FlagSet, config *backtest.Config) {
	set := fs.Changed
	if set("symbol-a") {
		config.Data.SymbolA = f.symbolA
	}
	if set("symbol-b") {
		config.Data.SymbolB = f.symbolB
	}
	if set("data") {
		config.Data.DataPath = f.dataPath
	}
	if set("model") {
		config.Run.ModelType = spread.ModelType(strings.ToLower(f.model))
	}
	if set("normalization") {
		config.Run.EuclideanNormalization = spread.Normalization(strings.ToLower(f.normalization))
	}
	if set("lookback") {
		config.Run.LookbackWindow = f.lookback
	}
	if set("zscore-lookback") {
		config.Run.ZScoreLookback = f.zLookback
	}
	if set("entry") {
		config.Run.EntryThreshold = f.entry
	}
	if set("exit") {
		config.Run.ExitThreshold = f.exit
	}
	if set("max-holding") {
		config.Run.MaxHoldingDays = f.maxHolding
	}
	if set("capital") {
		config.Run.CapitalPerTrade = f.capital
	}
	if set("risk-free") {
		config.Run.RiskFreeRate = f.riskFree
	}
	if set("open-position") {
		config.Run.OpenPositionPolicy = backtest.OpenPositionPolicy(strings.ToLower(f.openPolicy))
	}
	if set("diagnostics-only") {
		config.Run.DiagnosticsOnly = f.diagnosticsOnly
	}
}

// input validates the overridden configuration and builds the run input.
func (f *runFlags) input(fs *pflag.FlagSet, config *backtest.Config) (backtest.RunInput, error) {
	f.apply(fs, config)
	if config.Data.SymbolA == "" || config.Data.SymbolB == "" {
		return backtest.RunInput{}, &backtest.ConfigError{Field: "data.symbol_a/symbol_b", Msg: "two symbols are required"}
	}
	if err := config.Run.Validate(); err != nil {
		return backtest.RunInput{}, err
	}
	return backtest.RunInput{
		SymbolA: config.Data.SymbolA,
		SymbolB: config.Data.SymbolB,
		Config:  config.Run,
	}, nil
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeFlags.register(analyzeCmd.Flags())
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "text", "Output format: text (markdown report) or json")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "Write report files to output.result_dir")
	analyzeCmd.Flags().StringVar(&analyzeParams, "params", "", "Run block from an optimize --export file (flags still override)")
}

// applyOptimalParams replaces the run block with an exported optimization result.
// The file's symbols are used only when the config names none.
func applyOptimalParams(config *backtest.Config, path string) (*backtest.OptimalParams, error) {
	params, err := backtest.LoadOptimalParams(path)
	if err != nil {
		return nil, err
	}
	config.Run = params.Run
	if config.Data.SymbolA == "" && config.Data.SymbolB == "" {
		config.Data.SymbolA = params.SymbolA
		config.Data.SymbolB = params.SymbolB
	}
	return params, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if analyzeParams != "" {
		params, err := applyOptimalParams(cfg, analyzeParams)
		if err != nil {
			return err
		}
		log.Info().
			Str("file", analyzeParams).
			Str("goal", params.OptimizationGoal).
			Float64("score", params.Score).
			Msg("Loaded optimized parameters")
	}

	in, err := analyzeFlags.input(cmd.Flags(), cfg)
	if err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	log.Info().
		Str("command", "analyze").
		Str("pair", in.SymbolA+"/"+in.SymbolB).
		Str("model", string(in.Config.ModelType)).
		Msg("Running analysis")

	result, err := comps.runner.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	report := backtest.NewReportGenerator(cfg.Output, result)
	switch strings.ToLower(analyzeFormat) {
	case "json":
		err = report.WriteJSON(os.Stdout)
	default:
		err = report.WriteMarkdown(os.Stdout)
	}
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if analyzeSave {
		files, err := report.Save()
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		for _, f := range files {
			log.Info().Str("file", f).Msg("Report saved")
		}
	}
	return nil
}
