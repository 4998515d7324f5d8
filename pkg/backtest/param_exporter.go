package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OptimalParams is the best grid-search result written back as a loadable config.
// The Run block can be fed to LoadConfig unchanged.
type OptimalParams struct {
	GeneratedAt      time.Time          `yaml:"generated_at"`
	SymbolA          string             `yaml:"symbol_a"`
	SymbolB          string             `yaml:"symbol_b"`
	OptimizationGoal string             `yaml:"optimization_goal"`
	Method           string             `yaml:"method"`
	Score            float64            `yaml:"score"`
	Run              RunConfig          `yaml:"run"`
	Performance      PerformanceMetrics `yaml:"performance"`
}

// PerformanceMetrics contains the scored method's headline numbers
type PerformanceMetrics struct {
	SharpeRatio  float64 `yaml:"sharpe_ratio"`
	TotalPnL     float64 `yaml:"total_pnl"`
	MaxDrawdown  float64 `yaml:"max_drawdown"`
	WinRate      float64 `yaml:"win_rate"`
	ProfitFactor float64 `yaml:"profit_factor"`
	TotalTrades  int     `yaml:"total_trades"`
}

// ParamExporter exports optimized parameters
type ParamExporter struct {
	outputDir string
}

// NewParamExporter creates a new parameter exporter
func NewParamExporter(outputDir string) *ParamExporter {
	return &ParamExporter{outputDir: outputDir}
}

// BuildOptimalParams takes the rank-1 result of a report. It fails on an empty report.
func BuildOptimalParams(base RunInput, report *OptimizationReport) (*OptimalParams, error) {
	if report == nil || len(report.Results) == 0 {
		return nil, fmt.Errorf("no optimization results to export")
	}
	best := report.Results[0]
	summary := best.Hedged
	if report.Method == MethodDollarNeutral {
		summary = best.DollarNeutral
	}

	return &OptimalParams{
		GeneratedAt:      time.Now().UTC(),
		SymbolA:          base.SymbolA,
		SymbolB:          base.SymbolB,
		OptimizationGoal: string(report.Goal),
		Method:           string(report.Method),
		Score:            best.Score,
		Run:              best.Params.Apply(base.Config.WithDefaults()),
		Performance: PerformanceMetrics{
			SharpeRatio:  summary.SharpeRatio,
			TotalPnL:     summary.TotalPnL,
			MaxDrawdown:  summary.MaxDrawdown,
			WinRate:      summary.WinRate,
			ProfitFactor: summary.ProfitFactor,
			TotalTrades:  summary.TotalTrades,
		},
	}, nil
}

// ExportOptimalParams writes the best parameters to a YAML file and returns its path.
func (e *ParamExporter) ExportOptimalParams(base RunInput, report *OptimizationReport) (string, error) {
	params, err := BuildOptimalParams(base, report)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameters: %w", err)
	}

	filename := fmt.Sprintf("optimal_params_%s_%s_%s.yaml",
		base.SymbolA, base.SymbolB, time.Now().Format("20060102_150405"))
	path := filepath.Join(e.outputDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write parameters file: %w", err)
	}
	return path, nil
}

// LoadOptimalParams loads exported parameters and validates the run block.
func LoadOptimalParams(path string) (*OptimalParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters file: %w", err)
	}

	params := OptimalParams{Run: DefaultRunConfig()}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}
	params.Run = params.Run.WithDefaults()
	if err := params.Run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exported parameters: %w", err)
	}
	return &params, nil
}
