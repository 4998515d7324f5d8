package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/pricedata"
)

// ReportGenerator writes a run result as markdown, JSON and a trades CSV
type ReportGenerator struct {
	output OutputSettings
	result *Result
	logger zerolog.Logger
}

// NewReportGenerator creates a new report generator
func NewReportGenerator(output OutputSettings, result *Result) *ReportGenerator {
	return &ReportGenerator{
		output: output,
		result: result,
		logger: logging.Component("report"),
	}
}

// Save writes every enabled report into the result directory and returns the file names.
func (g *ReportGenerator) Save() ([]string, error) {
	outputDir := g.output.ResultDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	prefix := fmt.Sprintf("%s_%s_%s_%s", g.result.Series.SymbolA, g.result.Series.SymbolB,
		g.result.Config.ModelType, timestamp)

	type target struct {
		enabled bool
		suffix  string
		write   func(io.Writer) error
	}
	targets := []target{
		{g.output.GenerateReport, "report.md", g.WriteMarkdown},
		{g.output.SaveJSON, "result.json", g.WriteJSON},
		{g.output.SaveTrades, "trades.csv", g.WriteTradesCSV},
	}

	var files []string
	for _, t := range targets {
		if !t.enabled {
			continue
		}
		filename := filepath.Join(outputDir, prefix+"_"+t.suffix)
		if err := writeFile(filename, t.write); err != nil {
			return files, err
		}
		g.logger.Info().Str("file", filename).Msg("Report saved")
		files = append(files, filename)
	}
	return files, nil
}

func writeFile(filename string, write func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return file.Close()
}

// WriteMarkdown writes the markdown summary
func (g *ReportGenerator) WriteMarkdown(w io.Writer) error {
	r := g.result
	cfg := r.Config
	ew := &errWriter{w: w}

	ew.printf("# 配对分析报告\n\n")
	ew.printf("**配对**: %s / %s\n", r.Series.SymbolA, r.Series.SymbolB)
	ew.printf("**模型**: %s\n", cfg.ModelType)
	if n := r.Series.Len(); n > 0 {
		ew.printf("**日期**: %s 至 %s (%d 个对齐交易日)\n",
			r.Series.Dates[0].Format(pricedata.DateLayout), r.Series.Dates[n-1].Format(pricedata.DateLayout), n)
	}
	ew.printf("**Run ID**: %s\n\n", r.RunID)
	ew.printf("---\n\n")

	d := r.Diagnostics
	ew.printf("## 均值回归诊断\n\n")
	ew.printf("| 指标 | 数值 |\n")
	ew.printf("|------|------|\n")
	ew.printf("| **Half-life (天)** | %s %s |\n", fmtFloat(d.HalfLife), validMark(d.HalfLifeValid))
	ew.printf("| **Hurst Exponent** | %s |\n", fmtFloat(d.HurstExponent))
	ew.printf("| **ADF statistic** | %s |\n", fmtFloat(d.Stationarity.Statistic))
	ew.printf("| **ADF p-value** | %s (%s) |\n", fmtFloat(d.Stationarity.PValue), d.Stationarity.Source)
	ew.printf("| **平稳** | %t |\n", d.Stationarity.IsStationary)
	ew.printf("| **交易周期 (天)** | %s %s |\n", fmtFloat(d.TradeCycle.Length), validMark(d.TradeCycle.Valid))
	ew.printf("| **周期成功率** | %s |\n\n", fmtPercent(d.TradeCycle.SuccessRate))
	ew.printf("结论: %s\n\n", d.Interpretation())

	if r.Hedged != nil && r.DollarNeutral != nil {
		ew.printf("## 绩效摘要\n\n")
		ew.printf("| 指标 | Hedged | Dollar-neutral |\n")
		ew.printf("|------|--------|----------------|\n")
		h, dn := r.Hedged, r.DollarNeutral
		row := func(name string, f func(*PerformanceSummary) string) {
			ew.printf("| **%s** | %s | %s |\n", name, f(h), f(dn))
		}
		row("交易次数", func(s *PerformanceSummary) string { return strconv.Itoa(s.TotalTrades) })
		row("总收益", func(s *PerformanceSummary) string { return fmtFloat(s.TotalPnL) })
		row("胜率", func(s *PerformanceSummary) string { return fmtPercent(s.WinRate) })
		row("盈利因子", func(s *PerformanceSummary) string {
			return fmtFloat(s.ProfitFactor) + " " + evaluateProfitFactor(s.ProfitFactor)
		})
		row("Sharpe Ratio", func(s *PerformanceSummary) string {
			return fmtFloat(s.SharpeRatio) + " " + evaluateSharpe(s.SharpeRatio)
		})
		row("期望收益", func(s *PerformanceSummary) string { return fmtFloat(s.Expectancy) })
		row("最大回撤", func(s *PerformanceSummary) string { return fmtFloat(s.MaxDrawdown) })
		row("平均持仓天数", func(s *PerformanceSummary) string { return fmtFloat(s.AvgHoldingDays) })
		row("多头 / 空头交易", func(s *PerformanceSummary) string {
			return fmt.Sprintf("%d / %d", s.Long.Trades, s.Short.Trades)
		})
		ew.printf("\n")

		if len(r.Trades) > 0 {
			ew.printf("## 交易明细（前10笔）\n\n")
			ew.printf("| 入场 | 出场 | 方向 | 入场 z | 出场 z | 天数 | Hedged PnL | Dollar-neutral PnL | 原因 |\n")
			ew.printf("|------|------|------|--------|--------|------|------------|--------------------|------|\n")
			limit := 10
			if len(r.Trades) < limit {
				limit = len(r.Trades)
			}
			for _, t := range r.Trades[:limit] {
				ew.printf("| %s | %s | %s | %.2f | %.2f | %.0f | %.2f | %.2f | %s |\n",
					t.EntryDate.Format(pricedata.DateLayout), t.ExitDate.Format(pricedata.DateLayout),
					t.Direction, t.EntryZScore, t.ExitZScore, t.HoldingPeriodDays,
					t.HedgedPnL, t.DollarNeutralPnL, t.ExitReason)
			}
			if len(r.Trades) > limit {
				ew.printf("\n*...共 %d 笔，仅显示前 %d 笔*\n", len(r.Trades), limit)
			}
			ew.printf("\n")
		}
	}

	ew.printf("## 配置信息\n\n")
	ew.printf("- **Lookback window**: %d\n", cfg.LookbackWindow)
	ew.printf("- **Z-score lookback**: %d\n", cfg.ZScoreLookback)
	ew.printf("- **入场 / 出场阈值**: %.2f / %.2f\n", cfg.EntryThreshold, cfg.ExitThreshold)
	ew.printf("- **最长持仓天数**: %.0f\n", cfg.MaxHoldingDays)
	ew.printf("- **每笔资金**: %.2f\n", cfg.CapitalPerTrade)
	for _, w := range r.Warnings {
		ew.printf("- **警告**: %s\n", w)
	}
	ew.printf("\n---\n\n")
	ew.printf("**报告生成时间**: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	ew.printf("**运行耗时**: %v\n", r.Duration)
	return ew.err
}

// WriteJSON writes the result in its wire form
func (g *ReportGenerator) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(g.result.ToAPI(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// WriteTradesCSV writes one row per trade
func (g *ReportGenerator) WriteTradesCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{
		"EntryDate", "ExitDate", "Direction", "EntryZ", "ExitZ", "HoldingDays",
		"EntryPriceA", "EntryPriceB", "ExitPriceA", "ExitPriceB", "SharesA", "SharesB",
		"HedgeRatio", "HedgedPnL", "HedgedROI", "DollarNeutralPnL", "DollarNeutralROI", "ExitReason",
	}); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, t := range g.result.Trades {
		if err := writer.Write([]string{
			t.EntryDate.Format(pricedata.DateLayout),
			t.ExitDate.Format(pricedata.DateLayout),
			string(t.Direction),
			f(t.EntryZScore), f(t.ExitZScore), f(t.HoldingPeriodDays),
			f(t.EntryPriceA), f(t.EntryPriceB), f(t.ExitPriceA), f(t.ExitPriceB),
			strconv.FormatInt(t.SharesA, 10), strconv.FormatInt(t.SharesB, 10),
			f(t.EntryHedgeRatio), f(t.HedgedPnL), f(t.HedgedROI),
			f(t.DollarNeutralPnL), f(t.DollarNeutralROI),
			string(t.ExitReason),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ToAPI converts the result to the wire contract.
func (r *Result) ToAPI() *api.RunResponse {
	resp := &api.RunResponse{
		RunID:       r.RunID,
		SymbolA:     r.Series.SymbolA,
		SymbolB:     r.Series.SymbolB,
		Model:       string(r.Config.ModelType),
		WarmUp:      r.Output.WarmUp,
		StartedAt:   r.StartedAt,
		DurationMS:  float64(r.Duration.Microseconds()) / 1000,
		Config:      r.Config.ToAPI(),
		Series:      make([]api.SeriesPoint, r.Series.Len()),
		Diagnostics: r.Diagnostics.ToAPI(),
		Trades:      make([]api.Trade, len(r.Trades)),
	}
	for i := range resp.Series {
		pt := r.Output.Points[i]
		resp.Series[i] = api.SeriesPoint{
			Date:   r.Series.Dates[i].Format(pricedata.DateLayout),
			PriceA: api.Float(r.Series.PricesA[i]),
			PriceB: api.Float(r.Series.PricesB[i]),
			Value:  api.Float(pt.Value),
			Alpha:  api.Float(pt.Alpha),
			Beta:   api.Float(pt.Beta),
			ZScore: api.Float(r.ZScores[i]),
		}
	}
	for i := range r.Trades {
		resp.Trades[i] = r.Trades[i].ToAPI()
	}
	if r.Hedged != nil {
		h := r.Hedged.ToAPI()
		resp.Hedged = &h
	}
	if r.DollarNeutral != nil {
		d := r.DollarNeutral.ToAPI()
		resp.DollarNeutral = &d
	}
	return resp
}

// ToAPI converts a trade to the wire contract.
func (t Trade) ToAPI() api.Trade {
	return api.Trade{
		EntryIndex:               t.EntryIndex,
		ExitIndex:                t.ExitIndex,
		EntryDate:                t.EntryDate.Format(pricedata.DateLayout),
		ExitDate:                 t.ExitDate.Format(pricedata.DateLayout),
		Direction:                string(t.Direction),
		EntryZScore:              api.Float(t.EntryZScore),
		ExitZScore:               api.Float(t.ExitZScore),
		HoldingPeriodDays:        api.Float(t.HoldingPeriodDays),
		EntryPriceA:              api.Float(t.EntryPriceA),
		EntryPriceB:              api.Float(t.EntryPriceB),
		ExitPriceA:               api.Float(t.ExitPriceA),
		ExitPriceB:               api.Float(t.ExitPriceB),
		SharesA:                  t.SharesA,
		SharesB:                  t.SharesB,
		HedgedPnL:                api.Float(t.HedgedPnL),
		DollarNeutralPnL:         api.Float(t.DollarNeutralPnL),
		HedgedROI:                api.Float(t.HedgedROI),
		DollarNeutralROI:         api.Float(t.DollarNeutralROI),
		HedgedMaxDrawdown:        api.Float(t.HedgedMaxDrawdown),
		DollarNeutralMaxDrawdown: api.Float(t.DollarNeutralMaxDrawdown),
		EntryHedgeRatio:          api.Float(t.EntryHedgeRatio),
		ExitHedgeRatio:           api.Float(t.ExitHedgeRatio),
		ExitReason:               string(t.ExitReason),
	}
}

// ToAPI converts a summary to the wire contract.
func (s PerformanceSummary) ToAPI() api.Summary {
	return api.Summary{
		Method:               string(s.Method),
		TotalTrades:          s.TotalTrades,
		WinningTrades:        s.WinningTrades,
		LosingTrades:         s.LosingTrades,
		WinRate:              api.Float(s.WinRate),
		GrossProfit:          api.Float(s.GrossProfit),
		GrossLoss:            api.Float(s.GrossLoss),
		TotalPnL:             api.Float(s.TotalPnL),
		AvgPnL:               api.Float(s.AvgPnL),
		AvgWin:               api.Float(s.AvgWin),
		AvgLoss:              api.Float(s.AvgLoss),
		ProfitFactor:         api.Float(s.ProfitFactor),
		Expectancy:           api.Float(s.Expectancy),
		SharpeRatio:          api.Float(s.SharpeRatio),
		MaxDrawdown:          api.Float(s.MaxDrawdown),
		BestTrade:            api.Float(s.BestTrade),
		WorstTrade:           api.Float(s.WorstTrade),
		MaxConsecutiveWins:   s.MaxConsecutiveWins,
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		AvgHoldingDays:       api.Float(s.AvgHoldingDays),
		Long:                 s.Long.toAPI(),
		Short:                s.Short.toAPI(),
	}
}

func (d DirectionalStats) toAPI() api.Directional {
	return api.Directional{
		Trades:   d.Trades,
		Wins:     d.Wins,
		WinRate:  api.Float(d.WinRate),
		TotalPnL: api.Float(d.TotalPnL),
		AvgPnL:   api.Float(d.AvgPnL),
	}
}

// ToAPI converts the grid search outcome, keeping the topN best results.
func (r *OptimizationReport) ToAPI(topN int) *api.OptimizeResponse {
	top := r.TopN(topN)
	resp := &api.OptimizeResponse{
		RunID:      r.RunID,
		Goal:       string(r.Goal),
		Method:     string(r.Method),
		Evaluated:  r.Evaluated,
		Skipped:    r.Skipped,
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Results:    make([]api.OptimizeResult, len(top)),
	}
	for i, res := range top {
		resp.Results[i] = api.OptimizeResult{
			Rank:           res.Rank,
			EntryThreshold: res.Params.EntryThreshold,
			ExitThreshold:  res.Params.ExitThreshold,
			ZScoreLookback: res.Params.ZScoreLookback,
			MaxHoldingDays: res.Params.MaxHoldingDays,
			Score:          api.Float(res.Score),
			Trades:         res.Trades,
			Hedged:         res.Hedged.ToAPI(),
			DollarNeutral:  res.DollarNeutral.ToAPI(),
		}
	}
	return resp
}

// GridFromAPI converts the wire grid.
func GridFromAPI(g api.ParamGrid) ParamGrid {
	return ParamGrid{
		EntryThresholds: g.EntryThresholds,
		ExitThresholds:  g.ExitThresholds,
		ZScoreLookbacks: g.ZScoreLookbacks,
		MaxHoldingDays:  g.MaxHoldingDays,
	}
}

// PointsFromAPI parses inline prices; the date must be YYYY-MM-DD.
func PointsFromAPI(in []api.PricePoint) ([]pricedata.PricePoint, error) {
	out := make([]pricedata.PricePoint, 0, len(in))
	for i, p := range in {
		d, err := time.Parse(pricedata.DateLayout, p.Date)
		if err != nil {
			return nil, fmt.Errorf("price %d: invalid date %q: %w", i, p.Date, err)
		}
		out = append(out, pricedata.PricePoint{Date: d, Close: p.Close})
	}
	return out, nil
}

// InputFromAPI builds a run input from a request, overlaying its config on base.
func InputFromAPI(base RunConfig, req *api.RunRequest) (RunInput, error) {
	if req == nil {
		return RunInput{}, &ConfigError{Field: "request", Msg: "missing run request"}
	}
	if req.SymbolA == "" || req.SymbolB == "" {
		return RunInput{}, &ConfigError{Field: "symbol", Msg: "symbol_a and symbol_b are required"}
	}
	cfg, err := ConfigFromAPI(base, req.Config)
	if err != nil {
		return RunInput{}, err
	}
	a, err := PointsFromAPI(req.PricesA)
	if err != nil {
		return RunInput{}, &ConfigError{Field: "prices_a", Msg: err.Error()}
	}
	b, err := PointsFromAPI(req.PricesB)
	if err != nil {
		return RunInput{}, &ConfigError{Field: "prices_b", Msg: err.Error()}
	}
	return RunInput{SymbolA: req.SymbolA, SymbolB: req.SymbolB, PricesA: a, PricesB: b, Config: cfg}, nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func fmtFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "∞"
	case math.IsInf(v, -1):
		return "-∞"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func fmtPercent(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func validMark(ok bool) string {
	if ok {
		return ""
	}
	return "(无效)"
}

func evaluateSharpe(sharpe float64) string {
	if sharpe > 2.0 {
		return "(优秀)"
	} else if sharpe > 1.0 {
		return "(良好)"
	} else if sharpe > 0.5 {
		return "(一般)"
	}
	return "(较差)"
}

func evaluateProfitFactor(pf float64) string {
	if pf > 2.0 {
		return "(优秀)"
	} else if pf > 1.5 {
		return "(良好)"
	} else if pf > 1.0 {
		return "(盈利)"
	}
	return "(亏损)"
}
