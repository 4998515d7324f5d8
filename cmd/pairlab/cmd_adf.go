package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stats"
)

var adfCmd = &cobra.Command{
	Use:   "adf [file|-]",
	Short: "Run an Augmented Dickey-Fuller test on a series",
	Long: `Test a numeric series for a unit root with the configured stationarity chain.
Values are read from a file (or stdin with "-"), separated by whitespace or commas;
"nan" and empty values are dropped. --symbol tests a symbol's closing prices instead.

Examples:
  pairlab adf spread.txt
  cat spread.txt | pairlab adf -
  pairlab adf --symbol KO --data ./data`,
	Args: cobra.MaximumNArgs(1),
	RunE: runADF,
}

var (
	adfSymbol string
	adfData   string
)

func init() {
	rootCmd.AddCommand(adfCmd)

	adfCmd.Flags().StringVar(&adfSymbol, "symbol", "", "Test the closing prices of this symbol")
	adfCmd.Flags().StringVar(&adfData, "data", "", "Directory of <SYMBOL>.csv files (overrides data.data_path)")
}

func runADF(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cmd.Flags().Changed("data") {
		cfg.Data.DataPath = adfData
	}

	var values []float64
	switch {
	case adfSymbol != "":
		points, err := pricedata.NewCSVProvider(cfg.Data.DataPath).Load(ctx, adfSymbol)
		if err != nil {
			return err
		}
		values = make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Close
		}
	case len(args) == 1:
		in := io.Reader(os.Stdin)
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open series: %w", err)
			}
			defer f.Close()
			in = f
		}
		var err error
		if values, err = readSeries(in); err != nil {
			return err
		}
	default:
		return fmt.Errorf("need a series file, \"-\" or --symbol")
	}

	svc, rdb, err := buildStationarity(ctx, cfg.Stationarity, nil)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	res, err := svc.Test(ctx, values)
	if err != nil {
		return fmt.Errorf("ADF test failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.ToAPI())
}

// readSeries parses whitespace- or comma-separated numbers, dropping NaN and empty fields.
func readSeries(r io.Reader) ([]float64, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		for _, field := range strings.Split(scanner.Text(), ",") {
			field = strings.TrimSpace(field)
			if field == "" || strings.EqualFold(field, "nan") {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q: %w", field, err)
			}
			if stats.IsFinite(v) {
				values = append(values, v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read series: %w", err)
	}
	return values, nil
}
