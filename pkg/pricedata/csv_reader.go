package pricedata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/logging"
)

// CSVProvider reads daily bars from data_path/<SYMBOL>.csv
//
// The header row decides the column mapping. A "date" and a "close" column are
// required ("adj_close" is used when "close" is missing); open/high/low/volume
// are optional.
type CSVProvider struct {
	dataPath string
	logger   zerolog.Logger
}

// NewCSVProvider creates a provider rooted at dataPath.
func NewCSVProvider(dataPath string) *CSVProvider {
	return &CSVProvider{
		dataPath: dataPath,
		logger:   logging.Component("datareader"),
	}
}

// Load implements Provider.
func (p *CSVProvider) Load(ctx context.Context, symbol string) ([]PricePoint, error) {
	filePath := filepath.Join(p.dataPath, symbol+".csv")
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("data file not found for %s: %s", symbol, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	points, skipped, err := ReadCSV(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no data loaded from %s", filePath)
	}

	p.logger.Info().
		Str("symbol", symbol).
		Int("bars", len(points)).
		Int("skipped", skipped).
		Str("from", points[0].Date.Format(DateLayout)).
		Str("to", points[len(points)-1].Date.Format(DateLayout)).
		Msg("Loaded price history")
	return points, nil
}

// ReadCSV parses daily bars from r and returns them sorted by date.
// Rows that fail to parse are skipped and counted.
func ReadCSV(ctx context.Context, r io.Reader) ([]PricePoint, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, 0, err
	}

	points := make([]PricePoint, 0, 512)
	skipped := 0
	for row := 0; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, skipped, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read CSV row %d: %w", row+2, err)
		}

		point, err := cols.parse(record)
		if err != nil {
			skipped++
			continue
		}
		points = append(points, point)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, skipped, nil
}

type columnMap struct {
	date, open, high, low, close, volume int
}

var dateLayouts = []string{DateLayout, "2006/01/02", "20060102", time.RFC3339}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{date: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	adjClose := -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "timestamp", "time":
			cols.date = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "adj_close", "adj close", "adjclose":
			adjClose = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.close < 0 {
		cols.close = adjClose
	}
	if cols.date < 0 || cols.close < 0 {
		return cols, fmt.Errorf("invalid CSV header %v: date and close columns are required", header)
	}
	return cols, nil
}

func (c columnMap) parse(record []string) (PricePoint, error) {
	var p PricePoint
	if c.date >= len(record) || c.close >= len(record) {
		return p, fmt.Errorf("short record: %d fields", len(record))
	}

	date, err := parseDate(record[c.date])
	if err != nil {
		return p, err
	}
	closePx, err := strconv.ParseFloat(strings.TrimSpace(record[c.close]), 64)
	if err != nil {
		return p, fmt.Errorf("invalid close: %w", err)
	}

	p.Date = date
	p.Close = closePx
	p.Open = optionalFloat(record, c.open)
	p.High = optionalFloat(record, c.high)
	p.Low = optionalFloat(record, c.low)
	p.Volume = optionalFloat(record, c.volume)
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func optionalFloat(record []string, idx int) float64 {
	if idx < 0 || idx >= len(record) {
		return 0
	}
	v, _ := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	return v
}
