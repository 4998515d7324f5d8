// Package pricedata holds the daily price types, the date aligner and the CSV price provider.
package pricedata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientData is matched by every *InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports an aligned series shorter than a model or window requires.
type InsufficientDataError struct {
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d aligned points, got %d", e.Required, e.Got)
}

// Is lets errors.Is(err, ErrInsufficientData) succeed.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// PricePoint is one daily bar. Only Date and Close are used by the analytics.
type PricePoint struct {
	Date   time.Time `json:"date" yaml:"date"`
	Open   float64   `json:"open,omitempty" yaml:"open,omitempty"`
	High   float64   `json:"high,omitempty" yaml:"high,omitempty"`
	Low    float64   `json:"low,omitempty" yaml:"low,omitempty"`
	Close  float64   `json:"close" yaml:"close"`
	Volume float64   `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// AlignedSeries is two closing-price series sharing one ascending date axis.
type AlignedSeries struct {
	SymbolA string
	SymbolB string
	Dates   []time.Time
	PricesA []float64
	PricesB []float64
}

// Len returns the number of aligned dates.
func (s *AlignedSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Dates)
}

// Validate checks equal lengths and strictly ascending dates.
func (s *AlignedSeries) Validate() error {
	if len(s.PricesA) != len(s.Dates) || len(s.PricesB) != len(s.Dates) {
		return fmt.Errorf("aligned series length mismatch: dates=%d a=%d b=%d",
			len(s.Dates), len(s.PricesA), len(s.PricesB))
	}
	for i := 1; i < len(s.Dates); i++ {
		if !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("aligned dates not strictly ascending at index %d (%s <= %s)",
				i, s.Dates[i].Format(DateLayout), s.Dates[i-1].Format(DateLayout))
		}
	}
	return nil
}

// HoldingDays returns the calendar days between two indices.
func (s *AlignedSeries) HoldingDays(from, to int) float64 {
	return s.Dates[to].Sub(s.Dates[from]).Hours() / 24
}

// Provider supplies an ordered daily price history per symbol.
type Provider interface {
	Load(ctx context.Context, symbol string) ([]PricePoint, error)
}

// DateLayout is the canonical calendar-date format used in files and JSON.
const DateLayout = "2006-01-02"
