// Package stationarity runs unit-root (Augmented Dickey-Fuller) tests locally or
// against a remote ADF service, with caching and a conservative fallback.
package stationarity

import (
	"context"
	"errors"
	"math"

	"github.com/yourusername/pairlab/pkg/api"
)

// MinObservations is the number of clean points the diagnostics require before testing.
const MinObservations = 10

// DefaultSignificance is the p-value threshold below which a series is stationary.
const DefaultSignificance = 0.05

// Source labels where a Result came from.
const (
	SourceLocal    = "local"
	SourceHTTP     = "http"
	SourceCache    = "cache"
	SourceFallback = "fallback"
)

// ErrTooFewObservations is returned when the clean series is too short to test.
var ErrTooFewObservations = errors.New("not enough observations for ADF test")

// ErrUnavailable is returned by a Service that has no working tester.
var ErrUnavailable = errors.New("stationarity service unavailable")

// CriticalValues at the 1%, 5% and 10% levels.
type CriticalValues struct {
	OnePercent  float64 `json:"1%"`
	FivePercent float64 `json:"5%"`
	TenPercent  float64 `json:"10%"`
}

// Result of a unit-root test.
type Result struct {
	Statistic      float64
	PValue         float64
	CriticalValues CriticalValues
	IsStationary   bool
	UsedLag        int
	NObs           int
	Source         string
}

// Tester runs a unit-root test on a numeric series.
type Tester interface {
	Test(ctx context.Context, values []float64) (Result, error)
}

// Conservative is the result used when no test could be run: never stationary.
func Conservative() Result {
	nan := math.NaN()
	return Result{
		Statistic:      nan,
		PValue:         1,
		CriticalValues: CriticalValues{OnePercent: nan, FivePercent: nan, TenPercent: nan},
		IsStationary:   false,
		Source:         SourceFallback,
	}
}

// ToADFResponse converts to the /api/adf-test wire format.
func (r Result) ToADFResponse() api.ADFResponse {
	return api.ADFResponse{
		Statistic: r.Statistic,
		PValue:    r.PValue,
		CriticalValues: map[string]float64{
			"1%":  r.CriticalValues.OnePercent,
			"5%":  r.CriticalValues.FivePercent,
			"10%": r.CriticalValues.TenPercent,
		},
		IsStationary: r.IsStationary,
	}
}

// ToAPI converts to the run result wire format.
func (r Result) ToAPI() api.Stationarity {
	return api.Stationarity{
		Statistic: api.Float(r.Statistic),
		PValue:    api.Float(r.PValue),
		CriticalValues: map[string]api.Float{
			"1%":  api.Float(r.CriticalValues.OnePercent),
			"5%":  api.Float(r.CriticalValues.FivePercent),
			"10%": api.Float(r.CriticalValues.TenPercent),
		},
		IsStationary: r.IsStationary,
		UsedLag:      r.UsedLag,
		NObs:         r.NObs,
		Source:       r.Source,
	}
}

// FromADFResponse converts a remote ADF response.
func FromADFResponse(resp api.ADFResponse) Result {
	crit := func(key string) float64 {
		if v, ok := resp.CriticalValues[key]; ok {
			return v
		}
		return math.NaN()
	}
	return Result{
		Statistic: resp.Statistic,
		PValue:    resp.PValue,
		CriticalValues: CriticalValues{
			OnePercent:  crit("1%"),
			FivePercent: crit("5%"),
			TenPercent:  crit("10%"),
		},
		IsStationary: resp.IsStationary,
		Source:       SourceHTTP,
	}
}
