package pricedata

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAlign_IntersectsAndSorts(t *testing.T) {
	a := map[time.Time]float64{
		d("2024-01-05"): 105,
		d("2024-01-02"): 102,
		d("2024-01-03"): 103,
		d("2024-01-04"): 104,
	}
	b := map[time.Time]float64{
		d("2024-01-04"): 54,
		d("2024-01-02"): 52,
		d("2024-01-05"): 55,
		d("2024-01-08"): 58,
	}

	series, err := Align(a, b, 2)
	require.NoError(t, err)
	require.NoError(t, series.Validate())

	assert.Equal(t, []time.Time{d("2024-01-02"), d("2024-01-04"), d("2024-01-05")}, series.Dates)
	assert.Equal(t, []float64{102, 104, 105}, series.PricesA)
	assert.Equal(t, []float64{52, 54, 55}, series.PricesB)
	assert.Equal(t, 3, series.Len())
}

func TestAlign_DropsInvalidCloses(t *testing.T) {
	a := map[time.Time]float64{
		d("2024-01-02"): 10,
		d("2024-01-03"): math.NaN(),
		d("2024-01-04"): 12,
		d("2024-01-05"): -1,
	}
	b := map[time.Time]float64{
		d("2024-01-02"): 20,
		d("2024-01-03"): 21,
		d("2024-01-04"): math.Inf(1),
		d("2024-01-05"): 23,
	}

	series, err := Align(a, b, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d("2024-01-02")}, series.Dates)
}

func TestAlign_TruncatesIntradayTimestamps(t *testing.T) {
	a := map[time.Time]float64{time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC): 1}
	b := map[time.Time]float64{time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC): 2}

	series, err := Align(a, b, 1)
	require.NoError(t, err)
	require.Equal(t, 1, series.Len())
	assert.Equal(t, d("2024-03-01"), series.Dates[0])
}

func TestAlign_InsufficientData(t *testing.T) {
	a := map[time.Time]float64{d("2024-01-02"): 1, d("2024-01-03"): 2}
	b := map[time.Time]float64{d("2024-01-03"): 3}

	series, err := Align(a, b, 5)
	assert.Nil(t, series)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	var ide *InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 5, ide.Required)
	assert.Equal(t, 1, ide.Got)
}

func TestAlignPoints(t *testing.T) {
	a := []PricePoint{{Date: d("2024-01-03"), Close: 2}, {Date: d("2024-01-02"), Close: 1}}
	b := []PricePoint{{Date: d("2024-01-02"), Close: 10}, {Date: d("2024-01-03"), Close: 20}}

	series, err := AlignPoints("KO", a, "PEP", b, 2)
	require.NoError(t, err)
	assert.Equal(t, "KO", series.SymbolA)
	assert.Equal(t, "PEP", series.SymbolB)
	assert.Equal(t, []float64{1, 2}, series.PricesA)
	assert.Equal(t, []float64{10, 20}, series.PricesB)
}

func TestAlignedSeries_ValidateAndHoldingDays(t *testing.T) {
	s := &AlignedSeries{
		Dates:   []time.Time{d("2024-01-02"), d("2024-01-05"), d("2024-01-09")},
		PricesA: []float64{1, 2, 3},
		PricesB: []float64{1, 2, 3},
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, 7.0, s.HoldingDays(0, 2))
	assert.Equal(t, 3.0, s.HoldingDays(0, 1))

	s.Dates[2] = d("2024-01-05")
	assert.Error(t, s.Validate())

	short := &AlignedSeries{Dates: s.Dates, PricesA: []float64{1}, PricesB: []float64{1, 2, 3}}
	assert.Error(t, short.Validate())
}
