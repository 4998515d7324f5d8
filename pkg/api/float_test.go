package api

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat_Marshal(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want string
	}{
		{name: "Finite", in: 1.5, want: "1.5"},
		{name: "NaN", in: math.NaN(), want: "null"},
		{name: "Positive infinity", in: math.Inf(1), want: `"Infinity"`},
		{name: "Negative infinity", in: math.Inf(-1), want: `"-Infinity"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(Float(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestFloat_UnmarshalSpecialValues(t *testing.T) {
	var got struct {
		A Float `json:"a"`
		B Float `json:"b"`
		C Float `json:"c"`
		D Float `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":null,"b":"Infinity","c":"-Infinity","d":2.25}`), &got))

	assert.True(t, math.IsNaN(float64(got.A)))
	assert.True(t, math.IsInf(float64(got.B), 1))
	assert.True(t, math.IsInf(float64(got.C), -1))
	assert.Equal(t, 2.25, got.D.Float64())

	var bad Float
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &bad))
}

func TestSummary_ProfitFactorInfinityIsValidJSON(t *testing.T) {
	s := Summary{Method: "hedged", ProfitFactor: Float(math.Inf(1)), SharpeRatio: Float(math.NaN())}

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"profit_factor":"Infinity"`)
	assert.Contains(t, string(b), `"sharpe_ratio":null`)

	var back Summary
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsInf(back.ProfitFactor.Float64(), 1))
}

func TestFloatsRoundTrip(t *testing.T) {
	in := []float64{1, 2.5, -3}
	assert.Equal(t, in, Float64s(Floats(in)))
}
