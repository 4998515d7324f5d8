package stationarity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairlab/pkg/api"
)

func TestHTTPClient_Success(t *testing.T) {
	var received api.ADFRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ADFPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statistic":-4.2,"p_value":0.0007,"critical_values":{"1%":-3.46,"5%":-2.87,"10%":-2.57},"is_stationary":true}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL + "/", RequestsPerSecond: 100})
	values := whiteNoise(30, 1)
	values[3] = nan()

	res, err := client.Test(context.Background(), values)
	require.NoError(t, err)

	assert.Len(t, received.TimeSeries, 29, "non-finite values are dropped before sending")
	assert.Equal(t, -4.2, res.Statistic)
	assert.Equal(t, 0.0007, res.PValue)
	assert.Equal(t, -2.87, res.CriticalValues.FivePercent)
	assert.True(t, res.IsStationary)
	assert.Equal(t, SourceHTTP, res.Source)
	assert.Equal(t, 29, res.NObs)
}

func TestHTTPClient_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Missing 'time_series' in request body"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100})
	_, err := client.Test(context.Background(), whiteNoise(20, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing 'time_series'")
}

func TestHTTPClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 1000, Burst: 10})
	for i := 0; i < 3; i++ {
		_, err := client.Test(context.Background(), whiteNoise(20, 1))
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState())

	_, err := client.Test(context.Background(), whiteNoise(20, 1))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTPClient_RateLimitRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"statistic":-1,"p_value":0.7,"critical_values":{},"is_stationary":false}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 0.001, Burst: 1})
	_, err := client.Test(context.Background(), whiteNoise(20, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Test(ctx, whiteNoise(20, 1))
	assert.Error(t, err)
}

func TestHTTPClient_TooFewObservations(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Test(context.Background(), []float64{1, 2})
	assert.ErrorIs(t, err, ErrTooFewObservations)
}
