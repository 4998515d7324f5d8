package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/metrics"
	"github.com/yourusername/pairlab/pkg/queue"
	"github.com/yourusername/pairlab/pkg/stationarity"
)

func pairRequest(n int, seed int64) api.RunRequest {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	req := api.RunRequest{
		SymbolA: "AAA",
		SymbolB: "BBB",
		PricesA: make([]api.PricePoint, n),
		PricesB: make([]api.PricePoint, n),
		Config:  &api.RunConfig{LookbackWindow: 30, ZScoreLookback: 20},
	}
	b := 100.0
	for i := 0; i < n; i++ {
		b += rng.NormFloat64()
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		req.PricesB[i] = api.PricePoint{Date: date, Close: b}
		req.PricesA[i] = api.PricePoint{Date: date, Close: 5 + 1.5*b + rng.NormFloat64()}
	}
	return req
}

type fixture struct {
	srv     *Server
	sched   *queue.Scheduler
	metrics *metrics.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.NewRegistry()
	local := stationarity.NewLocalTester()
	svc := stationarity.NewService(local, nil, m)
	runner := backtest.NewRunner(nil, svc, m)
	sched := queue.NewScheduler(queue.NewExecutor(runner, backtest.DefaultRunConfig(), 2), 2, 8, m)
	sched.Start()
	t.Cleanup(sched.Stop)

	srv := New(backtest.DefaultConfig().Server, Deps{
		Scheduler:    sched,
		Stationarity: svc,
		ADF:          local,
		Metrics:      m,
		Version:      "test",
	})
	return &fixture{srv: srv, sched: sched, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, string(stationarity.StateReady), health.Stationarity)
	assert.Equal(t, "test", health.Version)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/analyze", pairRequest(200, 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Len(t, resp.Series, 200)
	assert.Equal(t, "AAA", resp.SymbolA)
	assert.NotEmpty(t, resp.RunID)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QueueJobs.WithLabelValues("http", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues("/api/v1/analyze", http.MethodPost, "200")))
}

func TestAnalyze_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/analyze", "{broken")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)

	rec = f.do(t, http.MethodPost, "/api/v1/analyze", api.RunRequest{SymbolA: "AAA"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := pairRequest(100, 2)
	bad.Config.EntryThreshold = 0.5
	bad.Config.ExitThreshold = 1.0
	rec = f.do(t, http.MethodPost, "/api/v1/analyze", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error, "exit_threshold")

	rec = f.do(t, http.MethodPost, "/api/v1/analyze", pairRequest(20, 3))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyze_SchedulerStopped(t *testing.T) {
	f := newFixture(t)
	f.sched.Stop()

	rec := f.do(t, http.MethodPost, "/api/v1/analyze", pairRequest(100, 4))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptimize(t *testing.T) {
	f := newFixture(t)
	req := api.OptimizeRequest{
		Run:  pairRequest(250, 5),
		Grid: api.ParamGrid{EntryThresholds: []float64{1.5, 2.0}, ExitThresholds: []float64{0.25, 0.5}},
		Goal: "sharpe",
		TopN: 3,
	}
	rec := f.do(t, http.MethodPost, "/api/v1/optimize", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.OptimizeResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Equal(t, 4, resp.Evaluated+resp.Skipped)
	assert.LessOrEqual(t, len(resp.Results), 3)

	req.Goal = "sortino"
	rec = f.do(t, http.MethodPost, "/api/v1/optimize", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestADF(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))
	noise := make([]float64, 300)
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}

	rec := f.do(t, http.MethodPost, "/api/adf-test", api.ADFRequest{TimeSeries: noise})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp api.ADFResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsStationary)
	assert.Less(t, resp.PValue, 0.05)
	assert.Contains(t, resp.CriticalValues, "5%")
}

func TestADF_BadRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		body string
		want string
	}{
		{`{}`, "Missing 'time_series'"},
		{`{"time_series": "abc"}`, "must be a list"},
		{`{"time_series": [null, null]}`, "empty after dropping NaN"},
		{`{"time_series": [1, 2, null, 3]}`, "Not enough observations (3)"},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, "/api/adf-test", tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)

		var resp api.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, tc.want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/health", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pairlab_http_requests_total")
}

func TestCORSAndRouting(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/api/v1/analyze", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodGet, "/api/v1/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)

	rec = f.do(t, http.MethodGet, "/api/v1/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartStop(t *testing.T) {
	settings := backtest.DefaultConfig().Server
	settings.HTTPAddr = "127.0.0.1:0"
	srv := New(settings, Deps{})

	require.NoError(t, srv.Start())
	assert.True(t, srv.IsRunning())
	assert.Error(t, srv.Start())

	require.NoError(t, srv.Stop(t.Context()))
	assert.False(t, srv.IsRunning())
	require.NoError(t, srv.Stop(t.Context()))
}
