package stationarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/stats"
)

// ADFPath is the route of the remote ADF service.
const ADFPath = "/api/adf-test"

// HTTPClientConfig configures the remote ADF client.
type HTTPClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Significance      float64
}

// HTTPClient calls a remote ADF service (POST {"time_series": [...]}).
// Calls are rate limited and guarded by a circuit breaker.
type HTTPClient struct {
	endpoint     string
	significance float64
	client       *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	logger       zerolog.Logger
}

// NewHTTPClient creates a remote tester.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	logger := logging.Component("stationarity-http")

	st := gobreaker.Settings{
		Name:     "adf-service",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &HTTPClient{
		endpoint:     strings.TrimRight(cfg.BaseURL, "/") + ADFPath,
		significance: cfg.Significance,
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:      gobreaker.NewCircuitBreaker(st),
		logger:       logger,
	}
}

// Test implements Tester.
func (c *HTTPClient) Test(ctx context.Context, values []float64) (Result, error) {
	clean := stats.Finite(values)
	if len(clean) < minADFObservations {
		return Result{}, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewObservations, len(clean), minADFObservations)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, clean)
	})
	if err != nil {
		return Result{}, err
	}

	result := FromADFResponse(out.(api.ADFResponse))
	result.NObs = len(clean)
	if c.significance > 0 && c.significance < 1 {
		result.IsStationary = result.PValue < c.significance
	}
	return result, nil
}

// BreakerState reports the circuit breaker state (closed, half-open, open).
func (c *HTTPClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *HTTPClient) post(ctx context.Context, values []float64) (api.ADFResponse, error) {
	body, err := json.Marshal(api.ADFRequest{TimeSeries: values})
	if err != nil {
		return api.ADFResponse{}, fmt.Errorf("encode ADF request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return api.ADFResponse{}, fmt.Errorf("build ADF request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return api.ADFResponse{}, fmt.Errorf("ADF request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return api.ADFResponse{}, fmt.Errorf("read ADF response: %w", err)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Int("points", len(values)).
		Dur("latency", time.Since(start)).Msg("ADF service responded")

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return api.ADFResponse{}, fmt.Errorf("ADF service returned %d: %s", resp.StatusCode, e.Error)
		}
		return api.ADFResponse{}, fmt.Errorf("ADF service returned %d", resp.StatusCode)
	}

	var out api.ADFResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return api.ADFResponse{}, fmt.Errorf("decode ADF response: %w", err)
	}
	if !stats.IsFinite(out.Statistic) || !stats.IsFinite(out.PValue) {
		return api.ADFResponse{}, errors.New("ADF service returned a non-finite statistic")
	}
	return out, nil
}
