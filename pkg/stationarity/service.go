package stationarity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/metrics"
)

// State of a Service.
type State string

const (
	// StateReady the primary tester answered the last call.
	StateReady State = "ready"
	// StateDegraded the primary failed and the fallback answered.
	StateDegraded State = "degraded"
	// StateUnavailable no tester is configured or every tester failed.
	StateUnavailable State = "unavailable"
)

// Service is the explicitly constructed stationarity collaborator handed to the diagnostics.
// It tries the primary tester, then the fallback, and tracks its readiness.
type Service struct {
	primary  Tester
	fallback Tester
	metrics  *metrics.Registry
	logger   zerolog.Logger

	mu      sync.RWMutex
	state   State
	lastErr error
}

// NewService creates a service. Either tester may be nil.
func NewService(primary, fallback Tester, m *metrics.Registry) *Service {
	s := &Service{
		primary:  primary,
		fallback: fallback,
		metrics:  m,
		logger:   logging.Component("stationarity"),
		state:    StateReady,
	}
	switch {
	case primary == nil && fallback == nil:
		s.state = StateUnavailable
	case primary == nil:
		s.state = StateDegraded
	}
	return s
}

// Test implements Tester. On total failure it returns Conservative() together with the error.
func (s *Service) Test(ctx context.Context, values []float64) (Result, error) {
	var errs []error

	if s.primary != nil {
		res, err := s.call(ctx, s.primary, values)
		if err == nil {
			s.setState(StateReady, nil)
			return res, nil
		}
		if errors.Is(err, ErrTooFewObservations) || ctx.Err() != nil {
			return Conservative(), err
		}
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}

	if s.fallback != nil {
		res, err := s.call(ctx, s.fallback, values)
		if err == nil {
			s.setState(StateDegraded, errors.Join(errs...))
			s.logger.Warn().Err(errors.Join(errs...)).Msg("Primary stationarity tester failed, used fallback")
			return res, nil
		}
		errs = append(errs, fmt.Errorf("fallback: %w", err))
	}

	if len(errs) == 0 {
		errs = append(errs, ErrUnavailable)
	}
	err := errors.Join(errs...)
	s.setState(StateUnavailable, err)
	return Conservative(), err
}

func (s *Service) call(ctx context.Context, t Tester, values []float64) (Result, error) {
	start := time.Now()
	res, err := t.Test(ctx, values)

	source := res.Source
	if source == "" {
		source = sourceOf(t)
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveStationarity(source, outcome, time.Since(start))
	return res, err
}

func (s *Service) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastErr = err
}

// State reports readiness.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error behind a degraded or unavailable state.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func sourceOf(t Tester) string {
	switch t.(type) {
	case *LocalTester:
		return SourceLocal
	case *HTTPClient:
		return SourceHTTP
	case *CachedTester:
		return SourceCache
	default:
		return "custom"
	}
}
