// Package server exposes analysis runs, grid searches and the ADF test over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/metrics"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/queue"
	"github.com/yourusername/pairlab/pkg/stationarity"
)

// maxBodyBytes caps request bodies; inline price series of a few thousand bars fit easily.
const maxBodyBytes = 32 << 20

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Deps are the collaborators a Server dispatches to. Stationarity and Metrics may be nil.
type Deps struct {
	Scheduler    *queue.Scheduler
	Stationarity *stationarity.Service
	ADF          stationarity.Tester
	Metrics      *metrics.Registry
	Version      string
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	router  *mux.Router
	server  *http.Server
	logger  zerolog.Logger
	started time.Time

	mu      sync.RWMutex
	running bool
}

// New creates a server listening on settings.HTTPAddr once started.
func New(settings backtest.ServerSettings, deps Deps) *Server {
	if deps.ADF == nil {
		deps.ADF = stationarity.NewLocalTester()
	}
	s := &Server{
		deps:    deps,
		router:  mux.NewRouter(),
		logger:  logging.Component("http"),
		started: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         settings.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  settings.GetReadTimeout(),
		WriteTimeout: settings.GetWriteTimeout(),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	v1.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost, http.MethodOptions)
	v1.HandleFunc("/optimize", s.handleOptimize).Methods(http.MethodPost, http.MethodOptions)

	s.router.HandleFunc("/api/adf-test", s.handleADF).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusNotFound, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// IsRunning reports whether Start has been called without Stop.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// handleHealth handles GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := stationarity.StateUnavailable
	if s.deps.Stationarity != nil {
		state = s.deps.Stationarity.State()
	}
	status := "ok"
	if s.deps.Scheduler == nil {
		status = "degraded"
	}
	s.sendSuccess(w, "Healthy", api.HealthResponse{
		Status:       status,
		Stationarity: string(state),
		Version:      s.deps.Version,
		Uptime:       time.Since(s.started).Truncate(time.Second).String(),
	})
}

// handleAnalyze handles POST /api/v1/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if !s.decode(w, r, &req) {
		return
	}
	reply, err := s.dispatch(r.Context(), api.Job{ID: requestID(r.Context()), Kind: api.JobRun, Run: &req})
	if err != nil {
		s.sendError(w, statusOf(err), err.Error())
		return
	}
	s.sendSuccess(w, "Analysis completed", reply.Run)
}

// handleOptimize handles POST /api/v1/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req api.OptimizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	reply, err := s.dispatch(r.Context(), api.Job{ID: requestID(r.Context()), Kind: api.JobOptimize, Optimize: &req})
	if err != nil {
		s.sendError(w, statusOf(err), err.Error())
		return
	}
	s.sendSuccess(w, "Optimization completed", reply.Optimize)
}

// handleADF handles POST /api/adf-test. It keeps the bare {"error": ...} body of the
// standalone ADF service so HTTPClient can point at another pairlab instance.
func (s *Server) handleADF(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TimeSeries json.RawMessage `json:"time_series"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.TimeSeries) == 0 || string(body.TimeSeries) == "null" {
		s.sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Missing 'time_series' in request body"})
		return
	}
	var raw []*float64
	if err := json.Unmarshal(body.TimeSeries, &raw); err != nil {
		s.sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "'time_series' must be a list"})
		return
	}

	values := make([]float64, 0, len(raw))
	for _, v := range raw {
		if v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		s.sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Input time series is empty after dropping NaN values."})
		return
	}
	if len(values) < 5 {
		s.sendJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("Not enough observations (%d) for ADF test. Minimum required is 5.", len(values)),
		})
		return
	}

	res, err := s.deps.ADF.Test(r.Context(), values)
	if err != nil {
		if errors.Is(err, stationarity.ErrTooFewObservations) {
			s.sendJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		s.sendJSON(w, http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("An error occurred during ADF test calculation: %v", err),
		})
		return
	}
	s.sendJSON(w, http.StatusOK, res.ToADFResponse())
}

func (s *Server) dispatch(ctx context.Context, job api.Job) (api.JobReply, error) {
	if s.deps.Scheduler == nil {
		return api.JobReply{ID: job.ID}, queue.ErrStopped
	}
	return s.deps.Scheduler.Do(ctx, "http", job)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// statusOf maps a run error to an HTTP status.
func statusOf(err error) int {
	switch {
	case backtest.IsConfigError(err), errors.Is(err, queue.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, pricedata.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendSuccess sends a success response
func (s *Server) sendSuccess(w http.ResponseWriter, message string, data interface{}) {
	s.sendJSON(w, http.StatusOK, api.Response{Success: true, Message: message, Data: data})
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, statusCode int, errorMsg string) {
	s.sendJSON(w, statusCode, api.Response{Success: false, Error: errorMsg})
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding response")
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request and records it under its route template.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.deps.Metrics.ObserveHTTP(route, r.Method, strconv.Itoa(rec.status), elapsed)
		s.logger.Debug().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("Request")
	})
}

// corsMiddleware allows browser access from any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
