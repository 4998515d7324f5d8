package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/metrics"
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("scheduler stopped")
)

type task struct {
	ctx    context.Context
	job    api.Job
	source string
	done   chan result
}

type result struct {
	reply api.JobReply
	err   error
}

// Scheduler runs independent jobs on a fixed pool of workers.
type Scheduler struct {
	exec    *Executor
	workers int
	tasks   chan *task
	metrics *metrics.Registry
	logger  zerolog.Logger

	pending atomic.Int64
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with the given pool and queue sizes.
func NewScheduler(exec *Executor, workers, queueSize int, m *metrics.Registry) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}
	return &Scheduler{
		exec:    exec,
		workers: workers,
		tasks:   make(chan *task, queueSize),
		metrics: m,
		logger:  logging.Component("scheduler"),
	}
}

// Start launches the workers.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info().Int("workers", s.workers).Int("queue", cap(s.tasks)).Msg("Scheduler started")
}

// Stop rejects new jobs, lets queued jobs finish and waits for the workers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.tasks)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// Do queues a job and blocks until it finishes or ctx ends.
// source labels the metrics (http, grpc, nats, cli).
func (s *Scheduler) Do(ctx context.Context, source string, job api.Job) (api.JobReply, error) {
	t := &task{ctx: ctx, job: job, source: source, done: make(chan result, 1)}

	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		s.metrics.ObserveJob(source, "rejected")
		return api.JobReply{ID: job.ID, Error: ErrStopped.Error()}, ErrStopped
	}
	select {
	case s.tasks <- t:
		s.metrics.SetQueueDepth(int(s.pending.Add(1)))
	default:
		s.mu.RUnlock()
		s.metrics.ObserveJob(source, "rejected")
		return api.JobReply{ID: job.ID, Error: ErrQueueFull.Error()}, ErrQueueFull
	}
	s.mu.RUnlock()

	select {
	case r := <-t.done:
		return r.reply, r.err
	case <-ctx.Done():
		return api.JobReply{ID: job.ID, Error: ctx.Err().Error()}, ctx.Err()
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	logger := s.logger.With().Int("worker", id).Logger()

	for t := range s.tasks {
		s.metrics.SetQueueDepth(int(s.pending.Add(-1)))

		if err := t.ctx.Err(); err != nil {
			s.metrics.ObserveJob(t.source, "cancelled")
			t.done <- result{reply: api.JobReply{ID: t.job.ID, Error: err.Error()}, err: err}
			continue
		}

		reply, err := s.exec.Execute(t.ctx, t.job)
		outcome := "success"
		if err != nil {
			outcome = "error"
			logger.Warn().Err(err).Str("job_id", reply.ID).Str("kind", t.job.Kind).Msg("Job failed")
		} else {
			logger.Debug().Str("job_id", reply.ID).Str("kind", t.job.Kind).Msg("Job done")
		}
		s.metrics.ObserveJob(t.source, outcome)
		t.done <- result{reply: reply, err: err}
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}
