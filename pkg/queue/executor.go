// Package queue runs analysis jobs on a bounded worker pool and over a NATS queue group.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/backtest"
)

// ErrUnknownKind is returned for a job whose Kind is neither run nor optimize.
var ErrUnknownKind = errors.New("unknown job kind")

// Executor turns a wire job into a backtest run or grid search.
type Executor struct {
	runner     *backtest.Runner
	base       backtest.RunConfig
	maxWorkers int
}

// NewExecutor creates an executor. base supplies every run parameter a request leaves empty;
// maxWorkers caps the optimizer pool of a single job.
func NewExecutor(runner *backtest.Runner, base backtest.RunConfig, maxWorkers int) *Executor {
	return &Executor{runner: runner, base: base.WithDefaults(), maxWorkers: maxWorkers}
}

// Execute runs one job. The returned reply carries the error text when err is non-nil.
func (e *Executor) Execute(ctx context.Context, job api.Job) (api.JobReply, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	reply := api.JobReply{ID: job.ID}

	var err error
	switch job.Kind {
	case api.JobRun, "":
		reply.Run, err = e.Run(ctx, job.Run)
	case api.JobOptimize:
		reply.Optimize, err = e.Optimize(ctx, job.Optimize)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply, err
}

// Run executes one analysis run.
func (e *Executor) Run(ctx context.Context, req *api.RunRequest) (*api.RunResponse, error) {
	in, err := backtest.InputFromAPI(e.base, req)
	if err != nil {
		return nil, err
	}
	res, err := e.runner.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return res.ToAPI(), nil
}

// Optimize executes one grid search.
func (e *Executor) Optimize(ctx context.Context, req *api.OptimizeRequest) (*api.OptimizeResponse, error) {
	if req == nil {
		return nil, &backtest.ConfigError{Field: "request", Msg: "missing optimize request"}
	}
	in, err := backtest.InputFromAPI(e.base, &req.Run)
	if err != nil {
		return nil, err
	}
	goal, err := backtest.ParseGoal(req.Goal)
	if err != nil {
		return nil, err
	}
	method, err := backtest.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}

	opt := backtest.NewOptimizer(e.runner, in, backtest.GridFromAPI(req.Grid))
	opt.SetGoal(goal)
	opt.SetMethod(method)
	workers := req.Workers
	if workers <= 0 || (e.maxWorkers > 0 && workers > e.maxWorkers) {
		workers = e.maxWorkers
	}
	opt.SetMaxWorkers(workers)

	report, err := opt.GridSearch(ctx)
	if err != nil {
		return nil, err
	}
	return report.ToAPI(req.TopN), nil
}
