package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/logging"
)

// Default subject and queue group.
const (
	DefaultSubject    = "pairlab.run"
	DefaultQueueGroup = "pairlab-workers"
)

// Connect opens a NATS connection with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("pairlab"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// WorkerConfig configures a NATS worker.
type WorkerConfig struct {
	Subject    string
	QueueGroup string
	JobTimeout time.Duration
}

// Worker consumes jobs from a NATS queue group and replies to each request.
type Worker struct {
	conn   *nats.Conn
	sched  *Scheduler
	cfg    WorkerConfig
	sub    *nats.Subscription
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorker creates a worker; Start subscribes it.
func NewWorker(conn *nats.Conn, sched *Scheduler, cfg WorkerConfig) *Worker {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = DefaultQueueGroup
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		conn:   conn,
		sched:  sched,
		cfg:    cfg,
		logger: logging.Component("nats-worker"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the queue group.
func (w *Worker) Start() error {
	sub, err := w.conn.QueueSubscribe(w.cfg.Subject, w.cfg.QueueGroup, func(msg *nats.Msg) {
		// the scheduler bounds concurrency; the callback must not block the subscription
		go w.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.sub = sub
	w.logger.Info().Str("subject", w.cfg.Subject).Str("queue_group", w.cfg.QueueGroup).Msg("Subscribed")
	return nil
}

// Stop drains the subscription and cancels in-flight jobs.
func (w *Worker) Stop() error {
	var err error
	if w.sub != nil {
		err = w.sub.Drain()
	}
	w.cancel()
	return err
}

func (w *Worker) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.JobTimeout)
	defer cancel()

	data := w.process(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(data); err != nil {
		w.logger.Error().Err(err).Msg("Failed to respond")
	}
}

// process decodes a job, runs it and encodes the reply.
func (w *Worker) process(ctx context.Context, data []byte) []byte {
	var job api.Job
	var reply api.JobReply
	if err := json.Unmarshal(data, &job); err != nil {
		reply.Error = fmt.Sprintf("invalid job: %v", err)
		w.logger.Warn().Err(err).Msg("Invalid job payload")
	} else {
		reply, _ = w.sched.Do(ctx, "nats", job)
	}

	out, err := json.Marshal(reply)
	if err != nil {
		out, _ = json.Marshal(api.JobReply{ID: reply.ID, Error: fmt.Sprintf("failed to encode reply: %v", err)})
	}
	return out
}

// Client submits jobs to NATS workers.
type Client struct {
	conn    *nats.Conn
	subject string
}

// NewClient creates a client publishing on subject (DefaultSubject when empty).
func NewClient(conn *nats.Conn, subject string) *Client {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Client{conn: conn, subject: subject}
}

// Submit sends a job and waits for its reply until ctx ends.
func (c *Client) Submit(ctx context.Context, job api.Job) (*api.JobReply, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", c.subject, err)
	}
	var reply api.JobReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if reply.Error != "" {
		return &reply, fmt.Errorf("job %s failed: %s", reply.ID, reply.Error)
	}
	return &reply, nil
}

// Run submits one analysis run.
func (c *Client) Run(ctx context.Context, req *api.RunRequest) (*api.RunResponse, error) {
	reply, err := c.Submit(ctx, api.Job{Kind: api.JobRun, Run: req})
	if err != nil {
		return nil, err
	}
	return reply.Run, nil
}

// Optimize submits one grid search.
func (c *Client) Optimize(ctx context.Context, req *api.OptimizeRequest) (*api.OptimizeResponse, error) {
	reply, err := c.Submit(ctx, api.Job{Kind: api.JobOptimize, Optimize: req})
	if err != nil {
		return nil, err
	}
	return reply.Optimize, nil
}
