package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairlab/pkg/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume analysis jobs from NATS",
	Long: `Join the NATS queue group of the engine block and answer run/optimize
requests until interrupted. Start several workers to spread the load.

Examples:
  pairlab worker
  pairlab worker --nats-url nats://broker:4222 --workers 8`,
	RunE: runWorker,
}

var (
	workerNATSURL string
	workerCount   int
)

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerNATSURL, "nats-url", "", "NATS server URL (overrides engine.nats_addr)")
	workerCmd.Flags().IntVar(&workerCount, "workers", 0, "Concurrent jobs (overrides engine.workers)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine := cfg.Engine
	if workerNATSURL != "" {
		engine.NATSAddr = workerNATSURL
	}
	if workerCount > 0 {
		engine.Workers = workerCount
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	conn, err := queue.Connect(engine.NATSAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	sched := queue.NewScheduler(queue.NewExecutor(comps.runner, cfg.Run, engine.Workers), engine.Workers, engine.Workers*4, comps.metrics)
	sched.Start()
	defer sched.Stop()

	worker := queue.NewWorker(conn, sched, queue.WorkerConfig{
		Subject:    engine.Subject,
		QueueGroup: engine.QueueGroup,
	})
	if err := worker.Start(); err != nil {
		return err
	}

	log.Info().Str("nats", engine.NATSAddr).Int("workers", engine.Workers).Msg("Worker running")
	<-ctx.Done()

	log.Info().Msg("Worker stopping")
	return worker.Stop()
}
