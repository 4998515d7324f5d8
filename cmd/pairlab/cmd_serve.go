package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairlab/pkg/queue"
	"github.com/yourusername/pairlab/pkg/rpc"
	"github.com/yourusername/pairlab/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API over HTTP and gRPC",
	Long: `Start the HTTP API (/api/v1/analyze, /api/v1/optimize, /api/adf-test, /metrics)
and the gRPC AnalysisService. Both share one bounded job scheduler. With --nats the
process also consumes jobs from the NATS queue group.

Examples:
  pairlab serve
  pairlab serve --http :8080 --grpc :9090 --workers 8
  pairlab serve --nats`,
	RunE: runServe,
}

var (
	serveHTTPAddr string
	serveGRPCAddr string
	serveWorkers  int
	serveQueue    int
	serveNATS     bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address (overrides server.http_addr)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "gRPC listen address (overrides server.grpc_addr, \"off\" disables)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Concurrent jobs (overrides server.workers)")
	serveCmd.Flags().IntVar(&serveQueue, "queue", 64, "Pending job capacity")
	serveCmd.Flags().BoolVar(&serveNATS, "nats", false, "Also consume jobs from NATS (engine block)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	settings := cfg.Server
	if serveHTTPAddr != "" {
		settings.HTTPAddr = serveHTTPAddr
	}
	if serveGRPCAddr != "" {
		settings.GRPCAddr = serveGRPCAddr
	}
	if serveWorkers > 0 {
		settings.Workers = serveWorkers
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	exec := queue.NewExecutor(comps.runner, cfg.Run, settings.Workers)
	sched := queue.NewScheduler(exec, settings.Workers, serveQueue, comps.metrics)
	sched.Start()
	defer sched.Stop()

	httpServer := server.New(settings, server.Deps{
		Scheduler:    sched,
		Stationarity: comps.stationarity,
		Metrics:      comps.metrics,
		Version:      appVersion,
	})
	if err := httpServer.Start(); err != nil {
		return err
	}

	var grpcServer *rpc.Server
	if settings.GRPCAddr != "" && settings.GRPCAddr != "off" {
		grpcServer = rpc.NewServer(sched)
		if err := grpcServer.Start(settings.GRPCAddr); err != nil {
			return err
		}
	}

	var worker *queue.Worker
	if serveNATS {
		conn, err := queue.Connect(cfg.Engine.NATSAddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		worker = queue.NewWorker(conn, sched, queue.WorkerConfig{
			Subject:    cfg.Engine.Subject,
			QueueGroup: cfg.Engine.QueueGroup,
		})
		if err := worker.Start(); err != nil {
			return err
		}
	}

	log.Info().
		Str("http", settings.HTTPAddr).
		Str("grpc", settings.GRPCAddr).
		Bool("nats", serveNATS).
		Int("workers", settings.Workers).
		Msg("pairlab serving")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	if worker != nil {
		if err := worker.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS subscription")
		}
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	return nil
}
