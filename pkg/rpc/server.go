package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/logging"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/queue"
)

// Server is the gRPC front end of the scheduler.
type Server struct {
	sched      *queue.Scheduler
	grpcServer *grpc.Server
	health     *health.Server
	logger     zerolog.Logger
}

// NewServer creates the gRPC server with AnalysisService and the standard health service registered.
func NewServer(sched *queue.Scheduler, opts ...grpc.ServerOption) *Server {
	s := &Server{
		sched:  sched,
		health: health.NewServer(),
		logger: logging.Component("grpc"),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(s.logInterceptor))
	s.grpcServer = grpc.NewServer(opts...)

	RegisterAnalysisServer(s.grpcServer, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			s.logger.Error().Err(err).Msg("gRPC server error")
		}
	}()
	return nil
}

// Serve blocks serving lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Stop marks the service not serving and waits for in-flight calls.
func (s *Server) Stop() {
	s.logger.Info().Msg("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Run implements AnalysisServer.
func (s *Server) Run(ctx context.Context, req *api.RunRequest) (*api.RunResponse, error) {
	reply, err := s.sched.Do(ctx, "grpc", api.Job{Kind: api.JobRun, Run: req})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply.Run, nil
}

// Optimize implements AnalysisServer.
func (s *Server) Optimize(ctx context.Context, req *api.OptimizeRequest) (*api.OptimizeResponse, error) {
	reply, err := s.sched.Do(ctx, "grpc", api.Job{Kind: api.JobOptimize, Optimize: req})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply.Optimize, nil
}

func (s *Server) logInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	evt := s.logger.Debug()
	if err != nil {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("elapsed", time.Since(start)).
		Msg("Call")
	return resp, err
}

// toStatus maps run errors to gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case backtest.IsConfigError(err), errors.Is(err, queue.ErrUnknownKind):
		code = codes.InvalidArgument
	case errors.Is(err, pricedata.ErrInsufficientData):
		code = codes.FailedPrecondition
	case errors.Is(err, queue.ErrQueueFull):
		code = codes.ResourceExhausted
	case errors.Is(err, queue.ErrStopped):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}
