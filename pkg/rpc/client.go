package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/pairlab/pkg/api"
)

// Client calls a remote AnalysisService.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewClient connects to addr without TLS. Extra options are appended, e.g. a context dialer.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run executes one analysis run remotely.
func (c *Client) Run(ctx context.Context, req *api.RunRequest) (*api.RunResponse, error) {
	out := new(api.RunResponse)
	if err := c.conn.Invoke(ctx, MethodRun, req, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// Optimize executes one grid search remotely.
func (c *Client) Optimize(ctx context.Context, req *api.OptimizeRequest) (*api.OptimizeResponse, error) {
	out := new(api.OptimizeResponse)
	if err := c.conn.Invoke(ctx, MethodOptimize, req, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// Healthy reports whether the service answers SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
