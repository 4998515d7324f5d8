package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/metrics"
	"github.com/yourusername/pairlab/pkg/pricedata"
	"github.com/yourusername/pairlab/pkg/stationarity"
)

// Stationarity modes.
const (
	modeLocal  = "local"
	modeRemote = "remote"
	modeAuto   = "auto"
)

// components are the collaborators shared by every subcommand.
type components struct {
	metrics      *metrics.Registry
	stationarity *stationarity.Service
	runner       *backtest.Runner
	redis        *redis.Client
}

func (c *components) Close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis")
		}
	}
}

func buildComponents(ctx context.Context, config *backtest.Config) (*components, error) {
	c := &components{metrics: metrics.NewRegistry()}

	svc, rdb, err := buildStationarity(ctx, config.Stationarity, c.metrics)
	if err != nil {
		return nil, err
	}
	c.stationarity = svc
	c.redis = rdb
	c.runner = backtest.NewRunner(pricedata.NewCSVProvider(config.Data.DataPath), svc, c.metrics)
	return c, nil
}

// buildStationarity assembles the tester chain:
//
//	local:  local ADF
//	remote: remote service, conservative result on failure
//	auto:   remote service, local ADF on failure
//
// A configured Redis address puts a read-through cache in front of the primary tester.
// Redis being down only disables the cache.
func buildStationarity(ctx context.Context, s backtest.StationaritySettings, m *metrics.Registry) (*stationarity.Service, *redis.Client, error) {
	local := stationarity.NewLocalTester()

	var primary, fallback stationarity.Tester
	switch s.Mode {
	case "", modeLocal:
		primary = local
	case modeRemote, modeAuto:
		if s.URL == "" {
			return nil, nil, &backtest.ConfigError{Field: "stationarity.url", Msg: fmt.Sprintf("required for mode %q", s.Mode)}
		}
		primary = stationarity.NewHTTPClient(stationarity.HTTPClientConfig{
			BaseURL:           s.URL,
			Timeout:           s.GetTimeout(),
			RequestsPerSecond: s.RequestsPerSecond,
			Burst:             s.Burst,
			Significance:      s.Significance,
		})
		if s.Mode == modeAuto {
			fallback = local
		}
	default:
		return nil, nil, &backtest.ConfigError{Field: "stationarity.mode", Msg: fmt.Sprintf("unknown mode %q (want local, remote or auto)", s.Mode)}
	}

	var rdb *redis.Client
	if s.RedisAddr != "" {
		client, err := stationarity.NewRedisClient(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB)
		if err != nil {
			log.Warn().Err(err).Str("addr", s.RedisAddr).Msg("Stationarity cache disabled")
		} else {
			rdb = client
			primary = stationarity.NewCachedTester(primary, client, "", s.GetCacheTTL(), m)
		}
	}

	log.Info().Str("mode", orMode(s.Mode)).Bool("cache", rdb != nil).Msg("Stationarity service ready")
	return stationarity.NewService(primary, fallback, m), rdb, nil
}

func orMode(mode string) string {
	if mode == "" {
		return modeLocal
	}
	return mode
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
