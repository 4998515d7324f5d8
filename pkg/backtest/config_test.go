package backtest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/spread"
)

const sampleYAML = `
run:
  model_type: kalman
  lookback_window: 45
  zscore_lookback: 15
  kalman_process_noise: 0.0001
  kalman_initial_lookback: 25
  entry_threshold: 2.5
  exit_threshold: 0.75
  max_holding_days: 20
  capital_per_trade: 50000
  open_position_policy: close
data:
  data_path: ./prices
  symbol_a: KO
  symbol_b: PEP
stationarity:
  mode: auto
  url: http://localhost:5000
  redis_addr: localhost:6379
engine:
  nats_addr: nats://nats:4222
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, spread.ModelKalman, cfg.Run.ModelType)
	assert.Equal(t, 45, cfg.Run.LookbackWindow)
	assert.Equal(t, 15, cfg.Run.ZScoreLookback)
	assert.Equal(t, 25, cfg.Run.KalmanInitialLookback)
	assert.Equal(t, 2.5, cfg.Run.EntryThreshold)
	assert.Equal(t, 0.75, cfg.Run.ExitThreshold)
	assert.Equal(t, OpenPositionClose, cfg.Run.OpenPositionPolicy)
	assert.Equal(t, spread.NormalizeZScore, cfg.Run.EuclideanNormalization, "defaulted")

	assert.Equal(t, "KO", cfg.Data.SymbolA)
	assert.Equal(t, "auto", cfg.Stationarity.Mode)
	assert.Equal(t, "nats://nats:4222", cfg.Engine.NATSAddr)
	assert.Equal(t, "pairlab.run", cfg.Engine.Subject, "defaulted")
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr, "defaulted")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, cfg.Run.CapitalPerTrade)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("run: [unclosed"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("run:\n  exit_threshold: 3\n  entry_threshold: 2\n"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		field  string
	}{
		{name: "Unknown model", mutate: func(c *RunConfig) { c.ModelType = "spline" }, field: "model_type"},
		{name: "Lookback too small", mutate: func(c *RunConfig) { c.LookbackWindow = 1 }, field: "lookback_window"},
		{name: "Z lookback too small", mutate: func(c *RunConfig) { c.ZScoreLookback = 1 }, field: "zscore_lookback"},
		{name: "Kalman init too small", mutate: func(c *RunConfig) { c.KalmanInitialLookback = 1 }, field: "kalman_initial_lookback"},
		{name: "Negative process noise", mutate: func(c *RunConfig) { c.KalmanProcessNoise = -1 }, field: "kalman_process_noise"},
		{name: "Bad normalization", mutate: func(c *RunConfig) { c.EuclideanNormalization = "log" }, field: "euclidean_normalization"},
		{name: "Zero entry", mutate: func(c *RunConfig) { c.EntryThreshold = 0 }, field: "entry_threshold"},
		{name: "Negative exit", mutate: func(c *RunConfig) { c.ExitThreshold = -0.5 }, field: "exit_threshold"},
		{name: "Inverted thresholds", mutate: func(c *RunConfig) { c.ExitThreshold = 2.5; c.EntryThreshold = 2 }, field: "exit_threshold"},
		{name: "Zero holding", mutate: func(c *RunConfig) { c.MaxHoldingDays = 0 }, field: "max_holding_days"},
		{name: "Zero capital", mutate: func(c *RunConfig) { c.CapitalPerTrade = 0 }, field: "capital_per_trade"},
		{name: "Unknown policy", mutate: func(c *RunConfig) { c.OpenPositionPolicy = "hold" }, field: "open_position_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	assert.NoError(t, DefaultRunConfig().Validate())
}

func TestRunConfig_EqualThresholdsWarn(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.EntryThreshold = 1.5
	cfg.ExitThreshold = 1.5

	assert.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Warnings(), 1)
	assert.Empty(t, DefaultRunConfig().Warnings())
}

func TestRunConfig_RequiredLength(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.LookbackWindow = 60
	cfg.ZScoreLookback = 20
	assert.Equal(t, 79, cfg.RequiredLength())

	cfg.ModelType = spread.ModelRatio
	assert.Equal(t, 20, cfg.RequiredLength())

	cfg.ModelType = spread.ModelKalman
	cfg.KalmanInitialLookback = 30
	assert.Equal(t, 49, cfg.RequiredLength())
}

func TestConfigFromAPI(t *testing.T) {
	base := DefaultRunConfig()

	cfg, err := ConfigFromAPI(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	cfg, err = ConfigFromAPI(base, &api.RunConfig{
		ModelType:          "euclidean",
		LookbackWindow:     40,
		EntryThreshold:     1.8,
		OpenPositionPolicy: "close",
		DiagnosticsOnly:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, spread.ModelEuclidean, cfg.ModelType)
	assert.Equal(t, 40, cfg.LookbackWindow)
	assert.Equal(t, 1.8, cfg.EntryThreshold)
	assert.Equal(t, base.ExitThreshold, cfg.ExitThreshold)
	assert.Equal(t, OpenPositionClose, cfg.OpenPositionPolicy)
	assert.True(t, cfg.DiagnosticsOnly)

	wire := cfg.ToAPI()
	assert.Equal(t, "euclidean", wire.ModelType)
	assert.Equal(t, 40, wire.LookbackWindow)

	_, err = ConfigFromAPI(base, &api.RunConfig{ModelType: "spline"})
	assert.True(t, IsConfigError(err))
}

func TestKalmanProcessNoise_ZeroIsKept(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.ModelType = spread.ModelKalman
	cfg.KalmanProcessNoise = 0
	assert.Equal(t, 0.0, cfg.WithDefaults().KalmanProcessNoise)
	assert.NoError(t, cfg.Validate())

	parsed, err := ParseConfig([]byte("run:\n  model_type: kalman\n  kalman_process_noise: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, parsed.Run.KalmanProcessNoise)

	parsed, err = ParseConfig([]byte("run:\n  model_type: kalman\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig().KalmanProcessNoise, parsed.Run.KalmanProcessNoise, "absent keeps the default")

	zero := 0.0
	fromAPI, err := ConfigFromAPI(DefaultRunConfig(), &api.RunConfig{KalmanProcessNoise: &zero})
	require.NoError(t, err)
	assert.Equal(t, 0.0, fromAPI.KalmanProcessNoise)

	fromAPI, err = ConfigFromAPI(DefaultRunConfig(), &api.RunConfig{EntryThreshold: 1.5})
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig().KalmanProcessNoise, fromAPI.KalmanProcessNoise, "omitted keeps the base")

	wire := fromAPI.ToAPI()
	require.NotNil(t, wire.KalmanProcessNoise)
	assert.Equal(t, fromAPI.KalmanProcessNoise, *wire.KalmanProcessNoise)
}
