package backtest

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/pairlab/pkg/api"
	"github.com/yourusername/pairlab/pkg/spread"
)

// ConfigError reports one invalid configuration field.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Msg)
}

// OpenPositionPolicy decides what happens to a position still open at the last index.
type OpenPositionPolicy string

const (
	// OpenPositionDiscard drops the open position; no trade is emitted.
	OpenPositionDiscard OpenPositionPolicy = "discard"
	// OpenPositionClose closes it at the last index with reason end_of_data.
	OpenPositionClose OpenPositionPolicy = "close"
)

// Config is the full YAML configuration file.
type Config struct {
	Run          RunConfig            `yaml:"run"`
	Data         DataSettings         `yaml:"data"`
	Output       OutputSettings       `yaml:"output"`
	Server       ServerSettings       `yaml:"server"`
	Stationarity StationaritySettings `yaml:"stationarity"`
	Engine       EngineSettings       `yaml:"engine"`
}

// RunConfig holds the parameters of one analysis run.
type RunConfig struct {
	ModelType              spread.ModelType     `yaml:"model_type"`
	LookbackWindow         int                  `yaml:"lookback_window"`
	ZScoreLookback         int                  `yaml:"zscore_lookback"`
	KalmanProcessNoise     float64              `yaml:"kalman_process_noise"`
	KalmanMeasurementNoise float64              `yaml:"kalman_measurement_noise"`
	KalmanInitialLookback  int                  `yaml:"kalman_initial_lookback"`
	EuclideanNormalization spread.Normalization `yaml:"euclidean_normalization"`
	EntryThreshold         float64              `yaml:"entry_threshold"`
	ExitThreshold          float64              `yaml:"exit_threshold"`
	MaxHoldingDays         float64              `yaml:"max_holding_days"`
	CapitalPerTrade        float64              `yaml:"capital_per_trade"`
	RiskFreeRate           float64              `yaml:"risk_free_rate"`
	OpenPositionPolicy     OpenPositionPolicy   `yaml:"open_position_policy"`
	DiagnosticsOnly        bool                 `yaml:"diagnostics_only"`
}

// DataSettings contains price source settings
type DataSettings struct {
	DataPath string `yaml:"data_path"`
	SymbolA  string `yaml:"symbol_a"`
	SymbolB  string `yaml:"symbol_b"`
}

// OutputSettings contains report output settings
type OutputSettings struct {
	ResultDir      string `yaml:"result_dir"`
	SaveTrades     bool   `yaml:"save_trades"`
	SaveJSON       bool   `yaml:"save_json"`
	GenerateReport bool   `yaml:"generate_report"`
}

// ServerSettings contains the HTTP and gRPC listener settings
type ServerSettings struct {
	HTTPAddr       string `yaml:"http_addr"`
	GRPCAddr       string `yaml:"grpc_addr"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	Workers        int    `yaml:"workers"`
}

// StationaritySettings selects and tunes the stationarity tester chain
type StationaritySettings struct {
	Mode              string  `yaml:"mode"` // local, remote, auto
	URL               string  `yaml:"url"`
	TimeoutMs         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Significance      float64 `yaml:"significance"`
	RedisAddr         string  `yaml:"redis_addr"`
	RedisPassword     string  `yaml:"redis_password"`
	RedisDB           int     `yaml:"redis_db"`
	CacheTTLSeconds   int     `yaml:"cache_ttl_seconds"`
}

// EngineSettings contains message-queue settings
type EngineSettings struct {
	NATSAddr   string `yaml:"nats_addr"`
	Subject    string `yaml:"subject"`
	QueueGroup string `yaml:"queue_group"`
	Workers    int    `yaml:"workers"`
}

// DefaultRunConfig returns the run defaults used when a field is left empty.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		ModelType:              spread.ModelOLS,
		LookbackWindow:         60,
		ZScoreLookback:         20,
		KalmanProcessNoise:     1e-5,
		KalmanMeasurementNoise: 0,
		KalmanInitialLookback:  30,
		EuclideanNormalization: spread.NormalizeZScore,
		EntryThreshold:         2.0,
		ExitThreshold:          0.5,
		MaxHoldingDays:         30,
		CapitalPerTrade:        10000,
		RiskFreeRate:           0,
		OpenPositionPolicy:     OpenPositionDiscard,
	}
}

// DefaultConfig returns a complete configuration with every block defaulted.
func DefaultConfig() *Config {
	return &Config{
		Run: DefaultRunConfig(),
		Data: DataSettings{
			DataPath: "./data",
		},
		Output: OutputSettings{
			ResultDir:      "./results",
			GenerateReport: true,
		},
		Server: ServerSettings{
			HTTPAddr:       ":8080",
			GRPCAddr:       ":9090",
			ReadTimeoutMs:  10000,
			WriteTimeoutMs: 60000,
			Workers:        4,
		},
		Stationarity: StationaritySettings{
			Mode:              "local",
			TimeoutMs:         5000,
			RequestsPerSecond: 20,
			Burst:             5,
			Significance:      0.05,
			CacheTTLSeconds:   3600,
		},
		Engine: EngineSettings{
			NATSAddr:   "nats://localhost:4222",
			Subject:    "pairlab.run",
			QueueGroup: "pairlab-workers",
			Workers:    4,
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes on top of DefaultConfig and validates the run block.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.Run = config.Run.WithDefaults()

	if err := config.Run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// WithDefaults fills zero fields from DefaultRunConfig. KalmanProcessNoise is left
// alone: Q=0 is a valid constant-parameter (recursive least squares) filter, and the
// default Q reaches a run through DefaultRunConfig, which YAML and API values overlay.
func (c RunConfig) WithDefaults() RunConfig {
	d := DefaultRunConfig()
	if c.ModelType == "" {
		c.ModelType = d.ModelType
	}
	if c.LookbackWindow == 0 {
		c.LookbackWindow = d.LookbackWindow
	}
	if c.ZScoreLookback == 0 {
		c.ZScoreLookback = d.ZScoreLookback
	}
	if c.KalmanInitialLookback == 0 {
		c.KalmanInitialLookback = d.KalmanInitialLookback
	}
	if c.EuclideanNormalization == "" {
		c.EuclideanNormalization = d.EuclideanNormalization
	}
	if c.EntryThreshold == 0 {
		c.EntryThreshold = d.EntryThreshold
	}
	if c.ExitThreshold == 0 {
		c.ExitThreshold = d.ExitThreshold
	}
	if c.MaxHoldingDays == 0 {
		c.MaxHoldingDays = d.MaxHoldingDays
	}
	if c.CapitalPerTrade == 0 {
		c.CapitalPerTrade = d.CapitalPerTrade
	}
	if c.OpenPositionPolicy == "" {
		c.OpenPositionPolicy = d.OpenPositionPolicy
	}
	return c
}

// Validate checks the run parameters. Every failure is a *ConfigError.
func (c RunConfig) Validate() error {
	if _, err := spread.ParseModelType(string(c.ModelType)); err != nil {
		return &ConfigError{Field: "model_type", Msg: err.Error()}
	}
	if c.LookbackWindow < 2 {
		return &ConfigError{Field: "lookback_window", Msg: fmt.Sprintf("must be >= 2, got %d", c.LookbackWindow)}
	}
	if c.ZScoreLookback < 2 {
		return &ConfigError{Field: "zscore_lookback", Msg: fmt.Sprintf("must be >= 2, got %d", c.ZScoreLookback)}
	}
	if c.KalmanInitialLookback < 2 {
		return &ConfigError{Field: "kalman_initial_lookback", Msg: fmt.Sprintf("must be >= 2, got %d", c.KalmanInitialLookback)}
	}
	if !nonNegative(c.KalmanProcessNoise) {
		return &ConfigError{Field: "kalman_process_noise", Msg: "must be a finite value >= 0"}
	}
	if !nonNegative(c.KalmanMeasurementNoise) {
		return &ConfigError{Field: "kalman_measurement_noise", Msg: "must be a finite value >= 0"}
	}
	if _, err := spread.ParseNormalization(string(c.EuclideanNormalization)); err != nil {
		return &ConfigError{Field: "euclidean_normalization", Msg: err.Error()}
	}
	if !positive(c.EntryThreshold) {
		return &ConfigError{Field: "entry_threshold", Msg: fmt.Sprintf("must be > 0, got %v", c.EntryThreshold)}
	}
	if !positive(c.ExitThreshold) {
		return &ConfigError{Field: "exit_threshold", Msg: fmt.Sprintf("must be > 0, got %v", c.ExitThreshold)}
	}
	if c.ExitThreshold > c.EntryThreshold {
		return &ConfigError{
			Field: "exit_threshold",
			Msg:   fmt.Sprintf("inverted thresholds: exit %v > entry %v", c.ExitThreshold, c.EntryThreshold),
		}
	}
	if !positive(c.MaxHoldingDays) {
		return &ConfigError{Field: "max_holding_days", Msg: fmt.Sprintf("must be > 0, got %v", c.MaxHoldingDays)}
	}
	if !positive(c.CapitalPerTrade) {
		return &ConfigError{Field: "capital_per_trade", Msg: fmt.Sprintf("must be > 0, got %v", c.CapitalPerTrade)}
	}
	if math.IsNaN(c.RiskFreeRate) || math.IsInf(c.RiskFreeRate, 0) {
		return &ConfigError{Field: "risk_free_rate", Msg: "must be finite"}
	}
	switch c.OpenPositionPolicy {
	case OpenPositionDiscard, OpenPositionClose:
	default:
		return &ConfigError{
			Field: "open_position_policy",
			Msg:   fmt.Sprintf("unknown policy %q (must be discard or close)", c.OpenPositionPolicy),
		}
	}
	return nil
}

// Warnings lists accepted but suspicious settings.
func (c RunConfig) Warnings() []string {
	var warnings []string
	if c.ExitThreshold == c.EntryThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"exit_threshold equals entry_threshold (%v): positions may close on the bar after entry", c.EntryThreshold))
	}
	if c.ZScoreLookback > c.LookbackWindow*4 && c.ModelType != spread.ModelRatio {
		warnings = append(warnings, fmt.Sprintf(
			"zscore_lookback %d is much longer than lookback_window %d", c.ZScoreLookback, c.LookbackWindow))
	}
	return warnings
}

// SpreadConfig builds the model configuration.
func (c RunConfig) SpreadConfig() spread.Config {
	return spread.Config{
		Model:                  c.ModelType,
		Lookback:               c.LookbackWindow,
		KalmanProcessNoise:     c.KalmanProcessNoise,
		KalmanMeasurementNoise: c.KalmanMeasurementNoise,
		KalmanInitialLookback:  c.KalmanInitialLookback,
		Normalization:          c.EuclideanNormalization,
	}
}

// WarmUp is the model warm-up for this configuration.
func (c RunConfig) WarmUp() int {
	return c.SpreadConfig().WarmUp()
}

// RequiredLength is the minimum aligned length that yields at least one z-score.
func (c RunConfig) RequiredLength() int {
	return c.WarmUp() + c.ZScoreLookback
}

// GetReadTimeout returns the HTTP read timeout
func (s ServerSettings) GetReadTimeout() time.Duration {
	if s.ReadTimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// GetWriteTimeout returns the HTTP write timeout
func (s ServerSettings) GetWriteTimeout() time.Duration {
	if s.WriteTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// GetTimeout returns the remote stationarity request timeout
func (s StationaritySettings) GetTimeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// GetCacheTTL returns the stationarity cache TTL
func (s StationaritySettings) GetCacheTTL() time.Duration {
	if s.CacheTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// ConfigFromAPI overlays the non-zero request fields on base.
func ConfigFromAPI(base RunConfig, in *api.RunConfig) (RunConfig, error) {
	c := base
	if in == nil {
		return c.WithDefaults(), nil
	}
	if in.ModelType != "" {
		m, err := spread.ParseModelType(in.ModelType)
		if err != nil {
			return c, &ConfigError{Field: "model_type", Msg: err.Error()}
		}
		c.ModelType = m
	}
	if in.LookbackWindow != 0 {
		c.LookbackWindow = in.LookbackWindow
	}
	if in.ZScoreLookback != 0 {
		c.ZScoreLookback = in.ZScoreLookback
	}
	if in.KalmanProcessNoise != nil {
		c.KalmanProcessNoise = *in.KalmanProcessNoise
	}
	if in.KalmanMeasurementNoise != 0 {
		c.KalmanMeasurementNoise = in.KalmanMeasurementNoise
	}
	if in.KalmanInitialLookback != 0 {
		c.KalmanInitialLookback = in.KalmanInitialLookback
	}
	if in.EuclideanNormalization != "" {
		c.EuclideanNormalization = spread.Normalization(in.EuclideanNormalization)
	}
	if in.EntryThreshold != 0 {
		c.EntryThreshold = in.EntryThreshold
	}
	if in.ExitThreshold != 0 {
		c.ExitThreshold = in.ExitThreshold
	}
	if in.MaxHoldingDays != 0 {
		c.MaxHoldingDays = in.MaxHoldingDays
	}
	if in.CapitalPerTrade != 0 {
		c.CapitalPerTrade = in.CapitalPerTrade
	}
	if in.RiskFreeRate != 0 {
		c.RiskFreeRate = in.RiskFreeRate
	}
	if in.OpenPositionPolicy != "" {
		c.OpenPositionPolicy = OpenPositionPolicy(in.OpenPositionPolicy)
	}
	if in.DiagnosticsOnly {
		c.DiagnosticsOnly = true
	}
	return c.WithDefaults(), nil
}

// ToAPI converts the run configuration to its wire form.
func (c RunConfig) ToAPI() api.RunConfig {
	q := c.KalmanProcessNoise
	return api.RunConfig{
		ModelType:              string(c.ModelType),
		LookbackWindow:         c.LookbackWindow,
		ZScoreLookback:         c.ZScoreLookback,
		KalmanProcessNoise:     &q,
		KalmanMeasurementNoise: c.KalmanMeasurementNoise,
		KalmanInitialLookback:  c.KalmanInitialLookback,
		EuclideanNormalization: string(c.EuclideanNormalization),
		EntryThreshold:         c.EntryThreshold,
		ExitThreshold:          c.ExitThreshold,
		MaxHoldingDays:         c.MaxHoldingDays,
		CapitalPerTrade:        c.CapitalPerTrade,
		RiskFreeRate:           c.RiskFreeRate,
		OpenPositionPolicy:     string(c.OpenPositionPolicy),
		DiagnosticsOnly:        c.DiagnosticsOnly,
	}
}

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
