package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yourusername/pairlab/pkg/backtest"
	"github.com/yourusername/pairlab/pkg/logging"
)

const (
	appName    = "pairlab"
	appVersion = "1.0.0"
)

var (
	configFile string
	logLevel   string
	logPretty  bool

	// cfg is loaded once in PersistentPreRunE; subcommand flags override it.
	cfg *backtest.Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Pairs-trading spread analysis and backtesting",
	Long: `pairlab models the spread between two price series (OLS, Kalman, ratio or
euclidean), checks it for mean reversion and replays a z-score threshold strategy
over it. It runs one-off from the command line or as an HTTP/gRPC/NATS service.`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(logging.Options{Level: logLevel, Pretty: logPretty})

		loaded, err := loadConfig(configFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/pairlab.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-friendly console logs")
}

// loadConfig reads the YAML config. A missing default file falls back to built-in defaults;
// an explicitly requested file must exist.
func loadConfig(path string, explicit bool) (*backtest.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("No config file, using defaults")
		return backtest.DefaultConfig(), nil
	}
	loaded, err := backtest.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("Configuration loaded")
	return loaded, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
