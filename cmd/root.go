package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "live-session",
	Short: "Live exhibition sessions: viewer, broadcaster, local simulation",
	Long:  `Headless client for live artisan exhibitions. Commands: watch, broadcast, simulate.`,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(simulateCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and validates env config, and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}
	return cfg, logger, nil
}
