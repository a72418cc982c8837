package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artisan-platform/live-session/internal/devserver"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the local simulation server (REST stub + signaling + media relay)",
	RunE:  runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer logger.Sync()

	srv, err := devserver.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("devserver: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
