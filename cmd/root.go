package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teamtasks/apiserver/config"
	"github.com/teamtasks/apiserver/internal/logging"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "teamtasks",
	Short: "Team task manager backend",
	Long: `Backend for the team task manager: accounts, sessions and
task notifications.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.IsDevelopment(), cfg.LogLevel)
}
