package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teamtasks/apiserver/config"
	"github.com/teamtasks/apiserver/internal/server"
	"go.uber.org/zap"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the teamtasks API server",
	Long: `Starts the teamtasks API server. Usage:

	teamtasks server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Error("failed to start server", zap.Error(err))
			return fmt.Errorf("start server: %w", err)
		}
		if err := srv.Run(cmd.Context()); err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
