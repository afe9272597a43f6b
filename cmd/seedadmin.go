package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teamtasks/apiserver/config"
	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/db"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/internal/store"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

var seedAdminFlags struct {
	name     string
	email    string
	password string
	title    string
	role     string
}

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the first administrator account",
	Long: `Creates an administrator account unless one with the same email
already exists. Usage:

	teamtasks seed-admin --email admin@example.com --password s3cret!
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		userService := services.NewUserService(
			store.NewUserRepository(conn),
			auth.NewPasswordHasher(cfg.Auth.HashConcurrency),
		)

		// registering on behalf of a synthetic admin grants the flag
		seeder := &types.Identity{IsAdmin: true, IsActive: true}
		user, err := userService.Register(cmd.Context(), services.RegisterInput{
			Name:     seedAdminFlags.name,
			Email:    seedAdminFlags.email,
			Password: seedAdminFlags.password,
			IsAdmin:  true,
			Role:     seedAdminFlags.role,
			Title:    seedAdminFlags.title,
		}, seeder)
		if errors.Is(err, services.ErrDuplicateEmail) {
			logger.Info("admin already exists", zap.String("email", seedAdminFlags.email))
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info("admin created", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedAdminCmd)

	flags := seedAdminCmd.Flags()
	flags.StringVar(&seedAdminFlags.name, "name", "Admin", "display name")
	flags.StringVar(&seedAdminFlags.email, "email", "", "login email")
	flags.StringVar(&seedAdminFlags.password, "password", "", "initial password")
	flags.StringVar(&seedAdminFlags.title, "title", "Administrator", "job title")
	flags.StringVar(&seedAdminFlags.role, "role", "admin", "job role")
	_ = seedAdminCmd.MarkFlagRequired("email")
	_ = seedAdminCmd.MarkFlagRequired("password")
}
