package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fancify-backend/internal/config"
	"fancify-backend/internal/database"
	"fancify-backend/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending transform log migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadForMigrate()

		log, err := logger.New(cfg.Env, cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := database.RunMigrations(pool, database.Migrations(), log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		log.Info("migrations up to date")
		return nil
	},
}
