package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lendpool/locator/internal/infrastructure/cache"
	"github.com/lendpool/locator/internal/infrastructure/db"
	"github.com/lendpool/locator/internal/metrics"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			// schema DDL never touches the cache; the manager just wants one
			cacheTier := cache.New(cfg.Redis, cfg.Cache, metrics.New(), logger)
			defer cacheTier.Close()

			manager, err := db.NewManager(cfg.Postgres, cacheTier, logger)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer manager.Close()

			if err := manager.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("schema bootstrap: %w", err)
			}
			logger.Info().Msg("database schema ensured")
			return nil
		},
	}
}
