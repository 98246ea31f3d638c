package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mintWatch/internal/config"
	"mintWatch/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	applied, err := postgres.Migrate(cfg.PGDSN)
	if err != nil {
		return err
	}
	if !applied {
		logger.Info("no migrations to apply")
		return nil
	}
	logger.Info("migrations applied", zap.String("target", "postgres"))
	return nil
}
