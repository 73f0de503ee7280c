package main

import (
	"context"
	"log/slog"
	"os"

	"fileops/internal/config"
	"fileops/internal/database"
	"fileops/internal/logging"
	"fileops/internal/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if !cfg.LedgerEnabled() {
		logger.Info("DB_DRIVER=none, nothing to migrate")
		return
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	logger.Info("migrations applied", "dialect", db.Dialect, "applied", applied)
}
