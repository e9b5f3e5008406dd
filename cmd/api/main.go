package main

import (
	"context"
	"log"
	_ "time/tzdata"

	"github.com/akshaykankal/facto/internal/app"
	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/database"
	"github.com/akshaykankal/facto/internal/infrastructure/migrations"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"go.uber.org/zap"
)

func main() {
	// Load configuration first and validate before any resource initialization
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration loading failed: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Failed to sync logger: %v", err)
		}
	}()

	ctx := context.Background()
	metrics := observability.NewMetrics()
	db, err := database.NewMariaDB(ctx, &cfg.Database, metrics, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, db.DB); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
		logger.Info(ctx, "Database migrations applied")
	}

	container, err := app.NewContainer(cfg, db, logger)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize application", zap.Error(err))
	}
	server := app.NewServer(container)

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
