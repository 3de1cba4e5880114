package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/cadencehq/cadence-engine/pkg/config"
	"github.com/cadencehq/cadence-engine/pkg/database"
	"github.com/cadencehq/cadence-engine/pkg/generation"
	"github.com/cadencehq/cadence-engine/pkg/handlers"
	"github.com/cadencehq/cadence-engine/pkg/middleware"
	"github.com/cadencehq/cadence-engine/pkg/repositories"
	"github.com/cadencehq/cadence-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.Bool("autonomy_enabled", cfg.Autonomy.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	automationRepo := repositories.NewAutomationRepository(db)
	decisionRepo := repositories.NewDecisionLogRepository(db)
	contentRepo := repositories.NewContentRepository(db)
	recommendationRepo := repositories.NewRecommendationRepository(db)
	impactRepo := repositories.NewImpactRepository(db)

	// Generation provider
	generator, err := generation.NewFromConfig(&cfg.Generation, logger)
	if err != nil {
		logger.Fatal("Failed to create generation provider", zap.Error(err))
	}

	// Services
	autonomyEnabled := func() bool { return cfg.Autonomy.Enabled }
	impactService := services.NewImpactService(impactRepo, logger)
	trackingService := services.NewTrackingService(contentRepo, logger)
	feedbackService := services.NewFeedbackService(automationRepo, contentRepo, recommendationRepo, impactService, logger)
	decisionService := services.NewDecisionService(
		automationRepo, decisionRepo, contentRepo, recommendationRepo,
		feedbackService, impactService, autonomyEnabled,
		cfg.Autonomy.DefaultCooldownMinutes, logger)
	automationService := services.NewAutomationService(
		automationRepo, decisionService, trackingService, generator,
		cfg.Generation.Timeout(), logger)
	controlService := services.NewControlService(
		automationRepo, decisionRepo, recommendationRepo, autonomyEnabled, logger)
	scheduler := services.NewSchedulerService(automationRepo, automationService, logger)

	scheduler.RunScheduler(ctx, cfg.Autonomy.ScanInterval())

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewControlHandler(controlService, automationService, logger).RegisterRoutes(mux)
	handlers.NewContentHandler(trackingService, impactService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting cadence-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	// golang-migrate needs database/sql, not pgx pools.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, logger)
}
