package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/alert"
	"github.com/evalabs/opswatch/internal/api"
	"github.com/evalabs/opswatch/internal/cache"
	"github.com/evalabs/opswatch/internal/config"
	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/metrics"
	"github.com/evalabs/opswatch/internal/monitor"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	// Primary ERP database (shared pool)
	primaryDB, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to primary database", zap.Error(err))
	}
	defer primaryDB.Close()

	// Platform database holding the monitoring tables. Optional: without
	// it the engine runs live, unpersisted cycles.
	var platformDB *sqlx.DB
	var repo *db.Repository
	var store monitor.Store
	if cfg.Database.PlatformURL != "" {
		platformDB, err = db.NewConnection(cfg.Database.PlatformURL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
		if err != nil {
			logger.Fatal("Failed to connect to platform database", zap.Error(err))
		}
		defer platformDB.Close()

		if err := db.Migrate(cfg.Database.PlatformURL, "migrations"); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}

		repo = db.NewRepository(platformDB)
		store = monitor.NewRepositoryStore(repo)
	} else {
		logger.Warn("PLATFORM_DATABASE_URL not set, monitoring runs unpersisted")
	}

	var cacheClient *cache.Client
	if cfg.Redis.URL != "" {
		cacheClient = cache.NewClient(cfg.Redis.URL)
		defer cacheClient.Close()
	}

	collector := metrics.NewCollector()
	notifier := alert.NewSlackNotifier(cfg.Monitoring.SlackWebhookURL, logger)
	engine := monitor.NewEngine(cfg.Monitoring, primaryDB, platformDB, store, notifier, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Loop(ctx)
	}()

	server := api.NewServer(cfg, repo, engine, cacheClient, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("opswatch started", zap.String("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("opswatch stopped")
}
