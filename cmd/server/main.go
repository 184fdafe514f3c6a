/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment / .env)
  2. Initialize SQLite store
  3. Pick the stats cache backend (redis when configured, else in-process)
  4. Wire the engine components and API handler
  5. Start the auto-calculation scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and cache connections
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fuelgrid/commission-engine/api"
	"github.com/fuelgrid/commission-engine/cache"
	"github.com/fuelgrid/commission-engine/commission"
	"github.com/fuelgrid/commission-engine/config"
	"github.com/fuelgrid/commission-engine/pkg/logger"
	"github.com/fuelgrid/commission-engine/store/sqlite"
)

func main() {
	envFile := flag.String("env", "", "optional .env file path")
	flag.Parse()

	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	// Storage
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Stats cache: redis when configured, in-process otherwise
	var statsCache commission.StatsCache
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn("redis unreachable, falling back to in-process cache", zap.Error(err))
			statsCache = cache.NewMemory()
		} else {
			defer redisCache.Close()
			statsCache = redisCache
		}
	} else {
		statsCache = cache.NewMemory()
	}

	// Engine wiring
	scope := commission.DirectoryScope{Lister: store}
	rates := commission.NewRateResolver(store, logger.Named(log, "rates"))
	stocks := commission.NewStockAggregator(store, logger.Named(log, "stocks"))

	calculator := commission.NewCalculator(scope, stocks, rates, store, logger.Named(log, "calculator"))
	calculator.Cache = statsCache

	progressive := commission.NewProgressiveBuilder(scope, store, rates, logger.Named(log, "progressive"))

	stats := commission.NewStatsAggregator(scope, store, stocks, rates, logger.Named(log, "stats"))
	stats.Cache = statsCache
	stats.CacheTTL = cfg.Cache.TTL

	handler := api.NewHandler(calculator, progressive, stats, store, scope, logger.Named(log, "api"))
	router := api.NewRouter(handler)

	// Auto-calculation trigger
	var scheduler *api.AutoCalcScheduler
	if cfg.Scheduler.Enabled {
		scheduler = api.NewAutoCalcScheduler(calculator, cfg.Scheduler.CronSchedule, logger.Named(log, "scheduler"))
		if err := scheduler.Start(); err != nil {
			log.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
