package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-observer/src/analytics"
	"token-observer/src/cache"
	"token-observer/src/config"
	"token-observer/src/correlator"
	"token-observer/src/datafetch"
	"token-observer/src/events"
	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/network"
	"token-observer/src/server"
	"token-observer/src/storage"
	"token-observer/src/subscription"
	"token-observer/src/tasks"
	"token-observer/src/upstream"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := storage.NewDatabase(cfg.MConfig, appLogger.Named("storage"))
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}

	// Cache (Redis when configured, in-memory otherwise)
	var cacheGateway interfaces.ICacheGateway
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, appLogger.Named("cache"))
		if err != nil {
			appLogger.Critical("Failed to connect to Redis: %v", err)
		}
		defer redisCache.Close()
		cacheGateway = redisCache
	} else {
		appLogger.Info("No Redis configured, using in-memory cache")
		cacheGateway = cache.NewMemoryCache()
	}

	// Provider access
	netManager := network.NewAsyncNetworkManager(cfg.MConfig, appLogger.Named("network"))
	fetcher := datafetch.NewProviderClient(cfg.MConfig, netManager, appLogger.Named("datafetch"))

	// Event bus
	publisher := events.NewPublisher(cfg.MConfig, appLogger.Named("events"))

	// Aggregation engine
	engine := analytics.NewEngine(cfg.MConfig, fetcher, cacheGateway, db, publisher, appLogger.Named("analytics"))

	// Upstream link and subscription routing
	corr := correlator.NewRequestCorrelator(appLogger.Named("correlator"))
	link := upstream.NewLink(cfg.MConfig, corr, appLogger.Named("upstream"))

	// Server and subscription manager broadcast through each other, so they
	// are constructed before being joined.
	srv := server.NewTokenServer(cfg.MConfig, engine, nil, appLogger.Named("server"))
	manager := subscription.NewManager(link, corr, fetcher, cacheGateway, srv, appLogger.Named("subscription"))
	srv.SetTracker(manager)
	engine.SetExchanger(srv)

	// Recurring recompute jobs
	runner := tasks.NewTrackingRunner(cfg.MConfig, engine, appLogger.Named("tasks"))
	srv.SetScheduler(runner)

	// Connect upstream
	if err := link.Start(ctx); err != nil {
		appLogger.Critical("Failed to connect upstream: %v", err)
	}

	runner.Start(ctx)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// Periodic retention cleanup
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.CleanupOldData(); err != nil {
					appLogger.Warning("Retention cleanup: %v", err)
				}
			}
		}
	}()

	appLogger.Info("%s started on %s:%d", cfg.Name, cfg.Host, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Unsubscribe while the link is still alive, then drop the link so no
	// new notifications arrive, then the client-facing side.
	manager.Stop()
	link.Stop()
	if err := srv.Stop(); err != nil {
		appLogger.Warning("Server shutdown: %v", err)
	}
	runner.Stop()
	cancel()

	if err := publisher.Close(); err != nil {
		appLogger.Warning("Publisher close: %v", err)
	}
	if err := db.Close(); err != nil {
		appLogger.Warning("DB close: %v", err)
	}
}
