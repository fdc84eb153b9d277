package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"portfolioTracker/config"
	"portfolioTracker/internal/adapters/binanceclient"
	"portfolioTracker/internal/adapters/finnhub"
	"portfolioTracker/internal/adapters/logger"
	"portfolioTracker/internal/adapters/sqlite"
	"portfolioTracker/internal/app"
	"portfolioTracker/internal/prices"
	"portfolioTracker/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Load Asset Universe
	universe, err := config.LoadUniverse(cfg.AssetsFile)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load asset universe")
		log.Fatalf("FATAL: Failed to load asset universe: %v", err)
	}
	appLogger.Info(context.Background(), "Asset universe loaded", map[string]interface{}{"assets": len(universe)})

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 5. Initialize Price Source Adapters
	finnhubClient, err := finnhub.New(finnhub.Config{
		Token:   cfg.FinnhubToken,
		BaseURL: cfg.FinnhubBaseURL,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Finnhub client")
		log.Fatalf("FATAL: Failed to initialize Finnhub client: %v", err)
	}
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:    cfg.BinanceAPIKey,
		SecretKey: cfg.BinanceSecretKey,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Price source clients initialized")

	// 6. Initialize Live Price Cache
	priceCache, err := prices.NewCache(prices.CacheConfig{
		Repo:     repo,
		Stocks:   finnhubClient,
		Crypto:   binanceClient,
		Universe: universe,
		TTL:      cfg.CacheTTL,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize live price cache")
		log.Fatalf("FATAL: Failed to initialize live price cache: %v", err)
	}

	// 7. Initialize Application Service
	portfolioService, err := app.NewService(app.Deps{
		Logger:    appLogger,
		TradeRepo: repo,
		PriceRepo: repo,
		PosRepo:   repo,
		SnapRepo:  repo,
		Stocks:    finnhubClient,
		Crypto:    binanceClient,
		Broker:    binanceClient,
		Cache:     priceCache,
		Universe:  universe,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize portfolio service")
		log.Fatalf("FATAL: Failed to initialize portfolio service: %v", err)
	}
	appLogger.Info(context.Background(), "Portfolio service initialized")

	// 8. Initialize HTTP Server
	srv, err := server.New(server.Config{
		Service:   portfolioService,
		TradeRepo: repo,
		APIToken:  cfg.APIToken,
		Logger:    appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 9. Run Scheduler and HTTP Server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- portfolioService.Run(ctx)
	}()

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": cfg.ServerAddr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, err, "HTTP server exited with error")
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info(context.Background(), "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server shutdown failed")
	}
	if err := <-schedulerDone; err != nil {
		appLogger.Error(context.Background(), err, "Scheduler exited with error")
		log.Fatalf("FATAL: Scheduler exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
