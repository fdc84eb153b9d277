// Command seed bootstraps an empty database from CSV exports: it loads
// the trade ledger and the historical close series, gap-fills the
// prices, builds the current positions, primes the live price cache and
// backfills the daily snapshots. Run it once before starting the
// service.
package main

import (
	"context"
	"flag"
	"log"

	"portfolioTracker/config"
	"portfolioTracker/internal/adapters/binanceclient"
	"portfolioTracker/internal/adapters/finnhub"
	"portfolioTracker/internal/adapters/logger"
	"portfolioTracker/internal/adapters/sqlite"
	"portfolioTracker/internal/app"
	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/prices"
	"portfolioTracker/internal/utils"
)

func main() {
	tradesFile := flag.String("trades", "./data/trades.csv", "CSV file with the trade ledger")
	pricesFile := flag.String("prices", "./data/prices.csv", "CSV file with historical daily closes")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	universe, err := config.LoadUniverse(cfg.AssetsFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to load asset universe: %v", err)
	}
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	finnhubClient, err := finnhub.New(finnhub.Config{Token: cfg.FinnhubToken, BaseURL: cfg.FinnhubBaseURL, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Finnhub client: %v", err)
	}
	binanceClient, err := binanceclient.New(binanceclient.Config{APIKey: cfg.BinanceAPIKey, SecretKey: cfg.BinanceSecretKey, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	priceCache, err := prices.NewCache(prices.CacheConfig{
		Repo: repo, Stocks: finnhubClient, Crypto: binanceClient,
		Universe: universe, TTL: cfg.CacheTTL, Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize live price cache: %v", err)
	}
	svc, err := app.NewService(app.Deps{
		Logger: appLogger, TradeRepo: repo, PriceRepo: repo, PosRepo: repo, SnapRepo: repo,
		Stocks: finnhubClient, Crypto: binanceClient, Broker: binanceClient,
		Cache: priceCache, Universe: universe,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize portfolio service: %v", err)
	}

	// Trades first: snapshots need the ledger in place.
	trades, err := utils.ReadTradesCSV(*tradesFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to read trades: %v", err)
	}
	inserted, err := repo.InsertTrades(ctx, trades)
	if err != nil {
		log.Fatalf("FATAL: Failed to insert trades: %v", err)
	}
	appLogger.Info(ctx, "Trades seeded", map[string]interface{}{"read": len(trades), "inserted": inserted})

	// Prices, gap-filled up to the newest date present in the export.
	points, err := utils.ReadPricesCSV(*pricesFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to read prices: %v", err)
	}
	var end domain.Date
	for _, point := range points {
		if end.Before(point.Date) {
			end = point.Date
		}
	}
	filled, err := prices.ForwardFill(points, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to gap-fill prices: %v", err)
	}
	if err := repo.InsertHistoricalPrices(ctx, filled); err != nil {
		log.Fatalf("FATAL: Failed to insert prices: %v", err)
	}
	appLogger.Info(ctx, "Prices seeded", map[string]interface{}{"read": len(points), "stored": len(filled)})

	if err := svc.RefreshPositions(ctx); err != nil {
		log.Fatalf("FATAL: Failed to build positions: %v", err)
	}
	if err := priceCache.Prime(ctx); err != nil {
		log.Fatalf("FATAL: Failed to prime live price cache: %v", err)
	}
	if err := svc.FillHistoricalPositions(ctx); err != nil {
		log.Fatalf("FATAL: Failed to backfill snapshots: %v", err)
	}

	appLogger.Info(ctx, "Seed complete")
}
