// Command addasset backfills the historical close series for a single
// asset from its price source, starting at a given date. Use it after
// adding a new symbol to the assets file so the snapshot engine has a
// complete price history for it.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"portfolioTracker/config"
	"portfolioTracker/internal/adapters/binanceclient"
	"portfolioTracker/internal/adapters/finnhub"
	"portfolioTracker/internal/adapters/logger"
	"portfolioTracker/internal/adapters/sqlite"
	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
	"portfolioTracker/internal/prices"
)

func main() {
	asset := flag.String("asset", "", "Internal symbol of the asset to backfill (required)")
	start := flag.String("start", "", "First date of the backfill, YYYY-MM-DD (required)")
	flag.Parse()

	if *asset == "" || *start == "" {
		flag.Usage()
		log.Fatal("FATAL: -asset and -start are required")
	}
	startDate, err := domain.ParseDate(*start)
	if err != nil {
		log.Fatalf("FATAL: Invalid start date: %v", err)
	}

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
	info, ok := universe[*asset]
	if !ok {
		log.Fatalf("FATAL: Asset %s is not in %s", *asset, cfg.AssetsFile)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	var source ports.PriceSource
	if info.Class == domain.ClassCrypto {
		source, err = binanceclient.New(binanceclient.Config{APIKey: cfg.BinanceAPIKey, SecretKey: cfg.BinanceSecretKey, Logger: appLogger})
	} else {
		source, err = finnhub.New(finnhub.Config{Token: cfg.FinnhubToken, BaseURL: cfg.FinnhubBaseURL, Logger: appLogger})
	}
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize price source: %v", err)
	}

	end := domain.DateOf(time.Now()).AddDays(-1)
	series, err := source.DailyCloses(ctx, info, startDate, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to fetch closes for %s: %v", *asset, err)
	}
	filled, err := prices.ForwardFill(series, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to gap-fill closes for %s: %v", *asset, err)
	}
	if err := repo.InsertHistoricalPrices(ctx, filled); err != nil {
		log.Fatalf("FATAL: Failed to insert closes: %v", err)
	}

	appLogger.Info(ctx, "Asset backfill complete", map[string]interface{}{
		"asset": *asset, "from": startDate.String(), "to": end.String(), "rows": len(filled)})
}
