package prices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

const defaultTTL = 5 * time.Minute

// CacheConfig holds the dependencies for the live price cache.
type CacheConfig struct {
	Repo     ports.LivePriceRepository
	Stocks   ports.PriceSource // Quotes for stock/ETF assets
	Crypto   ports.PriceSource // Quotes for crypto assets
	Universe domain.Universe
	TTL      time.Duration // Cache freshness window; defaults to 5 minutes
	Logger   ports.Logger
	Now      func() time.Time // Injectable clock for tests; defaults to time.Now
}

// Cache answers "current price of every tracked asset" from the durable
// live price table, refreshing from the external sources only when the
// cached values exceed the TTL. On a recognized malformed upstream
// response the stale values are served instead: consumers get the best
// available price and must never hard-fail because a price API is
// temporarily misbehaving.
type Cache struct {
	repo     ports.LivePriceRepository
	stocks   ports.PriceSource
	crypto   ports.PriceSource
	universe domain.Universe
	ttl      time.Duration
	logger   ports.Logger
	now      func() time.Time
}

// NewCache creates a live price cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Repo == nil || cfg.Stocks == nil || cfg.Crypto == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for live price cache")
	}
	if len(cfg.Universe) == 0 {
		return nil, fmt.Errorf("live price cache requires a non-empty asset universe")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		repo:     cfg.Repo,
		stocks:   cfg.Stocks,
		crypto:   cfg.Crypto,
		universe: cfg.Universe,
		ttl:      ttl,
		logger:   cfg.Logger,
		now:      now,
	}, nil
}

// CurrentPrices returns the current price for every tracked asset, keyed
// by internal symbol. The result is always a full mapping; staleness on
// fallback is observable only through logs, never through the return
// shape.
func (c *Cache) CurrentPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	cached, fetchedAt, err := c.repo.LivePrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read live price cache: %w", err)
	}
	if len(cached) == 0 {
		return nil, ports.ErrNoCachedPrices
	}

	age := c.now().Sub(fetchedAt)
	if age < c.ttl {
		c.logger.Debug(ctx, "Serving live prices from cache", map[string]interface{}{"age": age.String()})
		return cached, nil
	}

	fresh, err := c.fetch(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrMalformedResponse) {
			c.logger.Warn(ctx, "Price source returned malformed payload, serving stale cache", map[string]interface{}{
				"age": age.String(), "error": err.Error()})
			return cached, nil
		}
		return nil, err
	}

	if err := c.repo.ReplaceLivePrices(ctx, fresh, c.now()); err != nil {
		return nil, fmt.Errorf("failed to replace live price cache: %w", err)
	}
	c.logger.Info(ctx, "Live price cache refreshed", map[string]interface{}{"assets": len(fresh)})
	return fresh, nil
}

// Prime fetches fresh prices and replaces the cache regardless of age.
// Used when seeding an empty ledger, where CurrentPrices would fail its
// cached-rows precondition.
func (c *Cache) Prime(ctx context.Context) error {
	fresh, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if err := c.repo.ReplaceLivePrices(ctx, fresh, c.now()); err != nil {
		return fmt.Errorf("failed to replace live price cache: %w", err)
	}
	c.logger.Info(ctx, "Live price cache primed", map[string]interface{}{"assets": len(fresh)})
	return nil
}

// fetch queries both sources and merges the results keyed by internal
// symbol. A tracked asset missing from the merged result counts as a
// malformed payload: partial price sets are never persisted.
func (c *Cache) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	merged := make(map[string]decimal.Decimal, len(c.universe))

	if stockAssets := c.universe.ByClass(domain.ClassStock); len(stockAssets) > 0 {
		stockPrices, err := c.stocks.CurrentPrices(ctx, stockAssets)
		if err != nil {
			return nil, fmt.Errorf("stock price fetch failed: %w", err)
		}
		for symbol, price := range stockPrices {
			merged[symbol] = price
		}
	}

	if cryptoAssets := c.universe.ByClass(domain.ClassCrypto); len(cryptoAssets) > 0 {
		cryptoPrices, err := c.crypto.CurrentPrices(ctx, cryptoAssets)
		if err != nil {
			return nil, fmt.Errorf("crypto price fetch failed: %w", err)
		}
		for symbol, price := range cryptoPrices {
			merged[symbol] = price
		}
	}

	for symbol := range c.universe {
		if _, ok := merged[symbol]; !ok {
			return nil, fmt.Errorf("asset %s missing from refreshed prices: %w", symbol, ports.ErrMalformedResponse)
		}
	}
	return merged, nil
}
