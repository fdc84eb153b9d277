package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
)

// PriceSource defines the interface for an external market data provider.
// Implementations exist per asset class (stocks and crypto tokens are
// fetched through distinct upstreams); results are always keyed by the
// internal asset symbol, never the source's own symbol.
type PriceSource interface {
	// CurrentPrices retrieves the current price for each given asset.
	// A payload missing the expected fields is reported as
	// ErrMalformedResponse; network and auth failures are returned as-is.
	CurrentPrices(ctx context.Context, assets []domain.AssetInfo) (map[string]decimal.Decimal, error)

	// DailyCloses retrieves the daily close price series for one asset
	// over [start, end]. The series may be sparse (non-trading days are
	// absent); gap filling is the caller's concern.
	DailyCloses(ctx context.Context, asset domain.AssetInfo, start, end domain.Date) ([]domain.HistoricalPrice, error)
}

// TradeSource defines the interface for a broker returning executed
// trades. The source is opaque: it yields fully formed Trade records with
// deterministic ids and the platform's own fee convention already applied.
type TradeSource interface {
	// RecentTrades retrieves filled trades for the given assets executed
	// on or after since.
	RecentTrades(ctx context.Context, assets []domain.AssetInfo, since domain.Date) ([]domain.Trade, error)
}
