package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving the
// trade ledger. Trades are immutable once written except for the
// Excluded flag and explicit corrective upserts under the same id.
type TradeRepository interface {
	// InsertTrades saves trades, ignoring ids that already exist.
	// Returns the number of rows actually inserted.
	InsertTrades(ctx context.Context, trades []domain.Trade) (int, error)
	// UpsertTrade inserts or fully replaces a trade under its id.
	// Used for explicit corrections only.
	UpsertTrade(ctx context.Context, trade domain.Trade) error
	// SetTradeExcluded toggles the excluded flag for a trade id.
	SetTradeExcluded(ctx context.Context, id string, excluded bool) error
	// AllTrades retrieves the full ledger ordered by date then id.
	AllTrades(ctx context.Context) ([]domain.Trade, error)
	// FindTrades retrieves trades matching the given execution key.
	FindTrades(ctx context.Context, platform, asset string, date domain.Date, action domain.TradeAction) ([]domain.Trade, error)
	// MinTradeDate returns the earliest trade date, zero Date when the
	// ledger is empty.
	MinTradeDate(ctx context.Context) (domain.Date, error)
	// MaxTradeDate returns the latest trade date, zero Date when the
	// ledger is empty.
	MaxTradeDate(ctx context.Context) (domain.Date, error)
}

// PriceRepository defines the interface for the historical daily close
// price series. Rows are append-only; re-inserts on (asset, date) are
// ignored so backfills are idempotent.
type PriceRepository interface {
	// InsertHistoricalPrices bulk-inserts prices, ignoring conflicts on
	// the (asset, date) key.
	InsertHistoricalPrices(ctx context.Context, prices []domain.HistoricalPrice) error
	// HistoricalPricesBetween retrieves all prices with start <= date <= end.
	HistoricalPricesBetween(ctx context.Context, start, end domain.Date) ([]domain.HistoricalPrice, error)
	// MaxHistoricalPriceDate returns the latest stored price date, zero
	// Date when no prices exist.
	MaxHistoricalPriceDate(ctx context.Context) (domain.Date, error)
}

// LivePriceRepository defines the interface for the live price cache
// table. The cache is always replaced whole so that every row shares one
// fetch timestamp; partial updates are not expressible.
type LivePriceRepository interface {
	// ReplaceLivePrices deletes all cached rows and inserts the given
	// mapping under a single transaction.
	ReplaceLivePrices(ctx context.Context, prices map[string]decimal.Decimal, fetchedAt time.Time) error
	// LivePrices returns the cached mapping and the shared fetch
	// timestamp. An empty mapping and zero time mean the cache was never
	// seeded.
	LivePrices(ctx context.Context) (map[string]decimal.Decimal, time.Time, error)
}

// PositionRepository defines the interface for the derived current
// positions table.
type PositionRepository interface {
	// ReplacePositions deletes all position rows and inserts the given
	// set under a single transaction.
	ReplacePositions(ctx context.Context, positions []domain.Position) error
	// AllPositions retrieves all current positions ordered by asset.
	AllPositions(ctx context.Context) ([]domain.Position, error)
}

// SnapshotRepository defines the interface for the historical position
// snapshot audit trail.
type SnapshotRepository interface {
	// InsertHistoricalPositions bulk-inserts snapshot rows, ignoring
	// conflicts on the (asset, date) key.
	InsertHistoricalPositions(ctx context.Context, snapshots []domain.HistoricalPosition) error
	// MaxSnapshotDate returns the latest snapshot date, zero Date when no
	// snapshots exist.
	MaxSnapshotDate(ctx context.Context) (domain.Date, error)
	// HistoricalPositionsSince retrieves snapshots with date >= start,
	// optionally filtered to the given assets, ordered by date then asset.
	// A zero start Date means no lower bound.
	HistoricalPositionsSince(ctx context.Context, start domain.Date, assets []string) ([]domain.HistoricalPosition, error)
}
