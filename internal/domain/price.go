package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoricalPrice is a daily close price for one asset.
// The (Asset, Date) pair is the primary key; re-inserts are ignored so
// backfills can be re-run without duplicating rows.
type HistoricalPrice struct {
	Asset string          `json:"asset"`
	Date  Date            `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// LivePrice is the most recently fetched current price for one asset.
// The whole table is replaced on each refresh so every row shares the
// same FetchedAt timestamp.
type LivePrice struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}
