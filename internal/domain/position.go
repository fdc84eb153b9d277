package domain

import "github.com/shopspring/decimal"

// Position is the FIFO-netted open position for one asset. Positions are
// derived from the trade ledger and fully recomputed on each build; they
// are never patched incrementally.
type Position struct {
	Asset        string          `json:"asset"`
	AveragePrice decimal.Decimal `json:"average_price"` // Cost / Quantity over remaining open lots
	Quantity     decimal.Decimal `json:"quantity"`      // Sum of remaining open lot quantities
	Cost         decimal.Decimal `json:"cost"`          // Sum of remaining open lot cost bases
}

// HistoricalPosition is a persisted snapshot of one asset's position as of
// a specific historical date, joined with that day's close price.
type HistoricalPosition struct {
	Asset        string          `json:"asset"`
	Date         Date            `json:"date"`
	AveragePrice decimal.Decimal `json:"average_position_price"`
	ClosePrice   decimal.Decimal `json:"daily_close_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Cost         decimal.Decimal `json:"cost"`
	Value        decimal.Decimal `json:"value"`   // Quantity * ClosePrice
	Returns      decimal.Decimal `json:"returns"` // (Value - Cost) / Cost * 100
}
