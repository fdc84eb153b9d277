package domain

import "github.com/shopspring/decimal"

// TradeAction represents the side of an executed trade (BUY or SELL).
type TradeAction string

const (
	Buy  TradeAction = "BUY"
	Sell TradeAction = "SELL"
)

// Trade represents a single executed trade, immutable once written.
// Cost and Value are stored independently rather than derived from
// price*quantity: fee conventions differ per platform (some platforms
// fold fees into cost, some report them separately) and the originally
// reported figures must survive round-trips unchanged.
type Trade struct {
	ID       string          `json:"id"`       // Stable deterministic identifier (platform-prefixed)
	Platform string          `json:"platform"` // Originating platform (e.g. "binance", "vanguard")
	Date     Date            `json:"date"`     // Trading day, no time component
	Action   TradeAction     `json:"action"`   // BUY or SELL
	Asset    string          `json:"asset"`    // Internal asset symbol (e.g. "BTC", "COIN")
	Price    decimal.Decimal `json:"price"`    // Execution price per unit
	Quantity decimal.Decimal `json:"quantity"` // Executed quantity, always positive
	Fees     decimal.Decimal `json:"fees"`     // Fees charged by the platform
	Cost     decimal.Decimal `json:"cost"`     // Total consideration per platform convention
	Value    decimal.Decimal `json:"value"`    // Gross value of the execution
	Excluded bool            `json:"excluded"` // Omit from position math without deleting history
}
