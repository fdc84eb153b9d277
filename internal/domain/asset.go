package domain

import "github.com/shopspring/decimal"

// AssetClass determines which external source prices an asset.
type AssetClass string

const (
	ClassStock  AssetClass = "stock"
	ClassCrypto AssetClass = "crypto"
)

// AssetInfo is the classification metadata for one tracked asset.
type AssetInfo struct {
	Symbol           string          `json:"symbol"`            // Internal symbol (e.g. "BTC", "COIN")
	Class            AssetClass      `json:"class"`             // stock or crypto
	Market           string          `json:"market"`            // e.g. "US", "CRYPTO"
	Segment          string          `json:"segment"`           // e.g. "Exchanges", "L1"
	Description      string          `json:"description"`       // Human readable name
	ExchangeSymbol   string          `json:"exchange_symbol"`   // Symbol at the price source (e.g. "BTCUSDT")
	TargetAllocation decimal.Decimal `json:"target_allocation"` // Target portfolio share, percent
}

// Universe is the configured set of tracked assets keyed by internal
// symbol. Trades for symbols outside the universe are ignored by the
// position builder.
type Universe map[string]AssetInfo

// Contains reports whether symbol is tracked.
func (u Universe) Contains(symbol string) bool {
	_, ok := u[symbol]
	return ok
}

// ByClass returns the tracked assets of the given class, in no
// particular order.
func (u Universe) ByClass(class AssetClass) []AssetInfo {
	var assets []AssetInfo
	for _, info := range u {
		if info.Class == class {
			assets = append(assets, info)
		}
	}
	return assets
}

// Symbols returns all tracked symbols, in no particular order.
func (u Universe) Symbols() []string {
	symbols := make([]string, 0, len(u))
	for symbol := range u {
		symbols = append(symbols, symbol)
	}
	return symbols
}
