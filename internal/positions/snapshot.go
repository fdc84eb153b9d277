package positions

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// priceKey identifies one close price row.
type priceKey struct {
	asset string
	date  domain.Date
}

// PriceTable is an in-memory (asset, date) -> close price lookup built
// from stored historical prices.
type PriceTable map[priceKey]decimal.Decimal

// NewPriceTable indexes the given price rows for lookup. Later duplicates
// of the same (asset, date) are ignored, matching the store's
// first-write-wins rule.
func NewPriceTable(prices []domain.HistoricalPrice) PriceTable {
	table := make(PriceTable, len(prices))
	for _, p := range prices {
		key := priceKey{asset: p.Asset, date: p.Date}
		if _, ok := table[key]; !ok {
			table[key] = p.Price
		}
	}
	return table
}

// Lookup returns the close price for the asset on the date.
func (t PriceTable) Lookup(asset string, date domain.Date) (decimal.Decimal, bool) {
	price, ok := t[priceKey{asset: asset, date: date}]
	return price, ok
}

// SnapshotEngine produces one HistoricalPosition row per asset per date by
// replaying the FIFO builder at each date's cutoff and joining the result
// with that day's close price.
//
// Each date recomputes the full FIFO walk independently: O(dates*trades).
// For the expected ledger sizes (hundreds to low thousands of trades) the
// recomputation cost is noise, and independent per-date builds keep
// reprocessing of arbitrary ranges trivially correct.
type SnapshotEngine struct {
	builder *Builder
	logger  ports.Logger
}

// NewSnapshotEngine creates a snapshot engine.
func NewSnapshotEngine(builder *Builder, logger ports.Logger) (*SnapshotEngine, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder is required for snapshot engine")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for snapshot engine")
	}
	return &SnapshotEngine{builder: builder, logger: logger}, nil
}

// BuildHistorical computes snapshot rows for every target date, ascending.
// Every asset with any trade history up to a date is represented on that
// date, including fully closed (zero-quantity) positions.
//
// An open position with no close price for its date aborts the run: the
// price series must be backfilled before positions, and a partial or
// guessed snapshot is worse than none. A zero-cost open position likewise
// aborts, since returns would divide by zero.
func (e *SnapshotEngine) BuildHistorical(ctx context.Context, trades []domain.Trade, prices PriceTable, targetDates []domain.Date, universe domain.Universe) ([]domain.HistoricalPosition, error) {
	var snapshots []domain.HistoricalPosition
	for _, date := range targetDates {
		for _, pos := range e.builder.BuildWithClosed(ctx, trades, date, universe) {
			snapshot, err := e.snapshotFor(pos, date, prices)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots, nil
}

func (e *SnapshotEngine) snapshotFor(pos domain.Position, date domain.Date, prices PriceTable) (domain.HistoricalPosition, error) {
	closePrice, ok := prices.Lookup(pos.Asset, date)

	if pos.Quantity.IsZero() {
		// Closed positions still need a deterministic row; a missing
		// price simply stays zero.
		if !ok {
			closePrice = decimal.Zero
		}
		return domain.HistoricalPosition{
			Asset:        pos.Asset,
			Date:         date,
			AveragePrice: decimal.Zero,
			ClosePrice:   closePrice,
			Quantity:     decimal.Zero,
			Cost:         decimal.Zero,
			Value:        decimal.Zero,
			Returns:      decimal.Zero,
		}, nil
	}

	if !ok {
		return domain.HistoricalPosition{}, fmt.Errorf("asset %s on %s: %w", pos.Asset, date, ports.ErrMissingPrice)
	}
	if pos.Cost.IsZero() {
		return domain.HistoricalPosition{}, fmt.Errorf("asset %s on %s: %w", pos.Asset, date, ports.ErrZeroCost)
	}

	value := pos.Quantity.Mul(closePrice)
	returns := value.Sub(pos.Cost).Div(pos.Cost).Mul(hundred)

	return domain.HistoricalPosition{
		Asset:        pos.Asset,
		Date:         date,
		AveragePrice: pos.AveragePrice,
		ClosePrice:   closePrice,
		Quantity:     pos.Quantity,
		Cost:         pos.Cost,
		Value:        value,
		Returns:      returns,
	}, nil
}
