package positions

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

// lot is a single unconsumed buy's remaining quantity and price, tracked
// for FIFO cost-basis matching.
type lot struct {
	quantity decimal.Decimal
	price    decimal.Decimal
}

// Builder computes open positions from the trade ledger using strict FIFO
// lot matching. All arithmetic is exact decimal; cost-basis figures must
// reconcile to the sub-cent level used for reporting.
type Builder struct {
	logger ports.Logger
}

// NewBuilder creates a position builder.
func NewBuilder(logger ports.Logger) (*Builder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for position builder")
	}
	return &Builder{logger: logger}, nil
}

// Build computes the open position per asset from all trades up to and
// including asOf. Excluded trades and trades for assets outside the
// tracked universe are skipped. Assets whose FIFO netting leaves exactly
// zero quantity contribute no row. Results are ordered by asset.
func (b *Builder) Build(ctx context.Context, trades []domain.Trade, asOf domain.Date, universe domain.Universe) []domain.Position {
	return b.positions(ctx, trades, asOf, universe, false)
}

// BuildWithClosed behaves like Build but also emits a zero-quantity row
// for every traded asset whose position is fully closed as of the date.
// The snapshot engine needs closed assets represented so each date's
// snapshot covers the full trade history.
func (b *Builder) BuildWithClosed(ctx context.Context, trades []domain.Trade, asOf domain.Date, universe domain.Universe) []domain.Position {
	return b.positions(ctx, trades, asOf, universe, true)
}

func (b *Builder) positions(ctx context.Context, trades []domain.Trade, asOf domain.Date, universe domain.Universe, includeClosed bool) []domain.Position {
	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	queues := make(map[string][]lot)
	for _, trade := range sorted {
		if trade.Excluded || trade.Date.After(asOf) || !universe.Contains(trade.Asset) {
			continue
		}
		switch trade.Action {
		case domain.Buy:
			queues[trade.Asset] = append(queues[trade.Asset], lot{quantity: trade.Quantity, price: trade.Price})
		case domain.Sell:
			queues[trade.Asset] = b.consume(ctx, queues[trade.Asset], trade)
		default:
			b.logger.Warn(ctx, "Skipping trade with unknown action", map[string]interface{}{
				"tradeID": trade.ID, "action": string(trade.Action)})
		}
	}

	result := make([]domain.Position, 0, len(queues))
	for asset, queue := range queues {
		quantity := decimal.Zero
		cost := decimal.Zero
		for _, l := range queue {
			quantity = quantity.Add(l.quantity)
			cost = cost.Add(l.quantity.Mul(l.price))
		}
		if quantity.IsZero() {
			if !includeClosed {
				continue
			}
			result = append(result, domain.Position{Asset: asset, AveragePrice: decimal.Zero, Quantity: decimal.Zero, Cost: decimal.Zero})
			continue
		}
		result = append(result, domain.Position{
			Asset:        asset,
			AveragePrice: cost.Div(quantity),
			Quantity:     quantity,
			Cost:         cost,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Asset < result[j].Asset })
	return result
}

// consume applies a sell against the open lot queue, oldest lot first.
// A lot fully covered by the sell is removed and the remainder carries
// into the next lot; a lot larger than the remainder is decremented in
// place. A sell exceeding all open lots drains the queue and stops: the
// over-sold remainder is logged, not raised, and no short position is
// recorded. That undercounts shorts but matches the ledger's historical
// behavior; changing it needs a decision from the data owner.
func (b *Builder) consume(ctx context.Context, queue []lot, sale domain.Trade) []lot {
	remaining := sale.Quantity
	for remaining.IsPositive() && len(queue) > 0 {
		head := queue[0]
		if head.quantity.GreaterThan(remaining) {
			queue[0].quantity = head.quantity.Sub(remaining)
			return queue
		}
		remaining = remaining.Sub(head.quantity)
		queue = queue[1:]
	}
	if remaining.IsPositive() {
		b.logger.Warn(ctx, "Sell exceeds cumulative open lots, queue drained", map[string]interface{}{
			"tradeID": sale.ID, "asset": sale.Asset, "unmatchedQuantity": remaining.String()})
	}
	return queue
}
