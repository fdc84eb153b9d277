package prices

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

// ForwardFill converts a sparse per-asset daily price series into a dense
// one. For each asset the output covers every calendar day from that
// asset's earliest known date through end, carrying the last known price
// forward over gaps (weekends, holidays). Assets with no points at all
// contribute nothing; no price is ever fabricated.
//
// The result is ordered by asset then date and is safe to upsert with a
// conflict-ignoring insert: re-running produces the identical rows.
func ForwardFill(points []domain.HistoricalPrice, end domain.Date) ([]domain.HistoricalPrice, error) {
	byAsset := make(map[string][]domain.HistoricalPrice)
	for _, p := range points {
		byAsset[p.Asset] = append(byAsset[p.Asset], p)
	}

	assets := make([]string, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var filled []domain.HistoricalPrice
	for _, asset := range assets {
		series, err := fillAsset(asset, byAsset[asset], end)
		if err != nil {
			return nil, err
		}
		filled = append(filled, series...)
	}
	return filled, nil
}

func fillAsset(asset string, points []domain.HistoricalPrice, end domain.Date) ([]domain.HistoricalPrice, error) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	known := make(map[domain.Date]decimal.Decimal, len(points))
	for _, p := range points {
		// First write wins, matching the store's conflict rule.
		if _, ok := known[p.Date]; !ok {
			known[p.Date] = p.Price
		}
	}

	var (
		filled   []domain.HistoricalPrice
		last     decimal.Decimal
		haveLast bool
	)
	for _, date := range domain.DatesBetween(points[0].Date, end) {
		if price, ok := known[date]; ok {
			last = price
			haveLast = true
		}
		if !haveLast {
			// Cannot happen while the range starts at the first known
			// point, but a silent zero here would poison every
			// downstream valuation.
			return nil, fmt.Errorf("asset %s has no known price on or before %s: %w", asset, date, ports.ErrMissingPrice)
		}
		filled = append(filled, domain.HistoricalPrice{Asset: asset, Date: date, Price: last})
	}
	return filled, nil
}
