package positions

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioTracker/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(id, asset string, action domain.TradeAction, date, quantity, price string) domain.Trade {
	d, _ := domain.ParseDate(date)
	q := dec(quantity)
	p := dec(price)
	return domain.Trade{
		ID:       id,
		Platform: "test",
		Date:     d,
		Action:   action,
		Asset:    asset,
		Price:    p,
		Quantity: q,
		Cost:     q.Mul(p),
		Value:    q.Mul(p),
	}
}

func testUniverse() domain.Universe {
	return domain.Universe{
		"BTC": {Symbol: "BTC", Class: domain.ClassCrypto, ExchangeSymbol: "BTCUSDT"},
		"VTI": {Symbol: "VTI", Class: domain.ClassStock, ExchangeSymbol: "VTI"},
	}
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(&mockLogger{})
	require.NoError(t, err)
	return b
}

func TestNewBuilder_RequiresLogger(t *testing.T) {
	_, err := NewBuilder(nil)
	assert.Error(t, err)
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	universe := testUniverse()

	tests := []struct {
		name   string
		trades []domain.Trade
		asOf   string
		want   []domain.Position
	}{
		{
			name: "buys accumulate lots",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "BTC", domain.Buy, "2024-01-02", "2", "200"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("166.6666666666666667").Round(4), Quantity: dec("3"), Cost: dec("500")},
			},
		},
		{
			name: "sell consumes oldest lot first",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "BTC", domain.Buy, "2024-01-02", "2", "200"),
				trade("t3", "BTC", domain.Sell, "2024-01-03", "1", "250"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("200"), Quantity: dec("2"), Cost: dec("400")},
			},
		},
		{
			name: "sell spans multiple lots",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "BTC", domain.Buy, "2024-01-02", "1", "300"),
				trade("t3", "BTC", domain.Sell, "2024-01-03", "1.5", "400"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("300"), Quantity: dec("0.5"), Cost: dec("150")},
			},
		},
		{
			name: "fully closed position contributes no row",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "2", "100"),
				trade("t2", "BTC", domain.Sell, "2024-01-02", "2", "150"),
				trade("t3", "VTI", domain.Buy, "2024-01-02", "10", "50"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "VTI", AveragePrice: dec("50"), Quantity: dec("10"), Cost: dec("500")},
			},
		},
		{
			name: "excluded trades are skipped",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				func() domain.Trade {
					tr := trade("t2", "BTC", domain.Buy, "2024-01-02", "5", "200")
					tr.Excluded = true
					return tr
				}(),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("100"), Quantity: dec("1"), Cost: dec("100")},
			},
		},
		{
			name: "untracked assets are skipped",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "DOGE", domain.Buy, "2024-01-01", "1000", "0.1"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("100"), Quantity: dec("1"), Cost: dec("100")},
			},
		},
		{
			name: "trades after the cutoff are ignored",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "BTC", domain.Sell, "2024-02-01", "1", "150"),
			},
			asOf: "2024-01-15",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("100"), Quantity: dec("1"), Cost: dec("100")},
			},
		},
		{
			name: "over-sell drains the queue without going short",
			trades: []domain.Trade{
				trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
				trade("t2", "BTC", domain.Sell, "2024-01-02", "5", "150"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{},
		},
		{
			name: "results ordered by asset",
			trades: []domain.Trade{
				trade("t1", "VTI", domain.Buy, "2024-01-01", "10", "50"),
				trade("t2", "BTC", domain.Buy, "2024-01-02", "1", "100"),
			},
			asOf: "2024-01-31",
			want: []domain.Position{
				{Asset: "BTC", AveragePrice: dec("100"), Quantity: dec("1"), Cost: dec("100")},
				{Asset: "VTI", AveragePrice: dec("50"), Quantity: dec("10"), Cost: dec("500")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t)
			got := b.Build(ctx, tt.trades, mustDate(t, tt.asOf), universe)

			require.Len(t, got, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.Asset, got[i].Asset)
				assert.True(t, want.Quantity.Equal(got[i].Quantity), "quantity: want %s got %s", want.Quantity, got[i].Quantity)
				assert.True(t, want.Cost.Equal(got[i].Cost), "cost: want %s got %s", want.Cost, got[i].Cost)
				assert.True(t, want.AveragePrice.Equal(got[i].AveragePrice.Round(4)),
					"average price: want %s got %s", want.AveragePrice, got[i].AveragePrice)
			}
		})
	}
}

func TestBuilder_Build_CostReconciles(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	trades := []domain.Trade{
		trade("t1", "BTC", domain.Buy, "2024-01-01", "0.5", "40000"),
		trade("t2", "BTC", domain.Buy, "2024-01-05", "0.25", "44000"),
		trade("t3", "BTC", domain.Sell, "2024-01-10", "0.25", "46000"),
		trade("t4", "BTC", domain.Buy, "2024-01-20", "0.5", "48000"),
	}
	got := b.Build(ctx, trades, mustDate(t, "2024-01-31"), testUniverse())

	require.Len(t, got, 1)
	pos := got[0]
	// 0.25@40000 + 0.25@44000 + 0.5@48000
	assert.True(t, pos.Quantity.Equal(dec("1")))
	assert.True(t, pos.Cost.Equal(dec("45000")))
	assert.True(t, pos.AveragePrice.Mul(pos.Quantity).Equal(pos.Cost),
		"average price times quantity must reconcile to cost")
}

func TestBuilder_BuildWithClosed(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	trades := []domain.Trade{
		trade("t1", "BTC", domain.Buy, "2024-01-01", "2", "100"),
		trade("t2", "BTC", domain.Sell, "2024-01-02", "2", "150"),
		trade("t3", "VTI", domain.Buy, "2024-01-02", "10", "50"),
	}
	got := b.BuildWithClosed(ctx, trades, mustDate(t, "2024-01-31"), testUniverse())

	require.Len(t, got, 2)
	assert.Equal(t, "BTC", got[0].Asset)
	assert.True(t, got[0].Quantity.IsZero())
	assert.True(t, got[0].Cost.IsZero())
	assert.True(t, got[0].AveragePrice.IsZero())
	assert.Equal(t, "VTI", got[1].Asset)
	assert.True(t, got[1].Quantity.Equal(dec("10")))
}

func TestBuilder_Build_StableSameDayOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	// Same-day buy then sell in ledger order: the sell must see the buy.
	trades := []domain.Trade{
		trade("t1", "BTC", domain.Buy, "2024-01-01", "1", "100"),
		trade("t2", "BTC", domain.Sell, "2024-01-01", "1", "110"),
	}
	got := b.Build(ctx, trades, mustDate(t, "2024-01-31"), testUniverse())
	assert.Empty(t, got)
}
