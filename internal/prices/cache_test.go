package prices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubSource implements ports.PriceSource with canned responses.
type stubSource struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (s *stubSource) CurrentPrices(ctx context.Context, assets []domain.AssetInfo) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.prices, nil
}

func (s *stubSource) DailyCloses(ctx context.Context, asset domain.AssetInfo, start, end domain.Date) ([]domain.HistoricalPrice, error) {
	return nil, fmt.Errorf("not implemented")
}

// stubLiveRepo implements ports.LivePriceRepository in memory.
type stubLiveRepo struct {
	prices       map[string]decimal.Decimal
	fetchedAt    time.Time
	replaceCalls int
}

func (r *stubLiveRepo) ReplaceLivePrices(ctx context.Context, prices map[string]decimal.Decimal, fetchedAt time.Time) error {
	r.replaceCalls++
	r.prices = prices
	r.fetchedAt = fetchedAt
	return nil
}

func (r *stubLiveRepo) LivePrices(ctx context.Context) (map[string]decimal.Decimal, time.Time, error) {
	return r.prices, r.fetchedAt, nil
}

func cacheUniverse() domain.Universe {
	return domain.Universe{
		"BTC": {Symbol: "BTC", Class: domain.ClassCrypto, ExchangeSymbol: "BTCUSDT"},
		"VTI": {Symbol: "VTI", Class: domain.ClassStock, ExchangeSymbol: "VTI"},
	}
}

func newTestCache(t *testing.T, repo *stubLiveRepo, stocks, crypto *stubSource, now time.Time) *Cache {
	t.Helper()
	c, err := NewCache(CacheConfig{
		Repo:     repo,
		Stocks:   stocks,
		Crypto:   crypto,
		Universe: cacheUniverse(),
		TTL:      5 * time.Minute,
		Logger:   &mockLogger{},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return c
}

func TestCache_CurrentPrices_Fresh(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{
		prices:    map[string]decimal.Decimal{"BTC": dec("50000"), "VTI": dec("220")},
		fetchedAt: now.Add(-time.Minute),
	}
	stocks := &stubSource{}
	crypto := &stubSource{}
	c := newTestCache(t, repo, stocks, crypto, now)

	got, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got["BTC"].Equal(dec("50000")))
	assert.Equal(t, 0, stocks.calls, "fresh cache must not hit the sources")
	assert.Equal(t, 0, crypto.calls)
	assert.Equal(t, 0, repo.replaceCalls)
}

func TestCache_CurrentPrices_StaleRefreshes(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{
		prices:    map[string]decimal.Decimal{"BTC": dec("50000"), "VTI": dec("220")},
		fetchedAt: now.Add(-time.Hour),
	}
	stocks := &stubSource{prices: map[string]decimal.Decimal{"VTI": dec("225")}}
	crypto := &stubSource{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	c := newTestCache(t, repo, stocks, crypto, now)

	got, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got["BTC"].Equal(dec("51000")))
	assert.True(t, got["VTI"].Equal(dec("225")))
	assert.Equal(t, 1, stocks.calls)
	assert.Equal(t, 1, crypto.calls)
	assert.Equal(t, 1, repo.replaceCalls)
	assert.Equal(t, now, repo.fetchedAt)
}

func TestCache_CurrentPrices_MalformedFallsBackToStale(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{
		prices:    map[string]decimal.Decimal{"BTC": dec("50000"), "VTI": dec("220")},
		fetchedAt: now.Add(-time.Hour),
	}
	stocks := &stubSource{err: fmt.Errorf("bad payload: %w", ports.ErrMalformedResponse)}
	crypto := &stubSource{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	c := newTestCache(t, repo, stocks, crypto, now)

	got, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got["BTC"].Equal(dec("50000")), "stale values are served on malformed payloads")
	assert.True(t, got["VTI"].Equal(dec("220")))
	assert.Equal(t, 0, repo.replaceCalls, "stale fallback must not overwrite the cache")
}

func TestCache_CurrentPrices_PartialSetIsMalformed(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{
		prices:    map[string]decimal.Decimal{"BTC": dec("50000"), "VTI": dec("220")},
		fetchedAt: now.Add(-time.Hour),
	}
	// Stock source answers with an empty mapping: VTI goes missing.
	stocks := &stubSource{prices: map[string]decimal.Decimal{}}
	crypto := &stubSource{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	c := newTestCache(t, repo, stocks, crypto, now)

	got, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got["VTI"].Equal(dec("220")))
	assert.Equal(t, 0, repo.replaceCalls)
}

func TestCache_CurrentPrices_OtherErrorsPropagate(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{
		prices:    map[string]decimal.Decimal{"BTC": dec("50000"), "VTI": dec("220")},
		fetchedAt: now.Add(-time.Hour),
	}
	stocks := &stubSource{err: ports.ErrRateLimited}
	crypto := &stubSource{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	c := newTestCache(t, repo, stocks, crypto, now)

	_, err := c.CurrentPrices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestCache_CurrentPrices_EmptyCache(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCache(t, &stubLiveRepo{}, &stubSource{}, &stubSource{}, now)

	_, err := c.CurrentPrices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoCachedPrices)
}

func TestCache_Prime(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubLiveRepo{}
	stocks := &stubSource{prices: map[string]decimal.Decimal{"VTI": dec("225")}}
	crypto := &stubSource{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	c := newTestCache(t, repo, stocks, crypto, now)

	require.NoError(t, c.Prime(context.Background()))
	assert.Equal(t, 1, repo.replaceCalls)
	assert.True(t, repo.prices["BTC"].Equal(dec("51000")))

	got, err := c.CurrentPrices(context.Background())
	require.NoError(t, err)
	assert.True(t, got["VTI"].Equal(dec("225")))
}
