package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{Token: "test-token", BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func vti() domain.AssetInfo {
	return domain.AssetInfo{Symbol: "VTI", Class: domain.ClassStock, ExchangeSymbol: "VTI"}
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestClient_CurrentPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "VTI", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Write([]byte(`{"c": 220.55, "h": 221.0, "l": 219.3, "o": 220.0, "pc": 219.8}`))
	})

	got, err := c.CurrentPrices(context.Background(), []domain.AssetInfo{vti()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "220.55", got["VTI"].String())
}

func TestClient_CurrentPrices_MissingPriceField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "symbol not supported"}`))
	})

	_, err := c.CurrentPrices(context.Background(), []domain.AssetInfo{vti()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrMalformedResponse)
}

func TestClient_CurrentPrices_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: ports.ErrRateLimited},
		{name: "bad token", status: http.StatusUnauthorized, wantErr: ports.ErrAuthenticationFailed},
		{name: "forbidden", status: http.StatusForbidden, wantErr: ports.ErrAuthenticationFailed},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ports.ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := c.CurrentPrices(context.Background(), []domain.AssetInfo{vti()})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_DailyCloses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		// 2024-03-01 and 2024-03-04 UTC midnights.
		w.Write([]byte(`{"s": "ok", "c": [220.5, 221.75], "t": [1709251200, 1709510400]}`))
	})

	start, _ := domain.ParseDate("2024-03-01")
	end, _ := domain.ParseDate("2024-03-05")
	got, err := c.DailyCloses(context.Background(), vti(), start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "VTI", got[0].Asset)
	assert.Equal(t, "2024-03-01", got[0].Date.String())
	assert.Equal(t, "220.5", got[0].Price.String())
	assert.Equal(t, "2024-03-04", got[1].Date.String())
	assert.Equal(t, "221.75", got[1].Price.String())
}

func TestClient_DailyCloses_NoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s": "no_data"}`))
	})

	start, _ := domain.ParseDate("2024-03-01")
	end, _ := domain.ParseDate("2024-03-05")
	got, err := c.DailyCloses(context.Background(), vti(), start, end)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_DailyCloses_MismatchedArrays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s": "ok", "c": [220.5], "t": []}`))
	})

	start, _ := domain.ParseDate("2024-03-01")
	end, _ := domain.ParseDate("2024-03-05")
	_, err := c.DailyCloses(context.Background(), vti(), start, end)
	assert.ErrorIs(t, err, ports.ErrMalformedResponse)
}
