package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	defaultTimeout = 10 * time.Second
)

// Client implements ports.PriceSource for stock and ETF assets using the
// Finnhub REST API. No maintained Go SDK exists, so the two endpoints the
// engine needs (quote, daily candles) are called directly.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     ports.Logger
}

// Config holds configuration specific to the Finnhub client adapter.
type Config struct {
	Token   string
	BaseURL string        // Defaults to the public Finnhub API
	Timeout time.Duration // HTTP timeout; defaults to 10s
	Logger  ports.Logger
}

// New creates a new Finnhub client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Finnhub client")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: Finnhub API token is required", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      cfg.Token,
		logger:     cfg.Logger,
	}, nil
}

// CurrentPrices retrieves the current quote for each given asset.
func (c *Client) CurrentPrices(ctx context.Context, assets []domain.AssetInfo) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(assets))
	for _, asset := range assets {
		price, err := c.quote(ctx, asset.ExchangeSymbol)
		if err != nil {
			return nil, err
		}
		prices[asset.Symbol] = price
	}
	return prices, nil
}

// quote fetches the current price for one exchange symbol. The quote
// payload's "c" field is the current price; its absence is the malformed
// response condition.
func (c *Client) quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", c.token)

	var payload map[string]json.RawMessage
	if err := c.get(ctx, "/quote", params, &payload); err != nil {
		return decimal.Decimal{}, err
	}

	raw, ok := payload["c"]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("quote for %s has no current price field: %w", symbol, ports.ErrMalformedResponse)
	}
	var price json.Number
	if err := json.Unmarshal(raw, &price); err != nil {
		return decimal.Decimal{}, fmt.Errorf("quote for %s has non-numeric price: %w", symbol, ports.ErrMalformedResponse)
	}
	parsed, err := decimal.NewFromString(price.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("quote for %s has unparseable price %q: %w", symbol, price.String(), ports.ErrMalformedResponse)
	}
	return parsed, nil
}

// candleResponse is the daily candle payload; C and T are parallel
// arrays of close prices and unix timestamps.
type candleResponse struct {
	Close  []json.Number `json:"c"`
	Times  []int64       `json:"t"`
	Status string        `json:"s"`
}

// DailyCloses retrieves the daily close series for one asset over [start, end].
func (c *Client) DailyCloses(ctx context.Context, asset domain.AssetInfo, start, end domain.Date) ([]domain.HistoricalPrice, error) {
	params := url.Values{}
	params.Set("symbol", asset.ExchangeSymbol)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", start.Time().Unix()))
	params.Set("to", fmt.Sprintf("%d", end.AddDays(1).Time().Unix()-1))
	params.Set("token", c.token)

	var payload candleResponse
	if err := c.get(ctx, "/stock/candle", params, &payload); err != nil {
		return nil, err
	}
	if payload.Status == "no_data" {
		return nil, nil
	}
	if payload.Status != "ok" || len(payload.Close) != len(payload.Times) {
		return nil, fmt.Errorf("candle response for %s has status %q: %w", asset.ExchangeSymbol, payload.Status, ports.ErrMalformedResponse)
	}

	prices := make([]domain.HistoricalPrice, 0, len(payload.Close))
	for i, num := range payload.Close {
		price, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("candle for %s has unparseable close %q: %w", asset.ExchangeSymbol, num.String(), ports.ErrMalformedResponse)
		}
		prices = append(prices, domain.HistoricalPrice{
			Asset: asset.Symbol,
			Date:  domain.DateOf(time.Unix(payload.Times[i], 0).UTC()),
			Price: price,
		})
	}
	c.logger.Debug(ctx, "Fetched daily closes", map[string]interface{}{
		"asset": asset.Symbol, "rows": len(prices), "start": start.String(), "end": end.String()})
	return prices, nil
}

// get issues a GET request against the Finnhub API and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build Finnhub request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Finnhub request failed: %w: %w", ports.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("Finnhub %s: %w", path, ports.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("Finnhub %s: %w", path, ports.ErrAuthenticationFailed)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("Finnhub %s returned status %d: %w", path, resp.StatusCode, ports.ErrSourceUnavailable)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("Finnhub %s returned undecodable body: %w", path, ports.ErrMalformedResponse)
	}
	return nil
}
