package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
)

const (
	dailyInterval = "1d"
	klinePageSize = 1000
	platformName  = "binance"
)

// Client implements ports.PriceSource and ports.TradeSource for crypto
// assets using the go-binance spot API. Internal symbols map to exchange
// symbols (BTC -> BTCUSDT) through each asset's configured
// ExchangeSymbol; results are always keyed back to the internal symbol.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey    string
	SecretKey string
	Logger    ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}
	return &Client{
		spot:   binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger: cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1022, -2014, -2015: // Signature/API key problems
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1121: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrSourceUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// CurrentPrices retrieves the current ticker price for each given asset.
func (c *Client) CurrentPrices(ctx context.Context, assets []domain.AssetInfo) (map[string]decimal.Decimal, error) {
	op := "CurrentPrices"
	if len(assets) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	symbols := make([]string, 0, len(assets))
	internalBySymbol := make(map[string]string, len(assets))
	for _, asset := range assets {
		symbols = append(symbols, asset.ExchangeSymbol)
		internalBySymbol[asset.ExchangeSymbol] = asset.Symbol
	}

	tickers, err := c.spot.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	prices := make(map[string]decimal.Decimal, len(assets))
	for _, ticker := range tickers {
		internal, ok := internalBySymbol[ticker.Symbol]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(ticker.Price)
		if err != nil {
			return nil, fmt.Errorf("%s: unparseable price %q for %s: %w", op, ticker.Price, ticker.Symbol, ports.ErrMalformedResponse)
		}
		prices[internal] = price
	}
	for _, asset := range assets {
		if _, ok := prices[asset.Symbol]; !ok {
			return nil, fmt.Errorf("%s: no ticker returned for %s: %w", op, asset.ExchangeSymbol, ports.ErrMalformedResponse)
		}
	}
	return prices, nil
}

// DailyCloses retrieves the daily close price series for one asset over
// [start, end], paging through the klines endpoint.
func (c *Client) DailyCloses(ctx context.Context, asset domain.AssetInfo, start, end domain.Date) ([]domain.HistoricalPrice, error) {
	op := "DailyCloses"
	startMs := start.Time().UnixMilli()
	// Include the whole end day.
	endMs := end.AddDays(1).Time().UnixMilli() - 1

	var prices []domain.HistoricalPrice
	for startMs <= endMs {
		klines, err := c.spot.NewKlinesService().
			Symbol(asset.ExchangeSymbol).
			Interval(dailyInterval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(klinePageSize).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			closePrice, err := decimal.NewFromString(k.Close)
			if err != nil {
				return nil, fmt.Errorf("%s: unparseable close %q for %s: %w", op, k.Close, asset.ExchangeSymbol, ports.ErrMalformedResponse)
			}
			prices = append(prices, domain.HistoricalPrice{
				Asset: asset.Symbol,
				Date:  domain.DateOf(time.UnixMilli(k.OpenTime).UTC()),
				Price: closePrice,
			})
		}
		startMs = klines[len(klines)-1].CloseTime + 1
	}
	c.logger.Debug(ctx, "Fetched daily closes", map[string]interface{}{
		"asset": asset.Symbol, "rows": len(prices), "start": start.String(), "end": end.String()})
	return prices, nil
}

// RecentTrades retrieves filled orders for the given assets executed on
// or after since and converts them to ledger trades.
//
// The orders endpoint does not report commission, so Fees is stored as
// zero; Cost is the quote amount actually exchanged, which is the figure
// position math relies on.
func (c *Client) RecentTrades(ctx context.Context, assets []domain.AssetInfo, since domain.Date) ([]domain.Trade, error) {
	op := "RecentTrades"
	startMs := since.Time().UnixMilli()

	var trades []domain.Trade
	for _, asset := range assets {
		orders, err := c.spot.NewListOrdersService().
			Symbol(asset.ExchangeSymbol).
			StartTime(startMs).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		for _, order := range orders {
			if order.Status != binance.OrderStatusTypeFilled {
				continue
			}
			trade, err := c.toTrade(order, asset)
			if err != nil {
				return nil, fmt.Errorf("%s: order %d: %w", op, order.OrderID, err)
			}
			trades = append(trades, trade)
		}
	}
	c.logger.Debug(ctx, "Fetched recent trades", map[string]interface{}{
		"assets": len(assets), "trades": len(trades), "since": since.String()})
	return trades, nil
}

// toTrade converts a filled spot order into a ledger trade with a
// deterministic id.
func (c *Client) toTrade(order *binance.Order, asset domain.AssetInfo) (domain.Trade, error) {
	quantity, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("unparseable quantity %q: %w", order.ExecutedQuantity, ports.ErrMalformedResponse)
	}
	quote, err := decimal.NewFromString(order.CummulativeQuoteQuantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("unparseable quote quantity %q: %w", order.CummulativeQuoteQuantity, ports.ErrMalformedResponse)
	}
	price, err := decimal.NewFromString(order.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("unparseable price %q: %w", order.Price, ports.ErrMalformedResponse)
	}
	// Market orders report a zero limit price; derive the average fill.
	if price.IsZero() && !quantity.IsZero() {
		price = quote.Div(quantity)
	}

	var action domain.TradeAction
	switch order.Side {
	case binance.SideTypeBuy:
		action = domain.Buy
	case binance.SideTypeSell:
		action = domain.Sell
	default:
		return domain.Trade{}, fmt.Errorf("unknown order side %q: %w", order.Side, ports.ErrMalformedResponse)
	}

	return domain.Trade{
		ID:       fmt.Sprintf("%s-%d", platformName, order.OrderID),
		Platform: platformName,
		Date:     domain.DateOf(time.UnixMilli(order.Time).UTC()),
		Action:   action,
		Asset:    asset.Symbol,
		Price:    price,
		Quantity: quantity,
		Fees:     decimal.Zero,
		Cost:     quote,
		Value:    price.Mul(quantity),
		Excluded: false,
	}, nil
}
