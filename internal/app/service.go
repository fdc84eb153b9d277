package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"
	"portfolioTracker/internal/positions"
	"portfolioTracker/internal/prices"
)

const (
	// Daily price and snapshot backfill, 05:00 server time.
	backfillCron = "0 5 * * *"
	// Trade sync and position refresh every ten minutes.
	syncCron = "*/10 * * * *"
)

// duplicateTolerance is the relative difference under which a same-day
// trade with matching (platform, asset, action) is treated as a
// re-fetched duplicate rather than a genuinely different execution.
// Best-effort heuristic, not a guaranteed-correct dedup: two real trades
// with near-identical size and price on the same day will be dropped.
var duplicateTolerance = decimal.NewFromFloat(0.0001) // 0.01%

var hundred = decimal.NewFromInt(100)

// Deps holds the dependencies for the portfolio service.
type Deps struct {
	Logger    ports.Logger
	TradeRepo ports.TradeRepository
	PriceRepo ports.PriceRepository
	PosRepo   ports.PositionRepository
	SnapRepo  ports.SnapshotRepository
	Stocks    ports.PriceSource
	Crypto    ports.PriceSource
	Broker    ports.TradeSource
	Cache     *prices.Cache
	Universe  domain.Universe
	Now       func() time.Time // Injectable clock for tests; defaults to time.Now
}

// Service orchestrates the engine's batch jobs (trade sync, price
// backfill, position rebuild, snapshot backfill) and serves the derived
// read models. It owns no computation itself; the position builder and
// snapshot engine do the work.
type Service struct {
	logger    ports.Logger
	tradeRepo ports.TradeRepository
	priceRepo ports.PriceRepository
	posRepo   ports.PositionRepository
	snapRepo  ports.SnapshotRepository
	stocks    ports.PriceSource
	crypto    ports.PriceSource
	broker    ports.TradeSource
	cache     *prices.Cache
	builder   *positions.Builder
	engine    *positions.SnapshotEngine
	universe  domain.Universe
	now       func() time.Time
}

// NewService creates the portfolio service.
func NewService(deps Deps) (*Service, error) {
	if deps.Logger == nil || deps.TradeRepo == nil || deps.PriceRepo == nil ||
		deps.PosRepo == nil || deps.SnapRepo == nil || deps.Stocks == nil ||
		deps.Crypto == nil || deps.Broker == nil || deps.Cache == nil {
		return nil, fmt.Errorf("missing required dependencies for portfolio service")
	}
	if len(deps.Universe) == 0 {
		return nil, fmt.Errorf("portfolio service requires a non-empty asset universe")
	}

	builder, err := positions.NewBuilder(deps.Logger)
	if err != nil {
		return nil, err
	}
	engine, err := positions.NewSnapshotEngine(builder, deps.Logger)
	if err != nil {
		return nil, err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		logger:    deps.Logger,
		tradeRepo: deps.TradeRepo,
		priceRepo: deps.PriceRepo,
		posRepo:   deps.PosRepo,
		snapRepo:  deps.SnapRepo,
		stocks:    deps.Stocks,
		crypto:    deps.Crypto,
		broker:    deps.Broker,
		cache:     deps.Cache,
		builder:   builder,
		engine:    engine,
		universe:  deps.Universe,
		now:       now,
	}, nil
}

// SyncTrades fetches recent broker executions and appends the ones not
// already in the ledger.
func (s *Service) SyncTrades(ctx context.Context) error {
	since, err := s.tradeRepo.MaxTradeDate(ctx)
	if err != nil {
		return err
	}
	if since.IsZero() {
		return ports.ErrNoTrades
	}

	cryptoAssets := s.universe.ByClass(domain.ClassCrypto)
	if len(cryptoAssets) == 0 {
		s.logger.Debug(ctx, "No crypto assets tracked, skipping trade sync")
		return nil
	}

	// Overlap with the last stored day so same-day executions after the
	// previous sync are not missed; dedup handles the refetched ones.
	candidates, err := s.broker.RecentTrades(ctx, cryptoAssets, since)
	if err != nil {
		return fmt.Errorf("failed to fetch recent trades: %w", err)
	}

	fresh := make([]domain.Trade, 0, len(candidates))
	for _, candidate := range candidates {
		existing, err := s.tradeRepo.FindTrades(ctx, candidate.Platform, candidate.Asset, candidate.Date, candidate.Action)
		if err != nil {
			return err
		}
		if s.isDuplicate(ctx, candidate, existing) {
			continue
		}
		fresh = append(fresh, candidate)
	}

	inserted, err := s.tradeRepo.InsertTrades(ctx, fresh)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Trade sync complete", map[string]interface{}{
		"fetched": len(candidates), "inserted": inserted})
	return nil
}

// isDuplicate reports whether candidate matches one of the existing
// same-day trades closely enough to be a re-fetched duplicate.
func (s *Service) isDuplicate(ctx context.Context, candidate domain.Trade, existing []domain.Trade) bool {
	for _, have := range existing {
		if have.ID == candidate.ID {
			return true
		}
		if withinTolerance(candidate.Price, have.Price) && withinTolerance(candidate.Quantity, have.Quantity) {
			s.logger.Debug(ctx, "Skipping near-identical same-day trade as duplicate", map[string]interface{}{
				"candidateID": candidate.ID, "existingID": have.ID, "asset": candidate.Asset})
			return true
		}
	}
	return false
}

// withinTolerance reports whether a and b differ by at most the relative
// duplicate tolerance of b.
func withinTolerance(a, b decimal.Decimal) bool {
	if b.IsZero() {
		return a.IsZero()
	}
	return a.Sub(b).Abs().Div(b.Abs()).LessThanOrEqual(duplicateTolerance)
}

// RefreshPositions recomputes the current open positions from the full
// ledger and replaces the positions table.
func (s *Service) RefreshPositions(ctx context.Context) error {
	trades, err := s.tradeRepo.AllTrades(ctx)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return ports.ErrNoTrades
	}
	asOf, err := s.tradeRepo.MaxTradeDate(ctx)
	if err != nil {
		return err
	}

	built := s.builder.Build(ctx, trades, asOf, s.universe)
	if err := s.posRepo.ReplacePositions(ctx, built); err != nil {
		return err
	}
	s.logger.Info(ctx, "Positions refreshed", map[string]interface{}{
		"asOf": asOf.String(), "assets": len(built)})
	return nil
}

// FillHistoricalPrices extends the stored daily close series from the
// last stored date up to yesterday (today's close does not exist yet),
// gap-filling non-trading days by carrying the last close forward.
func (s *Service) FillHistoricalPrices(ctx context.Context) error {
	last, err := s.priceRepo.MaxHistoricalPriceDate(ctx)
	if err != nil {
		return err
	}
	if last.IsZero() {
		return ports.ErrNoPrices
	}

	end := domain.DateOf(s.now()).AddDays(-1)
	if !last.Before(end) {
		s.logger.Debug(ctx, "Historical prices already up to date", map[string]interface{}{"last": last.String()})
		return nil
	}
	s.logger.Info(ctx, "Filling historical prices", map[string]interface{}{
		"from": last.AddDays(1).String(), "to": end.String()})

	// The last stored day anchors the forward fill so weekends and
	// holidays at the front of the window inherit the prior close
	// instead of failing as a leading gap.
	points, err := s.priceRepo.HistoricalPricesBetween(ctx, last, last)
	if err != nil {
		return err
	}
	for symbol, asset := range s.universe {
		source := s.sourceFor(asset.Class)
		series, err := source.DailyCloses(ctx, asset, last.AddDays(1), end)
		if err != nil {
			return fmt.Errorf("failed to fetch closes for %s: %w", symbol, err)
		}
		points = append(points, series...)
	}

	filled, err := prices.ForwardFill(points, end)
	if err != nil {
		return err
	}
	if err := s.priceRepo.InsertHistoricalPrices(ctx, filled); err != nil {
		return err
	}
	s.logger.Info(ctx, "Historical prices filled", map[string]interface{}{"rows": len(filled)})
	return nil
}

// FillHistoricalPositions appends one snapshot per asset per day for
// every day after the last stored snapshot, up to the latest date with
// price data.
func (s *Service) FillHistoricalPositions(ctx context.Context) error {
	lastSnap, err := s.snapRepo.MaxSnapshotDate(ctx)
	if err != nil {
		return err
	}
	if lastSnap.IsZero() {
		firstTrade, err := s.tradeRepo.MinTradeDate(ctx)
		if err != nil {
			return err
		}
		if firstTrade.IsZero() {
			return ports.ErrNoTrades
		}
		// No snapshots yet: the backfill starts on the first trade day.
		lastSnap = firstTrade.AddDays(-1)
	}
	lastPrice, err := s.priceRepo.MaxHistoricalPriceDate(ctx)
	if err != nil {
		return err
	}
	if lastPrice.IsZero() {
		return ports.ErrNoPrices
	}

	targetDates := domain.DatesBetween(lastSnap.AddDays(1), lastPrice)
	if len(targetDates) == 0 {
		s.logger.Debug(ctx, "Historical positions already up to date", map[string]interface{}{"last": lastSnap.String()})
		return nil
	}
	s.logger.Info(ctx, "Filling historical positions", map[string]interface{}{
		"from": targetDates[0].String(), "to": targetDates[len(targetDates)-1].String()})

	trades, err := s.tradeRepo.AllTrades(ctx)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return ports.ErrNoTrades
	}
	priceRows, err := s.priceRepo.HistoricalPricesBetween(ctx, targetDates[0], lastPrice)
	if err != nil {
		return err
	}

	snapshots, err := s.engine.BuildHistorical(ctx, trades, positions.NewPriceTable(priceRows), targetDates, s.universe)
	if err != nil {
		return err
	}
	if err := s.snapRepo.InsertHistoricalPositions(ctx, snapshots); err != nil {
		return err
	}
	s.logger.Info(ctx, "Historical positions filled", map[string]interface{}{"rows": len(snapshots)})
	return nil
}

func (s *Service) sourceFor(class domain.AssetClass) ports.PriceSource {
	if class == domain.ClassCrypto {
		return s.crypto
	}
	return s.stocks
}

// --- Read models ---

// EnrichedPosition is a current position joined with live pricing,
// classification metadata and allocation figures.
type EnrichedPosition struct {
	Asset             string          `json:"asset"`
	Market            string          `json:"market"`
	Segment           string          `json:"segment"`
	Description       string          `json:"description"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	AveragePrice      decimal.Decimal `json:"average_price"`
	Quantity          decimal.Decimal `json:"quantity"`
	Cost              decimal.Decimal `json:"cost"`
	Value             decimal.Decimal `json:"value"`
	Returns           decimal.Decimal `json:"returns"`
	CurrentAllocation decimal.Decimal `json:"current_allocation"`
	TargetAllocation  decimal.Decimal `json:"target_allocation"`
}

// EnrichedPositions returns the current positions enriched with the best
// available live price, value, returns and allocation share.
func (s *Service) EnrichedPositions(ctx context.Context) ([]EnrichedPosition, error) {
	current, err := s.posRepo.AllPositions(ctx)
	if err != nil {
		return nil, err
	}
	live, err := s.cache.CurrentPrices(ctx)
	if err != nil {
		return nil, err
	}

	enriched := make([]EnrichedPosition, 0, len(current))
	totalValue := decimal.Zero
	for _, pos := range current {
		price, ok := live[pos.Asset]
		if !ok {
			return nil, fmt.Errorf("no live price for held asset %s: %w", pos.Asset, ports.ErrMissingPrice)
		}
		if pos.Cost.IsZero() {
			return nil, fmt.Errorf("held asset %s: %w", pos.Asset, ports.ErrZeroCost)
		}
		info := s.universe[pos.Asset]
		value := price.Mul(pos.Quantity)
		enriched = append(enriched, EnrichedPosition{
			Asset:            pos.Asset,
			Market:           info.Market,
			Segment:          info.Segment,
			Description:      info.Description,
			CurrentPrice:     price,
			AveragePrice:     pos.AveragePrice,
			Quantity:         pos.Quantity,
			Cost:             pos.Cost,
			Value:            value,
			Returns:          value.Sub(pos.Cost).Div(pos.Cost).Mul(hundred),
			TargetAllocation: info.TargetAllocation,
		})
		totalValue = totalValue.Add(value)
	}

	if !totalValue.IsZero() {
		for i := range enriched {
			enriched[i].CurrentAllocation = enriched[i].Value.Div(totalValue).Mul(hundred)
		}
	}
	return enriched, nil
}

// Allocation is the current versus target portfolio share for one asset.
type Allocation struct {
	Asset             string          `json:"asset"`
	CurrentAllocation decimal.Decimal `json:"current_allocation"`
	TargetAllocation  decimal.Decimal `json:"target_allocation"`
}

// Allocations returns the current and target allocation per held asset.
func (s *Service) Allocations(ctx context.Context) ([]Allocation, error) {
	enriched, err := s.EnrichedPositions(ctx)
	if err != nil {
		return nil, err
	}
	allocations := make([]Allocation, 0, len(enriched))
	for _, pos := range enriched {
		allocations = append(allocations, Allocation{
			Asset:             pos.Asset,
			CurrentAllocation: pos.CurrentAllocation,
			TargetAllocation:  pos.TargetAllocation,
		})
	}
	return allocations, nil
}

// PerformancePoint is the portfolio-wide cost, value and return for one
// historical date.
type PerformancePoint struct {
	Date    domain.Date     `json:"date"`
	Cost    decimal.Decimal `json:"cost"`
	Value   decimal.Decimal `json:"value"`
	Returns decimal.Decimal `json:"returns"`
}

// ValidDurations are the accepted performance lookback windows.
var ValidDurations = []string{"1W", "1M", "3M", "6M", "1Y", "YTD", "MAX"}

// durationStart translates a duration keyword into the first snapshot
// date to include; the zero Date means no lower bound. A two-day buffer
// keeps the first point of rolling windows populated across weekends.
func (s *Service) durationStart(duration string) (domain.Date, error) {
	today := domain.DateOf(s.now())
	switch duration {
	case "1W":
		return today.AddDays(-7 - 2), nil
	case "1M":
		return today.AddDays(-30 - 2), nil
	case "3M":
		return today.AddDays(-91 - 2), nil
	case "6M":
		return today.AddDays(-182 - 2), nil
	case "1Y":
		return today.AddDays(-365 - 2), nil
	case "YTD":
		return domain.NewDate(today.Year, time.January, 1), nil
	case "MAX":
		return domain.Date{}, nil
	default:
		return domain.Date{}, fmt.Errorf("invalid duration %q: %w", duration, ports.ErrInvalidRequest)
	}
}

// Performance aggregates the stored snapshots into one portfolio-wide
// cost/value/returns point per date, optionally restricted to a subset
// of assets.
func (s *Service) Performance(ctx context.Context, duration string, assets []string) ([]PerformancePoint, error) {
	start, err := s.durationStart(duration)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.snapRepo.HistoricalPositionsSince(ctx, start, assets)
	if err != nil {
		return nil, err
	}

	totals := make(map[domain.Date]*PerformancePoint)
	var dates []domain.Date
	for _, snap := range snapshots {
		point, ok := totals[snap.Date]
		if !ok {
			point = &PerformancePoint{Date: snap.Date, Cost: decimal.Zero, Value: decimal.Zero}
			totals[snap.Date] = point
			dates = append(dates, snap.Date)
		}
		point.Cost = point.Cost.Add(snap.Cost)
		point.Value = point.Value.Add(snap.Value)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	result := make([]PerformancePoint, 0, len(dates))
	for _, date := range dates {
		point := totals[date]
		if !point.Cost.IsZero() {
			point.Returns = point.Value.Sub(point.Cost).Div(point.Cost).Mul(hundred)
		}
		result = append(result, *point)
	}
	return result, nil
}

// --- Scheduler ---

// Run executes the scheduled jobs until the context is canceled or a
// shutdown signal arrives: daily price and snapshot backfill at 05:00,
// trade sync and position refresh every ten minutes. Job failures are
// logged and retried on the next due tick rather than stopping the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting portfolio scheduler")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Portfolio scheduler stopped")
			return nil
		case tick := <-ticker.C:
			if s.isDue(ctx, gron, backfillCron, tick) {
				s.runJob(ctx, "FillHistoricalPrices", s.FillHistoricalPrices)
				s.runJob(ctx, "FillHistoricalPositions", s.FillHistoricalPositions)
			}
			if s.isDue(ctx, gron, syncCron, tick) {
				s.runJob(ctx, "SyncTrades", s.SyncTrades)
				s.runJob(ctx, "RefreshPositions", s.RefreshPositions)
			}
		}
	}
}

func (s *Service) isDue(ctx context.Context, gron *gronx.Gronx, expr string, ref time.Time) bool {
	due, err := gron.IsDue(expr, ref)
	if err != nil {
		s.logger.Error(ctx, err, "Invalid cron expression", map[string]interface{}{"expr": expr})
		return false
	}
	return due
}

func (s *Service) runJob(ctx context.Context, name string, job func(context.Context) error) {
	if err := job(ctx); err != nil {
		s.logger.Error(ctx, err, "Scheduled job failed", map[string]interface{}{"job": name})
		return
	}
	s.logger.Debug(ctx, "Scheduled job finished", map[string]interface{}{"job": name})
}
