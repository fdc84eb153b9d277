package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolioTracker/internal/domain"
	"portfolioTracker/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ledger store interfaces (trades, historical
// prices, live prices, positions, snapshots) using SQLite.
//
// Decimal columns are stored as TEXT so values round-trip exactly; REAL
// columns would reintroduce the binary floating point drift the engine
// exists to avoid.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/portfolio.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL,
		date TEXT NOT NULL,
		action TEXT NOT NULL,
		asset TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		fees TEXT NOT NULL,
		cost TEXT NOT NULL,
		value TEXT NOT NULL,
		excluded INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS historical_prices (
		asset TEXT NOT NULL,
		date TEXT NOT NULL,
		price TEXT NOT NULL,
		PRIMARY KEY (asset, date)
	);

	CREATE TABLE IF NOT EXISTS live_prices (
		asset TEXT PRIMARY KEY,
		price TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		asset TEXT PRIMARY KEY,
		average_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		cost TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS historical_positions (
		asset TEXT NOT NULL,
		date TEXT NOT NULL,
		average_price TEXT NOT NULL,
		close_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		cost TEXT NOT NULL,
		value TEXT NOT NULL,
		returns TEXT NOT NULL,
		PRIMARY KEY (asset, date)
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trades_asset_date ON trades (asset, date);
	CREATE INDEX IF NOT EXISTS idx_trades_date ON trades (date);
	CREATE INDEX IF NOT EXISTS idx_historical_positions_date ON historical_positions (date);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

// InsertTrades saves trades, ignoring ids that already exist.
func (r *Repository) InsertTrades(ctx context.Context, trades []domain.Trade) (int, error) {
	const query = `
	INSERT OR IGNORE INTO trades (id, platform, date, action, asset, price, quantity, fees, cost, value, excluded)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin trade insert transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, t := range trades {
		result, err := tx.ExecContext(ctx, query,
			t.ID, t.Platform, t.Date.String(), string(t.Action), t.Asset,
			t.Price.String(), t.Quantity.String(), t.Fees.String(), t.Cost.String(), t.Value.String(),
			boolToInt(t.Excluded))
		if err != nil {
			return 0, fmt.Errorf("failed to insert trade %s: %w", t.ID, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected for trade %s: %w", t.ID, err)
		}
		inserted += int(rows)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade insert: %w", err)
	}
	r.logger.Debug(ctx, "Trades inserted", map[string]interface{}{"offered": len(trades), "inserted": inserted})
	return inserted, nil
}

// UpsertTrade inserts or fully replaces a trade under its id.
func (r *Repository) UpsertTrade(ctx context.Context, t domain.Trade) error {
	const query = `
	INSERT OR REPLACE INTO trades (id, platform, date, action, asset, price, quantity, fees, cost, value, excluded)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Platform, t.Date.String(), string(t.Action), t.Asset,
		t.Price.String(), t.Quantity.String(), t.Fees.String(), t.Cost.String(), t.Value.String(),
		boolToInt(t.Excluded))
	if err != nil {
		return fmt.Errorf("failed to upsert trade %s: %w", t.ID, err)
	}
	return nil
}

// SetTradeExcluded toggles the excluded flag for a trade id.
func (r *Repository) SetTradeExcluded(ctx context.Context, id string, excluded bool) error {
	const query = `UPDATE trades SET excluded = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, boolToInt(excluded), id)
	if err != nil {
		return fmt.Errorf("failed to update excluded flag for trade %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("trade %s not found for update: %w", id, ports.ErrNotFound)
	}
	return nil
}

// AllTrades retrieves the full ledger ordered by date then id.
func (r *Repository) AllTrades(ctx context.Context) ([]domain.Trade, error) {
	const query = `
	SELECT id, platform, date, action, asset, price, quantity, fees, cost, value, excluded
	FROM trades ORDER BY date, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query all trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during AllTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// FindTrades retrieves trades matching the given execution key.
func (r *Repository) FindTrades(ctx context.Context, platform, asset string, date domain.Date, action domain.TradeAction) ([]domain.Trade, error) {
	const query = `
	SELECT id, platform, date, action, asset, price, quantity, fees, cost, value, excluded
	FROM trades WHERE platform = ? AND asset = ? AND date = ? AND action = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, platform, asset, date.String(), string(action))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for %s/%s on %s: %w", platform, asset, date, err)
	}
	defer rows.Close()

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// MinTradeDate returns the earliest trade date, zero Date when the ledger is empty.
func (r *Repository) MinTradeDate(ctx context.Context) (domain.Date, error) {
	return r.queryDate(ctx, `SELECT MIN(date) FROM trades`)
}

// MaxTradeDate returns the latest trade date, zero Date when the ledger is empty.
func (r *Repository) MaxTradeDate(ctx context.Context) (domain.Date, error) {
	return r.queryDate(ctx, `SELECT MAX(date) FROM trades`)
}

// --- PriceRepository Implementation ---

// InsertHistoricalPrices bulk-inserts prices, ignoring conflicts on the
// (asset, date) key. First write wins.
func (r *Repository) InsertHistoricalPrices(ctx context.Context, prices []domain.HistoricalPrice) error {
	const query = `INSERT OR IGNORE INTO historical_prices (asset, date, price) VALUES (?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin price insert transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range prices {
		if _, err := tx.ExecContext(ctx, query, p.Asset, p.Date.String(), p.Price.String()); err != nil {
			return fmt.Errorf("failed to insert price for %s on %s: %w", p.Asset, p.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price insert: %w", err)
	}
	r.logger.Debug(ctx, "Historical prices inserted", map[string]interface{}{"rows": len(prices)})
	return nil
}

// HistoricalPricesBetween retrieves all prices with start <= date <= end.
func (r *Repository) HistoricalPricesBetween(ctx context.Context, start, end domain.Date) ([]domain.HistoricalPrice, error) {
	const query = `
	SELECT asset, date, price FROM historical_prices
	WHERE date >= ? AND date <= ? ORDER BY asset, date`

	rows, err := r.db.QueryContext(ctx, query, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query historical prices: %w", err)
	}
	defer rows.Close()

	prices := make([]domain.HistoricalPrice, 0)
	for rows.Next() {
		var (
			p        domain.HistoricalPrice
			dateStr  string
			priceStr string
		)
		if err := rows.Scan(&p.Asset, &dateStr, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan historical price: %w", err)
		}
		if p.Date, err = domain.ParseDate(dateStr); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("invalid stored price %q for %s: %w", priceStr, p.Asset, err)
		}
		prices = append(prices, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}
	return prices, nil
}

// MaxHistoricalPriceDate returns the latest stored price date, zero Date
// when no prices exist.
func (r *Repository) MaxHistoricalPriceDate(ctx context.Context) (domain.Date, error) {
	return r.queryDate(ctx, `SELECT MAX(date) FROM historical_prices`)
}

// --- LivePriceRepository Implementation ---

// ReplaceLivePrices deletes all cached rows and inserts the given mapping
// under a single transaction, so concurrent readers never observe a
// partially replaced cache.
func (r *Repository) ReplaceLivePrices(ctx context.Context, prices map[string]decimal.Decimal, fetchedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin live price transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM live_prices`); err != nil {
		return fmt.Errorf("failed to clear live prices: %w", err)
	}
	const query = `INSERT INTO live_prices (asset, price, fetched_at) VALUES (?, ?, ?)`
	for asset, price := range prices {
		if _, err := tx.ExecContext(ctx, query, asset, price.String(), fetchedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert live price for %s: %w", asset, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit live price replacement: %w", err)
	}
	r.logger.Debug(ctx, "Live price cache replaced", map[string]interface{}{"assets": len(prices)})
	return nil
}

// LivePrices returns the cached mapping and the shared fetch timestamp.
func (r *Repository) LivePrices(ctx context.Context) (map[string]decimal.Decimal, time.Time, error) {
	const query = `SELECT asset, price, fetched_at FROM live_prices`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query live prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	var fetchedAt time.Time
	for rows.Next() {
		var (
			asset    string
			priceStr string
		)
		if err := rows.Scan(&asset, &priceStr, &fetchedAt); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan live price: %w", err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("invalid stored live price %q for %s: %w", priceStr, asset, err)
		}
		prices[asset] = price
	}
	if err = rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating live price rows: %w", err)
	}
	return prices, fetchedAt, nil
}

// --- PositionRepository Implementation ---

// ReplacePositions deletes all position rows and inserts the given set
// under a single transaction.
func (r *Repository) ReplacePositions(ctx context.Context, positions []domain.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin position transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	const query = `INSERT INTO positions (asset, average_price, quantity, cost) VALUES (?, ?, ?, ?)`
	for _, p := range positions {
		if _, err := tx.ExecContext(ctx, query, p.Asset, p.AveragePrice.String(), p.Quantity.String(), p.Cost.String()); err != nil {
			return fmt.Errorf("failed to insert position for %s: %w", p.Asset, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position replacement: %w", err)
	}
	r.logger.Debug(ctx, "Positions replaced", map[string]interface{}{"assets": len(positions)})
	return nil
}

// AllPositions retrieves all current positions ordered by asset.
func (r *Repository) AllPositions(ctx context.Context) ([]domain.Position, error) {
	const query = `SELECT asset, average_price, quantity, cost FROM positions ORDER BY asset`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]domain.Position, 0)
	for rows.Next() {
		var (
			p      domain.Position
			fields [3]string
		)
		if err := rows.Scan(&p.Asset, &fields[0], &fields[1], &fields[2]); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if p.AveragePrice, err = decimal.NewFromString(fields[0]); err != nil {
			return nil, fmt.Errorf("invalid stored average price for %s: %w", p.Asset, err)
		}
		if p.Quantity, err = decimal.NewFromString(fields[1]); err != nil {
			return nil, fmt.Errorf("invalid stored quantity for %s: %w", p.Asset, err)
		}
		if p.Cost, err = decimal.NewFromString(fields[2]); err != nil {
			return nil, fmt.Errorf("invalid stored cost for %s: %w", p.Asset, err)
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// --- SnapshotRepository Implementation ---

// InsertHistoricalPositions bulk-inserts snapshot rows, ignoring
// conflicts on the (asset, date) key so reprocessing a range is
// idempotent.
func (r *Repository) InsertHistoricalPositions(ctx context.Context, snapshots []domain.HistoricalPosition) error {
	const query = `
	INSERT OR IGNORE INTO historical_positions (asset, date, average_price, close_price, quantity, cost, value, returns)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range snapshots {
		_, err := tx.ExecContext(ctx, query,
			s.Asset, s.Date.String(), s.AveragePrice.String(), s.ClosePrice.String(),
			s.Quantity.String(), s.Cost.String(), s.Value.String(), s.Returns.String())
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s on %s: %w", s.Asset, s.Date, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot insert: %w", err)
	}
	r.logger.Debug(ctx, "Historical positions inserted", map[string]interface{}{"rows": len(snapshots)})
	return nil
}

// MaxSnapshotDate returns the latest snapshot date, zero Date when no
// snapshots exist.
func (r *Repository) MaxSnapshotDate(ctx context.Context) (domain.Date, error) {
	return r.queryDate(ctx, `SELECT MAX(date) FROM historical_positions`)
}

// HistoricalPositionsSince retrieves snapshots with date >= start,
// optionally filtered to the given assets.
func (r *Repository) HistoricalPositionsSince(ctx context.Context, start domain.Date, assets []string) ([]domain.HistoricalPosition, error) {
	query := `
	SELECT asset, date, average_price, close_price, quantity, cost, value, returns
	FROM historical_positions`
	var (
		clauses []string
		args    []interface{}
	)
	if !start.IsZero() {
		clauses = append(clauses, "date >= ?")
		args = append(args, start.String())
	}
	if len(assets) > 0 {
		placeholders := strings.Repeat("?,", len(assets))
		clauses = append(clauses, fmt.Sprintf("asset IN (%s)", placeholders[:len(placeholders)-1]))
		for _, asset := range assets {
			args = append(args, asset)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, asset"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical positions: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.HistoricalPosition, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan historical position: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating historical position rows: %w", err)
	}
	return snapshots, nil
}

// --- Helpers ---

// queryDate runs a MIN/MAX date query, mapping NULL to the zero Date.
func (r *Repository) queryDate(ctx context.Context, query string) (domain.Date, error) {
	var dateStr sql.NullString
	if err := r.db.QueryRowContext(ctx, query).Scan(&dateStr); err != nil {
		return domain.Date{}, fmt.Errorf("failed to query date aggregate: %w", err)
	}
	if !dateStr.Valid {
		return domain.Date{}, nil
	}
	return domain.ParseDate(dateStr.String)
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade.
func scanTrade(s scanner) (domain.Trade, error) {
	var (
		t        domain.Trade
		dateStr  string
		action   string
		decimals [5]string
		excluded int
	)
	err := s.Scan(&t.ID, &t.Platform, &dateStr, &action, &t.Asset,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3], &decimals[4], &excluded)
	if err != nil {
		return domain.Trade{}, err
	}
	if t.Date, err = domain.ParseDate(dateStr); err != nil {
		return domain.Trade{}, err
	}
	t.Action = domain.TradeAction(action)
	targets := []*decimal.Decimal{&t.Price, &t.Quantity, &t.Fees, &t.Cost, &t.Value}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(decimals[i]); err != nil {
			return domain.Trade{}, fmt.Errorf("invalid stored decimal %q in trade %s: %w", decimals[i], t.ID, err)
		}
	}
	t.Excluded = excluded != 0
	return t, nil
}

// scanSnapshot scans a row into a domain.HistoricalPosition.
func scanSnapshot(s scanner) (domain.HistoricalPosition, error) {
	var (
		snap     domain.HistoricalPosition
		dateStr  string
		decimals [6]string
	)
	err := s.Scan(&snap.Asset, &dateStr,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3], &decimals[4], &decimals[5])
	if err != nil {
		return domain.HistoricalPosition{}, err
	}
	if snap.Date, err = domain.ParseDate(dateStr); err != nil {
		return domain.HistoricalPosition{}, err
	}
	targets := []*decimal.Decimal{&snap.AveragePrice, &snap.ClosePrice, &snap.Quantity, &snap.Cost, &snap.Value, &snap.Returns}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(decimals[i]); err != nil {
			return domain.HistoricalPosition{}, fmt.Errorf("invalid stored decimal %q in snapshot %s/%s: %w", decimals[i], snap.Asset, snap.Date, err)
		}
	}
	return snap, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
