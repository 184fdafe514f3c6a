/*
Package sqlite provides the SQLite-backed implementation of the commission
engine's storage interfaces.

PURPOSE:
  Implements commission.Ledger, commission.StockRepository and
  commission.StationDirectory on SQLite. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  stations:               Station master data incl. the raw rate text
  daily_stock_records:    Read-only daily tank readings
  commission_records:     The period ledger, one row per (station, period)

INVARIANT ENFORCEMENT:
  The at-most-one-record-per-(station, period) invariant is carried by a
  UNIQUE index plus an atomic INSERT ... ON CONFLICT DO UPDATE. The upsert
  updates the monetary fields and leaves status, approved_by and paid_by
  untouched, so concurrent recalculations can never produce two rows or
  silently un-approve a record.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fuelgrid/commission-engine/commission"
)

// Store implements the engine's storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Station master data. The rate column is raw text on purpose: it is
	-- the untrusted input the rate resolver repairs.
	CREATE TABLE IF NOT EXISTS stations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dealer TEXT,
		rate TEXT,
		created_at TEXT NOT NULL
	);

	-- Daily tank readings, written by the out-of-scope data-entry flow.
	-- The engine only reads this table.
	CREATE TABLE IF NOT EXISTS daily_stock_records (
		id TEXT PRIMARY KEY,
		station_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		date TEXT NOT NULL,
		opening_stock TEXT NOT NULL,
		closing_stock TEXT NOT NULL,
		received_stock TEXT NOT NULL,
		dispensed_volume TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(station_id, product_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_stock_station_date
		ON daily_stock_records(station_id, date);

	-- The period ledger. The unique index on (station_id, period) is the
	-- storage-level carrier of the one-record-per-key invariant.
	CREATE TABLE IF NOT EXISTS commission_records (
		id TEXT PRIMARY KEY,
		station_id TEXT NOT NULL,
		period TEXT NOT NULL,
		total_volume TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		calculated_at TEXT NOT NULL,
		calculated_by TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		paid_by TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(station_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_commission_period
		ON commission_records(period);
	CREATE INDEX IF NOT EXISTS idx_commission_status
		ON commission_records(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// STATION DIRECTORY (commission.StationDirectory / StationLister)
// =============================================================================

// Station is a station master-data row.
type Station struct {
	ID        commission.StationID
	Name      string
	Dealer    string
	Rate      string
	CreatedAt time.Time
}

// SaveStation inserts or replaces a station row.
func (s *Store) SaveStation(ctx context.Context, st Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (id, name, dealer, rate, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			dealer = excluded.dealer,
			rate = excluded.rate
	`, st.ID, st.Name, nullString(st.Dealer), nullString(st.Rate),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save station: %w", err)
	}
	return nil
}

// Rate returns the raw rate text for a station. Missing stations return
// commission.ErrStationNotFound; an absent rate returns "".
func (s *Store) Rate(ctx context.Context, stationID commission.StationID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rate sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT rate FROM stations WHERE id = ?`, stationID).Scan(&rate)
	if err == sql.ErrNoRows {
		return "", commission.ErrStationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load station rate: %w", err)
	}
	return rate.String, nil
}

// ListStations returns every station ID, ordered.
func (s *Store) ListStations(ctx context.Context) ([]commission.StationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	defer rows.Close()

	var out []commission.StationID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, commission.StationID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// STOCK REPOSITORY (commission.StockRepository)
// =============================================================================

// SaveStockRecord inserts a daily stock record. Intended for the data-entry
// flow and test seeding; the engine itself never writes stock data.
func (s *Store) SaveStockRecord(ctx context.Context, rec commission.DailyStockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := fmt.Sprintf("dsr-%s-%s-%s", rec.StationID, rec.ProductID, rec.Date.Format("2006-01-02"))
	var dispensed sql.NullString
	if rec.Dispensed.Valid {
		dispensed = sql.NullString{String: rec.Dispensed.Decimal.String(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stock_records
		(id, station_id, product_id, date, opening_stock, closing_stock, received_stock, dispensed_volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.StationID, rec.ProductID, rec.Date.Format("2006-01-02"),
		rec.OpeningStock.String(), rec.ClosingStock.String(), rec.ReceivedStock.String(),
		dispensed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return commission.ErrDuplicateRecord
		}
		return fmt.Errorf("failed to save stock record: %w", err)
	}
	return nil
}

// Query returns stock records for the stations in [from, to], date ascending.
func (s *Store) Query(ctx context.Context, stationIDs []commission.StationID, from, to time.Time) ([]commission.DailyStockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(stationIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(stationIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`
		SELECT station_id, product_id, date, opening_stock, closing_stock, received_stock, dispensed_volume
		FROM daily_stock_records
		WHERE station_id IN (%s) AND date >= ? AND date <= ?
		ORDER BY date ASC, station_id ASC
	`, placeholders)

	args := make([]any, 0, len(stationIDs)+2)
	for _, id := range stationIDs {
		args = append(args, string(id))
	}
	args = append(args, from.Format("2006-01-02"), to.Format("2006-01-02"))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock records: %w", err)
	}
	defer rows.Close()

	var out []commission.DailyStockRecord
	for rows.Next() {
		var (
			rec                               commission.DailyStockRecord
			stationID, productID, date        string
			opening, closing, received        string
			dispensed                         sql.NullString
		)
		if err := rows.Scan(&stationID, &productID, &date, &opening, &closing, &received, &dispensed); err != nil {
			return nil, err
		}
		rec.StationID = commission.StationID(stationID)
		rec.ProductID = productID
		rec.Date, _ = time.Parse("2006-01-02", date)
		rec.OpeningStock = commission.MustDecimal(opening)
		rec.ClosingStock = commission.MustDecimal(closing)
		rec.ReceivedStock = commission.MustDecimal(received)
		if dispensed.Valid {
			rec.Dispensed = decimal.NullDecimal{Decimal: commission.MustDecimal(dispensed.String), Valid: true}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// LEDGER (commission.Ledger)
// =============================================================================

// Upsert atomically inserts or updates the (station, period) row. The
// single ON CONFLICT statement is the concurrency story: no application
// read-then-write, no second row, status fields untouched on update.
func (s *Store) Upsert(ctx context.Context, rec commission.CommissionRecord) (commission.CommissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commission_records
		(id, station_id, period, total_volume, commission_rate, commission_amount,
		 status, calculated_at, calculated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
		ON CONFLICT(station_id, period) DO UPDATE SET
			total_volume = excluded.total_volume,
			commission_rate = excluded.commission_rate,
			commission_amount = excluded.commission_amount,
			calculated_at = excluded.calculated_at,
			calculated_by = excluded.calculated_by,
			updated_at = excluded.updated_at
	`, rec.ID, rec.StationID, rec.Period.String(),
		rec.TotalVolume.String(), rec.CommissionRate.String(), rec.CommissionAmount.String(),
		rec.CalculatedAt.UTC().Format(time.RFC3339), rec.CalculatedBy, now, now)
	if err != nil {
		return commission.CommissionRecord{}, fmt.Errorf("failed to upsert commission record: %w", err)
	}

	return s.getLocked(ctx, rec.StationID, rec.Period)
}

// Get returns the record for a key, or commission.ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, stationID commission.StationID, period commission.Period) (commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, stationID, period)
}

func (s *Store) getLocked(ctx context.Context, stationID commission.StationID, period commission.Period) (commission.CommissionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+`
		WHERE station_id = ? AND period = ?
	`, stationID, period.String())

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return commission.CommissionRecord{}, commission.ErrRecordNotFound
	}
	if err != nil {
		return commission.CommissionRecord{}, fmt.Errorf("failed to load commission record: %w", err)
	}
	return rec, nil
}

// ListByPeriod returns the period's records for the given stations.
func (s *Store) ListByPeriod(ctx context.Context, stationIDs []commission.StationID, period commission.Period) ([]commission.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(stationIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(stationIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(selectRecord+`
		WHERE period = ? AND station_id IN (%s)
		ORDER BY station_id ASC
	`, placeholders)

	args := make([]any, 0, len(stationIDs)+1)
	args = append(args, period.String())
	for _, id := range stationIDs {
		args = append(args, string(id))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list commission records: %w", err)
	}
	defer rows.Close()

	var out []commission.CommissionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetStatus applies a human status transition with an optimistic
// status-guarded update.
func (s *Store) SetStatus(ctx context.Context, stationID commission.StationID, period commission.Period, next commission.Status, actor string) (commission.CommissionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(ctx, stationID, period)
	if err != nil {
		return commission.CommissionRecord{}, err
	}
	if !current.Status.CanTransitionTo(next) {
		return commission.CommissionRecord{}, &commission.TransitionError{
			StationID: stationID,
			Period:    period,
			From:      current.Status,
			To:        next,
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var res sql.Result
	switch next {
	case commission.StatusApproved:
		res, err = s.db.ExecContext(ctx, `
			UPDATE commission_records
			SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
			WHERE station_id = ? AND period = ? AND status = ?
		`, next, actor, now, now, stationID, period.String(), current.Status)
	case commission.StatusPaid:
		res, err = s.db.ExecContext(ctx, `
			UPDATE commission_records
			SET status = ?, paid_by = ?, paid_at = ?, updated_at = ?
			WHERE station_id = ? AND period = ? AND status = ?
		`, next, actor, now, now, stationID, period.String(), current.Status)
	default:
		return commission.CommissionRecord{}, &commission.TransitionError{
			StationID: stationID, Period: period, From: current.Status, To: next,
		}
	}
	if err != nil {
		return commission.CommissionRecord{}, fmt.Errorf("failed to update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The status guard lost a race with another transition.
		return commission.CommissionRecord{}, &commission.TransitionError{
			StationID: stationID, Period: period, From: current.Status, To: next,
		}
	}

	return s.getLocked(ctx, stationID, period)
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

const selectRecord = `
	SELECT id, station_id, period, total_volume, commission_rate, commission_amount,
	       status, calculated_at, calculated_by, approved_by, approved_at, paid_by, paid_at
	FROM commission_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (commission.CommissionRecord, error) {
	var (
		rec                               commission.CommissionRecord
		id, stationID, periodStr          string
		volume, rate, amount              string
		status, calculatedAt, calculatedBy string
		approvedBy, approvedAt            sql.NullString
		paidBy, paidAt                    sql.NullString
	)
	if err := row.Scan(&id, &stationID, &periodStr, &volume, &rate, &amount,
		&status, &calculatedAt, &calculatedBy, &approvedBy, &approvedAt, &paidBy, &paidAt); err != nil {
		return rec, err
	}

	period, err := commission.ParsePeriod(periodStr)
	if err != nil {
		return rec, err
	}

	rec.ID = commission.RecordID(id)
	rec.StationID = commission.StationID(stationID)
	rec.Period = period
	rec.TotalVolume = commission.MustDecimal(volume)
	rec.CommissionRate = commission.MustDecimal(rate)
	rec.CommissionAmount = commission.MustDecimal(amount)
	rec.Status = commission.Status(status)
	rec.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
	rec.CalculatedBy = calculatedBy
	rec.ApprovedBy = approvedBy.String
	rec.ApprovedAt = parseNullTime(approvedAt)
	rec.PaidBy = paidBy.String
	rec.PaidAt = parseNullTime(paidAt)
	return rec, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
