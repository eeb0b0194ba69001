/*
Package sqlite provides a SQLite-backed implementation of the ledger's
storage interfaces.

PURPOSE:
  Implements ledger.EventStore and ledger.SnapshotStore using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  billing_events:    Billing transactions (direct + other-dealer sources)
  unloading_events:  Unloading transactions
  month_snapshots:   Month-end closing balances (write-once per key)

VALIDATION:
  Events are validated before insert so a negative quantity or unknown
  grade never reaches the accumulator.

WRITE-ONCE SNAPSHOTS:
  month_snapshots carries a UNIQUE(month, vehicle, grade) constraint;
  violating it maps to ledger.ErrSnapshotExists so the chainer reuses the
  stored value instead of silently recomputing.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers don't
  block, single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/dispatch.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, store)

SEE ALSO:
  - ledger/log.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/dispatch-ledger/ledger"
)

// Store implements ledger.EventStore and ledger.SnapshotStore.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

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

func (s *Store) migrate() error {
	schema := `
	-- Billing events (direct + other-dealer sources)
	CREATE TABLE IF NOT EXISTS billing_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle TEXT NOT NULL,
		event_date TEXT NOT NULL,
		grade TEXT NOT NULL,
		quantity TEXT NOT NULL,
		dealer_code TEXT NOT NULL,
		partition_kind TEXT NOT NULL,
		source TEXT NOT NULL,
		invoice TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_billing_vehicle_date
		ON billing_events(vehicle, event_date);
	CREATE INDEX IF NOT EXISTS idx_billing_date
		ON billing_events(event_date);

	-- Unloading events
	CREATE TABLE IF NOT EXISTS unloading_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle TEXT NOT NULL,
		event_date TEXT NOT NULL,
		grade TEXT NOT NULL,
		quantity TEXT NOT NULL,
		dealer_code TEXT,
		point TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_unloading_vehicle_date
		ON unloading_events(vehicle, event_date);
	CREATE INDEX IF NOT EXISTS idx_unloading_date
		ON unloading_events(event_date);

	-- Month-end closing balances. Write-once: the UNIQUE constraint is the
	-- chain's guarantee that a persisted value is never silently recomputed.
	CREATE TABLE IF NOT EXISTS month_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		month TEXT NOT NULL,
		vehicle TEXT NOT NULL,
		grade TEXT NOT NULL,
		closing TEXT NOT NULL,
		dealer_code TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(month, vehicle, grade)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_month
		ON month_snapshots(month);
	CREATE INDEX IF NOT EXISTS idx_snapshots_vehicle_grade
		ON month_snapshots(vehicle, grade, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (ledger.EventStore interface)
// =============================================================================

func (s *Store) RecordBilling(ctx context.Context, ev ledger.BillingEvent) (ledger.EventID, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_events (vehicle, event_date, grade, quantity, dealer_code, partition_kind, source, invoice)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Vehicle),
		ev.Date.String(),
		string(ev.Grade),
		ev.Quantity.String(),
		string(ev.DealerCode),
		string(ev.Partition),
		string(ev.Source),
		nullString(ev.Invoice),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record billing: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return billingID(rowID), nil
}

func (s *Store) RecordUnloading(ctx context.Context, ev ledger.UnloadingEvent) (ledger.EventID, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO unloading_events (vehicle, event_date, grade, quantity, dealer_code, point)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Vehicle),
		ev.Date.String(),
		string(ev.Grade),
		ev.Quantity.String(),
		nullString(string(ev.DealerCode)),
		nullString(ev.Point),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record unloading: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return unloadingID(rowID), nil
}

func (s *Store) LookupEvent(ctx context.Context, id ledger.EventID) (ledger.Mutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupEventLocked(ctx, id)
}

func (s *Store) DeleteEvent(ctx context.Context, id ledger.EventID) (ledger.Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.lookupEventLocked(ctx, id)
	if err != nil {
		return ledger.Mutation{}, err
	}

	table, rowID, err := splitEventID(id)
	if err != nil {
		return ledger.Mutation{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), rowID); err != nil {
		return ledger.Mutation{}, fmt.Errorf("failed to delete event: %w", err)
	}
	return m, nil
}

func (s *Store) lookupEventLocked(ctx context.Context, id ledger.EventID) (ledger.Mutation, error) {
	table, rowID, err := splitEventID(id)
	if err != nil {
		return ledger.Mutation{}, err
	}

	var vehicle, date, grade string
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT vehicle, event_date, grade FROM %s WHERE id = ?`, table), rowID)
	if err := row.Scan(&vehicle, &date, &grade); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Mutation{}, ledger.ErrEventNotFound
		}
		return ledger.Mutation{}, err
	}

	day, err := ledger.ParseDay(date)
	if err != nil {
		return ledger.Mutation{}, err
	}
	return ledger.Mutation{
		Vehicle: ledger.Vehicle(vehicle),
		Grade:   ledger.Grade(grade),
		Date:    day,
	}, nil
}

func (s *Store) BillingsInRange(ctx context.Context, vehicle ledger.Vehicle, from, to ledger.Day) ([]ledger.BillingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle, event_date, grade, quantity, dealer_code, partition_kind, source, COALESCE(invoice, '')
		FROM billing_events
		WHERE vehicle = ? AND event_date >= ? AND event_date <= ?
		ORDER BY event_date ASC, id ASC`,
		string(vehicle), from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.BillingEvent
	for rows.Next() {
		var (
			rowID                  int64
			veh, date, grade, qty  string
			dealer, part, src, inv string
		)
		if err := rows.Scan(&rowID, &veh, &date, &grade, &qty, &dealer, &part, &src, &inv); err != nil {
			return nil, err
		}
		day, err := ledger.ParseDay(date)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.BillingEvent{
			ID:         billingID(rowID),
			Vehicle:    ledger.Vehicle(veh),
			Date:       day,
			Grade:      ledger.Grade(grade),
			Quantity:   ledger.MustParseQty(qty),
			DealerCode: ledger.DealerCode(dealer),
			Partition:  ledger.Partition(part),
			Source:     ledger.Source(src),
			Invoice:    inv,
		})
	}
	return out, rows.Err()
}

func (s *Store) UnloadingsInRange(ctx context.Context, vehicle ledger.Vehicle, from, to ledger.Day) ([]ledger.UnloadingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle, event_date, grade, quantity, COALESCE(dealer_code, ''), COALESCE(point, '')
		FROM unloading_events
		WHERE vehicle = ? AND event_date >= ? AND event_date <= ?
		ORDER BY event_date ASC, id ASC`,
		string(vehicle), from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.UnloadingEvent
	for rows.Next() {
		var (
			rowID                 int64
			veh, date, grade, qty string
			dealer, point         string
		)
		if err := rows.Scan(&rowID, &veh, &date, &grade, &qty, &dealer, &point); err != nil {
			return nil, err
		}
		day, err := ledger.ParseDay(date)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.UnloadingEvent{
			ID:         unloadingID(rowID),
			Vehicle:    ledger.Vehicle(veh),
			Date:       day,
			Grade:      ledger.Grade(grade),
			Quantity:   ledger.MustParseQty(qty),
			DealerCode: ledger.DealerCode(dealer),
			Point:      point,
		})
	}
	return out, rows.Err()
}

func (s *Store) VehiclesInRange(ctx context.Context, from, to ledger.Day) ([]ledger.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT vehicle FROM (
			SELECT vehicle, event_date FROM billing_events
			UNION ALL
			SELECT vehicle, event_date FROM unloading_events
		)
		WHERE event_date >= ? AND event_date <= ?
		ORDER BY vehicle`,
		from.String(), to.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Vehicle
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, ledger.Vehicle(v))
	}
	return out, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE (ledger.SnapshotStore interface)
// =============================================================================

func (s *Store) Save(ctx context.Context, snap ledger.MonthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO month_snapshots (month, vehicle, grade, closing, dealer_code)
		VALUES (?, ?, ?, ?, ?)`,
		snap.Month.String(),
		string(snap.Vehicle),
		string(snap.Grade),
		snap.Closing.String(),
		nullString(string(snap.DealerCode)),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrSnapshotExists
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, vehicle ledger.Vehicle, grade ledger.Grade, month ledger.Month) (*ledger.MonthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT closing, COALESCE(dealer_code, '')
		FROM month_snapshots
		WHERE month = ? AND vehicle = ? AND grade = ?`,
		month.String(), string(vehicle), string(grade),
	)

	var closing, dealer string
	if err := row.Scan(&closing, &dealer); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ledger.MonthSnapshot{
		Month:      month,
		Vehicle:    vehicle,
		Grade:      grade,
		Closing:    ledger.MustParseQty(closing),
		DealerCode: ledger.DealerCode(dealer),
	}, nil
}

func (s *Store) List(ctx context.Context, month ledger.Month) ([]ledger.MonthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT vehicle, grade, closing, COALESCE(dealer_code, '')
		FROM month_snapshots
		WHERE month = ?
		ORDER BY vehicle, grade`,
		month.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.MonthSnapshot
	for rows.Next() {
		var vehicle, grade, closing, dealer string
		if err := rows.Scan(&vehicle, &grade, &closing, &dealer); err != nil {
			return nil, err
		}
		out = append(out, ledger.MonthSnapshot{
			Month:      month,
			Vehicle:    ledger.Vehicle(vehicle),
			Grade:      ledger.Grade(grade),
			Closing:    ledger.MustParseQty(closing),
			DealerCode: ledger.DealerCode(dealer),
		})
	}
	return out, rows.Err()
}

func (s *Store) EpochMonth(ctx context.Context) (*ledger.Month, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT MIN(month) FROM month_snapshots`)
	var earliest sql.NullString
	if err := row.Scan(&earliest); err != nil {
		return nil, err
	}
	if !earliest.Valid || earliest.String == "" {
		return nil, nil
	}
	month, err := ledger.ParseMonth(earliest.String)
	if err != nil {
		return nil, err
	}
	return &month, nil
}

func (s *Store) DeleteFrom(ctx context.Context, vehicle ledger.Vehicle, grade ledger.Grade, from ledger.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// "YYYY-MM" strings compare in calendar order.
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM month_snapshots
		WHERE vehicle = ? AND grade = ? AND month >= ?`,
		string(vehicle), string(grade), from.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate snapshots: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Event IDs are prefixed with the table they live in so a single DeleteEvent
// endpoint can address both kinds.
func billingID(rowID int64) ledger.EventID {
	return ledger.EventID(fmt.Sprintf("billing-%d", rowID))
}

func unloadingID(rowID int64) ledger.EventID {
	return ledger.EventID(fmt.Sprintf("unloading-%d", rowID))
}

func splitEventID(id ledger.EventID) (table string, rowID int64, err error) {
	s := string(id)
	switch {
	case strings.HasPrefix(s, "billing-"):
		table = "billing_events"
		s = strings.TrimPrefix(s, "billing-")
	case strings.HasPrefix(s, "unloading-"):
		table = "unloading_events"
		s = strings.TrimPrefix(s, "unloading-")
	default:
		return "", 0, ledger.ErrEventNotFound
	}
	if _, err := fmt.Sscanf(s, "%d", &rowID); err != nil {
		return "", 0, ledger.ErrEventNotFound
	}
	return table, rowID, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
