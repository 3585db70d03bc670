// Package sqlite implements the alert log store on SQLite with WAL mode
// and a single-writer connection pool.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"stallwatch/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// StoreConfig configures the SQLite alert store.
type StoreConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/alerts.db"
}

// Store is the SQLite-backed model.AlertStore.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and creates the schema.
func New(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer keeps lock contention out of the alert fire path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT    PRIMARY KEY,
			user_id         TEXT    NOT NULL,
			token           TEXT    NOT NULL,
			name            TEXT    NOT NULL,
			exchange        TEXT    NOT NULL,
			alert_type      TEXT    NOT NULL,
			baseline_price  INTEGER NOT NULL,
			current_price   INTEGER NOT NULL,
			price_min       INTEGER NOT NULL,
			price_max       INTEGER NOT NULL,
			deviation       INTEGER NOT NULL,
			duration_sec    INTEGER NOT NULL,
			market_session  TEXT,
			market_type     TEXT,
			acknowledged    INTEGER NOT NULL DEFAULT 0,
			acknowledged_at INTEGER,
			created_at      INTEGER NOT NULL,
			payload         TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_user_created
			ON alerts (user_id, created_at DESC);
	`)
	return err
}

// Insert writes one fired alert record.
func (s *Store) Insert(ctx context.Context, rec *model.AlertRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, token, name, exchange, alert_type,
			baseline_price, current_price, price_min, price_max, deviation,
			duration_sec, market_session, market_type, acknowledged,
			acknowledged_at, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.UserID, rec.Token, rec.Name, rec.Exchange, rec.Type,
		rec.BaselinePrice, rec.CurrentPrice, rec.PriceMin, rec.PriceMax,
		rec.Deviation, rec.DurationSec, rec.MarketSession, rec.MarketType,
		boolToInt(rec.Acknowledged), nullableUnix(rec.AcknowledgedAt),
		rec.CreatedAt.Unix(), string(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert alert: %w", err)
	}
	return nil
}

// Query returns matching records (most recent first) and the total match
// count before Limit/Offset are applied.
func (s *Store) Query(ctx context.Context, userID string, f model.AlertFilter) ([]model.AlertRecord, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{userID}

	if f.Token != "" {
		where = append(where, "token = ?")
		args = append(args, f.Token)
	}
	if f.Type != "" {
		where = append(where, "alert_type = ?")
		args = append(args, f.Type)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.Unix())
	}
	if f.Acknowledged != nil {
		where = append(where, "acknowledged = ?")
		args = append(args, boolToInt(*f.Acknowledged))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite count alerts: %w", err)
	}

	q := `SELECT id, user_id, token, name, exchange, alert_type,
			baseline_price, current_price, price_min, price_max, deviation,
			duration_sec, market_session, market_type, acknowledged,
			acknowledged_at, created_at, payload
		FROM alerts WHERE ` + cond + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			q += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var recs []model.AlertRecord
	for rows.Next() {
		var r model.AlertRecord
		var ack int
		var ackAt sql.NullInt64
		var createdAt int64
		var payload sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Token, &r.Name, &r.Exchange, &r.Type,
			&r.BaselinePrice, &r.CurrentPrice, &r.PriceMin, &r.PriceMax, &r.Deviation,
			&r.DurationSec, &r.MarketSession, &r.MarketType, &ack,
			&ackAt, &createdAt, &payload); err != nil {
			return nil, 0, fmt.Errorf("sqlite scan alert: %w", err)
		}
		r.Acknowledged = ack != 0
		if ackAt.Valid {
			t := time.Unix(ackAt.Int64, 0).UTC()
			r.AcknowledgedAt = &t
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		if payload.Valid {
			r.Payload = []byte(payload.String)
		}
		recs = append(recs, r)
	}
	return recs, total, rows.Err()
}

// Acknowledge marks one record acknowledged. Already-acknowledged (or
// unknown) IDs are a no-op success, which keeps the call idempotent.
func (s *Store) Acknowledge(ctx context.Context, userID, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = 1, acknowledged_at = ?
		WHERE user_id = ? AND id = ? AND acknowledged = 0
	`, time.Now().Unix(), userID, id)
	if err != nil {
		return fmt.Errorf("sqlite acknowledge: %w", err)
	}
	return nil
}

// AcknowledgeAll marks every unacknowledged record for the user.
func (s *Store) AcknowledgeAll(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = 1, acknowledged_at = ?
		WHERE user_id = ? AND acknowledged = 0
	`, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("sqlite acknowledge all: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
