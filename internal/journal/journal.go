// Package journal persists every processed signal and its order outcome to a
// SQLite database, with a Parquet export for offline analysis.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"telebridge/internal/dispatcher"
	"telebridge/internal/domain"
)

// Compile-time interface check.
var _ dispatcher.Journal = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY,
	received_at INTEGER NOT NULL,
	channel     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	leg         TEXT NOT NULL,
	strike      REAL NOT NULL,
	price       REAL NOT NULL,
	suppressed  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	id         TEXT PRIMARY KEY,
	signal_id  TEXT NOT NULL REFERENCES signals(id),
	retcode    INTEGER NOT NULL,
	deal       INTEGER NOT NULL,
	order_id   INTEGER NOT NULL,
	volume     REAL NOT NULL,
	price      REAL NOT NULL,
	comment    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_received ON signals(received_at);
CREATE INDEX IF NOT EXISTS idx_results_signal ON results(signal_id);
`

// Store is the SQLite-backed signal journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSignal persists a classified signal and returns its journal ID.
func (s *Store) RecordSignal(ctx context.Context, msg domain.InboundMessage, sig domain.ParsedSignal, symbol string) (string, error) {
	id := uuid.NewString()

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (id, received_at, channel, text, kind, action, symbol, leg, strike, price, suppressed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, receivedAt.UnixMilli(), msg.Channel, msg.Text,
		string(sig.Kind), string(sig.Action), symbol, string(sig.Leg),
		sig.Strike, sig.Price, boolToInt(sig.Suppressed),
	)
	if err != nil {
		return "", fmt.Errorf("inserting signal: %w", err)
	}
	return id, nil
}

// RecordResult persists the order outcome for a previously recorded signal.
func (s *Store) RecordResult(ctx context.Context, signalID string, res *domain.OrderResult) error {
	if res == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (id, signal_id, retcode, deal, order_id, volume, price, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), signalID, res.Retcode, res.Deal, res.Order,
		res.Volume, res.Price, res.Comment, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return nil
}

// Entry is a journaled signal joined with its order outcome, newest first in
// listings. Result fields are zero when the signal produced no order.
type Entry struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Channel    int64     `json:"channel"`
	Text       string    `json:"text"`
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	Symbol     string    `json:"symbol"`
	Leg        string    `json:"leg"`
	Strike     float64   `json:"strike"`
	Price      float64   `json:"price"`
	Suppressed bool      `json:"suppressed"`

	HasResult     bool    `json:"has_result"`
	Retcode       int     `json:"retcode"`
	OrderID       int64   `json:"order_id"`
	Volume        float64 `json:"volume"`
	ResultPrice   float64 `json:"result_price"`
	ResultComment string  `json:"result_comment"`
}

// Recent returns the newest journal entries, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.received_at, s.channel, s.text, s.kind, s.action, s.symbol, s.leg, s.strike, s.price, s.suppressed,
		        r.retcode, r.order_id, r.volume, r.price, r.comment
		 FROM signals s
		 LEFT JOIN results r ON r.signal_id = s.id
		 ORDER BY s.received_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt int64
		var suppressed int
		var retcode sql.NullInt64
		var orderID sql.NullInt64
		var volume, price sql.NullFloat64
		var comment sql.NullString

		if err := rows.Scan(&e.ID, &receivedAt, &e.Channel, &e.Text, &e.Kind, &e.Action, &e.Symbol, &e.Leg,
			&e.Strike, &e.Price, &suppressed,
			&retcode, &orderID, &volume, &price, &comment); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.ReceivedAt = time.UnixMilli(receivedAt)
		e.Suppressed = suppressed != 0
		if retcode.Valid {
			e.HasResult = true
			e.Retcode = int(retcode.Int64)
			e.OrderID = orderID.Int64
			e.Volume = volume.Float64
			e.ResultPrice = price.Float64
			e.ResultComment = comment.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
