// Package journal persists capture saga transitions in the capture_journal
// table through database/sql.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

const (
	insertEntrySQL = `INSERT INTO capture_journal (intent_id, order_id, capture_id, state, action, failed, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	historySQL = `SELECT intent_id, order_id, capture_id, state, action, failed, detail, recorded_at
		FROM capture_journal WHERE intent_id = $1 ORDER BY id`

	failedSQL = `SELECT intent_id, order_id, capture_id, state, action, failed, detail, recorded_at
		FROM capture_journal WHERE failed AND recorded_at >= $1
		ORDER BY recorded_at DESC LIMIT $2`
)

var _ checkout.Journal = (*Recorder)(nil)

// Entry is a journal row as read back.
type Entry struct {
	checkout.JournalEntry
	RecordedAt time.Time
}

// Recorder appends saga journal entries.
type Recorder struct {
	db *sql.DB
}

// NewRecorder returns a Recorder over db.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// OpenFromPool exposes a pgx pool as a *sql.DB sharing its connections.
func OpenFromPool(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// Open opens a *sql.DB using the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	return db, nil
}

// Record appends e.
func (r *Recorder) Record(ctx context.Context, e checkout.JournalEntry) error {
	_, err := r.db.ExecContext(ctx, insertEntrySQL,
		e.IntentID, e.OrderID, e.CaptureID, string(e.State), e.Action, e.Failed, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s entry for intent %q: %w", e.State, e.IntentID, err)
	}
	return nil
}

// History returns all entries of an intent in insertion order.
func (r *Recorder) History(ctx context.Context, intentID string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, historySQL, intentID)
	if err != nil {
		return nil, fmt.Errorf("querying history of intent %q: %w", intentID, err)
	}
	return collect(rows)
}

// FailedCompensations returns failed entries recorded at or after since,
// newest first.
func (r *Recorder) FailedCompensations(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, failedSQL, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed compensations: %w", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			state string
		)
		if err := rows.Scan(
			&e.IntentID, &e.OrderID, &e.CaptureID, &state, &e.Action, &e.Failed, &e.Detail, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.State = checkout.State(state)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return out, nil
}
