package explorer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"stakeauction/core/events"
	"stakeauction/core/types"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("explorer: audit database path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS auction_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    operator TEXT,
    attributes TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auction_events_operator ON auction_events(operator);
CREATE INDEX IF NOT EXISTS idx_auction_events_type ON auction_events(event_type);
`

// StoredEvent is one row of the audit trail.
type StoredEvent struct {
	ID         int64
	Type       string
	Operator   string
	Attributes map[string]string
	RecordedAt time.Time
}

// Indexer persists every emitted auction and escrow event into SQLite so the
// bid history stays queryable after the in-process state moves on. It
// implements events.Emitter and can be chained behind the engines directly.
type Indexer struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open initialises the audit store at the supplied sqlite DSN.
func Open(path string) (*Indexer, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("explorer: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("explorer: apply schema: %w", err)
	}
	return &Indexer{db: db, nowFn: time.Now}, nil
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (ix *Indexer) SetNowFunc(now func() time.Time) {
	if now == nil {
		ix.nowFn = time.Now
		return
	}
	ix.nowFn = now
}

// Close releases database resources.
func (ix *Indexer) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

type payloadCarrier interface {
	Event() *types.Event
}

// normalizeOperator maps the address spellings callers use (0x-prefixed,
// checksummed, padded) onto the bare lowercase hex the events carry, so a
// query matches the stored rows regardless of input form.
func normalizeOperator(operator string) string {
	trimmed := strings.ToLower(strings.TrimSpace(operator))
	return strings.TrimPrefix(trimmed, "0x")
}

// Emit implements events.Emitter. Indexing is best-effort: a failed insert
// is logged and never propagates back into the state transition that emitted
// the event.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || ix.db == nil || evt == nil {
		return
	}
	carrier, ok := evt.(payloadCarrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		slog.Error("explorer: marshal event attributes", "type", payload.Type, "err", err)
		return
	}
	operator := normalizeOperator(payload.Attributes["operator"])
	_, err = ix.db.Exec(`
        INSERT INTO auction_events(event_type, operator, attributes, recorded_at)
        VALUES(?, ?, ?, ?)
    `, payload.Type, operator, string(attrs), ix.nowFn().UTC().Unix())
	if err != nil {
		slog.Error("explorer: insert event", "type", payload.Type, "err", err)
	}
}

// EventsByOperator returns the most recent events recorded for the operator,
// newest first.
func (ix *Indexer) EventsByOperator(ctx context.Context, operator string, limit int) ([]StoredEvent, error) {
	if ix == nil || ix.db == nil {
		return nil, fmt.Errorf("explorer: indexer not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := ix.db.QueryContext(ctx, `
        SELECT id, event_type, operator, attributes, recorded_at
        FROM auction_events
        WHERE operator = ?
        ORDER BY id DESC
        LIMIT ?
    `, normalizeOperator(operator), limit)
	if err != nil {
		return nil, fmt.Errorf("explorer: query events: %w", err)
	}
	defer rows.Close()
	var out []StoredEvent
	for rows.Next() {
		var (
			evt      StoredEvent
			attrs    string
			recorded int64
		)
		if err := rows.Scan(&evt.ID, &evt.Type, &evt.Operator, &attrs, &recorded); err != nil {
			return nil, fmt.Errorf("explorer: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &evt.Attributes); err != nil {
			return nil, fmt.Errorf("explorer: decode attributes: %w", err)
		}
		evt.RecordedAt = time.Unix(recorded, 0).UTC()
		out = append(out, evt)
	}
	return out, rows.Err()
}
