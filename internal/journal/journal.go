// Package journal records device events (outlet commands and transitions,
// thermometer freshness changes) in the device_events table.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a device event.
type Kind string

// Event kinds.
const (
	KindOutletCommand    Kind = "outlet_command"
	KindOutletTransition Kind = "outlet_transition"
	KindThermStale       Kind = "therm_stale"
	KindThermFresh       Kind = "therm_fresh"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOutletCommand, KindOutletTransition, KindThermStale, KindThermFresh:
		return true
	}
	return false
}

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout is fixed-width so created_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// ErrInvalidEvent is returned by Record for an event without a device id or
// with an unknown kind.
var ErrInvalidEvent = errors.New("journal: invalid event")

// Event is one row of the journal.
type Event struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Kind      Kind           `json:"kind"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects events for List. Zero fields match everything.
type Filter struct {
	DeviceID string
	Kind     Kind
	Since    time.Time
	Limit    int // default 50, max 500
}

// Recorder persists events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// Repository persists and queries events.
type Repository interface {
	Recorder
	List(ctx context.Context, filter Filter) ([]Event, error)
}

// SQLiteRepository stores events in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over db. The device_events
// table must already exist (see package migrations).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Event) error {
	if e.DeviceID == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidEvent)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	details := "{}"
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling event details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_events (id, device_id, kind, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, string(e.Kind), details, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting device event: %w", err)
	}
	return nil
}

// List returns matching events, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := "SELECT id, device_id, kind, details, created_at FROM device_events" + where + //nolint:gosec // only placeholders are interpolated
		" ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var kind, details, createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &kind, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device event: %w", err)
		}
		e.Kind = Kind(kind)

		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding details of event %s: %w", e.ID, err)
			}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device events: %w", err)
	}
	return events, nil
}
