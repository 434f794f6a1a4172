package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Connection event types.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventReplaced     = "replaced"
	EventRejected     = "rejected"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Entry is one recorded connection event.
type Entry struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	DeviceType string    `json:"device_type"`
	SessionID  string    `json:"session_id"`
	Event      string    `json:"event"`
	CreatedAt  time.Time `json:"created_at"`
}

// Log persists device connection events to SQLite.
//
// The fleet registry is purely in-memory; the audit log is what answers
// "when did rover_6 last disconnect" after the fact. Recording is best
// effort from the caller's perspective: failures are returned but callers
// log and move on rather than failing the connection.
type Log struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS connection_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id   TEXT NOT NULL,
	device_type TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	event       TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_connection_events_device
	ON connection_events (device_id, created_at);
`

// Open creates or opens the audit database at path and ensures the schema.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// SQLite handles one writer at a time; serialise at the pool level.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Record inserts one connection event.
func (l *Log) Record(ctx context.Context, deviceID, deviceType, sessionID, event string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := l.db.ExecContext(ctx,
		"INSERT INTO connection_events (device_id, device_type, session_id, event) VALUES (?, ?, ?, ?)",
		deviceID,
		deviceType,
		sessionID,
		event,
	)
	if err != nil {
		return fmt.Errorf("inserting connection event: %w", err)
	}

	return nil
}

// Recent returns the latest connection events, newest first.
//
// limit defaults to 50 and is capped at 500.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, device_id, device_type, session_id, event, created_at
		 FROM connection_events
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.DeviceType, &entry.SessionID, &entry.Event, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection event: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection events: %w", err)
	}

	return entries, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
