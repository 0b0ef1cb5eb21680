package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database that journals validator lifecycle events
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets `ammanctl history` read while `ammanctl run` writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Validator lifecycle events recorded by the supervisor
	CREATE TABLE IF NOT EXISTS validator_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		pid INTEGER NOT NULL DEFAULT 0,
		owned BOOLEAN NOT NULL DEFAULT 0,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Address labels pushed to the relay
	CREATE TABLE IF NOT EXISTS label_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		label TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_validator_events_timestamp ON validator_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_label_changes_address ON label_changes(address);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// ValidatorEvent is one lifecycle transition of the validator
type ValidatorEvent struct {
	ID        int64
	EventType string
	Pid       int
	Owned     bool
	Details   string
	Timestamp time.Time
}

// LogValidatorEvent records a lifecycle event. It retries briefly while
// another ammanctl holds the write lock.
func (db *DB) LogValidatorEvent(eventType string, pid int, owned bool, details string) error {
	return db.execWithRetry(
		`INSERT INTO validator_events (event_type, pid, owned, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		eventType, pid, owned, details, time.Now(),
	)
}

// GetRecentValidatorEvents returns the newest events first
func (db *DB) GetRecentValidatorEvents(limit int) ([]ValidatorEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, pid, owned, details, timestamp
		 FROM validator_events
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ValidatorEvent
	for rows.Next() {
		var e ValidatorEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Pid, &e.Owned, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLastValidatorEvent returns the most recent event, or nil when there is none
func (db *DB) GetLastValidatorEvent() (*ValidatorEvent, error) {
	var e ValidatorEvent
	err := db.conn.QueryRow(
		`SELECT id, event_type, pid, owned, details, timestamp
		 FROM validator_events
		 ORDER BY id DESC
		 LIMIT 1`,
	).Scan(&e.ID, &e.EventType, &e.Pid, &e.Owned, &e.Details, &e.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LabelChange is an address label sent to the relay
type LabelChange struct {
	ID        int64
	Address   string
	Label     string
	Timestamp time.Time
}

// LogLabelChange records a label pushed to the relay
func (db *DB) LogLabelChange(address, label string) error {
	return db.execWithRetry(
		`INSERT INTO label_changes (address, label, timestamp) VALUES (?, ?, ?)`,
		address, label, time.Now(),
	)
}

// GetRecentLabelChanges returns the newest label changes first
func (db *DB) GetRecentLabelChanges(limit int) ([]LabelChange, error) {
	rows, err := db.conn.Query(
		`SELECT id, address, label, timestamp
		 FROM label_changes
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []LabelChange
	for rows.Next() {
		var c LabelChange
		if err := rows.Scan(&c.ID, &c.Address, &c.Label, &c.Timestamp); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// execWithRetry retries an insert a few times on SQLITE_BUSY.
// Journaling is best effort, callers must not block on it.
func (db *DB) execWithRetry(query string, args ...any) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(query, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to write after %d retries: database locked", maxRetries)
}
