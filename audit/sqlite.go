package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradewell/execution/pkg/id"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	ts DATETIME NOT NULL,
	event TEXT NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts);
CREATE INDEX IF NOT EXISTS idx_audit_events_event ON audit_events(event);
`

// SQLiteSink stores audit records in a SQLite database. ULID primary keys
// keep rows time-sortable, and every insert is its own transaction so each
// record is durable on return.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// audit schema exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts one record.
func (s *SQLiteSink) Write(event string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_events (id, ts, event, payload) VALUES (?, ?, ?, ?)`,
		id.New(), time.Now().UTC(), event, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Tail returns the most recent n records, newest first.
func (s *SQLiteSink) Tail(n int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, event, payload FROM audit_events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var body string
		if err := rows.Scan(&rec.ID, &rec.Time, &rec.Event, &body); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode audit payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
