// Package audit keeps an append-only log of every attempted mutation of
// the records datastore, successful or not. Entries live in their own
// SQLite database so that restoring a datastore backup never rewrites
// the history of what was done to it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Entry is one audited mutation attempt.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"` // who asked: "chat", "ask", "cli"
	SessionID  string    `json:"session_id,omitempty"`
	Operation  string    `json:"operation"` // e.g. "delete_contact", "create_tag"
	EntityType string    `json:"entity_type"`
	EntityIDs  []string  `json:"entity_ids"`
	Count      int       `json:"count"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Query narrows [Store.List]. Zero fields are ignored.
type Query struct {
	Since     time.Time
	Operation string
	Failures  bool // only unsuccessful attempts
	Limit     int
}

// Store is an append-only SQLite audit log. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens the audit log at dbPath, creating the schema on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_log (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		source      TEXT NOT NULL,
		session_id  TEXT,
		operation   TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_ids  TEXT NOT NULL,
		count       INTEGER NOT NULL,
		success     INTEGER NOT NULL,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation);
	`)
	return err
}

// Append persists an entry. If e.ID is empty a UUIDv7 is generated; a
// zero Timestamp becomes now.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate audit entry ID: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.EntityIDs == nil {
		e.EntityIDs = []string{}
	}
	ids, err := json.Marshal(e.EntityIDs)
	if err != nil {
		return fmt.Errorf("encode entity ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log
			(id, timestamp, source, session_id, operation, entity_type, entity_ids, count, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(timeFormat),
		e.Source,
		e.SessionID,
		e.Operation,
		e.EntityType,
		string(ids),
		e.Count,
		e.Success,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries matching q, oldest first.
func (s *Store) List(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(timeFormat))
	}
	if q.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, q.Operation)
	}
	if q.Failures {
		where = append(where, "success = 0")
	}

	stmt := `SELECT id, timestamp, source, session_id, operation, entity_type, entity_ids, count, success, error FROM audit_log`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY timestamp, id"
	if q.Limit > 0 {
		// Keep the newest Limit entries but still return them oldest first.
		stmt = `SELECT * FROM (` + strings.Replace(stmt, "ORDER BY timestamp, id", "ORDER BY timestamp DESC, id DESC", 1) +
			` LIMIT ?) ORDER BY timestamp, id`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                Entry
			ts, ids          string
			session, errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Source, &session, &e.Operation, &e.EntityType,
			&ids, &e.Count, &e.Success, &errText); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(timeFormat, ts)
		e.SessionID = session.String
		e.Error = errText.String
		if err := json.Unmarshal([]byte(ids), &e.EntityIDs); err != nil {
			return nil, fmt.Errorf("decode entity ids for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
