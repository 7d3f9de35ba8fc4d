// Package records is the Data API over the personal-records datastore:
// contacts, tags, notes and relationships kept in a single SQLite file.
//
// The file is opened in rollback-journal mode so that a plain copy of it
// is a complete snapshot whenever no write is in flight. Backups and
// restores rely on that.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/kith/internal/model"
)

const activeFilter = "deleted_at IS NULL"

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalid is returned when record fields fail validation.
	ErrInvalid = errors.New("invalid record")
	// ErrClosed is returned when the store is used while closed.
	ErrClosed = errors.New("datastore is closed")
)

// Store manages record persistence in SQLite.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewStore opens (creating if needed) the datastore at dbPath.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: dbPath, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) open() error {
	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000&_journal_mode=DELETE")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	return nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'person',
			email TEXT,
			phone TEXT,
			company TEXT,
			summary TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_contacts_name ON contacts(name);
		CREATE INDEX IF NOT EXISTS idx_contacts_deleted ON contacts(deleted_at);

		CREATE TABLE IF NOT EXISTS tags (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name_active ON tags(LOWER(name)) WHERE deleted_at IS NULL;

		CREATE TABLE IF NOT EXISTS contact_tags (
			contact_id TEXT NOT NULL REFERENCES contacts(id),
			tag_id TEXT NOT NULL REFERENCES tags(id),
			created_at TEXT NOT NULL,
			PRIMARY KEY (contact_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_contact_tags_tag ON contact_tags(tag_id);

		CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			contact_id TEXT REFERENCES contacts(id),
			title TEXT,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_notes_contact ON notes(contact_id);

		CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL REFERENCES contacts(id),
			related_id TEXT NOT NULL REFERENCES contacts(id),
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_relationships_contact ON relationships(contact_id);
		CREATE INDEX IF NOT EXISTS idx_relationships_related ON relationships(related_id);
	`)
	return err
}

// Path returns the datastore file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection. The store can be reopened
// with [Store.Reopen].
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Reopen opens the datastore file again, closing any existing
// connection first. Used after the file is replaced by a restore.
func (s *Store) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	if err := s.open(); err != nil {
		return err
	}
	s.logger.Info("datastore reopened", "path", s.path)
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// Stats returns the number of active records per entity type.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(model.EntityTypes))
	for _, et := range model.EntityTypes {
		var n int
		q := `SELECT COUNT(*) FROM ` + tableFor(et) + ` WHERE ` + activeFilter
		if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", et.Plural(), err)
		}
		stats[et.Plural()] = n
	}
	return stats, nil
}

func tableFor(et model.EntityType) string {
	switch et {
	case model.EntityContact:
		return "contacts"
	case model.EntityTag:
		return "tags"
	case model.EntityNote:
		return "notes"
	case model.EntityRelationship:
		return "relationships"
	}
	return ""
}

func checkType(et model.EntityType) error {
	if !et.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalid, et)
	}
	return nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// likeEscaper makes % and _ literal in a LIKE pattern. Clauses using it
// declare ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}
