package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/nugget/kith/internal/model"
)

// writable lists the fields each entity type accepts on create and
// update. Contacts also accept "tags" (comma-separated) on create.
var writable = map[model.EntityType][]string{
	model.EntityContact:      {"name", "kind", "email", "phone", "company", "summary"},
	model.EntityTag:          {"name"},
	model.EntityNote:         {"title", "body", "contact_id"},
	model.EntityRelationship: {"contact_id", "related_id", "kind"},
}

// required lists the fields that must be non-empty on create.
var required = map[model.EntityType][]string{
	model.EntityContact:      {"name"},
	model.EntityTag:          {"name"},
	model.EntityNote:         {"body"},
	model.EntityRelationship: {"contact_id", "related_id", "kind"},
}

// WritableFields returns the field names accepted for et, sorted.
func WritableFields(et model.EntityType) []string {
	out := slices.Clone(writable[et])
	sort.Strings(out)
	return out
}

func checkFields(et model.EntityType, fields map[string]string, create bool) error {
	for k := range fields {
		if k == "tags" && create && et == model.EntityContact {
			continue
		}
		if !slices.Contains(writable[et], k) {
			return fmt.Errorf("%w: unknown field %q for %s", ErrInvalid, k, et)
		}
	}
	if create {
		for _, k := range required[et] {
			if strings.TrimSpace(fields[k]) == "" {
				return fmt.Errorf("%w: %s requires %q", ErrInvalid, et, k)
			}
		}
	} else {
		for _, k := range required[et] {
			if v, ok := fields[k]; ok && strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: %s field %q cannot be empty", ErrInvalid, et, k)
			}
		}
	}
	return nil
}

// Create inserts a new record and returns it as stored.
func (s *Store) Create(ctx context.Context, et model.EntityType, fields map[string]string) (model.Record, error) {
	if err := checkType(et); err != nil {
		return model.Record{}, err
	}
	if err := checkFields(et, fields, true); err != nil {
		return model.Record{}, err
	}
	db, err := s.conn()
	if err != nil {
		return model.Record{}, err
	}
	id, err := newID()
	if err != nil {
		return model.Record{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return model.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()
	switch et {
	case model.EntityContact:
		kind := fields["kind"]
		if kind == "" {
			kind = "person"
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO contacts (id, name, kind, email, phone, company, summary, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, strings.TrimSpace(fields["name"]), kind, nullStr(fields["email"]), nullStr(fields["phone"]),
			nullStr(fields["company"]), nullStr(fields["summary"]), ts, ts)
		if err == nil && fields["tags"] != "" {
			for _, tag := range splitTags(fields["tags"]) {
				if _, err = tagContacts(ctx, tx, []string{id}, tag); err != nil {
					break
				}
			}
		}
	case model.EntityTag:
		name := strings.TrimSpace(fields["name"])
		if err = checkTagFree(ctx, tx, name, ""); err == nil {
			_, err = tx.ExecContext(ctx, `INSERT INTO tags (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				id, name, ts, ts)
		}
	case model.EntityNote:
		if err = checkContacts(ctx, tx, fields["contact_id"]); err == nil {
			_, err = tx.ExecContext(ctx, `INSERT INTO notes (id, contact_id, title, body, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				id, nullStr(fields["contact_id"]), nullStr(fields["title"]), fields["body"], ts, ts)
		}
	case model.EntityRelationship:
		if err = checkContacts(ctx, tx, fields["contact_id"], fields["related_id"]); err == nil {
			_, err = tx.ExecContext(ctx, `INSERT INTO relationships (id, contact_id, related_id, kind, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				id, fields["contact_id"], fields["related_id"], fields["kind"], ts, ts)
		}
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("create %s: %w", et, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Record{}, fmt.Errorf("commit: %w", err)
	}

	recs, err := s.Get(ctx, et, []string{id})
	if err != nil {
		return model.Record{}, err
	}
	if len(recs) == 0 {
		return model.Record{}, fmt.Errorf("%w: created %s %s", ErrNotFound, et, id)
	}
	s.logger.Info("record created", "entity_type", et, "id", id)
	return recs[0], nil
}

// Update applies fields to every active record in ids and returns the
// number of records changed.
func (s *Store) Update(ctx context.Context, et model.EntityType, ids []string, fields map[string]string) (int, error) {
	if err := checkType(et); err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: no fields to update", ErrInvalid)
	}
	if err := checkFields(et, fields, false); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if et == model.EntityTag {
		if name, ok := fields["name"]; ok {
			if len(ids) > 1 {
				return 0, fmt.Errorf("%w: cannot give %d tags the same name", ErrInvalid, len(ids))
			}
			if err := checkTagFree(ctx, tx, strings.TrimSpace(name), ids[0]); err != nil {
				return 0, err
			}
		}
	}
	if err := checkContacts(ctx, tx, fields["contact_id"], fields["related_id"]); err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1+len(ids))
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		args = append(args, nullStr(strings.TrimSpace(fields[k])))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now())
	args = append(args, stringArgs(ids)...)

	res, err := tx.ExecContext(ctx, `UPDATE `+tableFor(et)+` SET `+strings.Join(sets, ", ")+
		` WHERE `+activeFilter+` AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", et.Plural(), err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("records updated", "entity_type", et, "count", n, "fields", keys)
	return int(n), nil
}

// Delete soft-deletes every active record in ids and returns the
// number of records removed.
func (s *Store) Delete(ctx context.Context, et model.EntityType, ids []string) (int, error) {
	if err := checkType(et); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	args := append([]any{now()}, stringArgs(ids)...)
	res, err := db.ExecContext(ctx, `UPDATE `+tableFor(et)+` SET deleted_at = ?
		WHERE `+activeFilter+` AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", et.Plural(), err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("records deleted", "entity_type", et, "count", n)
	return int(n), nil
}

// Tag attaches the named tag to each contact, creating the tag if it
// does not exist. Returns the number of contacts newly tagged.
func (s *Store) Tag(ctx context.Context, contactIDs []string, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, fmt.Errorf("%w: tag name is required", ErrInvalid)
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := tagContacts(ctx, tx, contactIDs, tag)
	if err != nil {
		return 0, fmt.Errorf("tag contacts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("contacts tagged", "tag", tag, "count", n)
	return n, nil
}

// Untag removes the named tag from each contact. Returns the number of
// contacts that carried the tag.
func (s *Store) Untag(ctx context.Context, contactIDs []string, tag string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	tagID, err := findTagID(ctx, db, strings.TrimSpace(tag))
	if err != nil {
		return 0, err
	}
	if len(contactIDs) == 0 {
		return 0, nil
	}
	args := append([]any{tagID}, stringArgs(contactIDs)...)
	res, err := db.ExecContext(ctx, `DELETE FROM contact_tags WHERE tag_id = ? AND contact_id IN (`+
		placeholders(len(contactIDs))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("untag contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("contacts untagged", "tag", tag, "count", n)
	return int(n), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	queryer
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func findTagID(ctx context.Context, q queryer, name string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM tags WHERE `+activeFilter+` AND LOWER(name) = LOWER(?)`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: tag %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("find tag: %w", err)
	}
	return id, nil
}

func tagContacts(ctx context.Context, tx execer, contactIDs []string, tag string) (int, error) {
	tagID, err := findTagID(ctx, tx, tag)
	if errors.Is(err, ErrNotFound) {
		if tagID, err = newID(); err != nil {
			return 0, err
		}
		ts := now()
		if _, err = tx.ExecContext(ctx, `INSERT INTO tags (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			tagID, tag, ts, ts); err != nil {
			return 0, fmt.Errorf("create tag: %w", err)
		}
	} else if err != nil {
		return 0, err
	}

	total := 0
	ts := now()
	for _, cid := range contactIDs {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO contact_tags (contact_id, tag_id, created_at)
			SELECT id, ?, ? FROM contacts WHERE id = ? AND `+activeFilter, tagID, ts, cid)
		if err != nil {
			return 0, fmt.Errorf("tag %s: %w", cid, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// checkTagFree fails if an active tag other than exceptID already has name.
func checkTagFree(ctx context.Context, q queryer, name, exceptID string) error {
	id, err := findTagID(ctx, q, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if id == exceptID {
		return nil
	}
	return fmt.Errorf("%w: tag %q already exists", ErrInvalid, name)
}

// checkContacts fails unless every non-empty id names an active contact.
func checkContacts(ctx context.Context, q queryer, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE `+activeFilter+` AND id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("check contact: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: contact %s", ErrNotFound, id)
		}
	}
	return nil
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
