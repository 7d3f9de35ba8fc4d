package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nugget/kith/internal/model"
)

// DefaultLimit caps searches that do not set an explicit limit.
const DefaultLimit = 200

// query accumulates WHERE clauses and their arguments.
type query struct {
	where []string
	args  []any
}

func (q *query) add(clause string, args ...any) {
	q.where = append(q.where, clause)
	q.args = append(q.args, args...)
}

func (q *query) build(base, order string, limit int) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	if len(q.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)
	args := q.args
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	return sb.String(), args
}

// Search returns active records of the given type matching the filter.
// Contacts and tags are ordered by name, notes newest first, and
// relationships by the names of both parties.
func (s *Store) Search(ctx context.Context, et model.EntityType, f model.Filter) ([]model.Record, error) {
	if err := checkType(et); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	recs, err := s.find(ctx, db, et, f, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", et.Plural(), err)
	}
	s.logger.Debug("datastore search", "entity_type", et, "filters", f.Keys(), "results", len(recs))
	return recs, nil
}

// Get returns the active records with the given ids, in the order the
// ids were given. Ids that do not resolve to an active record are
// skipped; callers compare lengths to detect them.
func (s *Store) Get(ctx context.Context, et model.EntityType, ids []string) ([]model.Record, error) {
	if err := checkType(et); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	recs, err := s.find(ctx, db, et, model.Filter{}, ids, 0)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", et.Plural(), err)
	}

	byID := make(map[string]model.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]model.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) find(ctx context.Context, db *sql.DB, et model.EntityType, f model.Filter, ids []string, limit int) ([]model.Record, error) {
	switch et {
	case model.EntityContact:
		return findContacts(ctx, db, f, ids, limit)
	case model.EntityTag:
		return findTags(ctx, db, f, ids, limit)
	case model.EntityNote:
		return findNotes(ctx, db, f, ids, limit)
	case model.EntityRelationship:
		return findRelationships(ctx, db, f, ids, limit)
	}
	return nil, checkType(et)
}

func findContacts(ctx context.Context, db *sql.DB, f model.Filter, ids []string, limit int) ([]model.Record, error) {
	q := &query{}
	q.add("c." + activeFilter)
	if len(ids) > 0 {
		q.add("c.id IN ("+placeholders(len(ids))+")", stringArgs(ids)...)
	}
	if f.Name != "" {
		q.add("LOWER(c.name) LIKE ? ESCAPE '\\'", likePattern(f.Name))
	}
	if f.Company != "" {
		q.add("LOWER(c.company) LIKE ? ESCAPE '\\'", likePattern(f.Company))
	}
	if f.Email != "" {
		q.add("LOWER(c.email) LIKE ? ESCAPE '\\'", likePattern(f.Email))
	}
	if f.Kind != "" {
		q.add("LOWER(c.kind) = LOWER(?)", f.Kind)
	}
	if f.ContactID != "" {
		q.add("c.id = ?", f.ContactID)
	}
	if f.Query != "" {
		p := likePattern(f.Query)
		q.add(`(LOWER(c.name) LIKE ? ESCAPE '\' OR LOWER(c.email) LIKE ? ESCAPE '\' OR LOWER(c.company) LIKE ? ESCAPE '\'
			OR LOWER(c.summary) LIKE ? ESCAPE '\' OR LOWER(c.phone) LIKE ? ESCAPE '\')`, p, p, p, p, p)
	}
	for _, tag := range f.Tags {
		q.add(`c.id IN (SELECT ct.contact_id FROM contact_tags ct
			JOIN tags t ON t.id = ct.tag_id
			WHERE t.deleted_at IS NULL AND LOWER(t.name) = LOWER(?))`, strings.TrimSpace(tag))
	}

	stmt, args := q.build(`SELECT c.id, c.name, c.kind, c.email, c.phone, c.company, c.summary,
		c.created_at, c.updated_at FROM contacts c`, "c.name COLLATE NOCASE, c.id", limit)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var (
			r                              model.Record
			kind                           string
			email, phone, company, summary sql.NullString
			created, updated               string
		)
		if err := rows.Scan(&r.ID, &r.Name, &kind, &email, &phone, &company, &summary, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Type = model.EntityContact
		r.Fields = fields(map[string]string{
			"kind":    kind,
			"email":   email.String,
			"phone":   phone.String,
			"company": company.String,
			"summary": summary.String,
		})
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachTags(ctx, db, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// attachTags fills in the tag names of each contact record.
func attachTags(ctx context.Context, db *sql.DB, recs []model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	idx := make(map[string]int, len(recs))
	ids := make([]string, len(recs))
	for i, r := range recs {
		idx[r.ID] = i
		ids[i] = r.ID
	}
	rows, err := db.QueryContext(ctx, `SELECT ct.contact_id, t.name FROM contact_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE t.deleted_at IS NULL AND ct.contact_id IN (`+placeholders(len(ids))+`)
		ORDER BY t.name COLLATE NOCASE`, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var contactID, name string
		if err := rows.Scan(&contactID, &name); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		i := idx[contactID]
		recs[i].Tags = append(recs[i].Tags, name)
	}
	return rows.Err()
}

func findTags(ctx context.Context, db *sql.DB, f model.Filter, ids []string, limit int) ([]model.Record, error) {
	q := &query{}
	q.add("t." + activeFilter)
	if len(ids) > 0 {
		q.add("t.id IN ("+placeholders(len(ids))+")", stringArgs(ids)...)
	}
	if f.Name != "" {
		q.add("LOWER(t.name) LIKE ? ESCAPE '\\'", likePattern(f.Name))
	}
	if f.Query != "" {
		q.add("LOWER(t.name) LIKE ? ESCAPE '\\'", likePattern(f.Query))
	}
	if f.ContactID != "" {
		q.add("t.id IN (SELECT tag_id FROM contact_tags WHERE contact_id = ?)", f.ContactID)
	}

	stmt, args := q.build(`SELECT t.id, t.name, t.created_at, t.updated_at,
		(SELECT COUNT(*) FROM contact_tags ct JOIN contacts c ON c.id = ct.contact_id
			WHERE ct.tag_id = t.id AND c.deleted_at IS NULL)
		FROM tags t`, "t.name COLLATE NOCASE, t.id", limit)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var (
			r                model.Record
			created, updated string
			count            int
		)
		if err := rows.Scan(&r.ID, &r.Name, &created, &updated, &count); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Type = model.EntityTag
		r.Fields = map[string]string{"contacts": fmt.Sprint(count)}
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func findNotes(ctx context.Context, db *sql.DB, f model.Filter, ids []string, limit int) ([]model.Record, error) {
	q := &query{}
	q.add("n." + activeFilter)
	if len(ids) > 0 {
		q.add("n.id IN ("+placeholders(len(ids))+")", stringArgs(ids)...)
	}
	if f.Name != "" {
		q.add("(LOWER(n.title) LIKE ? ESCAPE '\\' OR LOWER(c.name) LIKE ? ESCAPE '\\')", likePattern(f.Name), likePattern(f.Name))
	}
	if f.Query != "" {
		p := likePattern(f.Query)
		q.add("(LOWER(n.title) LIKE ? ESCAPE '\\' OR LOWER(n.body) LIKE ? ESCAPE '\\')", p, p)
	}
	if f.ContactID != "" {
		q.add("n.contact_id = ?", f.ContactID)
	}

	stmt, args := q.build(`SELECT n.id, n.contact_id, n.title, n.body, c.name, n.created_at, n.updated_at
		FROM notes n LEFT JOIN contacts c ON c.id = n.contact_id AND c.deleted_at IS NULL`,
		"n.created_at DESC, n.id", limit)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var (
			r                         model.Record
			contactID, title, contact sql.NullString
			body, created, updated    string
		)
		if err := rows.Scan(&r.ID, &contactID, &title, &body, &contact, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Type = model.EntityNote
		r.Name = noteName(title.String, body)
		r.Fields = fields(map[string]string{
			"title":      title.String,
			"body":       body,
			"contact_id": contactID.String,
			"contact":    contact.String,
		})
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func noteName(title, body string) string {
	if title != "" {
		return title
	}
	first, _, _ := strings.Cut(strings.TrimSpace(body), "\n")
	return first
}

func findRelationships(ctx context.Context, db *sql.DB, f model.Filter, ids []string, limit int) ([]model.Record, error) {
	q := &query{}
	q.add("r." + activeFilter)
	q.add("a.deleted_at IS NULL AND b.deleted_at IS NULL")
	if len(ids) > 0 {
		q.add("r.id IN ("+placeholders(len(ids))+")", stringArgs(ids)...)
	}
	if f.Name != "" {
		p := likePattern(f.Name)
		q.add("(LOWER(a.name) LIKE ? ESCAPE '\\' OR LOWER(b.name) LIKE ? ESCAPE '\\')", p, p)
	}
	if f.Kind != "" {
		q.add("LOWER(r.kind) = LOWER(?)", f.Kind)
	}
	if f.ContactID != "" {
		q.add("(r.contact_id = ? OR r.related_id = ?)", f.ContactID, f.ContactID)
	}
	if f.Query != "" {
		p := likePattern(f.Query)
		q.add("(LOWER(a.name) LIKE ? ESCAPE '\\' OR LOWER(b.name) LIKE ? ESCAPE '\\' OR LOWER(r.kind) LIKE ? ESCAPE '\\')", p, p, p)
	}

	stmt, args := q.build(`SELECT r.id, r.contact_id, r.related_id, r.kind, a.name, b.name, r.created_at, r.updated_at
		FROM relationships r
		JOIN contacts a ON a.id = r.contact_id
		JOIN contacts b ON b.id = r.related_id`,
		"a.name COLLATE NOCASE, b.name COLLATE NOCASE, r.id", limit)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		var (
			r                          model.Record
			contactID, relatedID, kind string
			contactName, relatedName   string
			created, updated           string
		)
		if err := rows.Scan(&r.ID, &contactID, &relatedID, &kind, &contactName, &relatedName, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Type = model.EntityRelationship
		r.Name = contactName + " → " + relatedName
		r.Fields = map[string]string{
			"contact_id": contactID,
			"related_id": relatedID,
			"kind":       kind,
			"contact":    contactName,
			"related":    relatedName,
		}
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// fields drops empty values so records carry only what is set.
func fields(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}
