// Package model defines the record types shared between the Data API, the
// conversation layer and the renderers.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EntityType names a kind of record in the datastore.
type EntityType string

const (
	EntityContact      EntityType = "contact"
	EntityTag          EntityType = "tag"
	EntityNote         EntityType = "note"
	EntityRelationship EntityType = "relationship"
)

// EntityTypes lists every supported entity type in display order.
var EntityTypes = []EntityType{EntityContact, EntityTag, EntityNote, EntityRelationship}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return slices.Contains(EntityTypes, t)
}

// Plural returns the plural noun for t, used in user-facing text.
func (t EntityType) Plural() string {
	switch t {
	case EntityRelationship:
		return "relationships"
	case "":
		return "records"
	default:
		return string(t) + "s"
	}
}

// Noun returns the singular or plural noun for n records of type t.
func (t EntityType) Noun(n int) string {
	if n == 1 {
		return string(t)
	}
	return t.Plural()
}

// Record is one entity as returned by the Data API. The Data API is the
// only source of record content; everything else holds ids.
type Record struct {
	ID        string            `json:"id"`
	Type      EntityType        `json:"type"`
	Name      string            `json:"name"`
	Fields    map[string]string `json:"fields,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns a field value or "" when unset.
func (r Record) Field(key string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// Summary returns a one-line description used in display context and
// confirmation prompts.
func (r Record) Summary() string {
	var parts []string
	switch r.Type {
	case EntityContact:
		if c := r.Field("company"); c != "" {
			parts = append(parts, c)
		}
		if e := r.Field("email"); e != "" {
			parts = append(parts, e)
		}
		if len(r.Tags) > 0 {
			parts = append(parts, "tags: "+strings.Join(r.Tags, ", "))
		}
	case EntityRelationship:
		if k := r.Field("kind"); k != "" {
			parts = append(parts, k)
		}
	case EntityNote:
		if body := r.Field("body"); body != "" && body != r.Name {
			parts = append(parts, Truncate(body, 60))
		}
	}
	if len(parts) == 0 {
		return r.Name
	}
	return fmt.Sprintf("%s (%s)", r.Name, strings.Join(parts, "; "))
}

// Truncate collapses whitespace in s and shortens it to at most max
// runes, ending in "..." when cut. A max of 0 means no limit.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
