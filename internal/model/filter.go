package model

import (
	"slices"
	"strconv"
	"strings"
)

// Filter narrows a Data API search. Zero fields are ignored. String
// matches are case-insensitive substrings; Tags requires every listed tag.
type Filter struct {
	Name      string   `json:"name,omitempty"`
	Query     string   `json:"query,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Company   string   `json:"company,omitempty"`
	Email     string   `json:"email,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	ContactID string   `json:"contact_id,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.Name == "" && f.Query == "" && len(f.Tags) == 0 && f.Company == "" &&
		f.Email == "" && f.Kind == "" && f.ContactID == "" && f.Limit == 0
}

// Merge returns f with every non-zero field of o applied on top. Tags
// from o are appended to f's tags, skipping duplicates.
func (f Filter) Merge(o Filter) Filter {
	out := f
	out.Tags = slices.Clone(f.Tags)
	if o.Name != "" {
		out.Name = o.Name
	}
	if o.Query != "" {
		out.Query = o.Query
	}
	if o.Company != "" {
		out.Company = o.Company
	}
	if o.Email != "" {
		out.Email = o.Email
	}
	if o.Kind != "" {
		out.Kind = o.Kind
	}
	if o.ContactID != "" {
		out.ContactID = o.ContactID
	}
	if o.Limit != 0 {
		out.Limit = o.Limit
	}
	for _, t := range o.Tags {
		if !slices.Contains(out.Tags, t) {
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

// Filter keys as they appear in command JSON.
const (
	FilterName      = "name"
	FilterQuery     = "query"
	FilterTags      = "tags"
	FilterCompany   = "company"
	FilterEmail     = "email"
	FilterKind      = "kind"
	FilterContactID = "contact_id"
	FilterLimit     = "limit"
)

// SupportedFilters lists the filter keys each entity type understands.
var SupportedFilters = map[EntityType][]string{
	EntityContact:      {FilterName, FilterQuery, FilterTags, FilterCompany, FilterEmail, FilterKind, FilterContactID, FilterLimit},
	EntityTag:          {FilterName, FilterQuery, FilterContactID, FilterLimit},
	EntityNote:         {FilterName, FilterQuery, FilterContactID, FilterLimit},
	EntityRelationship: {FilterName, FilterQuery, FilterKind, FilterContactID, FilterLimit},
}

// Keys returns the keys of every non-zero field.
func (f Filter) Keys() []string {
	var keys []string
	add := func(set bool, key string) {
		if set {
			keys = append(keys, key)
		}
	}
	add(f.Name != "", FilterName)
	add(f.Query != "", FilterQuery)
	add(len(f.Tags) > 0, FilterTags)
	add(f.Company != "", FilterCompany)
	add(f.Email != "", FilterEmail)
	add(f.Kind != "", FilterKind)
	add(f.ContactID != "", FilterContactID)
	add(f.Limit != 0, FilterLimit)
	return keys
}

// String renders the non-zero fields as key=value pairs in key order.
func (f Filter) String() string {
	var parts []string
	for _, key := range f.Keys() {
		var v string
		switch key {
		case FilterName:
			v = f.Name
		case FilterQuery:
			v = f.Query
		case FilterTags:
			v = strings.Join(f.Tags, ",")
		case FilterCompany:
			v = f.Company
		case FilterEmail:
			v = f.Email
		case FilterKind:
			v = f.Kind
		case FilterContactID:
			v = f.ContactID
		case FilterLimit:
			v = strconv.Itoa(f.Limit)
		}
		parts = append(parts, key+"="+v)
	}
	return strings.Join(parts, ", ")
}
