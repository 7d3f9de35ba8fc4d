package model

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestEntityTypeValid(t *testing.T) {
	for _, et := range EntityTypes {
		if !et.Valid() {
			t.Errorf("%q should be valid", et)
		}
	}
	if EntityType("widget").Valid() {
		t.Error("widget should not be valid")
	}
}

func TestEntityTypeNoun(t *testing.T) {
	tests := []struct {
		et   EntityType
		n    int
		want string
	}{
		{EntityContact, 1, "contact"},
		{EntityContact, 2, "contacts"},
		{EntityRelationship, 0, "relationships"},
		{"", 3, "records"},
	}
	for _, tt := range tests {
		if got := tt.et.Noun(tt.n); got != tt.want {
			t.Errorf("%q.Noun(%d) = %q, want %q", tt.et, tt.n, got, tt.want)
		}
	}
}

func TestRecordSummary(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{
			name: "bare tag",
			rec:  Record{Type: EntityTag, Name: "tech"},
			want: "tech",
		},
		{
			name: "contact with details",
			rec: Record{
				Type:   EntityContact,
				Name:   "Alice Johnson",
				Fields: map[string]string{"company": "Acme", "email": "alice@example.com"},
				Tags:   []string{"tech", "friends"},
			},
			want: "Alice Johnson (Acme; alice@example.com; tags: tech, friends)",
		},
		{
			name: "long note body",
			rec: Record{
				Type:   EntityNote,
				Name:   "Lunch",
				Fields: map[string]string{"body": "Talked about the new project and the hiring plan for next quarter at length"},
			},
			want: "Lunch (Talked about the new project and the hiring plan for next...)",
		},
		{
			name: "multibyte note body",
			rec: Record{
				Type:   EntityNote,
				Name:   "Notiz",
				Fields: map[string]string{"body": strings.Repeat("ä", 80)},
			},
			want: "Notiz (" + strings.Repeat("ä", 57) + "...)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rec.Summary()
			if got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Summary() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestFilterMerge(t *testing.T) {
	base := Filter{Tags: []string{"tech"}, Company: "Acme", Limit: 10}
	got := base.Merge(Filter{Tags: []string{"tech", "friends"}, Company: "Initech"})

	want := Filter{Tags: []string{"tech", "friends"}, Company: "Initech", Limit: 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if len(base.Tags) != 1 {
		t.Errorf("Merge mutated the receiver: %v", base.Tags)
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("empty filter should be zero")
	}
	if (Filter{Tags: []string{"x"}}).IsZero() {
		t.Error("filter with tags should not be zero")
	}
}

func TestFilterKeys(t *testing.T) {
	f := Filter{Name: "al", Tags: []string{"tech"}, Limit: 5}
	want := []string{FilterName, FilterTags, FilterLimit}
	if diff := cmp.Diff(want, f.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterString(t *testing.T) {
	f := Filter{Company: "Acme", Tags: []string{"tech", "friends"}, Limit: 5}
	if got, want := f.String(), "tags=tech,friends, company=Acme, limit=5"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Filter{}).String(); got != "" {
		t.Errorf("zero String() = %q", got)
	}
}
