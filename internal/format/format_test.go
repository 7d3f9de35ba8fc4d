package format

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nugget/kith/internal/model"
)

func contact(id, name, company string, tags ...string) model.Record {
	return model.Record{
		ID:     id,
		Type:   model.EntityContact,
		Name:   name,
		Fields: map[string]string{"company": company},
		Tags:   tags,
	}
}

func TestRender_Contacts(t *testing.T) {
	recs := []model.Record{
		contact("a", "Alice Johnson", "Acme", "tech"),
		contact("b", "Bob Smith", "Acme", "tech"),
		contact("c", "Carol Davis", "Initech", "tech"),
	}

	res := New(100, false).Render(model.EntityContact, recs)

	var got []string
	for _, row := range res.Rows {
		got = append(got, fmt.Sprintf("%d:%s", row.Index, row.IDs[0]))
	}
	if diff := cmp.Diff([]string{"1:a", "2:b", "3:c"}, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"Name", "Company", "Alice Johnson", "Initech"} {
		if !strings.Contains(res.Table, want) {
			t.Errorf("table missing %q:\n%s", want, res.Table)
		}
	}
	if diff := cmp.Diff("1. Alice Johnson (Acme; tags: tech)", res.Labels()[0]); diff != "" {
		t.Errorf("label mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_Empty(t *testing.T) {
	res := New(0, false).Render(model.EntityNote, nil)
	if len(res.Rows) != 0 {
		t.Errorf("rows = %d, want 0", len(res.Rows))
	}
	if res.Table != "No matching notes." {
		t.Errorf("table = %q", res.Table)
	}
}

// For any N records, indices are exactly 1..N mapped to the records'
// ids in order.
func TestRender_IndicesAreContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := New(80, false)
	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(40)
		recs := make([]model.Record, n)
		for i := range recs {
			recs[i] = contact(fmt.Sprintf("id-%d-%d", trial, i), fmt.Sprintf("Person %d", rng.Intn(1000)), "")
		}

		res := r.Render(model.EntityContact, recs)
		if len(res.Rows) != n {
			t.Fatalf("trial %d: rows = %d, want %d", trial, len(res.Rows), n)
		}
		seen := map[string]bool{}
		for i, row := range res.Rows {
			if row.Index != i+1 {
				t.Fatalf("trial %d: row %d has index %d", trial, i, row.Index)
			}
			if len(row.IDs) != 1 || row.IDs[0] != recs[i].ID {
				t.Fatalf("trial %d: row %d ids = %v, want [%s]", trial, i, row.IDs, recs[i].ID)
			}
			if seen[row.IDs[0]] {
				t.Fatalf("trial %d: duplicate id %s", trial, row.IDs[0])
			}
			seen[row.IDs[0]] = true
		}
	}
}

func TestRender_Deterministic(t *testing.T) {
	recs := []model.Record{contact("a", "Alice", "Acme"), contact("b", "Bob", "")}
	r := New(100, false)
	first := r.Render(model.EntityContact, recs)
	second := r.Render(model.EntityContact, recs)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("render not deterministic (-first +second):\n%s", diff)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"a much longer value", 10, "a much ..."},
		{"multi\nline   text", 0, "multi line text"},
		{"héllo wörld", 6, "hél..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
