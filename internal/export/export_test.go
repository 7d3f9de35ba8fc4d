package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nugget/kith/internal/model"
)

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	e := New(filepath.Join(t.TempDir(), "exports"), nil)
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

var contacts = []model.Record{
	{
		ID:     "0001",
		Type:   model.EntityContact,
		Name:   "Alice Johnson",
		Fields: map[string]string{"company": "Acme", "email": "alice@acme.test"},
		Tags:   []string{"friends", "tech"},
	},
	{
		ID:     "0002",
		Type:   model.EntityContact,
		Name:   "Bob Smith",
		Fields: map[string]string{"phone": "555-0100"},
		Tags:   []string{"tech"},
	},
}

func exportString(t *testing.T, e *Exporter, recs []model.Record, format string) (string, string) {
	t.Helper()
	path, err := e.Export(context.Background(), recs, format, "Tech Contacts")
	if err != nil {
		t.Fatalf("Export(%s) error = %v", format, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return path, string(data)
}

func TestExport_Filenames(t *testing.T) {
	e := newTestExporter(t)

	tests := []struct {
		format string
		want   string
	}{
		{FormatJSON, "tech-contacts-20260301-120000.json"},
		{FormatCSV, "tech-contacts-20260301-120000.csv"},
		{FormatVCard, "tech-contacts-20260301-120000.vcf"},
		{FormatMarkdown, "tech-contacts-20260301-120000.md"},
		{FormatHTML, "tech-contacts-20260301-120000.html"},
		{FormatJSON, "tech-contacts-20260301-120000-2.json"},
	}
	for _, tt := range tests {
		path, _ := exportString(t, e, contacts, tt.format)
		if got := filepath.Base(path); got != tt.want {
			t.Errorf("Export(%s) file = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestExport_JSON(t *testing.T) {
	_, out := exportString(t, newTestExporter(t), contacts, FormatJSON)

	var doc struct {
		Label   string         `json:"label"`
		Count   int            `json:"count"`
		Records []model.Record `json:"records"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Count != 2 || doc.Label != "Tech Contacts" {
		t.Errorf("doc = %+v", doc)
	}
	if diff := cmp.Diff(contacts, doc.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_CSV(t *testing.T) {
	_, out := exportString(t, newTestExporter(t), contacts, FormatCSV)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	want := [][]string{
		{"id", "type", "name", "company", "email", "phone", "tags"},
		{"0001", "contact", "Alice Johnson", "Acme", "alice@acme.test", "", "friends;tech"},
		{"0002", "contact", "Bob Smith", "", "", "555-0100", "tech"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_VCard(t *testing.T) {
	_, out := exportString(t, newTestExporter(t), contacts, FormatVCard)

	for _, want := range []string{
		"BEGIN:VCARD", "VERSION:4.0", "FN:Alice Johnson", "N:Johnson;Alice",
		"EMAIL:alice@acme.test", "ORG:Acme", "TEL:555-0100", "CATEGORIES:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("vcard missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "BEGIN:VCARD"); n != 2 {
		t.Errorf("cards = %d, want 2", n)
	}
}

func TestExport_VCardRejectsNonContacts(t *testing.T) {
	e := newTestExporter(t)
	tags := []model.Record{{ID: "t1", Type: model.EntityTag, Name: "tech"}}

	_, err := e.Export(context.Background(), tags, FormatVCard, "tags")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Export(vcard, tags) error = %v, want ErrUnsupported", err)
	}
}

func TestExport_MarkdownAndHTML(t *testing.T) {
	e := newTestExporter(t)

	_, md := exportString(t, e, contacts, FormatMarkdown)
	for _, want := range []string{"# Tech Contacts", "_2 contacts, exported 2026-03-01 12:00_", "## Alice Johnson", "- **company**: Acme", "- **tags**: friends, tech"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	_, page := exportString(t, e, contacts, FormatHTML)
	for _, want := range []string{"<title>Tech Contacts</title>", "<h1>Tech Contacts</h1>", "<h2>Alice Johnson</h2>", "<strong>company</strong>"} {
		if !strings.Contains(page, want) {
			t.Errorf("html missing %q:\n%s", want, page)
		}
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := newTestExporter(t).Export(context.Background(), contacts, "xlsx", "x")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Export(xlsx) error = %v, want ErrUnsupported", err)
	}
}

func TestExport_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestExporter(t).Export(ctx, contacts, FormatJSON, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Export() error = %v, want context.Canceled", err)
	}
}
