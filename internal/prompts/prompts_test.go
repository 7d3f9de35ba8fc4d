package prompts

import (
	"strings"
	"testing"
)

func TestSystem_AppendsSchema(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"default", "", "You are kith"},
		{"custom persona", "You are a terse librarian.", "You are a terse librarian."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := System(tt.base)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("System() does not start with %q", tt.want)
			}
			if !strings.Contains(got, "## Command format") {
				t.Error("System() is missing the command schema")
			}
		})
	}
}

func TestCommandSchema_NamesEveryIntent(t *testing.T) {
	schema := CommandSchema()
	for _, intent := range []string{"search", "refine", "select", "act", "backup"} {
		if !strings.Contains(schema, `"intent":"`+intent+`"`) {
			t.Errorf("schema has no example for intent %q", intent)
		}
	}
}

func TestCorrection(t *testing.T) {
	got := Correction("no JSON object found")
	if !strings.Contains(got, "no JSON object found") {
		t.Errorf("Correction() should name the problem, got %q", got)
	}
	if !strings.Contains(got, "## Command format") {
		t.Error("Correction() should restate the schema")
	}
}

func TestContextTemplates(t *testing.T) {
	item := ItemizedContext("contacts", 2, []string{"1. Alice", "2. Bob"}, SelectionLine(1, "contact"))
	for _, want := range []string{"2 contacts are displayed", "1. Alice", "Selected: 1 contact."} {
		if !strings.Contains(item, want) {
			t.Errorf("ItemizedContext() missing %q:\n%s", want, item)
		}
	}

	compact := CompactContext("contacts", 3, "tags=tech", "")
	if !strings.Contains(compact, "numbered 1 to 3") || !strings.Contains(compact, "tags=tech") {
		t.Errorf("CompactContext() = %q", compact)
	}
	if SelectionLine(0, "contacts") != "Nothing is selected." {
		t.Errorf("SelectionLine(0) = %q", SelectionLine(0, "contacts"))
	}
}
