package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/model"
)

// fakeOllama answers /api/chat with scripted replies in order.
type fakeOllama struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/chat" {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	reply := `{"intent":"search","search":{"entity_type":"contact","filters":{}}}`
	if f.calls < len(f.replies) {
		reply = f.replies[f.calls]
	}
	f.calls++
	json.NewEncoder(w).Encode(map[string]any{
		"model":   "test-model",
		"message": map[string]string{"role": "assistant", "content": reply},
		"done":    true,
	})
}

// writeConfig writes a config using a fresh data directory and returns
// its path.
func writeConfig(t *testing.T, ollamaURL string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`model:
  provider: ollama
  name: test-model
providers:
  ollama:
    url: %s
data_dir: %s
log_level: error
`, ollamaURL, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "kith.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(stdin), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Version(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "kith ") || !strings.Contains(out, "go:") {
		t.Errorf("version output = %q", out)
	}

	out, err = runCLI(t, "", "-o", "json", "version")
	if err != nil {
		t.Fatal(err)
	}
	var info struct {
		Version   string `json:"version"`
		GoVersion string `json:"go_version"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json: %v\n%s", err, out)
	}
	if info.Version == "" || info.GoVersion == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRun_BadFlags(t *testing.T) {
	if _, err := runCLI(t, "", "-o", "yaml", "version"); err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("err = %v", err)
	}
	if _, err := runCLI(t, "", "--config", "/nonexistent/kith.yaml", "stats"); err == nil {
		t.Error("missing explicit config accepted")
	}
}

func TestRun_BackupLifecycle(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1")

	out, err := runCLI(t, "", "--config", cfg, "backup", "create", "before", "import")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Created backup #1 ") {
		t.Errorf("create output = %q", out)
	}

	out, err = runCLI(t, "", "--config", cfg, "backup", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "before import") || !strings.Contains(out, "manual") {
		t.Errorf("list output = %q", out)
	}

	out, err = runCLI(t, "", "--config", cfg, "backup", "verify")
	if err != nil || out != "#1 ok\n" {
		t.Errorf("verify = %q, %v", out, err)
	}

	if _, err := runCLI(t, "", "--config", cfg, "backup", "restore", "1"); err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("unconfirmed restore err = %v", err)
	}
	out, err = runCLI(t, "", "--config", cfg, "backup", "restore", "--yes", "#1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Restored backup #1") || !strings.Contains(out, "backup #2") {
		t.Errorf("restore output = %q", out)
	}

	if _, err := runCLI(t, "", "--config", cfg, "backup", "restore", "--yes", "zero"); err == nil {
		t.Error("invalid id accepted")
	}
}

func TestRun_AskCreatesAndAudits(t *testing.T) {
	srv := httptest.NewServer(&fakeOllama{replies: []string{
		`{"intent":"act","explanation":"create a tag","act":{"action":"create","entity_type":"tag","fields":{"name":"colleagues"}}}`,
	}})
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	out, err := runCLI(t, "", "--config", cfg, "ask", "make", "a", "colleagues", "tag")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `Created tag "colleagues".`) || !strings.Contains(out, "Backup #1 was taken first.") {
		t.Errorf("ask output = %q", out)
	}

	out, err = runCLI(t, "", "--config", cfg, "-o", "json", "audit")
	if err != nil {
		t.Fatal(err)
	}
	var entries []struct {
		Operation string `json:"operation"`
		Source    string `json:"source"`
		Success   bool   `json:"success"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("audit json: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].Operation != "create_tag" || entries[0].Source != "ask" || !entries[0].Success {
		t.Errorf("audit = %+v", entries)
	}

	out, err = runCLI(t, "", "--config", cfg, "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "tags:          1") || !strings.Contains(out, "backups:       1") {
		t.Errorf("stats output = %q", out)
	}
}

func TestRun_ChatDeleteDeniedByDefault(t *testing.T) {
	srv := httptest.NewServer(&fakeOllama{replies: []string{
		`{"intent":"act","act":{"action":"create","entity_type":"contact","fields":{"name":"Ann Lee"}}}`,
		`{"intent":"search","search":{"entity_type":"contact","filters":{"name":"ann"}}}`,
		`{"intent":"select","select":{"selection_type":"all"}}`,
		`{"intent":"act","act":{"action":"delete"}}`,
	}})
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	out, err := runCLI(t, "add Ann Lee\nfind ann\nselect them\ndelete them\n", "--config", cfg, "chat")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`Created contact "Ann Lee".`,
		"Found 1 contact.",
		"Selected all 1 contact.",
		"Not allowed: delete is disabled: allow_delete=false.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "", "--config", cfg, "stats")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "contacts:      1") {
		t.Errorf("stats output = %q", out)
	}
}

func TestRun_ChatScript(t *testing.T) {
	fake := &fakeOllama{replies: []string{
		`{"intent":"search","search":{"entity_type":"contact","filters":{"tags":["tech"]}}}`,
		`not a command at all`,
		`still not a command`,
		`{"intent":"backup","backup":{"comment":"checkpoint"}}`,
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	out, err := runCLI(t, "find tech people\n\nsing me a song\nback up now\nexit\nnever read\n", "--config", cfg, "chat")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"No matching contacts.",
		"couldn't turn that into a command",
		"Created backup #1 (checkpoint).",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}
	if fake.calls != 4 {
		t.Errorf("model calls = %d, want 4", fake.calls)
	}
}

func TestTerminalConfirmer(t *testing.T) {
	req := guard.ConfirmationRequest{
		Operation:  "delete_contact",
		Kind:       guard.KindDelete,
		EntityType: model.EntityContact,
		Count:      12,
		Reason:     "require_confirmation.delete is set",
	}
	for i := range 12 {
		req.Summaries = append(req.Summaries, fmt.Sprintf("Contact %d", i+1))
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		c := &terminalConfirmer{in: bufio.NewReader(strings.NewReader(tt.input)), out: &out}
		got, err := c.Confirm(context.Background(), req)
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "About to delete 12 contacts") || !strings.Contains(out.String(), "... and 2 more") {
			t.Errorf("prompt = %q", out.String())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &terminalConfirmer{in: bufio.NewReader(strings.NewReader("y\n")), out: &bytes.Buffer{}}
	if ok, err := c.Confirm(ctx, req); ok || err == nil {
		t.Errorf("cancelled Confirm = %v, %v", ok, err)
	}
}
