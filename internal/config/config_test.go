package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "test.yaml", "log_level: debug\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/kith.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "kith.toml", "log_level = \"debug\"\n")
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "kith.toml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "kith.toml")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Permissions.AllowDelete {
		t.Error("deletes should be disabled by default")
	}
	if !strings.HasSuffix(cfg.Database, "kith.db") {
		t.Errorf("Database = %q, want a kith.db path", cfg.Database)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("KITH_TEST_KEY", "sk-test")
	dir := t.TempDir()
	path := writeFile(t, dir, "kith.yaml", `
model:
  provider: anthropic
  name: claude-test
  api_key: ${KITH_TEST_KEY}
  temperature: 0.2
permissions:
  allow_delete: true
  require_confirmation:
    update: true
context:
  token_budget: 2000
  mode: itemized
data_dir: `+dir+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProviderAPIKey(ProviderAnthropic) != "sk-test" {
		t.Errorf("api key = %q, want env-expanded value", cfg.ProviderAPIKey(ProviderAnthropic))
	}
	if !cfg.Permissions.AllowDelete || !cfg.Permissions.AllowCreate {
		t.Errorf("permissions = %+v", cfg.Permissions)
	}
	if !cfg.Permissions.RequireConfirmation["update"] || !cfg.Permissions.RequireConfirmation["delete"] {
		t.Errorf("require_confirmation = %v, want defaults merged with file", cfg.Permissions.RequireConfirmation)
	}
	if cfg.Context.TokenBudget != 2000 || cfg.Context.MaxTurns != 10 {
		t.Errorf("context = %+v", cfg.Context)
	}
	if cfg.Database != filepath.Join(dir, "kith.db") {
		t.Errorf("Database = %q, want derived from data_dir", cfg.Database)
	}
	if cfg.Backup.Dir != filepath.Join(dir, "backups") {
		t.Errorf("Backup.Dir = %q", cfg.Backup.Dir)
	}
}

func TestLoad_TOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kith.toml", `
data_dir = "`+dir+`"
log_format = "json"

[model]
provider = "gemini"
name = "gemini-2.0-flash"

[providers.gemini]
api_key = "g-key"

[backup]
keep_auto = 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.Provider != ProviderGemini || cfg.ProviderAPIKey(ProviderGemini) != "g-key" {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Backup.KeepAuto != 5 {
		t.Errorf("KeepAuto = %d, want 5", cfg.Backup.KeepAuto)
	}
	if cfg.Model.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want default 0.1", cfg.Model.Temperature)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"temperature too high", func(c *Config) { c.Model.Temperature = 2.5 }, "model.temperature"},
		{"negative temperature", func(c *Config) { c.Model.Temperature = -0.1 }, "model.temperature"},
		{"unknown provider", func(c *Config) { c.Model.Provider = "openai" }, "unknown provider"},
		{"anthropic without key", func(c *Config) { c.Model.Provider = ProviderAnthropic }, "requires an API key"},
		{"unknown mode", func(c *Config) { c.Context.Mode = "verbose" }, "context.mode"},
		{"zero budget", func(c *Config) { c.Context.TokenBudget = 0 }, "context.token_budget"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"unknown confirmation kind", func(c *Config) { c.Permissions.RequireConfirmation["export"] = true }, "require_confirmation"},
		{"zero timeout", func(c *Config) { c.Model.TimeoutSeconds = 0 }, "model.timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "kith.yaml", "model:\n  temperature: 3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject temperature 3")
	}
}

func TestSystemPromptText_Priority(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "persona.md", "From file.")

	cfg := Default()
	if got, _ := cfg.SystemPromptText(); !strings.HasPrefix(got, "You are kith") {
		t.Errorf("default prompt = %q", got)
	}

	cfg.SystemPromptFile = file
	if got, _ := cfg.SystemPromptText(); got != "From file." {
		t.Errorf("file prompt = %q", got)
	}

	cfg.SystemPrompt = "Inline."
	if got, _ := cfg.SystemPromptText(); got != "Inline." {
		t.Errorf("inline prompt = %q", got)
	}

	cfg.SystemPrompt = ""
	cfg.SystemPromptFile = filepath.Join(dir, "missing.md")
	if _, err := cfg.SystemPromptText(); err == nil {
		t.Error("missing system_prompt_file should error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"chatty", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	a := ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, LevelTrace))
	if a.Value.String() != "TRACE" {
		t.Errorf("trace level rendered as %q, want TRACE", a.Value.String())
	}
	a = ReplaceLogLevelNames(nil, slog.Any(slog.LevelKey, slog.LevelInfo))
	if a.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Errorf("info level changed to %v", a.Value)
	}
}
