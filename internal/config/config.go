// Package config handles kith configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nugget/kith/internal/prompts"
)

// Providers kith can talk to.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Context modes for display context in prompts.
const (
	ModeAuto     = "auto"
	ModeCompact  = "compact"
	ModeItemized = "itemized"
)

// Action kinds that can require confirmation.
var confirmKinds = []string{"create", "update", "delete"}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first.
// Then: ./kith.yaml, ./kith.toml, ~/.config/kith/kith.yaml,
// ~/.config/kith/kith.toml, /etc/kith/kith.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"kith.yaml", "kith.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "kith")
		paths = append(paths, filepath.Join(dir, "kith.yaml"), filepath.Join(dir, "kith.toml"))
	}

	paths = append(paths, "/etc/kith/kith.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns "" with no error when nothing was found, in which case callers
// run with Default().
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Config holds all kith configuration.
type Config struct {
	Model            ModelConfig       `yaml:"model" toml:"model"`
	Providers        ProvidersConfig   `yaml:"providers" toml:"providers"`
	Permissions      PermissionsConfig `yaml:"permissions" toml:"permissions"`
	Context          ContextConfig     `yaml:"context" toml:"context"`
	Backup           BackupConfig      `yaml:"backup" toml:"backup"`
	SystemPrompt     string            `yaml:"system_prompt" toml:"system_prompt"`
	SystemPromptFile string            `yaml:"system_prompt_file" toml:"system_prompt_file"`
	DataDir          string            `yaml:"data_dir" toml:"data_dir"`
	Database         string            `yaml:"database" toml:"database"`
	AuditDatabase    string            `yaml:"audit_database" toml:"audit_database"`
	ExportDir        string            `yaml:"export_dir" toml:"export_dir"`
	LogLevel         string            `yaml:"log_level" toml:"log_level"`
	LogFormat        string            `yaml:"log_format" toml:"log_format"` // text or json
}

// ModelConfig selects the model that translates requests into commands.
type ModelConfig struct {
	Provider       string  `yaml:"provider" toml:"provider"` // ollama, anthropic, gemini
	Name           string  `yaml:"name" toml:"name"`
	URL            string  `yaml:"url" toml:"url"`         // overrides the provider URL
	APIKey         string  `yaml:"api_key" toml:"api_key"` // overrides the provider key
	TimeoutSeconds int     `yaml:"timeout" toml:"timeout"`
	Temperature    float64 `yaml:"temperature" toml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" toml:"max_tokens"`
}

// ProvidersConfig holds per-provider connection settings.
type ProvidersConfig struct {
	Ollama    OllamaConfig    `yaml:"ollama" toml:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic" toml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini" toml:"gemini"`
}

// OllamaConfig defines the Ollama server location.
type OllamaConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// Configured reports whether an Ollama URL is set.
func (c OllamaConfig) Configured() bool { return c.URL != "" }

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// Configured reports whether an API key is set.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// GeminiConfig defines Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// Configured reports whether an API key is set.
func (c GeminiConfig) Configured() bool { return c.APIKey != "" }

// PermissionsConfig is the mutation policy. It is loaded once and not
// changed for the life of a session.
type PermissionsConfig struct {
	ReadOnlyMode        bool            `yaml:"read_only_mode" toml:"read_only_mode"`
	AllowCreate         bool            `yaml:"allow_create" toml:"allow_create"`
	AllowUpdate         bool            `yaml:"allow_update" toml:"allow_update"`
	AllowDelete         bool            `yaml:"allow_delete" toml:"allow_delete"`
	RequireConfirmation map[string]bool `yaml:"require_confirmation" toml:"require_confirmation"` // keyed by create, update, delete
	MaxBulkOperations   int             `yaml:"max_bulk_operations" toml:"max_bulk_operations"`   // 0 = no limit
}

// ContextConfig bounds the conversational context sent to the model.
type ContextConfig struct {
	TokenBudget int    `yaml:"token_budget" toml:"token_budget"`
	MaxTurns    int    `yaml:"max_turns" toml:"max_turns"`
	Mode        string `yaml:"mode" toml:"mode"` // auto, compact, itemized
}

// BackupConfig controls datastore snapshots.
type BackupConfig struct {
	Dir      string `yaml:"dir" toml:"dir"`
	KeepAuto int    `yaml:"keep_auto" toml:"keep_auto"` // 0 = keep all
}

// Load reads configuration from a YAML or TOML file (chosen by
// extension), applies defaults for anything unset, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	cfg.Database, cfg.AuditDatabase, cfg.ExportDir, cfg.Backup.Dir = "", "", "", ""

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a complete working configuration: a local Ollama
// model, deletes disabled, and data under ~/.local/share/kith.
func Default() *Config {
	cfg := &Config{
		Model: ModelConfig{
			Provider:       ProviderOllama,
			Name:           "qwen3:4b",
			TimeoutSeconds: 30,
			Temperature:    0.1,
			MaxTokens:      1024,
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{URL: "http://localhost:11434"},
		},
		Permissions: PermissionsConfig{
			AllowCreate:         true,
			AllowUpdate:         true,
			AllowDelete:         false,
			RequireConfirmation: map[string]bool{"delete": true},
			MaxBulkOperations:   10,
		},
		Context: ContextConfig{
			TokenBudget: 4000,
			MaxTurns:    10,
			Mode:        ModeAuto,
		},
		Backup:    BackupConfig{KeepAuto: 20},
		DataDir:   "~/.local/share/kith",
		LogLevel:  "info",
		LogFormat: "text",
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults derives unset paths from DataDir and expands ~.
func (c *Config) applyDefaults() {
	c.DataDir = expandHome(c.DataDir)
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "kith.db")
	}
	if c.AuditDatabase == "" {
		c.AuditDatabase = filepath.Join(c.DataDir, "audit.db")
	}
	if c.ExportDir == "" {
		c.ExportDir = filepath.Join(c.DataDir, "exports")
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
	c.Database = expandHome(c.Database)
	c.AuditDatabase = expandHome(c.AuditDatabase)
	c.ExportDir = expandHome(c.ExportDir)
	c.Backup.Dir = expandHome(c.Backup.Dir)
	c.SystemPromptFile = expandHome(c.SystemPromptFile)
}

// Validate rejects configurations kith cannot run with.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderOllama, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("model.provider: unknown provider %q (valid: ollama, anthropic, gemini)", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name: required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature: %v is outside [0, 2]", c.Model.Temperature)
	}
	if c.Model.TimeoutSeconds <= 0 {
		return fmt.Errorf("model.timeout: must be positive, got %d", c.Model.TimeoutSeconds)
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens: must not be negative, got %d", c.Model.MaxTokens)
	}
	if c.ProviderAPIKey(c.Model.Provider) == "" && c.Model.Provider != ProviderOllama {
		return fmt.Errorf("model.api_key: %s requires an API key (set model.api_key or providers.%s.api_key)",
			c.Model.Provider, c.Model.Provider)
	}
	if c.Model.Provider == ProviderOllama && c.ProviderURL(ProviderOllama) == "" {
		return fmt.Errorf("providers.ollama.url: required for the ollama provider")
	}

	if c.Context.TokenBudget <= 0 {
		return fmt.Errorf("context.token_budget: must be positive, got %d", c.Context.TokenBudget)
	}
	if c.Context.MaxTurns < 0 {
		return fmt.Errorf("context.max_turns: must not be negative, got %d", c.Context.MaxTurns)
	}
	switch c.Context.Mode {
	case ModeAuto, ModeCompact, ModeItemized:
	default:
		return fmt.Errorf("context.mode: unknown mode %q (valid: auto, compact, itemized)", c.Context.Mode)
	}

	for kind := range c.Permissions.RequireConfirmation {
		if !slices.Contains(confirmKinds, kind) {
			return fmt.Errorf("permissions.require_confirmation: unknown action kind %q (valid: %s)",
				kind, strings.Join(confirmKinds, ", "))
		}
	}
	if c.Permissions.MaxBulkOperations < 0 {
		return fmt.Errorf("permissions.max_bulk_operations: must not be negative, got %d", c.Permissions.MaxBulkOperations)
	}
	if c.Backup.KeepAuto < 0 {
		return fmt.Errorf("backup.keep_auto: must not be negative, got %d", c.Backup.KeepAuto)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}

// ProviderAPIKey returns the API key for provider, preferring
// model.api_key when provider is the configured model provider.
func (c *Config) ProviderAPIKey(provider string) string {
	if provider == c.Model.Provider && c.Model.APIKey != "" {
		return c.Model.APIKey
	}
	switch provider {
	case ProviderAnthropic:
		return c.Providers.Anthropic.APIKey
	case ProviderGemini:
		return c.Providers.Gemini.APIKey
	}
	return ""
}

// ProviderURL returns the base URL for provider, preferring model.url
// when provider is the configured model provider.
func (c *Config) ProviderURL(provider string) string {
	if provider == c.Model.Provider && c.Model.URL != "" {
		return c.Model.URL
	}
	if provider == ProviderOllama {
		return c.Providers.Ollama.URL
	}
	return ""
}

// SystemPromptText returns the base system prompt: the inline
// system_prompt, else the contents of system_prompt_file, else the
// built-in default.
func (c *Config) SystemPromptText() (string, error) {
	if strings.TrimSpace(c.SystemPrompt) != "" {
		return c.SystemPrompt, nil
	}
	if c.SystemPromptFile != "" {
		data, err := os.ReadFile(c.SystemPromptFile)
		if err != nil {
			return "", fmt.Errorf("read system_prompt_file: %w", err)
		}
		return string(data), nil
	}
	return prompts.BaseSystemPrompt(), nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
