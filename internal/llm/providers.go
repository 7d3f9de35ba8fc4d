package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/kith/internal/config"
)

// NewFromConfig builds a MultiClient with every configured provider
// registered and the model provider as fallback.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MultiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clients := make(map[string]Client)

	// Ollama needs no credentials, so it is always available.
	clients[config.ProviderOllama] = NewOllamaClient(cfg.ProviderURL(config.ProviderOllama), logger)

	if key := cfg.ProviderAPIKey(config.ProviderAnthropic); key != "" {
		clients[config.ProviderAnthropic] = NewAnthropicClient(key, cfg.ProviderURL(config.ProviderAnthropic), logger)
	}
	if key := cfg.ProviderAPIKey(config.ProviderGemini); key != "" {
		gc, err := NewGeminiClient(ctx, key, cfg.ProviderURL(config.ProviderGemini), cfg.Model.Name, logger)
		if err != nil {
			return nil, err
		}
		clients[config.ProviderGemini] = gc
	}

	fallback, ok := clients[cfg.Model.Provider]
	if !ok {
		return nil, fmt.Errorf("model provider %q is not configured", cfg.Model.Provider)
	}

	m := NewMultiClient(fallback)
	for name, c := range clients {
		m.AddProvider(name, c)
	}
	m.AddModel(cfg.Model.Name, cfg.Model.Provider)

	logger.Debug("llm providers ready", "providers", m.Providers(), "model", cfg.Model.Name, "fallback", cfg.Model.Provider)
	return m, nil
}
