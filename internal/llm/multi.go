package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MultiClient routes each request to a provider. A model may be written
// as "provider/name" to pick the provider explicitly; otherwise the
// model table is consulted, then the fallback.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client
}

// NewMultiClient creates a router with the given fallback provider.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel pins a bare model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// Providers returns the number of registered providers.
func (m *MultiClient) Providers() int {
	return len(m.clients)
}

// route resolves model to a client and the model name that client
// expects.
func (m *MultiClient) route(model string) (Client, string) {
	if provider, name, ok := strings.Cut(model, "/"); ok {
		if client, ok := m.clients[provider]; ok {
			return client, name
		}
	}
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client, model
		}
	}
	return m.fallback, model
}

// Chat sends a request to the provider that serves model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error) {
	client, name := m.route(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.Chat(ctx, name, messages, opts)
}

// Ping checks the fallback provider.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil {
		return errors.New("no fallback client configured")
	}
	return m.fallback.Ping(ctx)
}
