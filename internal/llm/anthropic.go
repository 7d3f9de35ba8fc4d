package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/kith/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"

	anthropicDefaultMaxTokens = 1024
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client. An empty apiURL
// selects the public endpoint.
func NewAnthropicClient(apiKey, apiURL string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if apiURL == "" {
		apiURL = anthropicAPIURL
	}
	logger = logger.With("provider", "anthropic")
	return &AnthropicClient{
		apiKey:     apiKey,
		apiURL:     apiURL,
		logger:     logger,
		httpClient: httpkit.NewClient(httpkit.Options{Logger: logger}),
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chat sends a chat completion request. Anthropic has no JSON mode; the
// system prompt carries the format instructions.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error) {
	msgs, system := convertToAnthropic(messages)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temp := opts.Temperature
	req := anthropicRequest{
		Model:       model,
		Messages:    msgs,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	}

	c.logger.Debug("preparing request",
		"model", model,
		"messages", len(msgs),
		"system_len", len(system),
	)

	var out anthropicResponse
	start := time.Now()
	if err := c.post(ctx, req, &out); err != nil {
		return nil, err
	}
	return convertFromAnthropic(&out, time.Since(start)), nil
}

// Ping sends a one-token request to verify the API key works.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	req := anthropicRequest{
		Model:     "claude-3-5-haiku-latest",
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	}
	var out anthropicResponse
	if err := c.post(ctx, req, &out); err != nil {
		return fmt.Errorf("ping anthropic: %w", err)
	}
	return nil
}

func (c *AnthropicClient) post(ctx context.Context, req anthropicRequest, out *anthropicResponse) error {
	return postJSON(ctx, c.httpClient, c.logger, "anthropic", c.apiURL, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}, req, out)
}

// convertToAnthropic extracts system messages into a separate system
// prompt and merges consecutive same-role messages, which the Messages
// API rejects.
func convertToAnthropic(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	var result []anthropicMessage
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		if n := len(result); n > 0 && result[n-1].Role == msg.Role {
			result[n-1].Content += "\n\n" + msg.Content
			continue
		}
		result = append(result, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	return result, strings.Join(systemParts, "\n\n")
}

func convertFromAnthropic(resp *anthropicResponse, elapsed time.Duration) *ChatResponse {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &ChatResponse{
		Model:         resp.Model,
		Message:       Message{Role: RoleAssistant, Content: text.String()},
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		TotalDuration: elapsed,
	}
}
