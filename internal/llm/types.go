// Package llm provides the language model clients that translate user
// requests into commands.
package llm

import (
	"time"

	"github.com/nugget/kith/internal/config"
)

// LevelTrace is the level request and reply payloads are logged at.
const LevelTrace = config.LevelTrace

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-request generation parameters.
type Options struct {
	Temperature float64
	MaxTokens   int

	// JSON asks the provider to constrain output to a JSON object where
	// it supports that.
	JSON bool
}

// ChatResponse is the unified response from any LLM provider. Wire
// format conversion happens at provider boundaries.
type ChatResponse struct {
	Model   string
	Message Message

	InputTokens  int
	OutputTokens int

	TotalDuration time.Duration
}
