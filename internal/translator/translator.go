// Package translator turns a user message into a structured command by
// asking the language model, with one corrective retry when the reply
// cannot be parsed.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/llm"
	"github.com/nugget/kith/internal/prompts"
	"github.com/nugget/kith/internal/session"
)

// DefaultTimeout bounds each model call when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxAttempts is the first call plus the single corrective retry.
const maxAttempts = 2

// ParseError is returned when the model's reply is still unusable after
// the corrective retry.
type ParseError struct {
	Attempts int
	Raw      string // last reply
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse model reply after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is returned when a model call exceeds its deadline.
type TimeoutError struct {
	Timeout time.Duration
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model did not answer within %s (attempt %d)", e.Timeout, e.Attempt)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Config holds the model parameters used for translation.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Translator calls the model and parses its reply. It never touches
// session state.
type Translator struct {
	client llm.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Translator.
func New(client llm.Client, cfg Config, logger *slog.Logger) *Translator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "translator"),
	}
}

// Translate sends prompt to the model and decodes exactly one command
// from the reply. A malformed reply gets one corrective follow-up that
// restates the schema. Cancellation of ctx is returned unchanged.
func (t *Translator) Translate(ctx context.Context, msg string, prompt session.Prompt) (command.Command, error) {
	messages := slices.Clone(prompt.Messages)

	var raw string
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := t.call(ctx, messages, attempt)
		if err != nil {
			return command.Command{}, err
		}
		raw = reply

		cmd, err := parse(raw)
		if err == nil {
			t.logger.Debug("translated message",
				"message", msg,
				"intent", cmd.Intent,
				"attempts", attempt,
			)
			return cmd, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			t.logger.Warn("model reply malformed, sending correction",
				"attempt", attempt,
				"error", err,
			)
			messages = append(messages,
				llm.Message{Role: llm.RoleAssistant, Content: raw},
				llm.Message{Role: llm.RoleUser, Content: prompts.Correction(err.Error())},
			)
		}
	}

	return command.Command{}, &ParseError{Attempts: maxAttempts, Raw: raw, Err: lastErr}
}

func (t *Translator) call(ctx context.Context, messages []llm.Message, attempt int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := t.client.Chat(callCtx, t.cfg.Model, messages, llm.Options{
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			t.logger.Warn("model call timed out", "attempt", attempt, "timeout", t.cfg.Timeout)
			return "", &TimeoutError{Timeout: t.cfg.Timeout, Attempt: attempt}
		}
		return "", fmt.Errorf("model request: %w", err)
	}

	t.logger.Debug("model replied",
		"model", resp.Model,
		"attempt", attempt,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start),
	)
	t.logger.Log(ctx, llm.LevelTrace, "model reply", "content", resp.Message.Content)
	return resp.Message.Content, nil
}

// parse extracts and strictly decodes the single command in raw. A
// command with an unknown intent or the wrong parameter block does not
// match the schema; field values are left to the validator.
func parse(raw string) (command.Command, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return command.Command{}, err
	}
	cmd, err := command.Decode([]byte(obj))
	if err != nil {
		return command.Command{}, err
	}
	if err := command.CheckShape(cmd); err != nil {
		return command.Command{}, err
	}
	return cmd, nil
}
