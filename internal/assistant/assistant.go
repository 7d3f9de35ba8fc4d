// Package assistant runs one user message through the whole pipeline:
// prompt construction, translation, validation, the safety guard and
// execution. Every failure is turned into a Response the caller can show
// to the user; no error ends the session.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/kith/internal/backup"
	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/session"
	"github.com/nugget/kith/internal/translator"
	"github.com/nugget/kith/internal/workflow"
)

// Kind classifies a Response.
type Kind string

const (
	KindOK            Kind = "ok"
	KindNotUnderstood Kind = "not_understood" // model reply was not a valid command
	KindInvalid       Kind = "invalid"
	KindSelection     Kind = "selection"
	KindDenied        Kind = "denied"
	KindCancelled     Kind = "cancelled"
	KindTimeout       Kind = "timeout"
	KindBackupFailed  Kind = "backup_failed"
	KindFailed        Kind = "failed"
	KindTooLong       Kind = "too_long"
	KindAborted       Kind = "aborted" // caller cancelled the context
)

// Response is the result of handling one message.
type Response struct {
	Kind    Kind
	Text    string
	Command *command.Command // nil when translation failed
	Outcome *workflow.Outcome
	Err     error
}

// Translator turns a message and its prompt into a Command.
type Translator interface {
	Translate(ctx context.Context, msg string, prompt session.Prompt) (command.Command, error)
}

// Executor runs a Command against a session.
type Executor interface {
	Execute(ctx context.Context, sess *session.Session, cmd command.Command) (*workflow.Outcome, error)
}

// Assistant handles user messages for any number of sessions, one
// message at a time per session.
type Assistant struct {
	translator Translator
	executor   Executor
	logger     *slog.Logger
}

// New creates an Assistant.
func New(t Translator, e Executor, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		translator: t,
		executor:   e,
		logger:     logger.With("component", "assistant"),
	}
}

// Handle processes msg in sess. When ctx is cancelled the session is
// left exactly as it was; otherwise the turn is recorded in its history.
func (a *Assistant) Handle(ctx context.Context, sess *session.Session, msg string) *Response {
	start := time.Now()
	log := a.logger.With("session", sess.ID)

	resp := a.handle(ctx, sess, msg)
	if resp.Kind == KindAborted {
		log.Info("request aborted", "elapsed", time.Since(start))
		return resp
	}

	turn := session.Turn{User: msg, Assistant: resp.Text, Timestamp: time.Now()}
	if resp.Command != nil {
		turn.Command = resp.Command.String()
	}
	sess.Context.RecordTurn(turn)

	log.Info("request handled",
		"kind", resp.Kind,
		"intent", intentOf(resp.Command),
		"elapsed", time.Since(start),
	)
	return resp
}

func (a *Assistant) handle(ctx context.Context, sess *session.Session, msg string) *Response {
	prompt, err := sess.Context.BuildPrompt(msg)
	if err != nil {
		return a.fail(ctx, nil, err)
	}
	a.logger.Debug("prompt built",
		"tokens", prompt.Tokens,
		"context", prompt.Context,
		"turns", prompt.Turns,
	)

	cmd, err := a.translator.Translate(ctx, msg, prompt)
	if err != nil {
		return a.fail(ctx, nil, err)
	}

	out, err := a.executor.Execute(ctx, sess, cmd)
	if err != nil {
		return a.fail(ctx, &cmd, err)
	}
	return &Response{Kind: KindOK, Text: out.Message, Command: &cmd, Outcome: out}
}

// fail converts err into a Response. Expected failures are warnings;
// failed backups and executions are errors.
func (a *Assistant) fail(ctx context.Context, cmd *command.Command, err error) *Response {
	resp := &Response{Command: cmd, Err: err}

	var (
		parseErr   *translator.ParseError
		timeoutErr *translator.TimeoutError
		validErr   *command.ValidationError
		selErr     *session.SelectionError
		permErr    *guard.PermissionError
		backupErr  *backup.BackupError
		execErr    *workflow.ExecutionError
	)
	level := slog.LevelWarn
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		resp.Kind = KindAborted
		resp.Text = "Cancelled."
		level = slog.LevelInfo
	case errors.Is(err, session.ErrPromptTooLarge):
		resp.Kind = KindTooLong
		resp.Text = "That message is too long to send to the model. Try a shorter request."
	case errors.As(err, &timeoutErr):
		resp.Kind = KindTimeout
		resp.Text = fmt.Sprintf("The model did not answer within %s. Try again.", timeoutErr.Timeout)
	case errors.As(err, &parseErr):
		resp.Kind = KindNotUnderstood
		resp.Text = "Sorry, I couldn't turn that into a command. Could you rephrase it?"
	case errors.As(err, &validErr):
		resp.Kind = KindInvalid
		resp.Text = fmt.Sprintf("I can't do that: %s %s.", validErr.Field, validErr.Reason)
	case errors.As(err, &selErr):
		resp.Kind = KindSelection
		resp.Text = "I couldn't tell which records you meant: " + selErr.Reason + "."
	case errors.As(err, &permErr):
		resp.Kind = KindDenied
		resp.Text = fmt.Sprintf("Not allowed: %s.", permErr.Error())
	case errors.Is(err, guard.ErrCancelled):
		resp.Kind = KindCancelled
		resp.Text = "Cancelled. Nothing was changed."
	case errors.As(err, &backupErr):
		resp.Kind = KindBackupFailed
		resp.Text = "The safety backup failed, so nothing was changed: " + backupErr.Error() + "."
		level = slog.LevelError
	case errors.As(err, &execErr):
		resp.Kind = KindFailed
		resp.Text = "The operation failed: " + execErr.Error() + "."
		level = slog.LevelError
	default:
		resp.Kind = KindFailed
		resp.Text = "Something went wrong: " + err.Error() + "."
		level = slog.LevelError
	}

	a.logger.Log(ctx, level, "request failed",
		"kind", resp.Kind,
		"intent", intentOf(cmd),
		"error", err,
	)
	return resp
}

func intentOf(cmd *command.Command) string {
	if cmd == nil {
		return ""
	}
	return string(cmd.Intent)
}
