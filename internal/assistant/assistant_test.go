package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nugget/kith/internal/backup"
	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/model"
	"github.com/nugget/kith/internal/session"
	"github.com/nugget/kith/internal/translator"
	"github.com/nugget/kith/internal/workflow"
)

type fakeTranslator struct {
	cmd     command.Command
	err     error
	calls   int
	prompts []session.Prompt
}

func (f *fakeTranslator) Translate(ctx context.Context, _ string, p session.Prompt) (command.Command, error) {
	f.calls++
	f.prompts = append(f.prompts, p)
	if err := ctx.Err(); err != nil {
		return command.Command{}, err
	}
	return f.cmd, f.err
}

type fakeExecutor struct {
	out   *workflow.Outcome
	err   error
	calls int
}

func (f *fakeExecutor) Execute(context.Context, *session.Session, command.Command) (*workflow.Outcome, error) {
	f.calls++
	return f.out, f.err
}

func searchCommand() command.Command {
	return command.Command{
		Intent: command.IntentSearch,
		Search: &command.SearchParams{EntityType: model.EntityContact, Filters: model.Filter{Tags: []string{"tech"}}},
	}
}

func newTestAssistant(tr *fakeTranslator, ex *fakeExecutor) *Assistant {
	return New(tr, ex, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandle_Success(t *testing.T) {
	tr := &fakeTranslator{cmd: searchCommand()}
	ex := &fakeExecutor{out: &workflow.Outcome{Kind: workflow.KindResults, Message: "Found 3 contacts."}}
	a := newTestAssistant(tr, ex)
	sess := session.New(session.Options{System: "system"})

	resp := a.Handle(context.Background(), sess, "find my tech contacts")
	if resp.Kind != KindOK || resp.Text != "Found 3 contacts." || resp.Err != nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Outcome != ex.out {
		t.Error("outcome not passed through")
	}

	hist := sess.Context.History()
	if len(hist) != 1 {
		t.Fatalf("history len = %d, want 1", len(hist))
	}
	if hist[0].User != "find my tech contacts" || hist[0].Command != searchCommand().String() {
		t.Errorf("turn = %+v", hist[0])
	}

	// The recorded command is shown to the model on the next turn.
	a.Handle(context.Background(), sess, "select 1")
	msgs := tr.prompts[1].Messages
	var found bool
	for _, m := range msgs {
		if m.Content == searchCommand().String() {
			found = true
		}
	}
	if !found {
		t.Errorf("previous command missing from second prompt: %+v", msgs)
	}
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name         string
		translateErr error
		executeErr   error
		wantKind     Kind
		wantText     string
		wantCommand  bool
	}{
		{
			name:         "parse",
			translateErr: &translator.ParseError{Attempts: 2, Raw: "hello", Err: errors.New("no JSON object")},
			wantKind:     KindNotUnderstood,
			wantText:     "rephrase",
		},
		{
			name:         "timeout",
			translateErr: &translator.TimeoutError{Timeout: 30 * time.Second, Attempt: 1},
			wantKind:     KindTimeout,
			wantText:     "within 30s",
		},
		{
			name:         "transport",
			translateErr: errors.New("model request: connection refused"),
			wantKind:     KindFailed,
			wantText:     "connection refused",
		},
		{
			name:        "validation",
			executeErr:  &command.ValidationError{Field: "search.filters.colour", Reason: "not supported for contact"},
			wantKind:    KindInvalid,
			wantText:    "search.filters.colour not supported",
			wantCommand: true,
		},
		{
			name:        "selection",
			executeErr:  &session.SelectionError{Requested: []string{"all"}, Reason: "no results are displayed"},
			wantKind:    KindSelection,
			wantText:    "no results are displayed",
			wantCommand: true,
		},
		{
			name:        "permission",
			executeErr:  &guard.PermissionError{Kind: guard.KindDelete, Flag: "allow_delete", Value: false},
			wantKind:    KindDenied,
			wantText:    "allow_delete=false",
			wantCommand: true,
		},
		{
			name:        "declined",
			executeErr:  guard.ErrCancelled,
			wantKind:    KindCancelled,
			wantText:    "Nothing was changed",
			wantCommand: true,
		},
		{
			name:        "backup",
			executeErr:  &backup.BackupError{Op: "create", Err: errors.New("disk full")},
			wantKind:    KindBackupFailed,
			wantText:    "disk full",
			wantCommand: true,
		},
		{
			name:        "execution",
			executeErr:  &workflow.ExecutionError{Op: "delete", Err: errors.New("database is locked")},
			wantKind:    KindFailed,
			wantText:    "database is locked",
			wantCommand: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranslator{cmd: searchCommand(), err: tt.translateErr}
			ex := &fakeExecutor{err: tt.executeErr}
			a := newTestAssistant(tr, ex)
			sess := session.New(session.Options{System: "system"})

			resp := a.Handle(context.Background(), sess, "do something")
			if resp.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", resp.Kind, tt.wantKind)
			}
			if !strings.Contains(resp.Text, tt.wantText) {
				t.Errorf("Text = %q, want it to contain %q", resp.Text, tt.wantText)
			}
			if resp.Err == nil {
				t.Error("Err = nil")
			}
			if (resp.Command != nil) != tt.wantCommand {
				t.Errorf("Command = %v, want present=%v", resp.Command, tt.wantCommand)
			}
			if tt.translateErr != nil && ex.calls != 0 {
				t.Error("executor called after translation failed")
			}

			// The session carries on: the failed turn is in the history.
			hist := sess.Context.History()
			if len(hist) != 1 || hist[0].Assistant != resp.Text {
				t.Errorf("history = %+v", hist)
			}
		})
	}
}

func TestHandle_AbortedLeavesSessionUntouched(t *testing.T) {
	tr := &fakeTranslator{cmd: searchCommand()}
	ex := &fakeExecutor{out: &workflow.Outcome{Message: "ok"}}
	a := newTestAssistant(tr, ex)
	sess := session.New(session.Options{System: "system"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := a.Handle(ctx, sess, "find everyone")
	if resp.Kind != KindAborted {
		t.Fatalf("Kind = %q, want %q", resp.Kind, KindAborted)
	}
	if !errors.Is(resp.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", resp.Err)
	}
	if ex.calls != 0 {
		t.Error("executor called after cancellation")
	}
	if n := len(sess.Context.History()); n != 0 {
		t.Errorf("history len = %d, want 0", n)
	}
}

func TestHandle_PromptTooLarge(t *testing.T) {
	tr := &fakeTranslator{cmd: searchCommand()}
	a := newTestAssistant(tr, &fakeExecutor{})
	sess := session.New(session.Options{System: "system", TokenBudget: 8})

	resp := a.Handle(context.Background(), sess, strings.Repeat("tell me about everyone ", 10))
	if resp.Kind != KindTooLong {
		t.Fatalf("Kind = %q, want %q", resp.Kind, KindTooLong)
	}
	if !errors.Is(resp.Err, session.ErrPromptTooLarge) {
		t.Errorf("Err = %v", resp.Err)
	}
	if tr.calls != 0 {
		t.Error("translator called for an oversized prompt")
	}
}
