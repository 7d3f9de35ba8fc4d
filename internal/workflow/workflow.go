// Package workflow executes validated commands: searches that replace
// the displayed results, selections over them, and actions on the
// selected records.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/kith/internal/backup"
	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/format"
	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/model"
	"github.com/nugget/kith/internal/session"
)

// ErrNothingSelected is returned by target resolution when an action has
// no records to act on.
var ErrNothingSelected = errors.New("nothing is selected")

// ExecutionError wraps a failure of the Data API or the exporter.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// DataAPI is the records datastore.
type DataAPI interface {
	Search(ctx context.Context, et model.EntityType, f model.Filter) ([]model.Record, error)
	Get(ctx context.Context, et model.EntityType, ids []string) ([]model.Record, error)
	Create(ctx context.Context, et model.EntityType, fields map[string]string) (model.Record, error)
	Update(ctx context.Context, et model.EntityType, ids []string, fields map[string]string) (int, error)
	Delete(ctx context.Context, et model.EntityType, ids []string) (int, error)
	Tag(ctx context.Context, contactIDs []string, tag string) (int, error)
	Untag(ctx context.Context, contactIDs []string, tag string) (int, error)
}

// Exporter writes records to a file and returns its path.
type Exporter interface {
	Export(ctx context.Context, recs []model.Record, format, label string) (string, error)
}

// Guard runs mutations behind the safety checks.
type Guard interface {
	Run(ctx context.Context, op guard.Operation, exec func(ctx context.Context) (int, error)) (*guard.Result, error)
	Refuse(ctx context.Context, op guard.Operation, reason error) (*guard.Result, error)
}

// Backups creates manual backups.
type Backups interface {
	Create(comment string, auto bool) (*backup.Record, error)
}

// Kind classifies an Outcome.
type Kind string

const (
	KindResults         Kind = "results"
	KindSelection       Kind = "selection"
	KindExported        Kind = "exported"
	KindCreated         Kind = "created"
	KindUpdated         Kind = "updated"
	KindDeleted         Kind = "deleted"
	KindTagged          Kind = "tagged"
	KindUntagged        Kind = "untagged"
	KindBackup          Kind = "backup"
	KindNothingSelected Kind = "nothing_selected"
)

// Outcome is the result of executing one command.
type Outcome struct {
	Kind    Kind
	Message string

	// Table is the rendered result table for searches.
	Table   string
	Display *session.DisplaySet
	Records []model.Record

	Unresolved       []string
	SelectionCleared bool
	Selected         int

	Path   string
	Backup *backup.Record
	Guard  *guard.Result
}

// Config wires an Engine.
type Config struct {
	Data     DataAPI
	Exporter Exporter
	Guard    Guard
	Backups  Backups
	Renderer *format.Renderer
	Source   string // recorded in audit entries, e.g. "chat"
	Logger   *slog.Logger
}

// Engine executes commands against one session at a time.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = format.New(format.DefaultWidth, false)
	}
	return &Engine{cfg: cfg, logger: logger.With("component", "workflow")}
}

// Execute validates cmd and dispatches it by intent.
func (e *Engine) Execute(ctx context.Context, sess *session.Session, cmd command.Command) (*Outcome, error) {
	if err := command.Validate(cmd); err != nil {
		return nil, err
	}
	e.logger.Debug("executing command", "session", sess.ID, "intent", cmd.Intent)

	switch cmd.Intent {
	case command.IntentSearch:
		return e.Search(ctx, sess, *cmd.Search)
	case command.IntentRefine:
		return e.Refine(ctx, sess, *cmd.Refine)
	case command.IntentSelect:
		return e.Select(ctx, sess, *cmd.Select)
	case command.IntentAct:
		return e.Act(ctx, sess, *cmd.Act)
	case command.IntentBackup:
		return e.Backup(ctx, *cmd.Backup)
	}
	return nil, &command.ValidationError{Field: "intent", Reason: fmt.Sprintf("unknown intent %q", cmd.Intent)}
}

// Backup takes a manual backup. Manual backups are never pruned and are
// not audited as mutations.
func (e *Engine) Backup(_ context.Context, p command.BackupParams) (*Outcome, error) {
	rec, err := e.cfg.Backups.Create(p.Comment, false)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Created backup #%d.", rec.ID)
	if rec.Comment != "" {
		msg = fmt.Sprintf("Created backup #%d (%s).", rec.ID, rec.Comment)
	}
	e.logger.Info("manual backup created", "id", rec.ID, "size", rec.Size)
	return &Outcome{Kind: KindBackup, Message: msg, Backup: rec}, nil
}
