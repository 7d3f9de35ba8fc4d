package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/kith/internal/audit"
	"github.com/nugget/kith/internal/backup"
	"github.com/nugget/kith/internal/model"
)

// State is a step of the guarded operation lifecycle.
type State string

const (
	StatePending              State = "pending"
	StatePermissionCheck      State = "permission_check"
	StateDenied               State = "denied"
	StateConfirmationCheck    State = "confirmation_check"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateCancelled            State = "cancelled"
	StateBackup               State = "backup"
	StateExecuting            State = "executing"
	StateSuccess              State = "success"
	StateFailed               State = "failed"
)

// Operation describes one mutation to guard.
type Operation struct {
	Name       string // e.g. "delete_contact", "create_tag"
	Kind       Kind
	EntityType model.EntityType
	IDs        []string
	Summaries  []string
	Source     string
	SessionID  string
}

// count is the number of records the operation touches. A create
// touches one record that has no id yet.
func (op Operation) count() int {
	if len(op.IDs) == 0 && op.Kind == KindCreate {
		return 1
	}
	return len(op.IDs)
}

// OperationName builds the conventional name for an action on an
// entity type, such as "delete_contact".
func OperationName(action string, et model.EntityType) string {
	return action + "_" + string(et)
}

// Backups is the part of the backup manager the guard needs.
type Backups interface {
	Create(comment string, auto bool) (*backup.Record, error)
	CleanupAuto(keep int) (int, error)
}

// AuditLog receives one entry per guarded attempt.
type AuditLog interface {
	Append(ctx context.Context, e audit.Entry) error
}

// Result reports how far an operation got.
type Result struct {
	State    State
	Trail    []State
	Backup   *backup.Record
	Affected int
}

func (r *Result) to(s State) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

// Config configures a Guard.
type Config struct {
	Policy    Policy
	Confirmer Confirmer // nil means confirmations are always declined
	Backups   Backups
	Audit     AuditLog
	KeepAuto  int // automatic backups kept after a successful mutation, 0 keeps all
	Logger    *slog.Logger
}

// Guard runs mutations one at a time.
type Guard struct {
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex
	now    func() time.Time
}

// New creates a Guard.
func New(cfg Config) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:    cfg,
		logger: logger.With("component", "guard"),
		now:    time.Now,
	}
}

// Policy returns the policy in force.
func (g *Guard) Policy() Policy {
	return g.cfg.Policy
}

// Run checks permission, obtains confirmation when required, takes an
// automatic backup and then calls exec, which returns the number of
// records it changed. Backup and exec run under one lock. Every attempt
// is audited, whatever its outcome.
func (g *Guard) Run(ctx context.Context, op Operation, exec func(ctx context.Context) (int, error)) (*Result, error) {
	res := &Result{}
	res.to(StatePending)

	err := g.run(ctx, op, exec, res)
	g.record(ctx, op, res, err)
	return res, err
}

// Refuse audits an attempt that cannot reach execution, such as one
// whose targets no longer exist. Permission is still checked, and a
// denial is returned in place of reason.
func (g *Guard) Refuse(ctx context.Context, op Operation, reason error) (*Result, error) {
	res := &Result{}
	res.to(StatePending)
	res.to(StatePermissionCheck)

	err := g.cfg.Policy.Check(op.Kind)
	if err != nil {
		res.to(StateDenied)
		g.logger.Warn("operation denied", "operation", op.Name, "error", err)
	} else {
		res.to(StateFailed)
		err = reason
	}
	g.record(ctx, op, res, err)
	return res, err
}

func (g *Guard) run(ctx context.Context, op Operation, exec func(context.Context) (int, error), res *Result) error {
	res.to(StatePermissionCheck)
	if err := g.cfg.Policy.Check(op.Kind); err != nil {
		res.to(StateDenied)
		g.logger.Warn("operation denied", "operation", op.Name, "error", err)
		return err
	}

	res.to(StateConfirmationCheck)
	if need, reason := g.cfg.Policy.NeedsConfirmation(op.Kind, op.count()); need {
		res.to(StateAwaitingConfirmation)
		ok, err := g.confirm(ctx, op, reason)
		if err != nil || !ok {
			res.to(StateCancelled)
			if err != nil && !errors.Is(err, ErrCancelled) {
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			return ErrCancelled
		}
		res.to(StateConfirmed)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res.to(StateBackup)
	rec, err := g.cfg.Backups.Create(op.Name, true)
	if err != nil {
		res.to(StateFailed)
		var berr *backup.BackupError
		if !errors.As(err, &berr) {
			err = &backup.BackupError{Op: "create", Err: err}
		}
		g.logger.Error("backup before mutation failed, aborting", "operation", op.Name, "error", err)
		return err
	}
	res.Backup = rec

	res.to(StateExecuting)
	n, err := exec(ctx)
	res.Affected = n
	if err != nil {
		res.to(StateFailed)
		return err
	}
	res.to(StateSuccess)

	if g.cfg.KeepAuto > 0 {
		if pruned, err := g.cfg.Backups.CleanupAuto(g.cfg.KeepAuto); err != nil {
			g.logger.Warn("pruning automatic backups failed", "error", err)
		} else if pruned > 0 {
			g.logger.Debug("pruned automatic backups", "removed", pruned, "keep", g.cfg.KeepAuto)
		}
	}
	return nil
}

func (g *Guard) confirm(ctx context.Context, op Operation, reason string) (bool, error) {
	if g.cfg.Confirmer == nil {
		g.logger.Info("confirmation required but no confirmer available", "operation", op.Name)
		return false, nil
	}
	return g.cfg.Confirmer.Confirm(ctx, ConfirmationRequest{
		Operation:  op.Name,
		Kind:       op.Kind,
		EntityType: op.EntityType,
		Count:      op.count(),
		Summaries:  op.Summaries,
		Reason:     reason,
	})
}

func (g *Guard) record(ctx context.Context, op Operation, res *Result, err error) {
	if g.cfg.Audit == nil {
		return
	}
	e := audit.Entry{
		Timestamp:  g.now(),
		Source:     op.Source,
		SessionID:  op.SessionID,
		Operation:  op.Name,
		EntityType: string(op.EntityType),
		EntityIDs:  op.IDs,
		Count:      op.count(),
		Success:    res.State == StateSuccess,
	}
	if res.State == StateSuccess {
		e.Count = res.Affected
	}
	switch {
	case res.State == StateCancelled:
		e.Error = "cancelled"
	case err != nil:
		e.Error = err.Error()
	}

	// Audit even when the caller's context is already done.
	if aerr := g.cfg.Audit.Append(context.WithoutCancel(ctx), e); aerr != nil {
		g.logger.Error("audit append failed", "operation", op.Name, "error", aerr)
	}
}
