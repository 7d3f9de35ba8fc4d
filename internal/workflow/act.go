package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/guard"
	"github.com/nugget/kith/internal/model"
	"github.com/nugget/kith/internal/session"
)

// Act performs an action on the selection, on explicit ids, or for
// create on nothing. Exports are read-only and bypass the guard; every
// other action runs through it.
func (e *Engine) Act(ctx context.Context, sess *session.Session, p command.ActParams) (*Outcome, error) {
	if p.Action == command.ActionCreate {
		return e.create(ctx, sess, p)
	}

	et, ids, err := targets(sess, p)
	if errors.Is(err, ErrNothingSelected) {
		return &Outcome{
			Kind:    KindNothingSelected,
			Message: "Nothing is selected. Search for records and select some first.",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	op := guard.Operation{
		Name:       guard.OperationName(string(p.Action), et),
		Kind:       guard.Kind(p.Action.Kind()),
		EntityType: et,
		IDs:        ids,
		Source:     e.cfg.Source,
		SessionID:  sess.ID,
	}

	recs, err := e.cfg.Data.Get(ctx, et, ids)
	if err != nil {
		err = &ExecutionError{Op: "load " + et.Plural(), Err: err}
	} else if len(recs) == 0 {
		err = &ExecutionError{Op: string(p.Action), Err: fmt.Errorf("none of the %d targeted %s exist", len(ids), et.Noun(len(ids)))}
	}
	if err != nil {
		if p.Action == command.ActionExport {
			return nil, err
		}
		// Missing targets still count as an attempt, and a denial wins.
		_, err = e.cfg.Guard.Refuse(ctx, op, err)
		return nil, err
	}

	if p.Action == command.ActionExport {
		return e.export(ctx, et, recs, p)
	}

	found := make([]string, len(recs))
	summaries := make([]string, len(recs))
	for i, r := range recs {
		found[i] = r.ID
		summaries[i] = r.Summary()
	}
	op.IDs = found
	op.Summaries = summaries

	var exec func(ctx context.Context) (int, error)
	switch p.Action {
	case command.ActionUpdate:
		exec = func(ctx context.Context) (int, error) {
			n, err := e.cfg.Data.Update(ctx, et, found, p.Fields)
			return n, wrap("update", err)
		}
	case command.ActionDelete:
		exec = func(ctx context.Context) (int, error) {
			n, err := e.cfg.Data.Delete(ctx, et, found)
			return n, wrap("delete", err)
		}
	case command.ActionTag:
		exec = func(ctx context.Context) (int, error) {
			n, err := e.cfg.Data.Tag(ctx, found, p.Tag)
			return n, wrap("tag", err)
		}
	case command.ActionUntag:
		exec = func(ctx context.Context) (int, error) {
			n, err := e.cfg.Data.Untag(ctx, found, p.Tag)
			return n, wrap("untag", err)
		}
	default:
		return nil, &command.ValidationError{Field: "act.action", Reason: fmt.Sprintf("unknown action %q", p.Action)}
	}

	res, err := e.cfg.Guard.Run(ctx, op, exec)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Guard: res, Backup: res.Backup, Records: recs}
	n := res.Affected
	switch p.Action {
	case command.ActionUpdate:
		out.Kind = KindUpdated
		out.Message = fmt.Sprintf("Updated %d %s.", n, et.Noun(n))
	case command.ActionDelete:
		out.Kind = KindDeleted
		out.Message = fmt.Sprintf("Deleted %d %s.", n, et.Noun(n))
		if removed := sess.Selection.Remove(found...); removed > 0 {
			out.Message += fmt.Sprintf(" Removed them from the selection (%d left).", sess.Selection.Len())
		}
	case command.ActionTag:
		out.Kind = KindTagged
		out.Message = fmt.Sprintf("Tagged %d %s with %q.", n, et.Noun(n), p.Tag)
	case command.ActionUntag:
		out.Kind = KindUntagged
		out.Message = fmt.Sprintf("Removed tag %q from %d %s.", p.Tag, n, et.Noun(n))
	}
	if res.Backup != nil {
		out.Message += fmt.Sprintf(" Backup #%d was taken first.", res.Backup.ID)
	}
	out.Selected = sess.Selection.Len()

	e.logger.Info("mutation complete", "operation", op.Name, "affected", n, "session", sess.ID)
	return out, nil
}

func (e *Engine) create(ctx context.Context, sess *session.Session, p command.ActParams) (*Outcome, error) {
	et := p.EntityType
	op := guard.Operation{
		Name:       guard.OperationName(string(command.ActionCreate), et),
		Kind:       guard.KindCreate,
		EntityType: et,
		Summaries:  []string{describeFields(p.Fields)},
		Source:     e.cfg.Source,
		SessionID:  sess.ID,
	}

	var created model.Record
	res, err := e.cfg.Guard.Run(ctx, op, func(ctx context.Context) (int, error) {
		rec, err := e.cfg.Data.Create(ctx, et, p.Fields)
		if err != nil {
			return 0, &ExecutionError{Op: "create", Err: err}
		}
		created = rec
		return 1, nil
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Created %s %q.", et, created.Name)
	if res.Backup != nil {
		msg += fmt.Sprintf(" Backup #%d was taken first.", res.Backup.ID)
	}
	e.logger.Info("record created", "entity_type", et, "id", created.ID, "session", sess.ID)
	return &Outcome{
		Kind:     KindCreated,
		Message:  msg,
		Records:  []model.Record{created},
		Guard:    res,
		Backup:   res.Backup,
		Selected: sess.Selection.Len(),
	}, nil
}

func (e *Engine) export(ctx context.Context, et model.EntityType, recs []model.Record, p command.ActParams) (*Outcome, error) {
	label := p.Label
	if label == "" {
		label = et.Plural()
	}
	path, err := e.cfg.Exporter.Export(ctx, recs, p.Format, label)
	if err != nil {
		return nil, &ExecutionError{Op: "export", Err: err}
	}
	e.logger.Info("exported records", "format", p.Format, "count", len(recs), "path", path)
	return &Outcome{
		Kind:    KindExported,
		Message: fmt.Sprintf("Exported %d %s as %s to %s.", len(recs), et.Noun(len(recs)), p.Format, path),
		Records: recs,
		Path:    path,
	}, nil
}

// targets picks the records an action applies to: explicit ids when
// given, otherwise the selection.
func targets(sess *session.Session, p command.ActParams) (model.EntityType, []string, error) {
	if len(p.IDs) > 0 {
		et := p.EntityType
		if et == "" {
			if d := sess.Context.Display(); d != nil {
				et = d.EntityType
			} else {
				et = sess.Selection.EntityType()
			}
		}
		if et == "" {
			return "", nil, &command.ValidationError{Field: "act.entity_type", Reason: "required for explicit ids with nothing displayed"}
		}
		return et, unique(p.IDs), checkAction(p, et)
	}

	sel := sess.Selection
	if sel.Len() == 0 {
		return "", nil, ErrNothingSelected
	}
	et := sel.EntityType()
	if p.EntityType != "" && p.EntityType != et {
		return "", nil, &command.ValidationError{
			Field:  "act.entity_type",
			Reason: fmt.Sprintf("the selection holds %s, not %s", et.Plural(), p.EntityType.Plural()),
		}
	}
	return et, sel.IDs(), checkAction(p, et)
}

func checkAction(p command.ActParams, et model.EntityType) error {
	if (p.Action == command.ActionTag || p.Action == command.ActionUntag) && et != model.EntityContact {
		return &command.ValidationError{Field: "act.action", Reason: fmt.Sprintf("%s applies to contacts, not %s", p.Action, et.Plural())}
	}
	return nil
}

func wrap(op string, err error) error {
	if err != nil {
		return &ExecutionError{Op: op, Err: err}
	}
	return nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func describeFields(fields map[string]string) string {
	keys := slices.Sorted(maps.Keys(fields))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return strings.Join(parts, ", ")
}
