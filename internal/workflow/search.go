package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/model"
	"github.com/nugget/kith/internal/session"
)

// Search runs a search and makes its results the displayed set. A
// selection of a different entity type is cleared.
func (e *Engine) Search(ctx context.Context, sess *session.Session, p command.SearchParams) (*Outcome, error) {
	recs, err := e.cfg.Data.Search(ctx, p.EntityType, p.Filters)
	if err != nil {
		return nil, &ExecutionError{Op: "search", Err: err}
	}

	result := e.cfg.Renderer.Render(p.EntityType, recs)
	items := make([]session.DisplayItem, len(result.Rows))
	for i, row := range result.Rows {
		items[i] = session.DisplayItem{Index: row.Index, IDs: row.IDs, Label: row.Label}
	}
	sess.Context.UpdateDisplay(p.EntityType, items, session.Meta{
		EntityType: p.EntityType,
		Filter:     p.Filters,
		Total:      len(recs),
	})

	out := &Outcome{
		Kind:    KindResults,
		Table:   result.Table,
		Display: sess.Context.Display(),
		Records: recs,
	}
	if len(recs) == 0 {
		out.Message = fmt.Sprintf("No matching %s.", p.EntityType.Plural())
	} else {
		out.Message = fmt.Sprintf("Found %d %s.", len(recs), p.EntityType.Noun(len(recs)))
	}

	if sel := sess.Selection; sel.Len() > 0 && sel.EntityType() != p.EntityType {
		n, et := sel.Len(), sel.EntityType()
		sel.Clear()
		out.SelectionCleared = true
		out.Message += fmt.Sprintf(" Cleared the selection of %d %s.", n, et.Noun(n))
	}
	out.Selected = sess.Selection.Len()

	e.logger.Debug("search complete", "entity_type", p.EntityType, "filters", p.Filters.String(), "results", len(recs))
	return out, nil
}

// Refine re-runs the previous search with p's filters merged over it.
// Without a previous search, or for another entity type, it is a plain
// search.
func (e *Engine) Refine(ctx context.Context, sess *session.Session, p command.SearchParams) (*Outcome, error) {
	prev := sess.Context.Display()
	if prev == nil || (p.EntityType != "" && p.EntityType != prev.Meta.EntityType) {
		if p.EntityType == "" {
			return nil, &command.ValidationError{Field: "refine.entity_type", Reason: "required when there is no previous search"}
		}
		return e.Search(ctx, sess, p)
	}

	merged := command.SearchParams{
		EntityType: prev.Meta.EntityType,
		Filters:    prev.Meta.Filter.Merge(p.Filters),
	}
	supported := model.SupportedFilters[merged.EntityType]
	for _, key := range p.Filters.Keys() {
		if !slices.Contains(supported, key) {
			return nil, &command.ValidationError{
				Field:  "refine.filters." + key,
				Reason: fmt.Sprintf("not supported for %s", merged.EntityType),
			}
		}
	}
	return e.Search(ctx, sess, merged)
}
