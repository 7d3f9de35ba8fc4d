package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/session"
)

// Select resolves p against the displayed results and changes the
// selection. Unresolved references are reported, never guessed.
func (e *Engine) Select(_ context.Context, sess *session.Session, p command.SelectParams) (*Outcome, error) {
	sel := sess.Selection
	out := &Outcome{Kind: KindSelection}

	switch p.SelectionType {
	case command.SelectNone:
		n := sel.Len()
		sel.Clear()
		out.Message = fmt.Sprintf("Cleared the selection (%d removed).", n)
		if n == 0 {
			out.Message = "Nothing was selected."
		}
		return out, nil

	case command.SelectAll:
		display := sess.Context.Display()
		if display.Len() == 0 {
			return nil, &session.SelectionError{Requested: []string{"all"}, Reason: "no results are displayed"}
		}
		if err := checkSameType(sess); err != nil {
			return nil, err
		}
		added, _ := sel.Add(display.EntityType, display.IDs()...)
		out.Message = fmt.Sprintf("Selected all %d %s.", display.Len(), display.EntityType.Noun(display.Len()))
		if added < display.Len() {
			out.Message = fmt.Sprintf("Selected all %d %s (%d newly added).", display.Len(), display.EntityType.Noun(display.Len()), added)
		}
	}

	if p.SelectionType == command.SelectAdd || p.SelectionType == command.SelectRemove {
		resolved, unresolved, err := sess.Context.ResolveSelection(session.SelectionRequest{
			Indices: p.Indices,
			IDs:     p.IDs,
			Match:   p.Match,
		})
		if err != nil {
			return nil, err
		}
		out.Unresolved = unresolved

		et := sess.Context.Display().EntityType
		if p.SelectionType == command.SelectAdd {
			if err := checkSameType(sess); err != nil {
				return nil, err
			}
			added, _ := sel.Add(et, resolved...)
			out.Message = fmt.Sprintf("Selected %d %s.", added, et.Noun(added))
		} else {
			removed := sel.Remove(resolved...)
			out.Message = fmt.Sprintf("Deselected %d %s.", removed, et.Noun(removed))
		}
		if len(unresolved) > 0 {
			out.Message += " Could not find: " + strings.Join(unresolved, ", ") + "."
		}
	}

	out.Selected = sel.Len()
	out.Message += fmt.Sprintf(" %d selected in total.", sel.Len())
	e.logger.Debug("selection changed",
		"session", sess.ID,
		"type", p.SelectionType,
		"selected", sel.Len(),
		"unresolved", len(out.Unresolved),
	)
	return out, nil
}

// checkSameType rejects adding displayed records of one type to a
// selection holding another.
func checkSameType(sess *session.Session) error {
	sel := sess.Selection
	et := sess.Context.Display().EntityType
	if sel.Len() == 0 || sel.EntityType() == et {
		return nil
	}
	return &session.SelectionError{
		Reason: fmt.Sprintf("the selection holds %d %s; clear it before selecting %s",
			sel.Len(), sel.EntityType().Noun(sel.Len()), et.Plural()),
	}
}
