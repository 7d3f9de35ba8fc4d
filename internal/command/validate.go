package command

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nugget/kith/internal/export"
	"github.com/nugget/kith/internal/model"
)

// ValidationError names the first field of a command that failed
// validation. Commands are never partially repaired.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that the command's intent is known, that exactly the
// matching parameter block is present, and that every enumerated field
// holds an allowed value.
func Validate(c Command) error {
	if err := CheckShape(c); err != nil {
		return err
	}

	switch c.Intent {
	case IntentSearch:
		return validateSearch("search", c.Search, true)
	case IntentRefine:
		return validateSearch("refine", c.Refine, false)
	case IntentSelect:
		return validateSelect(c.Select)
	case IntentAct:
		return validateAct(c.Act)
	}
	return nil
}

// CheckShape checks only the outline of a command: a known intent and
// exactly the matching parameter block.
func CheckShape(c Command) error {
	if !slices.Contains(Intents, c.Intent) {
		return invalid("intent", "unknown intent %q (valid: %s)", c.Intent, join(Intents))
	}

	blocks := []struct {
		intent Intent
		set    bool
	}{
		{IntentSearch, c.Search != nil},
		{IntentRefine, c.Refine != nil},
		{IntentSelect, c.Select != nil},
		{IntentAct, c.Act != nil},
		{IntentBackup, c.Backup != nil},
	}
	for _, b := range blocks {
		switch {
		case b.intent == c.Intent && !b.set:
			return invalid(string(b.intent), "required for intent %s", c.Intent)
		case b.intent != c.Intent && b.set:
			return invalid(string(b.intent), "not allowed for intent %s", c.Intent)
		}
	}
	return nil
}

func validateSearch(prefix string, p *SearchParams, typeRequired bool) error {
	if p.EntityType == "" {
		if typeRequired {
			return invalid(prefix+".entity_type", "required")
		}
	} else if !p.EntityType.Valid() {
		return invalid(prefix+".entity_type", "unknown entity type %q (valid: %s)", p.EntityType, join(model.EntityTypes))
	}

	if p.EntityType != "" {
		supported := model.SupportedFilters[p.EntityType]
		for _, key := range p.Filters.Keys() {
			if !slices.Contains(supported, key) {
				return invalid(prefix+".filters."+key, "not supported for %s", p.EntityType)
			}
		}
	}
	if p.Filters.Limit < 0 {
		return invalid(prefix+".filters.limit", "must not be negative")
	}
	for i, tag := range p.Filters.Tags {
		if strings.TrimSpace(tag) == "" {
			return invalid(fmt.Sprintf("%s.filters.tags[%d]", prefix, i), "empty tag")
		}
	}
	return nil
}

func validateSelect(p *SelectParams) error {
	if !slices.Contains(SelectionTypes, p.SelectionType) {
		return invalid("select.selection_type", "unknown selection type %q (valid: %s)", p.SelectionType, join(SelectionTypes))
	}
	targeted := len(p.Indices) > 0 || len(p.IDs) > 0 || strings.TrimSpace(p.Match) != ""
	switch p.SelectionType {
	case SelectAdd, SelectRemove:
		if !targeted {
			return invalid("select.indices", "%s requires indices, ids or match", p.SelectionType)
		}
	case SelectAll, SelectNone:
		if targeted {
			return invalid("select.indices", "%s takes no indices, ids or match", p.SelectionType)
		}
	}
	for i, id := range p.IDs {
		if strings.TrimSpace(id) == "" {
			return invalid(fmt.Sprintf("select.ids[%d]", i), "empty id")
		}
	}
	return nil
}

func validateAct(p *ActParams) error {
	if !slices.Contains(Actions, p.Action) {
		return invalid("act.action", "unknown action %q (valid: %s)", p.Action, join(Actions))
	}
	if p.EntityType != "" && !p.EntityType.Valid() {
		return invalid("act.entity_type", "unknown entity type %q (valid: %s)", p.EntityType, join(model.EntityTypes))
	}
	if p.Action != ActionExport && p.Format != "" {
		return invalid("act.format", "only valid for export")
	}
	for i, id := range p.IDs {
		if strings.TrimSpace(id) == "" {
			return invalid(fmt.Sprintf("act.ids[%d]", i), "empty id")
		}
	}

	switch p.Action {
	case ActionExport:
		if p.Format == "" {
			return invalid("act.format", "required for export")
		}
		if !slices.Contains(export.Formats, p.Format) {
			return invalid("act.format", "unknown format %q (valid: %s)", p.Format, strings.Join(export.Formats, ", "))
		}
	case ActionCreate:
		if p.EntityType == "" {
			return invalid("act.entity_type", "required for create")
		}
		if len(p.Fields) == 0 {
			return invalid("act.fields", "required for create")
		}
		if len(p.IDs) > 0 {
			return invalid("act.ids", "not allowed for create")
		}
	case ActionUpdate:
		if len(p.Fields) == 0 {
			return invalid("act.fields", "required for update")
		}
	case ActionTag, ActionUntag:
		if strings.TrimSpace(p.Tag) == "" {
			return invalid("act.tag", "required for %s", p.Action)
		}
		if p.EntityType != "" && p.EntityType != model.EntityContact {
			return invalid("act.entity_type", "%s applies to contacts only", p.Action)
		}
	}
	return nil
}

func join[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = string(v)
	}
	return strings.Join(s, ", ")
}
