package session

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectionError reports a selection that could not be resolved at all,
// such as one made while nothing is displayed.
type SelectionError struct {
	Requested []string
	Reason    string
}

func (e *SelectionError) Error() string {
	if len(e.Requested) == 0 {
		return "cannot resolve selection: " + e.Reason
	}
	return fmt.Sprintf("cannot resolve selection %s: %s", strings.Join(e.Requested, ", "), e.Reason)
}

// SelectionRequest names displayed records by index, by id or by a
// case-insensitive substring of their display label.
type SelectionRequest struct {
	Indices []int
	IDs     []string
	Match   string
}

func (r SelectionRequest) requested() []string {
	var out []string
	for _, i := range r.Indices {
		out = append(out, strconv.Itoa(i))
	}
	out = append(out, r.IDs...)
	if r.Match != "" {
		out = append(out, strconv.Quote(r.Match))
	}
	return out
}

// ResolveSelection maps a request against the current DisplaySet to
// stable ids. Anything that resolves to nothing is returned in
// unresolved instead, in request order: indices outside [1,N], ids not
// on display and matches with no hits. Resolved ids are deduplicated
// and ordered by request.
func (m *Manager) ResolveSelection(req SelectionRequest) (resolved []string, unresolved []string, err error) {
	if m.display.Len() == 0 {
		return nil, nil, &SelectionError{Requested: req.requested(), Reason: "no results are displayed"}
	}

	seen := make(map[string]bool)
	add := func(ids ...string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				resolved = append(resolved, id)
			}
		}
	}

	for _, i := range req.Indices {
		item, ok := m.display.Item(i)
		if !ok {
			unresolved = append(unresolved, strconv.Itoa(i))
			continue
		}
		add(item.IDs...)
	}

	for _, id := range req.IDs {
		if !m.display.Contains(id) {
			unresolved = append(unresolved, id)
			continue
		}
		add(id)
	}

	if match := strings.TrimSpace(req.Match); match != "" {
		needle := strings.ToLower(match)
		hit := false
		for _, item := range m.display.Items {
			if strings.Contains(strings.ToLower(item.Label), needle) {
				add(item.IDs...)
				hit = true
			}
		}
		if !hit {
			unresolved = append(unresolved, strconv.Quote(match))
		}
	}

	return resolved, unresolved, nil
}
