package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nugget/kith/internal/model"
)

// ErrMixedTypes is returned when ids of a second entity type are added
// to a non-empty selection.
var ErrMixedTypes = errors.New("selection holds a different entity type")

// Selection is an ordered set of record ids of a single entity type.
// It never holds display indices.
type Selection struct {
	entityType model.EntityType
	ids        []string
}

// EntityType returns the type of the selected records, or "" when the
// selection is empty.
func (s *Selection) EntityType() model.EntityType {
	return s.entityType
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the selected ids in selection order.
func (s *Selection) IDs() []string {
	return slices.Clone(s.ids)
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id string) bool {
	return slices.Contains(s.ids, id)
}

// Add appends ids not already selected and returns how many were new.
func (s *Selection) Add(et model.EntityType, ids ...string) (int, error) {
	if len(s.ids) > 0 && s.entityType != et {
		return 0, fmt.Errorf("%w: %s selected, cannot add %s", ErrMixedTypes, s.entityType.Plural(), et.Plural())
	}
	added := 0
	for _, id := range ids {
		if !slices.Contains(s.ids, id) {
			s.ids = append(s.ids, id)
			added++
		}
	}
	if len(s.ids) > 0 {
		s.entityType = et
	}
	return added, nil
}

// Remove drops ids from the selection and returns how many were
// removed.
func (s *Selection) Remove(ids ...string) int {
	before := len(s.ids)
	s.ids = slices.DeleteFunc(s.ids, func(id string) bool {
		return slices.Contains(ids, id)
	})
	if len(s.ids) == 0 {
		s.entityType = ""
	}
	return before - len(s.ids)
}

// Replace sets the selection to exactly ids.
func (s *Selection) Replace(et model.EntityType, ids []string) {
	s.Clear()
	_, _ = s.Add(et, ids...)
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.ids = nil
	s.entityType = ""
}
