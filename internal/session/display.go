package session

import (
	"github.com/nugget/kith/internal/model"
)

// DisplayItem is one numbered line of the current results. An item
// usually maps to one record but may group several.
type DisplayItem struct {
	Index int
	IDs   []string
	Label string
}

// Meta describes the search that produced a DisplaySet.
type Meta struct {
	EntityType model.EntityType
	Filter     model.Filter
	Total      int
}

// DisplaySet maps 1-based indices to record ids for the results the
// user is looking at. It is replaced wholesale by each search.
type DisplaySet struct {
	EntityType model.EntityType
	Items      []DisplayItem
	Meta       Meta
}

// Len returns the number of displayed items.
func (d *DisplaySet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Items)
}

// Item returns the item at 1-based index i.
func (d *DisplaySet) Item(i int) (DisplayItem, bool) {
	if i < 1 || i > d.Len() {
		return DisplayItem{}, false
	}
	return d.Items[i-1], true
}

// IDs returns every displayed id in display order.
func (d *DisplaySet) IDs() []string {
	var ids []string
	for _, it := range d.Items {
		ids = append(ids, it.IDs...)
	}
	return ids
}

// Contains reports whether id is displayed.
func (d *DisplaySet) Contains(id string) bool {
	if d == nil {
		return false
	}
	for _, it := range d.Items {
		for _, x := range it.IDs {
			if x == id {
				return true
			}
		}
	}
	return false
}
