// Package format renders record sets for display. Rendering is a pure
// function of its input: the same records always produce the same rows
// and the same 1-based indices.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nugget/kith/internal/model"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 120

// Row is one displayed result. Index is 1-based and contiguous.
type Row struct {
	Index int
	IDs   []string
	Label string
	Cells []string
}

// Result is a rendered record set.
type Result struct {
	EntityType model.EntityType
	Rows       []Row
	Table      string
}

// Labels returns "1. label" lines, used as itemized prompt context.
func (r Result) Labels() []string {
	out := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = fmt.Sprintf("%d. %s", row.Index, row.Label)
	}
	return out
}

// column describes one table column for an entity type.
type column struct {
	header string
	max    int
	value  func(model.Record) string
}

func field(key string) func(model.Record) string {
	return func(r model.Record) string { return r.Field(key) }
}

func name(r model.Record) string { return r.Name }

func tags(r model.Record) string { return strings.Join(r.Tags, ", ") }

var layouts = map[model.EntityType][]column{
	model.EntityContact: {
		{"Name", 32, name},
		{"Company", 24, field("company")},
		{"Email", 32, field("email")},
		{"Tags", 30, tags},
	},
	model.EntityTag: {
		{"Tag", 40, name},
		{"Contacts", 10, field("contacts")},
	},
	model.EntityNote: {
		{"Note", 50, name},
		{"Contact", 30, field("contact")},
	},
	model.EntityRelationship: {
		{"Between", 60, name},
		{"Kind", 20, field("kind")},
	},
}

// Styles used when rendering for a color terminal.
var (
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	header = lipgloss.NewStyle().Bold(true)
)

// Renderer turns records into display tables.
type Renderer struct {
	width  int
	styled bool
}

// New creates a Renderer for the given terminal width. styled enables
// colors; plain output is used for pipes and tests.
func New(width int, styled bool) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{width: width, styled: styled}
}

// Render numbers recs 1..N in the order given and renders them as a
// table. Each row maps to exactly one record id.
func (r *Renderer) Render(et model.EntityType, recs []model.Record) Result {
	res := Result{EntityType: et, Rows: make([]Row, len(recs))}
	cols := layouts[et]
	if cols == nil {
		cols = []column{{"Name", 60, name}}
	}

	for i, rec := range recs {
		row := Row{Index: i + 1, IDs: []string{rec.ID}, Label: rec.Summary()}
		for _, c := range cols {
			row.Cells = append(row.Cells, Truncate(c.value(rec), c.max))
		}
		res.Rows[i] = row
	}

	if len(recs) == 0 {
		res.Table = fmt.Sprintf("No matching %s.", et.Plural())
		return res
	}
	res.Table = r.table(cols, res.Rows)
	return res
}

func (r *Renderer) table(cols []column, rows []Row) string {
	headers := []string{"#"}
	for _, c := range cols {
		headers = append(headers, c.header)
	}
	data := make([][]string, len(rows))
	for i, row := range rows {
		data[i] = append([]string{strconv.Itoa(row.Index)}, row.Cells...)
	}

	tbl := table.New().
		Border(lipgloss.Border{Top: "─", Bottom: "─", Middle: "─"}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderRow(false).
		BorderHeader(true).
		Headers(headers...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle()
			if col < len(headers)-1 {
				s = s.PaddingRight(2)
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			}
			if !r.styled {
				return s
			}
			switch {
			case row == table.HeaderRow:
				return s.Inherit(header)
			case col == 0:
				return s.Inherit(muted)
			}
			return s
		})
	if r.styled {
		tbl = tbl.BorderStyle(muted)
	}

	out := tbl.Render()
	if lipgloss.Width(out) > r.width {
		tbl = tbl.Width(r.width).Wrap(false)
		out = tbl.Render()
	}
	return out
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
// A max of 0 means no limit.
func Truncate(s string, max int) string {
	return model.Truncate(s, max)
}
