package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/term"

	"github.com/nugget/kith/internal/assistant"
	"github.com/nugget/kith/internal/command"
	"github.com/nugget/kith/internal/format"
)

// printer writes responses as plain text, terminal-styled text or JSON.
type printer struct {
	w      io.Writer
	json   bool
	styled bool
	width  int
	md     *glamour.TermRenderer
}

func newPrinter(w io.Writer, output string) *printer {
	p := &printer{w: w, json: output == "json", width: format.DefaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(f.Fd()) {
		if width, _, err := term.GetSize(f.Fd()); err == nil && width > 0 {
			p.width = width
		}
		p.styled = !p.json
	}
	if p.styled {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(p.width),
		)
		if err == nil {
			p.md = md
		}
	}
	return p
}

// renderer returns a results renderer matching the output terminal.
func (p *printer) renderer() *format.Renderer {
	return format.New(p.width, p.styled)
}

type resultView struct {
	Index int      `json:"index"`
	Label string   `json:"label"`
	IDs   []string `json:"ids"`
}

type responseView struct {
	Kind       assistant.Kind   `json:"kind"`
	Text       string           `json:"text"`
	Command    *command.Command `json:"command,omitempty"`
	Results    []resultView     `json:"results,omitempty"`
	Unresolved []string         `json:"unresolved,omitempty"`
	Selected   int              `json:"selected"`
	Path       string           `json:"path,omitempty"`
	Backup     int              `json:"backup,omitempty"`
}

func (p *printer) response(resp *assistant.Response) error {
	if p.json {
		v := responseView{Kind: resp.Kind, Text: resp.Text, Command: resp.Command}
		if out := resp.Outcome; out != nil {
			if out.Display != nil {
				for _, it := range out.Display.Items {
					v.Results = append(v.Results, resultView{Index: it.Index, Label: it.Label, IDs: it.IDs})
				}
			}
			v.Unresolved = out.Unresolved
			v.Selected = out.Selected
			v.Path = out.Path
			if out.Backup != nil {
				v.Backup = out.Backup.ID
			}
		}
		return writeJSON(p.w, v)
	}

	if out := resp.Outcome; out != nil && out.Table != "" {
		fmt.Fprintln(p.w, out.Table)
	}
	p.text(resp.Text)
	return nil
}

// text prints s, rendered as markdown on a terminal.
func (p *printer) text(s string) {
	if p.md != nil {
		if rendered, err := p.md.Render(s); err == nil {
			fmt.Fprint(p.w, strings.TrimRight(rendered, "\n")+"\n")
			return
		}
	}
	fmt.Fprintln(p.w, s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
