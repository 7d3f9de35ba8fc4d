package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/kith/internal/llm"
	"github.com/nugget/kith/internal/model"
	"github.com/nugget/kith/internal/prompts"
)

// Mode selects how the displayed results are described to the model.
type Mode string

const (
	// ModeAuto picks compact for purely positional requests and
	// itemized otherwise.
	ModeAuto     Mode = "auto"
	ModeCompact  Mode = "compact"
	ModeItemized Mode = "itemized"

	// ModeNone is reported when no display context was included.
	ModeNone Mode = "none"
)

// Defaults applied by NewManager to zero Options fields.
const (
	DefaultTokenBudget = 4000
	DefaultMaxTurns    = 10
)

// ErrPromptTooLarge is returned when the system instructions and the
// user message alone exceed the token budget.
var ErrPromptTooLarge = errors.New("prompt exceeds the token budget")

// Options configure a Manager.
type Options struct {
	// System is the complete system prompt, command schema included.
	System      string
	TokenBudget int
	MaxTurns    int
	Mode        Mode
	Logger      *slog.Logger
}

// Prompt is a fully composed model request.
type Prompt struct {
	Messages []llm.Message
	Tokens   int
	Context  Mode // display context actually included
	Turns    int  // history turns included
}

// Manager owns the DisplaySet and turn history of a session and
// composes prompts within the token budget.
type Manager struct {
	opts      Options
	display   *DisplaySet
	history   []Turn
	selection *Selection
	logger    *slog.Logger
}

// NewManager creates a Manager. sel is read when describing the
// selection to the model.
func NewManager(opts Options, sel *Selection) *Manager {
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if sel == nil {
		sel = &Selection{}
	}
	return &Manager{
		opts:      opts,
		selection: sel,
		logger:    logger.With("component", "session"),
	}
}

// UpdateDisplay replaces the DisplaySet. Items keep their input order
// and are renumbered 1..N.
func (m *Manager) UpdateDisplay(et model.EntityType, items []DisplayItem, meta Meta) {
	set := &DisplaySet{
		EntityType: et,
		Items:      make([]DisplayItem, len(items)),
		Meta:       meta,
	}
	for i, it := range items {
		it.Index = i + 1
		set.Items[i] = it
	}
	if set.Meta.EntityType == "" {
		set.Meta.EntityType = et
	}
	if set.Meta.Total == 0 {
		set.Meta.Total = len(items)
	}
	m.display = set
}

// Display returns the current DisplaySet, or nil before the first
// search.
func (m *Manager) Display() *DisplaySet {
	return m.display
}

// History returns a copy of the retained turns, oldest first.
func (m *Manager) History() []Turn {
	out := make([]Turn, len(m.history))
	copy(out, m.history)
	return out
}

// RecordTurn appends a turn, then prunes the oldest turns beyond the
// turn limit or until the history alone fits the token budget.
func (m *Manager) RecordTurn(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	m.history = append(m.history, t)

	if over := len(m.history) - m.opts.MaxTurns; over > 0 {
		m.history = m.history[over:]
	}
	for len(m.history) > 0 && historyTokens(m.history) > m.opts.TokenBudget {
		m.history = m.history[1:]
	}
}

// BuildPrompt composes the system prompt, display context, history and
// msg. When over budget it drops the oldest history first, then reduces
// itemized context to compact, then drops the display context. The user
// message is never truncated.
func (m *Manager) BuildPrompt(msg string) (Prompt, error) {
	budget := m.opts.TokenBudget
	base := estimateTokens(m.opts.System) + estimateTokens(msg)
	if base > budget {
		return Prompt{}, fmt.Errorf("%w: %d tokens needed before history and context, budget %d", ErrPromptTooLarge, base, budget)
	}

	mode := m.contextMode(msg)
	turns := m.history

	for {
		system := m.opts.System
		if ctx := m.displayContext(mode); ctx != "" {
			system += "\n\n" + ctx
		}
		total := estimateTokens(system) + historyTokens(turns) + estimateTokens(msg)
		if total <= budget {
			p := Prompt{
				Messages: m.compose(system, turns, msg),
				Tokens:   total,
				Context:  mode,
				Turns:    len(turns),
			}
			if dropped := len(m.history) - len(turns); dropped > 0 || mode != m.contextMode(msg) {
				m.logger.Debug("prompt reduced to fit budget",
					"dropped_turns", dropped,
					"context", mode,
					"tokens", total,
					"budget", budget,
				)
			}
			return p, nil
		}

		switch {
		case len(turns) > 0:
			turns = turns[1:]
		case mode == ModeItemized:
			mode = ModeCompact
		case mode == ModeCompact:
			mode = ModeNone
		default:
			// Unreachable: with no history or context, total == base.
			return Prompt{}, fmt.Errorf("%w: %d tokens, budget %d", ErrPromptTooLarge, total, budget)
		}
	}
}

func (m *Manager) compose(system string, turns []Turn, msg string) []llm.Message {
	msgs := make([]llm.Message, 0, 2+2*len(turns))
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range turns {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.reply()},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: msg})
}

// contextMode resolves the configured mode for msg. With nothing
// displayed there is no context to include.
func (m *Manager) contextMode(msg string) Mode {
	if m.display.Len() == 0 {
		return ModeNone
	}
	switch m.opts.Mode {
	case ModeCompact, ModeItemized:
		return m.opts.Mode
	}
	if IsPositional(msg) {
		return ModeCompact
	}
	return ModeItemized
}

func (m *Manager) displayContext(mode Mode) string {
	d := m.display
	if d == nil || mode == ModeNone {
		return ""
	}
	noun := d.EntityType.Noun(d.Len())
	selected := prompts.SelectionLine(m.selection.Len(), m.selection.EntityType().Noun(m.selection.Len()))

	if mode == ModeCompact {
		return prompts.CompactContext(noun, d.Len(), d.Meta.Filter.String(), selected)
	}

	lines := make([]string, len(d.Items))
	for i, it := range d.Items {
		line := fmt.Sprintf("%d. %s", it.Index, it.Label)
		if m.allSelected(it.IDs) {
			line += " [selected]"
		}
		lines[i] = line
	}
	return prompts.ItemizedContext(noun, d.Len(), lines, selected)
}

func (m *Manager) allSelected(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !m.selection.Contains(id) {
			return false
		}
	}
	return true
}

func (m *Manager) reset() {
	m.display = nil
	m.history = nil
}

func historyTokens(turns []Turn) int {
	n := 0
	for _, t := range turns {
		n += t.tokens()
	}
	return n
}
