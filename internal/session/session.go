// Package session holds the conversational state of one chat: the
// currently displayed results, the selection and the turn history, and
// builds the prompt sent to the language model from them.
package session

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session is the state of one chat. It is driven by a single control
// flow and is not safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time
	Context   *Manager
	Selection *Selection
}

// New starts a session with an empty display, selection and history.
func New(opts Options) *Session {
	now := time.Now()
	sel := &Selection{}
	return &Session{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		CreatedAt: now,
		Context:   NewManager(opts, sel),
		Selection: sel,
	}
}

// Close drops all session state.
func (s *Session) Close() {
	s.Context.reset()
	s.Selection.Clear()
}
