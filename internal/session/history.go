package session

import (
	"time"
)

// Turn is one exchange of the conversation.
type Turn struct {
	User      string
	Assistant string
	Command   string // JSON of the issued command, if any
	Timestamp time.Time
}

// reply is what the model is shown as its own answer for the turn. The
// command JSON is preferred so the model sees replies in the format it
// must produce.
func (t Turn) reply() string {
	if t.Command != "" {
		return t.Command
	}
	return t.Assistant
}

func (t Turn) tokens() int {
	return estimateTokens(t.User) + estimateTokens(t.reply())
}

// estimateTokens approximates the token count of one message at four
// characters per token, rounded up.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
