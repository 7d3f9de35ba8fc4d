package llm

import "context"

// Client is a chat model provider. Implementations are safe for
// concurrent use.
type Client interface {
	// Chat sends messages to model and waits for the complete reply.
	// Cancelling ctx abandons the request.
	Chat(ctx context.Context, model string, messages []Message, opts Options) (*ChatResponse, error)

	// Ping reports whether the provider answers at all.
	Ping(ctx context.Context) error
}
