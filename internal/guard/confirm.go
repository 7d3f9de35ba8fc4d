package guard

import (
	"context"
	"errors"

	"github.com/nugget/kith/internal/model"
)

// ErrCancelled is returned when a required confirmation was declined or
// could not be obtained.
var ErrCancelled = errors.New("operation cancelled")

// ConfirmationRequest describes an operation awaiting the user's
// approval.
type ConfirmationRequest struct {
	Operation  string
	Kind       Kind
	EntityType model.EntityType
	Count      int
	Summaries  []string // one line per affected record
	Reason     string
}

// Confirmer obtains a yes/no decision from the user.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, req ConfirmationRequest) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmationRequest) (bool, error) {
	return f(ctx, req)
}
