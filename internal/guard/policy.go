// Package guard wraps every mutating operation in a permission check,
// an optional confirmation, a backup and an audit entry.
package guard

import (
	"fmt"

	"github.com/nugget/kith/internal/config"
)

// Kind is the permission class of a mutation.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Policy decides which mutations may run and which need confirmation.
type Policy struct {
	ReadOnly            bool
	AllowCreate         bool
	AllowUpdate         bool
	AllowDelete         bool
	RequireConfirmation map[Kind]bool
	MaxBulk             int // 0 means no limit
}

// PolicyFromConfig converts the permissions section of the config.
func PolicyFromConfig(c config.PermissionsConfig) Policy {
	p := Policy{
		ReadOnly:            c.ReadOnlyMode,
		AllowCreate:         c.AllowCreate,
		AllowUpdate:         c.AllowUpdate,
		AllowDelete:         c.AllowDelete,
		RequireConfirmation: make(map[Kind]bool, len(c.RequireConfirmation)),
		MaxBulk:             c.MaxBulkOperations,
	}
	for k, v := range c.RequireConfirmation {
		p.RequireConfirmation[Kind(k)] = v
	}
	return p
}

// PermissionError is returned when the policy forbids an operation.
// Flag names the setting responsible.
type PermissionError struct {
	Kind  Kind
	Flag  string
	Value bool
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s is disabled: %s=%t", e.Kind, e.Flag, e.Value)
}

// Check returns a *PermissionError if kind may not run. Read-only mode
// denies everything.
func (p Policy) Check(kind Kind) error {
	if p.ReadOnly {
		return &PermissionError{Kind: kind, Flag: "read_only_mode", Value: true}
	}
	var allowed bool
	switch kind {
	case KindCreate:
		allowed = p.AllowCreate
	case KindUpdate:
		allowed = p.AllowUpdate
	case KindDelete:
		allowed = p.AllowDelete
	default:
		return fmt.Errorf("unknown operation kind %q", kind)
	}
	if !allowed {
		return &PermissionError{Kind: kind, Flag: "allow_" + string(kind), Value: false}
	}
	return nil
}

// NeedsConfirmation reports whether an operation of kind touching count
// records must be confirmed, and why.
func (p Policy) NeedsConfirmation(kind Kind, count int) (bool, string) {
	if p.RequireConfirmation[kind] {
		return true, fmt.Sprintf("require_confirmation.%s is set", kind)
	}
	if p.MaxBulk > 0 && count > p.MaxBulk {
		return true, fmt.Sprintf("%d records exceeds max_bulk_operations=%d", count, p.MaxBulk)
	}
	return false, ""
}
