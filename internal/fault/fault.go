// Package fault defines the error taxonomy shared by all swarmd subsystems.
// Core layers return these typed errors upward; only the HTTP surface maps
// them to status codes.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for boundary mapping.
type Kind int

const (
	// Internal is an invariant violation or unexpected failure.
	Internal Kind = iota
	// Validation is bad input from an API caller. No state change occurred.
	Validation
	// NotFound is an unknown agent, task, tool, model, or conversation.
	NotFound
	// Conflict is a rejected transition: dependency cycle, duplicate start,
	// mutation of a terminal task.
	Conflict
	// BackendUnavailable is a model load failure or missing tool dependency.
	BackendUnavailable
	// Transient is a store or broker I/O blip; callers may retry.
	Transient
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case BackendUnavailable:
		return "backend_unavailable"
	case Transient:
		return "transient"
	default:
		return "internal"
	}
}

// Error carries a kind plus a human-readable message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a cause. A nil cause returns nil.
func Wrap(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors are
// Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
