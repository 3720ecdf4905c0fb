package pattern

import (
	"errors"
	"fmt"
)

// Kind classifies pattern errors.
type Kind string

const (
	KindParse           Kind = "parse_error"
	KindNotFound        Kind = "not_found"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindMaxIterations   Kind = "max_iterations"
	KindActionFailed    Kind = "action_failed"
	KindInternal        Kind = "internal"
)

// Error is the structured pattern error. Reason is a human-readable
// explanation retained for audit on terminal failures.
type Error struct {
	Kind    Kind
	Pattern string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s: %s", e.Pattern, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a pattern error.
func NewError(kind Kind, patternName, reason string) *Error {
	return &Error{Kind: kind, Pattern: patternName, Reason: reason}
}

// WrapError builds a pattern error around a cause.
func WrapError(kind Kind, patternName, reason string, err error) *Error {
	return &Error{Kind: kind, Pattern: patternName, Reason: reason, Err: err}
}

// IsKind reports whether err is a pattern error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
