package engine

import (
	"errors"
	"fmt"
)

// Replicate invariant error codes (R100-R199). An invariant violation
// indicates a bug in the engine, never bad input: it is always fatal and is
// never caught and retried.
const (
	// ErrCodeAllocSum indicates allocation probabilities failed to sum to 1
	// within tolerance.
	ErrCodeAllocSum = "R101"
	// ErrCodeNoConverge indicates the constrained redistribution failed to
	// reach a fixed point.
	ErrCodeNoConverge = "R102"
	// ErrCodeBadTransition indicates a state-machine transition out of
	// order (e.g. advancing a terminated replicate).
	ErrCodeBadTransition = "R103"
)

// InvariantError reports a broken internal invariant of a replicate.
type InvariantError struct {
	Code    string
	Look    int // 1-based look index, 0 when not look-scoped
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Look > 0 {
		return fmt.Sprintf("%s: %s (look=%d)", e.Code, e.Message, e.Look)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError reports whether err is a replicate invariant violation.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
