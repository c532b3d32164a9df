package domain

import (
	"errors"
	"fmt"
)

// Signal-level rejections. The engine drops the offending signal and the
// run continues.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicatePosition = errors.New("position already open for symbol")
)

// ErrInvalidState marks an invariant violation inside position or portfolio
// bookkeeping, e.g. closing a position twice. Always fatal.
var ErrInvalidState = errors.New("invalid position state")

// ConfigurationError reports a missing or invalid configuration value. It is
// surfaced to the caller before any simulation starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
