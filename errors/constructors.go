package errors

import (
	"fmt"
)

// BinNotFound creates an unknown-bin error for the given operation
func BinNotFound(binID, operation string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("bin '%s' not found", binID)).
		WithDetail("binId", binID).
		WithDetail("operation", operation)
}

// InvalidInput creates an input validation error
func InvalidInput(operation, reason string) *Error {
	return New(ErrCodeInvalidInput, reason).
		WithDetail("operation", operation)
}

// InvariantViolation creates an error describing a broken bin invariant.
// These indicate programming errors and are never recoverable.
func InvariantViolation(binID, invariant string) *Error {
	return New(ErrCodeInvariantViolation, fmt.Sprintf("bin '%s' violates invariant: %s", binID, invariant)).
		WithDetail("binId", binID).
		WithDetail("invariant", invariant)
}

// Transient wraps a timeout or connection failure so callers know to retry
func Transient(operation string, err error) *Error {
	return Wrap(err, ErrCodeTransient, fmt.Sprintf("%s failed", operation)).
		WithDetail("operation", operation)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// DaemonNotRunning reports that no daemon answered at addr
func DaemonNotRunning(addr string, err error) *Error {
	return Wrap(err, ErrCodeDaemonNotRunning, fmt.Sprintf("daemon not reachable at %s", addr)).
		WithDetail("addr", addr)
}
