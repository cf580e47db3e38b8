package engine

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrPolicyMissing     = errors.New("no routing policy for security level")
	ErrInvalidPolicy     = errors.New("invalid routing policy")
	ErrNoProvider        = errors.New("no available provider")
	ErrProviderFailure   = errors.New("provider operation failed")
	ErrNotFound          = errors.New("not found")
	ErrFailoverExhausted = errors.New("no backup provider available")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrTransform         = errors.New("payload transform failed")

	// ErrAlgorithmMismatch wraps ErrTransform when a payload was sealed
	// with a different compressor or cipher than the one configured
	ErrAlgorithmMismatch = fmt.Errorf("%w: algorithm mismatch", ErrTransform)
)

// SelectionError reports that no enabled provider satisfies a level's policy
type SelectionError struct {
	Level SecurityLevel
	Err   error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("select provider for %s: %v", e.Level, e.Err)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// OperationError reports a backend failure behind a provider
type OperationError struct {
	Op       string
	Provider string
	Key      string
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %q on %s: %v", e.Op, e.Key, e.Provider, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
