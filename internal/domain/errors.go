package domain

import "errors"

// Error taxonomy of the turn pipeline. Only ErrTransport and ErrValidation
// can surface to the user (as the fallback response); the rest are recovered
// locally.
var (
	// ErrTransport marks a model or retrieval call that failed to complete.
	ErrTransport = errors.New("transport error")

	// ErrValidation marks agent output that stayed invalid after all
	// repair attempts.
	ErrValidation = errors.New("validation error")

	// ErrRouterInconsistency marks a planned action missing its required
	// directive. Dropped and logged, never fatal.
	ErrRouterInconsistency = errors.New("router inconsistency")

	// ErrStateTransitionRejected marks a completion signal that arrived
	// out of order. Ignored and logged, never fatal.
	ErrStateTransitionRejected = errors.New("state transition rejected")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)
