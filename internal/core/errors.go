package core

import "errors"

// Error taxonomy for the voice agent. Every failed job terminates with
// exactly one of these sentinels in its error chain; the dispatcher maps
// them to stable external codes.
var (
	// ErrValidation indicates bad input shape or values, correctable by the caller.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates an absent voice id. This is an expected outcome, not
	// an exceptional one.
	ErrNotFound = errors.New("voice not found")
	// ErrConfiguration indicates a missing default voice or a misconfigured backend.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidSample indicates a reference audio sample that is empty, too
	// short, or unreadable.
	ErrInvalidSample = errors.New("invalid audio sample")
	// ErrBackend indicates a model inference failure inside an engine.
	ErrBackend = errors.New("backend error")
	// ErrResource indicates an unavailable backend (missing weights, out of memory).
	ErrResource = errors.New("resource error")
	// ErrTimeout indicates a job that exceeded its execution budget.
	ErrTimeout = errors.New("job timed out")
	// ErrUnsupportedOperation indicates an unknown operation name in an envelope.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)
