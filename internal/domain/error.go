package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownProvider  = errors.New("unknown ai provider")
	ErrNoActiveSession  = errors.New("no active chat session")
	ErrNoPendingMessage = errors.New("no pending user message to answer")

	// Safety pipeline
	ErrValidationRejected = errors.New("message rejected by validation")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")

	// External collaborators (model provider, vector index)
	ErrProviderFailure = errors.New("provider failure")
	ErrProviderTimeout = errors.New("provider timeout")
)

// RejectionError is returned when a message is refused before reaching the
// session. Reason is the user-facing text; Kind is one of the sentinels above.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Reason
}

func (e *RejectionError) Unwrap() error { return e.Kind }

func NewRejection(kind error, reason string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason}
}
