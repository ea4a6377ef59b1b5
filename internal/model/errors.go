package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent is returned when an event fingerprint has already been
// processed within the idempotency TTL window.
var ErrDuplicateEvent = errors.New("duplicate event")

// ValidationError marks a structurally invalid event. Non-retryable: the
// event is acknowledged and dead-lettered immediately.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: field %q: %s", e.Field, e.Reason)
}

// TransientError marks a temporary downstream failure. Retryable with
// bounded exponential backoff; exhausted retries dead-letter the event.
type TransientError struct {
	Dependency string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Dependency, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ScreeningProviderError marks a screening-source failure. The matcher fails
// over to a secondary source; total failure yields a manual-review
// placeholder, never a clean result.
type ScreeningProviderError struct {
	Source string
	Err    error
}

func (e *ScreeningProviderError) Error() string {
	return fmt.Sprintf("screening source %s failed: %v", e.Source, e.Err)
}

func (e *ScreeningProviderError) Unwrap() error { return e.Err }

// ConfigurationError marks invalid threshold or weight configuration.
// Fatal at startup, never raised per event.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Setting, e.Reason)
}

// IsRetryable reports whether the error represents a transient condition
// that may succeed on a later attempt.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether the error is a non-retryable structural
// validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
