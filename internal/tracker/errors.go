package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the registry and its callers.
var (
	// ErrNotFound reports an unknown URL or product.
	ErrNotFound = errors.New("not found")
	// ErrNoTransition reports a result for a URL whose status admits no
	// transition (Inactive or Rejected). Callers skip the item.
	ErrNoTransition = errors.New("status admits no transition")
	// ErrUnauthorized reports a missing or mismatched caller credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports a malformed or disallowed URL. User-correctable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid url: %s", e.Reason)
}

// PersistenceError wraps a store failure. The whole batch call fails and the
// caller retries later; ingestion is idempotent so the retry is safe.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
