// Package matcherr defines the matching engine's structured error
// kinds. These are plain Go error types, not exceptions: callers
// branch on them with errors.As, and the pipeline driver uses them to
// decide whether a failure isolates to one document or aborts the run.
package matcherr

import (
	"errors"
	"fmt"
)

// MissingSignalError reports that a stage's precondition was violated: a
// required signal is absent from an entity the stage needs to read. Fatal
// to the pipeline.
type MissingSignalError struct {
	Entity   string
	SignalID string
	Stage    string
}

func (e *MissingSignalError) Error() string {
	return fmt.Sprintf("missing signal %q on %s (required by stage %q)", e.SignalID, e.Entity, e.Stage)
}

// EmbeddingFailureError wraps a failure from the external embedding
// provider. A stage may retry once with backoff before surfacing it.
type EmbeddingFailureError struct {
	Cause error
}

func (e *EmbeddingFailureError) Error() string {
	return fmt.Sprintf("embedding failure: %v", e.Cause)
}

func (e *EmbeddingFailureError) Unwrap() error { return e.Cause }

// UserCancelled is returned when the user (or a cooperative cancellation)
// stopped the feedback loop. It is a normal termination, not a failure:
// callers should treat it as "stop with partial results".
var UserCancelled = errors.New("matching: cancelled by user")

// ResourceUnavailableError reports that a required resource-manager
// resource was not loaded. Fatal.
type ResourceUnavailableError struct {
	ResourceID string
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("resource unavailable: %s", e.ResourceID)
}

// ConsistencyViolationError reports a broken data-model invariant, such as
// a nugget's offsets falling outside its document. Fatal; should never
// occur after a successful load and consistency pass.
type ConsistencyViolationError struct {
	Invariant string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("consistency violation: %s", e.Invariant)
}

// PersistenceError wraps a codec failure. Callers decide how to proceed.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
