package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownEventKind indicates a payload arrived with an event kind
	// the parser has no mapping for. This is a programmer-visible fatal
	// error, not a user-facing one.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrTargetNotFound indicates a reaction event could not be resolved
	// to the message it was attached to.
	ErrTargetNotFound = errors.New("reaction target message not found")

	// ErrUploadVerification indicates a post-write metadata read did not
	// confirm the upload. The attempt is treated as failed and retried.
	ErrUploadVerification = errors.New("upload verification failed")

	// ErrRetriesExhausted indicates an operation failed after the
	// configured maximum number of attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrCancelled indicates an interactive confirmation was declined.
	ErrCancelled = errors.New("operation cancelled")
)
