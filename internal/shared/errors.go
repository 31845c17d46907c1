package shared

import "errors"

var (
	// ErrIdempotencyConflict indicates a duplicate idempotency key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
)
