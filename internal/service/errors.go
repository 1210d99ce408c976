package service

import "errors"

// Closed error set matched by the handlers. Ownership failures surface as
// ErrNotFound on purpose: the API answers 404 whether the row is missing or
// belongs to someone else, so nothing leaks about which it was.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("invalid input")
	ErrInvalidDueDate = errors.New("due_at is in the past")

	// ErrPosition reports an aborted reorder: a before/after reference
	// that did not resolve inside the freshly loaded sibling set, or a
	// rebalance write that failed mid-way. The transaction is rolled
	// back; no partial reorder is ever observable.
	ErrPosition = errors.New("position conflict")

	ErrNoSuggester = errors.New("task refinement is not configured")
)
