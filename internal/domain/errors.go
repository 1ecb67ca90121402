package domain

import "errors"

var (
	// ErrValidation marks a malformed plan rejected at ingestion. Events
	// carrying such plans are never stored in any live view.
	ErrValidation = errors.New("plan validation failed")

	// ErrCollaboratorUnavailable indicates the friend graph or plan store
	// could not be reached after bounded retries. Callers degrade to the
	// last known state rather than failing.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrInconsistentState flags a derived-state operation referencing a
	// plan the feed no longer knows about. Feed state is the source of
	// truth; the condition is logged and ignored.
	ErrInconsistentState = errors.New("inconsistent overlap state")
)
