package pulse

import "errors"

// Error taxonomy for the pulse core. The HTTP layer maps these to status
// codes with errors.Is; everything else wraps them with %w and detail.
var (
	// ErrValidation marks user-correctable bad input.
	ErrValidation = errors.New("invalid input")

	// ErrForbidden marks an attempt to act on another user's resource.
	ErrForbidden = errors.New("not allowed")

	// ErrNotFound marks a post that is missing, deleted, or expired.
	ErrNotFound = errors.New("post not found")

	// ErrInvalidReveal marks a reveal request on a non-anonymous post or
	// by the post's own author.
	ErrInvalidReveal = errors.New("invalid reveal request")

	// ErrTransient marks storage contention or timeout. Every mutating
	// operation here is idempotent, so callers may retry.
	ErrTransient = errors.New("transient storage failure")
)
