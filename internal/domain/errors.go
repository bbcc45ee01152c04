package domain

import "errors"

var (
	// ErrAlreadyClaimed is returned by the store when a claim insert loses
	// the uniqueness race on the announcement message ID.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrDropNotFound indicates a claim referenced a drop that does not
	// exist. This is a data-integrity fault, not a retryable condition.
	ErrDropNotFound = errors.New("drop not found")

	// ErrInvalidLink rejects manual drop links that are not http(s) URLs.
	ErrInvalidLink = errors.New("invalid link")

	// ErrTicketCreation wraps failures materializing the private ticket
	// channel after a winning claim. The claim stands regardless.
	ErrTicketCreation = errors.New("ticket creation failed")
)
