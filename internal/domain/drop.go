package domain

import "time"

// Drop is a claimable offer backed by a private payout link. The link is
// only ever revealed inside the ticket channel of the winning claimant.
type Drop struct {
	// ID is an opaque identifier carried in the claim button's custom ID.
	ID string

	// Link is the private payout link. Immutable once stored.
	Link string

	// CreatedAt is when the drop was derived or manually posted.
	CreatedAt time.Time
}

// Claim records the winner of a drop announcement. At most one claim exists
// per announcement message, enforced by the store's primary key.
type Claim struct {
	// MessageID is the public announcement message the claimant acted on.
	MessageID string

	// DropID is the drop that was claimed.
	DropID string

	// UserID is the winning claimant.
	UserID string

	// TicketChannelID is the private ticket channel, set after creation.
	// Empty when ticket creation failed; the claim still stands.
	TicketChannelID string

	// ClaimedAt is when the winning insert happened.
	ClaimedAt time.Time
}

// SourceRecord tracks an upstream announcement message so that at most one
// drop is ever derived from it, across edits and re-deliveries.
type SourceRecord struct {
	ID          string
	Processed   bool
	FirstSeenAt time.Time
}
