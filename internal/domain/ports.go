package domain

import (
	"context"
	"time"
)

// Store defines persistence for drops, claims, and the upstream source
// ledger. Implementations must make InsertClaim and MarkSourceProcessed
// atomic: all cross-event coordination is delegated to the store.
type Store interface {
	// CreateDrop inserts a new drop. The drop's link is immutable afterwards.
	CreateDrop(ctx context.Context, drop *Drop) error

	// GetDrop retrieves a drop by ID. Returns ErrDropNotFound if absent.
	GetDrop(ctx context.Context, id string) (*Drop, error)

	// InsertClaim atomically records a claim keyed by announcement message
	// ID. Returns ErrAlreadyClaimed if a claim already exists for that
	// message. This single insert is the sole arbiter of who won.
	InsertClaim(ctx context.Context, claim *Claim) error

	// GetClaim retrieves the claim for an announcement message, or nil if
	// the announcement is unclaimed.
	GetClaim(ctx context.Context, messageID string) (*Claim, error)

	// SetClaimTicket records the ticket channel created for a winning claim.
	SetClaimTicket(ctx context.Context, messageID, ticketChannelID string) error

	// ObserveSource records the first sighting of an upstream message ID.
	// Observing an already-known ID is a no-op, including under races
	// between a fresh delivery and a scheduled re-check.
	ObserveSource(ctx context.Context, sourceID string, seenAt time.Time) error

	// SourceProcessed reports whether a drop was already derived from the
	// upstream message.
	SourceProcessed(ctx context.Context, sourceID string) (bool, error)

	// MarkSourceProcessed flips the source's processed flag false to true.
	// Returns true only for the single caller that performed the flip, so
	// concurrent observers derive at most one drop per source.
	MarkSourceProcessed(ctx context.Context, sourceID string) (bool, error)

	// Close releases the underlying store handle.
	Close() error
}

// Platform is the narrow outbound surface of the chat platform: publishing
// announcements, materializing ticket channels, and flipping a published
// announcement to its terminal claimed state. All identifiers are opaque
// platform strings.
type Platform interface {
	// PublishDrop posts the public announcement for a drop and returns the
	// announcement message ID. The rendered message never contains the
	// private link.
	PublishDrop(ctx context.Context, dropID string, ext Extraction) (string, error)

	// CreateTicket creates the private channel for a winning claimant,
	// visible to the claimant, the staff role, and the bot, and posts the
	// private link into it. Returns the new channel's ID.
	CreateTicket(ctx context.Context, guildID, claimantID, privateLink string) (string, error)

	// MarkClaimed edits the public announcement in place to its terminal
	// claimed-by state and permanently disables the claim control.
	MarkClaimed(ctx context.Context, channelID, messageID, claimantID string) error
}
