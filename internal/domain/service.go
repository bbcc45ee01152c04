package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var manualLinkPattern = regexp.MustCompile(`(?i)^https?://`)

// DropService is the core domain service. It owns drop creation, the
// ingestion of upstream announcements, and claim arbitration. Concurrent
// claim attempts are resolved entirely by the store's atomic insert; the
// service holds no locks.
type DropService struct {
	store    Store
	platform Platform
	marker   string
	logger   *slog.Logger
}

// NewDropService creates a DropService. marker selects the private-link
// field keyword; empty means DefaultPrivateMarker.
func NewDropService(store Store, platform Platform, marker string, logger *slog.Logger) *DropService {
	if marker == "" {
		marker = DefaultPrivateMarker
	}
	return &DropService{
		store:    store,
		platform: platform,
		marker:   marker,
		logger:   logger,
	}
}

// PostManualDrop validates a caller-supplied link, stores a new drop, and
// publishes its announcement. Returns ErrInvalidLink for non-http(s) links;
// no state changes in that case.
func (s *DropService) PostManualDrop(ctx context.Context, link string) (*Drop, error) {
	if !manualLinkPattern.MatchString(link) {
		return nil, ErrInvalidLink
	}

	drop := &Drop{
		ID:        uuid.NewString(),
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDrop(ctx, drop); err != nil {
		return nil, fmt.Errorf("create drop: %w", err)
	}

	messageID, err := s.platform.PublishDrop(ctx, drop.ID, Extraction{})
	if err != nil {
		return nil, fmt.Errorf("publish drop: %w", err)
	}

	s.logger.Info("manual drop posted", "drop_id", drop.ID, "message_id", messageID)
	return drop, nil
}

// ClaimRequest identifies one claim attempt: who is claiming which drop on
// which public announcement message.
type ClaimRequest struct {
	GuildID    string
	ChannelID  string
	MessageID  string
	DropID     string
	ClaimantID string
}

// ClaimResult reports the outcome of a claim attempt.
type ClaimResult struct {
	// Won is true for exactly one claimant per announcement message.
	Won bool

	// TicketChannelID is the private channel created for the winner. Empty
	// on a lost claim, or when ticket creation failed after a win.
	TicketChannelID string
}

// AttemptClaim arbitrates a claim attempt. The decision is a single atomic
// insert keyed by the announcement message ID; a pre-check read only exists
// to fail fast. On a win the ticket channel is materialized and the public
// announcement is flipped to its terminal state.
//
// A claim, once inserted, is never rolled back. If the drop lookup or the
// ticket creation fails afterwards, the returned result still has Won set
// alongside the error; the inconsistency is recorded for manual follow-up
// rather than letting a second claimant win.
func (s *DropService) AttemptClaim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	// Fast path only. The insert below is the source of truth.
	if existing, err := s.store.GetClaim(ctx, req.MessageID); err == nil && existing != nil {
		return ClaimResult{}, nil
	}

	claim := &Claim{
		MessageID: req.MessageID,
		DropID:    req.DropID,
		UserID:    req.ClaimantID,
		ClaimedAt: time.Now().UTC(),
	}
	if err := s.store.InsertClaim(ctx, claim); err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			return ClaimResult{}, nil
		}
		return ClaimResult{}, fmt.Errorf("insert claim: %w", err)
	}

	s.logger.Info("claim won",
		"message_id", req.MessageID,
		"drop_id", req.DropID,
		"claimant_id", req.ClaimantID,
	)

	drop, err := s.store.GetDrop(ctx, req.DropID)
	if err != nil {
		s.logger.Error("claim won but drop lookup failed",
			"drop_id", req.DropID,
			"message_id", req.MessageID,
			"error", err,
		)
		return ClaimResult{Won: true}, fmt.Errorf("get drop %s: %w", req.DropID, err)
	}

	ticketID, err := s.platform.CreateTicket(ctx, req.GuildID, req.ClaimantID, drop.Link)
	if err != nil {
		s.logger.Error("claim won but ticket creation failed",
			"drop_id", req.DropID,
			"claimant_id", req.ClaimantID,
			"error", err,
		)
		return ClaimResult{Won: true}, fmt.Errorf("%w: %v", ErrTicketCreation, err)
	}

	if err := s.store.SetClaimTicket(ctx, req.MessageID, ticketID); err != nil {
		// Ticket exists and the claim stands; only the back-reference is lost.
		s.logger.Warn("failed to record ticket channel on claim",
			"message_id", req.MessageID,
			"ticket_channel_id", ticketID,
			"error", err,
		)
	}

	if err := s.platform.MarkClaimed(ctx, req.ChannelID, req.MessageID, req.ClaimantID); err != nil {
		s.logger.Error("failed to mark announcement claimed",
			"message_id", req.MessageID,
			"error", err,
		)
	}

	return ClaimResult{Won: true, TicketChannelID: ticketID}, nil
}

// IngestAnnouncement processes one observation of an upstream announcement.
// It returns true once the source is fully processed (a drop was derived,
// now or on a previous observation), signalling that no further re-checks
// are needed.
//
// The same source may be observed many times: initial delivery, edits, and
// scheduled re-checks, possibly concurrently. The processed flip in the
// store guarantees at most one drop per source regardless.
func (s *DropService) IngestAnnouncement(ctx context.Context, sourceID string, ann *Announcement) (bool, error) {
	if err := s.store.ObserveSource(ctx, sourceID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("observe source %s: %w", sourceID, err)
	}

	processed, err := s.store.SourceProcessed(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("check source %s: %w", sourceID, err)
	}
	if processed {
		return true, nil
	}

	ext := Extract(ann, s.marker)
	if !Ready(ext) {
		s.logger.Debug("announcement not ready",
			"source_id", sourceID,
			"has_link", ext.PrivateLink != "",
			"public_fields", len(ext.PublicFields),
		)
		return false, nil
	}

	flipped, err := s.store.MarkSourceProcessed(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("mark source %s processed: %w", sourceID, err)
	}
	if !flipped {
		// A concurrent observation of the same message derived the drop.
		return true, nil
	}

	drop := &Drop{
		ID:        uuid.NewString(),
		Link:      ext.PrivateLink,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateDrop(ctx, drop); err != nil {
		return true, fmt.Errorf("create drop for source %s: %w", sourceID, err)
	}

	// The platform only ever sees a link-free extraction.
	public := ext
	public.PrivateLink = ""
	messageID, err := s.platform.PublishDrop(ctx, drop.ID, public)
	if err != nil {
		return true, fmt.Errorf("publish drop for source %s: %w", sourceID, err)
	}

	s.logger.Info("drop derived from upstream announcement",
		"source_id", sourceID,
		"drop_id", drop.ID,
		"message_id", messageID,
		"public_fields", len(ext.PublicFields),
	)
	return true, nil
}
