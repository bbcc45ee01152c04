// Package discord is the chat-platform glue: it adapts Discord gateway
// events and REST calls to the domain's Announcement, Platform, and claim
// types. No arbitration or extraction logic lives here.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/blackmichael/claimbot/internal/config"
	"github.com/blackmichael/claimbot/internal/domain"
)

// Client implements the outbound platform surface (domain.Platform) and the
// upstream message fetcher used by scheduled re-checks.
type Client struct {
	session *discordgo.Session
	cfg     *config.Config
	logger  *slog.Logger
}

// NewClient wraps a Discord session as the domain's platform port.
func NewClient(session *discordgo.Session, cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		session: session,
		cfg:     cfg,
		logger:  logger,
	}
}

// FetchAnnouncement re-reads the latest state of an upstream message from
// the ingestion channel.
func (c *Client) FetchAnnouncement(ctx context.Context, sourceID string) (*domain.Announcement, error) {
	msg, err := c.session.ChannelMessage(c.cfg.WebhookInChannelID, sourceID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch source message %s: %w", sourceID, err)
	}
	return announcementFromMessage(msg), nil
}

// announcementFromMessage maps a Discord message's first embed onto the
// domain announcement type. A message without embeds yields an empty
// announcement, which the readiness gate will reject.
func announcementFromMessage(msg *discordgo.Message) *domain.Announcement {
	ann := &domain.Announcement{}
	if msg == nil || len(msg.Embeds) == 0 {
		return ann
	}

	e := msg.Embeds[0]
	ann.Title = e.Title
	ann.Description = e.Description
	ann.URL = e.URL
	if e.Thumbnail != nil {
		ann.Thumbnail = e.Thumbnail.URL
	}
	for _, f := range e.Fields {
		ann.Fields = append(ann.Fields, domain.Field{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return ann
}
