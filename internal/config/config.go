// Package config loads bot configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the bot.
type Config struct {
	// Token is the Discord bot token.
	Token string `env:"DISCORD_TOKEN,required"`

	// DropsChannelID is the public channel where drop announcements are
	// posted and where /drop may be used.
	DropsChannelID string `env:"DROPS_CHANNEL_ID,required"`

	// TicketsCategoryID is the category under which private claim ticket
	// channels are created.
	TicketsCategoryID string `env:"TICKETS_CATEGORY_ID,required"`

	// WebhookInChannelID is the channel watched for upstream announcements.
	// Empty disables automatic ingestion.
	WebhookInChannelID string `env:"WEBHOOK_IN_CHANNEL_ID"`

	// StaffRoleName is the role granted access to every ticket channel.
	StaffRoleName string `env:"STAFF_ROLE_NAME" envDefault:"RUN"`

	// AllowedSourceBotName restricts ingestion to messages authored by this
	// bot account.
	AllowedSourceBotName string `env:"ALLOWED_SOURCE_BOT_NAME" envDefault:"VETRO"`

	// TicketPrefix is the naming prefix for ticket channels.
	TicketPrefix string `env:"TICKET_PREFIX" envDefault:"claim"`

	// PrivateMarker is the keyword marking the private-link field on
	// upstream announcements.
	PrivateMarker string `env:"PRIVATE_MARKER" envDefault:"cookies"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `env:"DATABASE_PATH" envDefault:"claimbot.sqlite"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
