package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/blackmichael/claimbot/internal/config"
	"github.com/blackmichael/claimbot/internal/domain"
	"github.com/blackmichael/claimbot/internal/ingest"
)

const claimCustomIDPrefix = "claim:"

// Bot owns the gateway session and routes inbound events: the /drop
// command, claim button presses, and upstream announcement messages.
type Bot struct {
	session  *discordgo.Session
	cfg      *config.Config
	svc      *domain.DropService
	ingestor *ingest.Ingestor
	logger   *slog.Logger

	// ctx is the process lifetime context, captured at Start because
	// gateway handlers do not carry one.
	ctx context.Context
}

// NewBot wires the session to the drop service and ingestor.
func NewBot(session *discordgo.Session, cfg *config.Config, svc *domain.DropService, ingestor *ingest.Ingestor, logger *slog.Logger) *Bot {
	return &Bot{
		session:  session,
		cfg:      cfg,
		svc:      svc,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Start registers handlers and opens the gateway connection. The /drop
// command is registered once the ready event arrives.
func (b *Bot) Start(ctx context.Context) error {
	b.ctx = ctx

	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	return nil
}

// Close shuts down the gateway connection.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("connected", "user", r.User.Username)

	_, err := s.ApplicationCommandCreate(r.User.ID, "", &discordgo.ApplicationCommand{
		Name:        "drop",
		Description: "Poster un drop avec bouton Claim (envoi du lien dans un ticket).",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "lien",
				Description: "Lien à claim",
				Required:    true,
			},
		},
	})
	if err != nil {
		b.logger.Error("failed to register /drop command", "error", err)
		return
	}
	b.logger.Info("/drop command registered")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == "drop" {
			b.handleDropCommand(i)
		}
	case discordgo.InteractionMessageComponent:
		if dropID, ok := parseClaimCustomID(i.MessageComponentData().CustomID); ok {
			b.handleClaimButton(i, dropID)
		}
	}
}

// handleDropCommand posts a manual drop. Validation failures are reported
// only to the caller and change no state.
func (b *Bot) handleDropCommand(i *discordgo.InteractionCreate) {
	if i.ChannelID != b.cfg.DropsChannelID {
		b.respondEphemeral(i, "❌ Utilise /drop dans le salon drops.")
		return
	}

	link, ok := stringOption(i.ApplicationCommandData(), "lien")
	if !ok {
		b.respondEphemeral(i, "❌ Lien invalide (http/https).")
		return
	}

	_, err := b.svc.PostManualDrop(b.ctx, link)
	switch {
	case err == nil:
		b.respondEphemeral(i, "✅ Drop posté.")
	case errors.Is(err, domain.ErrInvalidLink):
		b.respondEphemeral(i, "❌ Lien invalide (http/https).")
	default:
		b.logger.Error("manual drop failed", "error", err)
		b.respondEphemeral(i, "⚠️ Impossible de poster le drop.")
	}
}

// handleClaimButton runs the claim attempt for a button press. The reply is
// deferred first: ticket creation can exceed the interaction ack window.
func (b *Bot) handleClaimButton(i *discordgo.InteractionCreate, dropID string) {
	if err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		b.logger.Error("failed to defer claim reply", "error", err)
		return
	}

	result, err := b.svc.AttemptClaim(b.ctx, domain.ClaimRequest{
		GuildID:    i.GuildID,
		ChannelID:  i.ChannelID,
		MessageID:  i.Message.ID,
		DropID:     dropID,
		ClaimantID: interactionUserID(i),
	})

	switch {
	case err == nil && result.Won:
		b.editReply(i, fmt.Sprintf("✅ Ticket créé : <#%s>", result.TicketChannelID))
	case err == nil:
		b.editReply(i, "❌ Trop tard : déjà claim.")
	case errors.Is(err, domain.ErrDropNotFound):
		b.editReply(i, "⚠️ Drop introuvable.")
	case errors.Is(err, domain.ErrTicketCreation):
		b.editReply(i, "⚠️ Erreur création ticket (permissions/catégorie).")
	default:
		b.logger.Error("claim attempt failed", "drop_id", dropID, "error", err)
		b.editReply(i, "⚠️ Erreur pendant le claim.")
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleUpstreamMessage(m.Message)
}

// onMessageUpdate covers upstream embeds that are filled in by edits after
// the initial delivery.
func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	b.handleUpstreamMessage(m.Message)
}

// handleUpstreamMessage filters gateway messages down to upstream
// announcements and feeds them to the ingestor. Any fault here is logged
// and swallowed: one broken announcement must not stop the stream.
func (b *Bot) handleUpstreamMessage(msg *discordgo.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic in ingestion handler", "panic", r)
		}
	}()

	if b.cfg.WebhookInChannelID == "" || msg == nil {
		return
	}
	if msg.ChannelID != b.cfg.WebhookInChannelID {
		return
	}
	if msg.Author != nil {
		if msg.Author.ID == b.session.State.User.ID {
			return
		}
		if msg.Author.Bot && msg.Author.Username != b.cfg.AllowedSourceBotName {
			return
		}
	}

	b.ingestor.Observe(b.ctx, msg.ID, announcementFromMessage(msg))
}

func (b *Bot) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error("failed to respond to interaction", "error", err)
	}
}

func (b *Bot) editReply(i *discordgo.InteractionCreate, content string) {
	_, err := b.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		b.logger.Error("failed to edit interaction reply", "error", err)
	}
}

// interactionUserID returns the acting user for both guild and DM contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func claimCustomID(dropID string) string {
	return claimCustomIDPrefix + dropID
}

// stringOption looks up a string command option without trusting the
// payload's shape; a malformed interaction must not panic the handler.
func stringOption(data discordgo.ApplicationCommandInteractionData, name string) (string, bool) {
	for _, opt := range data.Options {
		if opt == nil || opt.Name != name {
			continue
		}
		if value, ok := opt.Value.(string); ok {
			return value, true
		}
	}
	return "", false
}

// parseClaimCustomID extracts the drop ID from a "claim:<dropId>" custom ID.
func parseClaimCustomID(customID string) (string, bool) {
	if !strings.HasPrefix(customID, claimCustomIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(customID, claimCustomIDPrefix), true
}
