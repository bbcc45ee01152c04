package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/blackmichael/claimbot/internal/domain"
)

const (
	defaultDropTitle  = "🎁 Nouveau drop"
	claimInstructions = "Clique **Claim**. Le premier qui clique reçoit le lien dans un **ticket**."

	statusFieldName = "Statut"
	statusOpen      = "🟢 Disponible"
)

// PublishDrop posts the public announcement for a drop into the drops
// channel and returns the announcement message ID. The extraction's public
// fields are the only drop data rendered; the private link never appears.
func (c *Client) PublishDrop(ctx context.Context, dropID string, ext domain.Extraction) (string, error) {
	msg, err := c.session.ChannelMessageSendComplex(c.cfg.DropsChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{dropEmbed(ext)},
		Components: []discordgo.MessageComponent{claimRow(dropID, false)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send announcement: %w", err)
	}
	return msg.ID, nil
}

// MarkClaimed edits the public announcement to its terminal claimed state:
// status flipped, footer stamped, button disabled. There is no way back to
// the open state.
func (c *Client) MarkClaimed(ctx context.Context, channelID, messageID, claimantID string) error {
	msg, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("fetch announcement: %w", err)
	}
	if len(msg.Embeds) == 0 {
		return fmt.Errorf("announcement %s has no embed", messageID)
	}

	embed := msg.Embeds[0]
	setStatusField(embed, fmt.Sprintf("🔴 Claimé par <@%s>", claimantID))
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Claimed by " + c.claimantTag(ctx, claimantID),
	}

	dropID := dropIDFromComponents(msg.Components)
	embeds := []*discordgo.MessageEmbed{embed}
	components := []discordgo.MessageComponent{claimRow(dropID, true)}

	_, err = c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit announcement: %w", err)
	}
	return nil
}

// dropEmbed renders the public announcement embed: status first, then the
// sanitized public fields in extraction order.
func dropEmbed(ext domain.Extraction) *discordgo.MessageEmbed {
	title := ext.Title
	if title == "" {
		title = defaultDropTitle
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: statusFieldName, Value: statusOpen, Inline: true},
	}
	for _, f := range ext.PublicFields {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: claimInstructions,
		Fields:      fields,
	}
	if ext.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: ext.Thumbnail}
	}
	return embed
}

// claimRow builds the single claim button row. The custom ID binds the
// button to its drop; once claimed the button stays but can never be
// pressed again.
func claimRow(dropID string, claimed bool) discordgo.MessageComponent {
	button := discordgo.Button{
		Label:    "Claim",
		Style:    discordgo.SuccessButton,
		CustomID: claimCustomID(dropID),
	}
	if claimed {
		button.Label = "Claimed"
		button.Style = discordgo.SecondaryButton
		button.Disabled = true
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{button},
	}
}

// setStatusField replaces the status field's value, inserting the field if
// an older announcement somehow lacks one.
func setStatusField(embed *discordgo.MessageEmbed, value string) {
	for _, f := range embed.Fields {
		if f.Name == statusFieldName {
			f.Value = value
			return
		}
	}
	embed.Fields = append([]*discordgo.MessageEmbedField{
		{Name: statusFieldName, Value: value, Inline: true},
	}, embed.Fields...)
}

// dropIDFromComponents recovers the drop ID from the existing claim button
// so the terminal edit keeps the same custom ID.
func dropIDFromComponents(components []discordgo.MessageComponent) string {
	for _, comp := range components {
		row, ok := comp.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if button, ok := inner.(*discordgo.Button); ok {
				if dropID, ok := parseClaimCustomID(button.CustomID); ok {
					return dropID
				}
			}
		}
	}
	return ""
}

// claimantTag resolves a username for the footer, falling back to the raw
// ID when the lookup fails.
func (c *Client) claimantTag(ctx context.Context, claimantID string) string {
	user, err := c.session.User(claimantID, discordgo.WithContext(ctx))
	if err != nil {
		c.logger.Warn("failed to resolve claimant user", "user_id", claimantID, "error", err)
		return claimantID
	}
	return user.Username
}
