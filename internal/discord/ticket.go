package discord

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var channelNameSanitizer = regexp.MustCompile(`[^a-z0-9-]`)

const claimantPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAttachFiles

const staffPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionManageChannels

// CreateTicket creates the private ticket channel for a winning claimant
// under the configured category and posts the private link into it. The
// channel is visible to the claimant, the staff role, and the bot; everyone
// else is denied.
func (c *Client) CreateTicket(ctx context.Context, guildID, claimantID, privateLink string) (string, error) {
	category, err := c.session.Channel(c.cfg.TicketsCategoryID, discordgo.WithContext(ctx))
	if err != nil || category.Type != discordgo.ChannelTypeGuildCategory {
		return "", fmt.Errorf("tickets category %s missing or not a category", c.cfg.TicketsCategoryID)
	}

	staffRoleID, err := c.resolveStaffRole(ctx, guildID)
	if err != nil {
		return "", err
	}

	member, err := c.session.GuildMember(guildID, claimantID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch claimant member: %w", err)
	}

	ticket, err := c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     ticketChannelName(c.cfg.TicketPrefix, member.User.Username, claimantID),
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: category.ID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				ID:   guildID, // @everyone
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    claimantID,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: claimantPermissions,
			},
			{
				ID:    staffRoleID,
				Type:  discordgo.PermissionOverwriteTypeRole,
				Allow: staffPermissions,
			},
			{
				ID:    c.session.State.User.ID,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: staffPermissions,
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create ticket channel: %w", err)
	}

	embed := &discordgo.MessageEmbed{
		Title: "✅ Claim validé",
		Description: fmt.Sprintf(
			"**Utilisateur :** <@%s>\n\n🔒 Ticket privé (toi + staff).\n\n✅ **Lien (Cookies link) :**\n%s",
			claimantID, privateLink,
		),
	}
	_, err = c.session.ChannelMessageSendComplex(ticket.ID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s> <@&%s>", claimantID, staffRoleID),
		Embeds:  []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		// Channel exists and is usable by staff; report but keep it.
		c.logger.Error("failed to send ticket welcome message",
			"ticket_channel_id", ticket.ID,
			"error", err,
		)
	}

	return ticket.ID, nil
}

// resolveStaffRole finds the configured staff role by name.
func (c *Client) resolveStaffRole(ctx context.Context, guildID string) (string, error) {
	roles, err := c.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch guild roles: %w", err)
	}
	for _, role := range roles {
		if strings.EqualFold(role.Name, c.cfg.StaffRoleName) {
			return role.ID, nil
		}
	}
	return "", fmt.Errorf("staff role %q not found", c.cfg.StaffRoleName)
}

// ticketChannelName builds "{prefix}-{username}-{last4 of user ID}" with
// everything outside [a-z0-9-] dropped, matching Discord channel name rules.
func ticketChannelName(prefix, username, userID string) string {
	base := strings.ToLower(prefix + "-" + username)
	base = channelNameSanitizer.ReplaceAllString(base, "")

	suffix := userID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return base + "-" + suffix
}
