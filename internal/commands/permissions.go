package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// denial is the reason a member may not run an admin command. Empty means allowed.
type denial string

const (
	denyNoMember  denial = "This command can only be used by server members."
	denyNotAdmin  denial = "You need Administrator permission to use this command."
	denyOutranked denial = "Your highest role must sit above the bot's highest role."
)

// authorize lets the guild owner through unconditionally. Anyone else needs
// Administrator and a highest role above the bot's.
func authorize(s *discordgo.Session, i *discordgo.InteractionCreate) (denial, error) {
	if i.Member == nil || i.Member.User == nil {
		return denyNoMember, nil
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		if guild, err = s.Guild(i.GuildID); err != nil {
			return "", fmt.Errorf("failed to get guild: %w", err)
		}
	}
	if i.Member.User.ID == guild.OwnerID {
		return "", nil
	}

	// Interactions carry the member's resolved permissions for the channel.
	if i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		return denyNotAdmin, nil
	}

	botID := s.State.User.ID
	bot, err := s.State.Member(i.GuildID, botID)
	if err != nil {
		if bot, err = s.GuildMember(i.GuildID, botID); err != nil {
			return "", fmt.Errorf("failed to get bot member: %w", err)
		}
	}

	if !outranks(rolePositions(guild), i.Member.Roles, bot.Roles) {
		return denyOutranked, nil
	}
	return "", nil
}

func rolePositions(guild *discordgo.Guild) map[string]int {
	positions := make(map[string]int, len(guild.Roles))
	for _, r := range guild.Roles {
		positions[r.ID] = r.Position
	}
	return positions
}

// highestPosition is the top position among roleIDs. Unknown roles are ignored.
func highestPosition(positions map[string]int, roleIDs []string) (int, bool) {
	top, found := 0, false
	for _, id := range roleIDs {
		if p, ok := positions[id]; ok && (!found || p > top) {
			top, found = p, true
		}
	}
	return top, found
}

// outranks reports whether userRoles reach above botRoles. A bot with no roles is
// outranked by anyone.
func outranks(positions map[string]int, userRoles, botRoles []string) bool {
	botTop, ok := highestPosition(positions, botRoles)
	if !ok {
		return true
	}
	userTop, ok := highestPosition(positions, userRoles)
	return ok && userTop > botTop
}

func respondPermissionError(s *discordgo.Session, i *discordgo.InteractionCreate, reason denial) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "Access Denied",
				Description: string(reason),
				Color:       embedColor,
				Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
				Timestamp:   time.Now().Format(time.RFC3339),
			}},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}
