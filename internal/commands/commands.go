package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

var (
	adminPermission int64 = discordgo.PermissionAdministrator
	guildOnly             = false
)

func categoryChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(models.Categories))
	for _, c := range models.Categories {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: categoryLabel(c), Value: string(c)})
	}
	return choices
}

func actionChoices() []*discordgo.ApplicationCommandOptionChoice {
	actions := []models.Action{
		models.ActionWarning,
		models.ActionTimeout,
		models.ActionDeleteMessage,
		models.ActionKick,
		models.ActionBan,
		models.ActionRevokePermissions,
	}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(actions))
	for _, a := range actions {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(a), Value: string(a)})
	}
	return choices
}

func statusChoices() []*discordgo.ApplicationCommandOptionChoice {
	statuses := []models.AppealStatus{models.AppealPending, models.AppealInvestigating, models.AppealApproved, models.AppealRejected}
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(statuses))
	for _, s := range statuses {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(s), Value: string(s)})
	}
	return choices
}

func whitelistTargetOptions(verb string) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{Name: "user", Description: "User to " + verb, Type: discordgo.ApplicationCommandOptionUser},
		{Name: "role", Description: "Role to " + verb, Type: discordgo.ApplicationCommandOptionRole},
		{Name: "channel", Description: "Channel to " + verb, Type: discordgo.ApplicationCommandOptionChannel},
	}
}

func appealIDOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:        "id",
		Description: "Appeal ID",
		Type:        discordgo.ApplicationCommandOptionString,
		Required:    true,
	}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:        "reason",
		Description: "Reason recorded with the decision",
		Type:        discordgo.ApplicationCommandOptionString,
	}
}

// All returns every application command.
func All() []*discordgo.ApplicationCommand {
	minLimit := float64(1)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     "antinuke",
			Description:              "Manage anti-nuke protection",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "enable",
					Description: "Enable anti-nuke protection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "disable",
					Description: "Disable anti-nuke protection",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name:        "strict",
					Description: "Toggle strict mode, which tightens every limit",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "enabled", Description: "Whether strict mode is on", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
					},
				},
				{
					Name:        "whitelist",
					Description: "Manage whitelist",
					Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "add",
							Description: "Add a user, role or channel to the whitelist",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Options:     whitelistTargetOptions("whitelist"),
						},
						{
							Name:        "remove",
							Description: "Remove a user, role or channel from the whitelist",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
							Options:     whitelistTargetOptions("remove from whitelist"),
						},
						{
							Name:        "view",
							Description: "View all whitelisted users, roles and channels",
							Type:        discordgo.ApplicationCommandOptionSubCommand,
						},
					},
				},
			},
		},
		{
			Name:                     "set",
			Description:              "Configure settings",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "limit",
					Description: "Set the rate limit for a category",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Name:        "category",
							Description: "Activity category",
							Type:        discordgo.ApplicationCommandOptionString,
							Required:    true,
							Choices:     categoryChoices(),
						},
						{
							Name:        "limit",
							Description: "Events allowed inside the window",
							Type:        discordgo.ApplicationCommandOptionInteger,
							Required:    true,
							MinValue:    &minLimit,
						},
						{
							Name:        "window",
							Description: "Window length, for example 30s or 5m",
							Type:        discordgo.ApplicationCommandOptionString,
							Required:    true,
						},
						{
							Name:        "action",
							Description: "Action taken when the limit is exceeded",
							Type:        discordgo.ApplicationCommandOptionString,
							Choices:     actionChoices(),
						},
					},
				},
			},
		},
		{
			Name:                     "logs",
			Description:              "Set the channel that receives moderation logs",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:         "channel",
					Description:  "Log channel",
					Type:         discordgo.ApplicationCommandOptionChannel,
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
				},
			},
		},
		{
			Name:                     "status",
			Description:              "Show protection status",
			DefaultMemberPermissions: &adminPermission,
			DMPermission:             &guildOnly,
		},
		{
			Name:         "history",
			Description:  "Show a member's violation history",
			DMPermission: &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "user", Description: "Member to look up, defaults to you", Type: discordgo.ApplicationCommandOptionUser},
			},
		},
		{
			Name:         "appeal",
			Description:  "Appeal an automatic moderation action",
			DMPermission: &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "submit",
					Description: "Appeal one of your violations",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "violation", Description: "Violation ID from /history", Type: discordgo.ApplicationCommandOptionString, Required: true},
						{Name: "statement", Description: "Why the action was wrong", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Name:        "investigate",
					Description: "Start investigating an appeal",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options:     []*discordgo.ApplicationCommandOption{appealIDOption()},
				},
				{
					Name:        "approve",
					Description: "Approve an appeal and reverse the action",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options:     []*discordgo.ApplicationCommandOption{appealIDOption(), reasonOption()},
				},
				{
					Name:        "reject",
					Description: "Reject an appeal",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options:     []*discordgo.ApplicationCommandOption{appealIDOption(), reasonOption()},
				},
				{
					Name:        "list",
					Description: "List appeals",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "status", Description: "Only appeals in this state", Type: discordgo.ApplicationCommandOptionString, Choices: statusChoices()},
					},
				},
			},
		},
		{
			Name:        "stats",
			Description: "Show host and bot statistics",
		},
		{
			Name:        "ping",
			Description: "Show gateway and API latency",
		},
	}
}
