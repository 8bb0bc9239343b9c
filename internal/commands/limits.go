package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

// handleSetLimit handles /set limit
func (h *Handler) handleSetLimit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	limit, err := limitFromOptions(opts)
	if err != nil {
		return err
	}
	category := models.Category(opts.str("category"))

	p, err := h.svc.SetLimit(ctx, gid, category, limit)
	if err != nil {
		return err
	}

	embed := baseEmbed("Limit Updated", fmt.Sprintf("**%s** is now limited to **%d** per **%s**.",
		categoryLabel(category), limit.Limit, limit.Window), successColor)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Action", Value: string(p.ActionFor(category)), Inline: true},
		{Name: "Effective Limit", Value: fmt.Sprintf("%d", p.EffectiveLimit(category)), Inline: true},
	}
	return respondEmbed(s, i, embed, false)
}

func limitFromOptions(opts options) (config.CategoryLimit, error) {
	category := opts.str("category")
	if _, ok := models.ParseCategory(category); !ok {
		return config.CategoryLimit{}, badInput("unknown category %q", category)
	}

	window, err := parseWindow(opts.str("window"))
	if err != nil {
		return config.CategoryLimit{}, err
	}

	limit := config.CategoryLimit{
		Limit:  int(opts.integer("limit")),
		Window: window,
	}
	if opts.has("action") {
		action, ok := models.ParseAction(opts.str("action"))
		if !ok || !action.IsForward() {
			return config.CategoryLimit{}, badInput("unknown action %q", opts.str("action"))
		}
		limit.Action = action
	}
	return limit, nil
}

// handleLogs handles /logs
func (h *Handler) handleLogs(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	channelID, ok := opts.id("channel")
	if !ok {
		return badInput("pick a channel")
	}
	if _, err := h.svc.SetLogChannel(ctx, gid, channelID); err != nil {
		return err
	}
	desc := fmt.Sprintf("Moderation logs will be posted to %s.", mentionFor(config.WhitelistChannel, channelID))
	return respondEmbed(s, i, baseEmbed("Logging Enabled", desc, successColor), false)
}
