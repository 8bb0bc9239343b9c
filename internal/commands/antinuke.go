package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

const (
	embedColor   = 0x2B2D31
	successColor = 0x57F287
	footerText   = "Anti-Nuke Security Systems"
)

func guildID(i *discordgo.InteractionCreate) (uint64, error) {
	id, err := util.StringToUint64(i.GuildID)
	if err != nil {
		return 0, badInput("this command only works inside a server")
	}
	return id, nil
}

func baseEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) handleEnable(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	return h.setEnabled(ctx, s, i, true)
}

func (h *Handler) handleDisable(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	return h.setEnabled(ctx, s, i, false)
}

func (h *Handler) setEnabled(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, enabled bool) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	if _, err := h.svc.SetEnabled(ctx, gid, enabled); err != nil {
		return err
	}

	title, desc := "Protection Enabled", "Every tracked category is now monitored."
	if !enabled {
		title, desc = "Protection Disabled", "Events are no longer evaluated for this server."
	}
	return respondEmbed(s, i, baseEmbed(title, desc, successColor), false)
}

func (h *Handler) handleStrict(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	strict := opts.flag("enabled")
	p, err := h.svc.SetStrict(ctx, gid, strict)
	if err != nil {
		return err
	}

	desc := "Limits are back to their configured values."
	if strict {
		desc = fmt.Sprintf("Every limit is scaled by %.2f while strict mode is on.", p.StrictFactor)
	}
	return respondEmbed(s, i, baseEmbed(fmt.Sprintf("Strict Mode %s", onOff(strict)), desc, successColor), false)
}

func (h *Handler) handleWhitelistAdd(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	kind, id, err := opts.whitelistTarget()
	if err != nil {
		return err
	}
	if _, err := h.svc.AddWhitelistEntry(ctx, gid, kind, id); err != nil {
		return err
	}
	desc := fmt.Sprintf("%s is now whitelisted and bypasses every limit.", mentionFor(kind, id))
	return respondEmbed(s, i, baseEmbed("Whitelist Updated", desc, successColor), false)
}

func (h *Handler) handleWhitelistRemove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	kind, id, err := opts.whitelistTarget()
	if err != nil {
		return err
	}
	if _, err := h.svc.RemoveWhitelistEntry(ctx, gid, kind, id); err != nil {
		return err
	}
	desc := fmt.Sprintf("%s was removed from the whitelist.", mentionFor(kind, id))
	return respondEmbed(s, i, baseEmbed("Whitelist Updated", desc, successColor), false)
}

func (h *Handler) handleWhitelistView(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	p := h.svc.GetPolicy(gid)

	embed := baseEmbed("Whitelist", "Entries that bypass every limit.", embedColor)
	embed.Fields = whitelistFields(p.Whitelist)
	return respondEmbed(s, i, embed, true)
}

func whitelistFields(w config.Whitelist) []*discordgo.MessageEmbedField {
	sections := []struct {
		title string
		kind  config.WhitelistKind
	}{
		{"Users", config.WhitelistUser},
		{"Roles", config.WhitelistRole},
		{"Channels", config.WhitelistChannel},
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(sections))
	for _, sec := range sections {
		entries := w.Entries(sec.kind)
		value := "None"
		if len(entries) > 0 {
			lines := make([]string, len(entries))
			for n, id := range entries {
				lines[n] = "• " + mentionFor(sec.kind, id)
			}
			value = truncate(strings.Join(lines, "\n"), 1024)
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s (%d)", sec.title, len(entries)),
			Value:  value,
			Inline: true,
		})
	}
	return fields
}

func mentionFor(kind config.WhitelistKind, id uint64) string {
	s := util.Uint64ToString(id)
	switch kind {
	case config.WhitelistRole:
		return "<@&" + s + ">"
	case config.WhitelistChannel:
		return "<#" + s + ">"
	default:
		return "<@" + s + ">"
	}
}

func onOff(b bool) string {
	if b {
		return "On"
	}
	return "Off"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
