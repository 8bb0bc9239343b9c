package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/service"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

const historyLimit = 15

var categoryLabels = map[models.Category]string{
	models.CategoryChannelDelete:    "Channel Delete",
	models.CategoryRoleDelete:       "Role Delete",
	models.CategoryMemberBan:        "Member Ban",
	models.CategoryMemberKick:       "Member Kick",
	models.CategoryWebhookCreate:    "Webhook Create",
	models.CategoryPermissionChange: "Permission Change",
	models.CategoryMessage:          "Flagged Message",
}

func categoryLabel(c models.Category) string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

func (h *Handler) handleStatus(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	st := h.svc.CurrentStatus(gid)

	embed := baseEmbed("System Status Overview", "Real-time security configuration and operational status.", embedColor)
	embed.Fields = statusFields(st)
	return respondEmbed(s, i, embed, true)
}

func statusFields(st service.Status) []*discordgo.MessageEmbedField {
	level := "Disabled"
	if st.Enabled {
		level = "**Enabled**"
		if st.Strict {
			level = "**Strict** (limits tightened)"
		}
	}

	logChannel := "Not configured"
	if st.LogChannelID != 0 {
		logChannel = "<#" + util.Uint64ToString(st.LogChannelID) + ">"
	}

	modules := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		limit, ok := st.Limits[c]
		if !ok {
			continue
		}
		modules = append(modules, fmt.Sprintf("• %s `%d/%d`", categoryLabel(c), st.ModuleCounts[c], limit))
	}
	moduleText := "None"
	if len(modules) > 0 {
		moduleText = strings.Join(modules, "\n")
	}

	recent := "None"
	if len(st.RecentActions) > 0 {
		lines := make([]string, len(st.RecentActions))
		for n, r := range st.RecentActions {
			lines[n] = formatRecord(r, true)
		}
		recent = truncate(strings.Join(lines, "\n"), 1024)
	}

	return []*discordgo.MessageEmbedField{
		{Name: "Security Level", Value: level},
		{Name: "Audit Logging", Value: logChannel},
		{Name: "Active Protection Modules", Value: moduleText, Inline: true},
		{Name: "Overview", Value: fmt.Sprintf("Whitelisted: `%d`\nOpen appeals: `%d`\nRecorded actions: `%d`",
			st.Whitelisted, st.OpenAppeals, st.TotalRecords), Inline: true},
		{Name: "Recent Actions", Value: recent},
	}
}

// handleHistory lists a member's records. Members may always see their own; other
// members need the admin check.
func (h *Handler) handleHistory(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}

	self, err := util.StringToUint64(invokerID(i))
	if err != nil {
		return badInput("could not identify you")
	}
	target := self
	if id, ok := opts.id("user"); ok {
		target = id
	}

	if target != self {
		denied, err := authorize(s, i)
		if err != nil {
			return err
		}
		if denied != "" {
			respondPermissionError(s, i, "You can only view your own history. "+denied)
			return nil
		}
	}

	records := h.svc.GetViolationHistory(gid, target)
	desc := fmt.Sprintf("Records for %s, newest first.\n\n%s", util.Mention(target), historyText(records))
	return respondEmbed(s, i, baseEmbed("Violation History", desc, embedColor), true)
}

func historyText(records []models.ViolationRecord) string {
	if len(records) == 0 {
		return "No recorded actions."
	}
	// History is oldest first.
	lines := make([]string, 0, historyLimit)
	for n := len(records) - 1; n >= 0 && len(lines) < historyLimit; n-- {
		lines = append(lines, formatRecord(records[n], false))
	}
	if extra := len(records) - len(lines); extra > 0 {
		lines = append(lines, fmt.Sprintf("…and %d older", extra))
	}
	return truncate(strings.Join(lines, "\n"), 3900)
}

// formatRecord renders one ledger line. withUser adds the member mention.
func formatRecord(r models.ViolationRecord, withUser bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "`%s` **%s**", r.ID, r.Action)
	if r.Category != "" {
		fmt.Fprintf(&b, " · %s", categoryLabel(r.Category))
	}
	if withUser {
		fmt.Fprintf(&b, " · %s", util.Mention(r.UserID))
	}
	fmt.Fprintf(&b, " · <t:%d:R>", r.Timestamp.Unix())
	if r.Overridden {
		b.WriteString(" ~~overridden~~")
	}
	return b.String()
}
