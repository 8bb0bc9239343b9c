package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

const (
	appealListLimit    = 20
	maxStatementLength = 1000
)

func (h *Handler) handleAppealSubmit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	userID, err := util.StringToUint64(invokerID(i))
	if err != nil {
		return badInput("could not identify you")
	}
	violationID, err := opts.uuidValue("violation")
	if err != nil {
		return err
	}
	statement := opts.str("statement")
	if statement == "" {
		return badInput("a statement is required")
	}
	if len(statement) > maxStatementLength {
		return badInput("statement must be at most %d characters", maxStatementLength)
	}

	a, err := h.svc.SubmitAppeal(ctx, gid, userID, violationID, statement)
	if err != nil {
		return err
	}

	embed := baseEmbed("Appeal Submitted", "Moderators will review your appeal.", embedColor)
	embed.Fields = appealFields(a)
	return respondEmbed(s, i, embed, true)
}

func (h *Handler) handleAppealInvestigate(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, id, resolver, err := appealTarget(i, opts)
	if err != nil {
		return err
	}
	a, err := h.svc.InvestigateAppeal(ctx, gid, id, resolver)
	if err != nil {
		return err
	}
	embed := baseEmbed("Appeal Under Investigation", fmt.Sprintf("Assigned to %s.", util.Mention(resolver)), embedColor)
	embed.Fields = appealFields(a)
	return respondEmbed(s, i, embed, false)
}

func (h *Handler) handleAppealApprove(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	return h.resolveAppeal(ctx, s, i, opts, true)
}

func (h *Handler) handleAppealReject(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	return h.resolveAppeal(ctx, s, i, opts, false)
}

func (h *Handler) resolveAppeal(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options, approve bool) error {
	gid, id, resolver, err := appealTarget(i, opts)
	if err != nil {
		return err
	}

	// Approval dispatches the inverse action, which can outlast the response deadline.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return err
	}

	a, err := h.svc.ResolveAppeal(ctx, gid, id, resolver, approve, opts.str("reason"))
	if err != nil {
		msg, internal := describeError(err)
		if internal {
			h.logger.Error("Appeal resolution failed", zap.String("appeal_id", id.String()), zap.Error(err))
		}
		content := fmt.Sprintf("❌ Error: %s", msg)
		_, editErr := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
		return editErr
	}

	title, desc := "Appeal Rejected", "The original action stands."
	if approve {
		title, desc = "Appeal Approved", "The original action has been reversed."
	}
	embed := baseEmbed(title, desc, embedColor)
	embed.Fields = appealFields(a)
	_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &[]*discordgo.MessageEmbed{embed}})
	return err
}

func (h *Handler) handleAppealList(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error {
	gid, err := guildID(i)
	if err != nil {
		return err
	}
	status := models.AppealStatus(opts.str("status"))
	appeals, err := h.svc.ListAppeals(gid, status)
	if err != nil {
		return err
	}

	title := "Appeals"
	if status != "" {
		title = fmt.Sprintf("Appeals (%s)", status)
	}
	embed := baseEmbed(title, appealListText(appeals), embedColor)
	return respondEmbed(s, i, embed, true)
}

func appealTarget(i *discordgo.InteractionCreate, opts options) (uint64, uuid.UUID, uint64, error) {
	gid, err := guildID(i)
	if err != nil {
		return 0, uuid.Nil, 0, err
	}
	id, err := opts.uuidValue("id")
	if err != nil {
		return 0, uuid.Nil, 0, err
	}
	resolver, err := util.StringToUint64(invokerID(i))
	if err != nil {
		return 0, uuid.Nil, 0, badInput("could not identify you")
	}
	return gid, id, resolver, nil
}

func appealFields(a models.Appeal) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Appeal", Value: fmt.Sprintf("`%s`", a.ID)},
		{Name: "Status", Value: fmt.Sprintf("%s %s", a.Status.Emoji(), a.Status), Inline: true},
		{Name: "Member", Value: util.Mention(a.UserID), Inline: true},
		{Name: "Category", Value: categoryLabel(a.Category), Inline: true},
		{Name: "Statement", Value: truncate(a.Statement, 1024)},
	}
	if a.ResolutionReason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Resolution", Value: truncate(a.ResolutionReason, 1024)})
	}
	return fields
}

func appealListText(appeals []models.Appeal) string {
	if len(appeals) == 0 {
		return "No appeals."
	}
	lines := make([]string, 0, appealListLimit+1)
	for _, a := range appeals {
		if len(lines) == appealListLimit {
			lines = append(lines, fmt.Sprintf("…and %d more", len(appeals)-appealListLimit))
			break
		}
		lines = append(lines, fmt.Sprintf("%s `%s` %s · %s · <t:%d:R>",
			a.Status.Emoji(), a.ID, util.Mention(a.UserID), categoryLabel(a.Category), a.SubmittedAt.Unix()))
	}
	return truncate(strings.Join(lines, "\n"), 4096)
}
