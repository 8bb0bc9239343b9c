package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/decision"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/dispatcher"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

const (
	colorRed    = 0xED4245
	colorYellow = 0xFEE75C
	colorGreen  = 0x57F287
	colorGrey   = 0x95A5A6

	footerText = "Anti-Nuke Moderation"
)

// Sender is the part of a discordgo session used to post embeds.
type Sender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts alerts to each guild's log channel. Sends happen in the
// background; repeated warnings for the same actor and category are suppressed
// for the cooldown.
type Discord struct {
	sender Sender
	warned *expirable.LRU[string, struct{}]
	wg     sync.WaitGroup
	now    func() time.Time
	logger *zap.Logger
}

func NewDiscord(sender Sender, warnCooldown time.Duration, logger *zap.Logger) *Discord {
	return &Discord{
		sender: sender,
		warned: expirable.NewLRU[string, struct{}](4096, nil, warnCooldown),
		now:    time.Now,
		logger: logger.Named("notifier"),
	}
}

func (d *Discord) NotifyWarning(_ context.Context, policy *config.GuildPolicy, v decision.Verdict) {
	evt := v.Event
	key := fmt.Sprintf("%d:%d:%s", evt.GuildID, evt.ActorID, evt.Category)
	if _, seen := d.warned.Get(key); seen {
		return
	}
	d.warned.Add(key, struct{}{})

	d.send(policy, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("⚠️ %s nearing limit", categoryTitle(evt.Category)),
		Color:       colorYellow,
		Description: fmt.Sprintf("%s performed **%d/%d** in the current window.", util.Mention(evt.ActorID), v.Count, v.Limit),
		Fields: []*discordgo.MessageEmbedField{
			actorField(evt.ActorID),
			{Name: "🕐 Timestamp", Value: fmt.Sprintf("<t:%d:F>", evt.Timestamp.Unix()), Inline: true},
		},
	})
}

func (d *Discord) NotifyEscalation(_ context.Context, policy *config.GuildPolicy, v decision.Verdict, res dispatcher.Result, err error) {
	evt := v.Event
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🚨 %s limit exceeded", categoryTitle(evt.Category)),
		Color: colorRed,
		Fields: []*discordgo.MessageEmbedField{
			actorField(evt.ActorID),
			{Name: "📊 Count", Value: fmt.Sprintf("**%d/%d**", v.Count, v.Limit), Inline: true},
		},
	}

	switch {
	case err != nil:
		embed.Description = fmt.Sprintf("**Action Failed:** %s", v.Action)
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "❌ Error", Value: truncate(err.Error(), 1000)})
	case res.AlreadyApplied:
		embed.Description = fmt.Sprintf("**Action Already Applied:** %s", v.Action)
	default:
		embed.Description = fmt.Sprintf("**Action Taken:** %s", v.Action)
	}
	if res.Record.ID != uuid.Nil && err == nil && !res.AlreadyApplied {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🧾 Record", Value: "`" + res.Record.ID.String() + "`"})
	}

	d.send(policy, embed)
}

func (d *Discord) NotifyAppeal(_ context.Context, policy *config.GuildPolicy, a models.Appeal) {
	color := colorGrey
	if a.Status == models.AppealApproved {
		color = colorGreen
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "👤 User", Value: util.Mention(a.UserID), Inline: true},
		{Name: "🛡️ Resolver", Value: util.Mention(a.ResolverID), Inline: true},
		{Name: "🧾 Violation", Value: "`" + a.ViolationID.String() + "`"},
	}
	if a.ResolutionReason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📝 Reason", Value: truncate(a.ResolutionReason, 1000)})
	}

	d.send(policy, &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("%s Appeal %s", a.Status.Emoji(), a.Status),
		Color:  color,
		Fields: fields,
	})
}

// Wait blocks until every background send has finished.
func (d *Discord) Wait() {
	d.wg.Wait()
}

func (d *Discord) send(policy *config.GuildPolicy, embed *discordgo.MessageEmbed) {
	if d.sender == nil || policy == nil || policy.LogChannelID == 0 {
		return
	}

	embed.Footer = &discordgo.MessageEmbedFooter{Text: footerText}
	embed.Timestamp = d.now().Format(time.RFC3339)
	channelID := util.Uint64ToString(policy.LogChannelID)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
			d.logger.Warn("Failed to send log embed",
				zap.Uint64("guild_id", policy.GuildID),
				zap.String("channel_id", channelID),
				zap.Error(err))
		}
	}()
}

func actorField(actorID uint64) *discordgo.MessageEmbedField {
	return &discordgo.MessageEmbedField{
		Name:   "👤 Actor",
		Value:  fmt.Sprintf("%s (`%d`)", util.Mention(actorID), actorID),
		Inline: true,
	}
}

func categoryTitle(c models.Category) string {
	words := strings.Split(c.String(), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
