package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// handlePing shows gateway heartbeat and REST latency.
func (h *Handler) handlePing(_ context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, _ options) error {
	startTime := time.Now()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return err
	}
	responseLatency := time.Since(startTime)

	apiStart := time.Now()
	_, _ = s.User("@me")
	apiLatency := time.Since(apiStart)

	wsLatency := s.HeartbeatLatency()

	embed := &discordgo.MessageEmbed{
		Title: "🚀 Pong!",
		Color: latencyColor(wsLatency, apiLatency),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "⚡ WebSocket", Value: fmt.Sprintf("`%dms`", wsLatency.Milliseconds()), Inline: true},
			{Name: "📡 API", Value: fmt.Sprintf("`%dms`", apiLatency.Milliseconds()), Inline: true},
			{Name: "🔄 Response", Value: fmt.Sprintf("`%dms`", responseLatency.Milliseconds()), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
		Timestamp: time.Now().Format(time.RFC3339),
	}

	_, err = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	})
	return err
}

func latencyColor(ws, api time.Duration) int {
	avg := (ws.Milliseconds() + api.Milliseconds()) / 2
	switch {
	case avg < 30:
		return 0x00FF00
	case avg < 60:
		return 0xFFFF00
	case avg < 120:
		return 0xFFA500
	default:
		return 0xFF0000
	}
}
