package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/service"
)

const commandTimeout = 30 * time.Second

// Service is the moderation surface the commands drive.
type Service interface {
	GetPolicy(guildID uint64) *config.GuildPolicy
	AddWhitelistEntry(ctx context.Context, guildID uint64, kind config.WhitelistKind, id uint64) (*config.GuildPolicy, error)
	RemoveWhitelistEntry(ctx context.Context, guildID uint64, kind config.WhitelistKind, id uint64) (*config.GuildPolicy, error)
	SetEnabled(ctx context.Context, guildID uint64, enabled bool) (*config.GuildPolicy, error)
	SetStrict(ctx context.Context, guildID uint64, strict bool) (*config.GuildPolicy, error)
	SetLimit(ctx context.Context, guildID uint64, category models.Category, limit config.CategoryLimit) (*config.GuildPolicy, error)
	SetLogChannel(ctx context.Context, guildID, channelID uint64) (*config.GuildPolicy, error)
	CurrentStatus(guildID uint64) service.Status
	ListAppeals(guildID uint64, status models.AppealStatus) ([]models.Appeal, error)
	GetViolationHistory(guildID, userID uint64) []models.ViolationRecord
	SubmitAppeal(ctx context.Context, guildID, userID uint64, violationID uuid.UUID, statement string) (models.Appeal, error)
	InvestigateAppeal(ctx context.Context, guildID uint64, id uuid.UUID, resolverID uint64) (models.Appeal, error)
	ResolveAppeal(ctx context.Context, guildID uint64, id uuid.UUID, resolverID uint64, approve bool, reason string) (models.Appeal, error)
}

type commandFunc func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, opts options) error

type route struct {
	run   commandFunc
	admin bool
}

// Handler routes application command interactions.
type Handler struct {
	svc       Service
	startedAt time.Time
	routes    map[string]route
	logger    *zap.Logger
}

func NewHandler(svc Service, logger *zap.Logger) *Handler {
	h := &Handler{
		svc:       svc,
		startedAt: time.Now(),
		logger:    logger.Named("commands"),
	}
	h.routes = map[string]route{
		"antinuke enable":           {run: h.handleEnable, admin: true},
		"antinuke disable":          {run: h.handleDisable, admin: true},
		"antinuke strict":           {run: h.handleStrict, admin: true},
		"antinuke whitelist add":    {run: h.handleWhitelistAdd, admin: true},
		"antinuke whitelist remove": {run: h.handleWhitelistRemove, admin: true},
		"antinuke whitelist view":   {run: h.handleWhitelistView, admin: true},
		"set limit":                 {run: h.handleSetLimit, admin: true},
		"logs":                      {run: h.handleLogs, admin: true},
		"status":                    {run: h.handleStatus, admin: true},
		"history":                   {run: h.handleHistory},
		"appeal submit":             {run: h.handleAppealSubmit},
		"appeal investigate":        {run: h.handleAppealInvestigate, admin: true},
		"appeal approve":            {run: h.handleAppealApprove, admin: true},
		"appeal reject":             {run: h.handleAppealReject, admin: true},
		"appeal list":               {run: h.handleAppealList, admin: true},
		"stats":                     {run: h.handleStats},
		"ping":                      {run: h.handlePing},
	}
	return h
}

// HandleInteraction is installed as the discordgo InteractionCreate handler.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	path, leaf := commandPath(data)

	r, ok := h.routes[path]
	if !ok {
		h.logger.Warn("Unknown command", zap.String("command", path))
		respondError(s, i, "unknown command")
		return
	}

	if i.GuildID == "" && path != "stats" && path != "ping" {
		respondError(s, i, "this command only works inside a server")
		return
	}

	if r.admin {
		denied, err := authorize(s, i)
		if err != nil {
			h.logger.Error("Permission check failed", zap.String("command", path), zap.Error(err))
			respondError(s, i, "could not verify your permissions")
			return
		}
		if denied != "" {
			respondPermissionError(s, i, denied)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := r.run(ctx, s, i, newOptions(leaf)); err != nil {
		msg, internal := describeError(err)
		if internal {
			h.logger.Error("Command error", zap.String("command", path), zap.String("guild_id", i.GuildID), zap.Error(err))
		} else {
			h.logger.Debug("Command rejected", zap.String("command", path), zap.Error(err))
		}
		respondError(s, i, msg)
	}
}

// commandPath flattens subcommand groups into "name group sub" and returns the
// options of the innermost subcommand.
func commandPath(data discordgo.ApplicationCommandInteractionData) (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	parts := []string{data.Name}
	opts := data.Options
	for len(opts) == 1 {
		o := opts[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommand && o.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			break
		}
		parts = append(parts, o.Name)
		opts = o.Options
	}
	return strings.Join(parts, " "), opts
}

// describeError turns a service error into a user-facing message. internal is true
// for failures the user cannot fix.
func describeError(err error) (msg string, internal bool) {
	var cfgErr *models.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Error(), false
	case errors.Is(err, errBadInput):
		return err.Error(), false
	case errors.Is(err, models.ErrCooldownActive):
		return "you already appealed a violation in this category recently, try again later", false
	case errors.Is(err, models.ErrAlreadyResolved):
		return "that appeal has already been resolved", false
	case errors.Is(err, models.ErrNotAppealable):
		return "that violation cannot be appealed", false
	case errors.Is(err, models.ErrNotFound):
		return "not found", false
	case errors.Is(err, models.ErrTransientActionFailure):
		return "Discord did not accept the action right now, try again shortly", true
	case errors.Is(err, models.ErrPermanentActionFailure):
		return "the action could not be applied, check the bot's role position and permissions", true
	default:
		return "something went wrong", true
	}
}

// respondError sends an ephemeral error message
func respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("❌ Error: %s", message),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
