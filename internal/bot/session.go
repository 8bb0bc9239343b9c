package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/whitelist"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Intents needed by the adapter: guild structure, bans, members, webhooks,
// audit log entries and message content.
const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildBans | // GUILD_MODERATION (1<<2)
	discordgo.IntentsGuildWebhooks |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

type Session struct {
	discord  *discordgo.Session
	resolver *whitelist.Resolver
	logger   *zap.Logger
}

// NewSession creates the gateway session. The resolver learns the bot's own ID on
// connect so its actions are never counted.
func NewSession(token string, resolver *whitelist.Resolver, logger *zap.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = intents
	dg.StateEnabled = true

	return &Session{
		discord:  dg,
		resolver: resolver,
		logger:   logger.Named("bot"),
	}, nil
}

// Discord returns the underlying discordgo session.
func (s *Session) Discord() *discordgo.Session {
	return s.discord
}

// Connect opens the websocket connection.
func (s *Session) Connect() error {
	if err := s.discord.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if s.discord.State.User != nil {
		s.setBotID(s.discord.State.User.ID)
	}

	s.logger.Info("Discord bot connected")
	return nil
}

func (s *Session) setBotID(id string) {
	botID, err := util.StringToUint64(id)
	if err != nil {
		s.logger.Warn("Bot user ID is not a snowflake", zap.String("id", id))
		return
	}
	if s.resolver != nil {
		s.resolver.SetBotID(botID)
	}
	s.logger.Info("Bot identity", zap.Uint64("bot_id", botID))
}

func (s *Session) Close() error {
	if s.discord != nil {
		return s.discord.Close()
	}
	return nil
}

// RegisterCommands overwrites the global slash commands. An empty appID uses the
// connected bot's user ID.
func (s *Session) RegisterCommands(appID string, commands []*discordgo.ApplicationCommand) error {
	if appID == "" {
		if s.discord.State.User == nil {
			return fmt.Errorf("register commands: session not connected")
		}
		appID = s.discord.State.User.ID
	}

	s.logger.Info("Registering slash commands", zap.Int("count", len(commands)))

	registered, err := s.discord.ApplicationCommandBulkOverwrite(appID, "", commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	for _, cmd := range registered {
		s.logger.Debug("Registered command", zap.String("name", cmd.Name))
	}
	return nil
}

// AddHandler adds an event handler and returns a function that removes it.
func (s *Session) AddHandler(handler any) func() {
	return s.discord.AddHandler(handler)
}
