package bot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/correlator"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/ingest"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Sink accepts normalized events, in practice the correlator.
type Sink interface {
	Submit(ctx context.Context, evt models.ModerationEvent) error
}

// Enforcements forgets applied actions that were undone outside the engine.
type Enforcements interface {
	Forget(guildID, userID uint64, action models.Action)
}

// Owners records guild ownership for the whitelist.
type Owners interface {
	SetOwner(ctx context.Context, guildID, ownerID uint64) error
}

type memberState interface {
	Member(guildID, userID string) (*discordgo.Member, error)
}

// Handlers translates gateway events into RawEvents and feeds them to the pipeline.
type Handlers struct {
	normalizer   *ingest.Normalizer
	sink         Sink
	enforcements Enforcements
	owners       Owners
	audit        *auditResolver
	logger       *zap.Logger
}

func NewHandlers(source AuditSource, normalizer *ingest.Normalizer, sink Sink, enforcements Enforcements, owners Owners, logger *zap.Logger) *Handlers {
	logger = logger.Named("gateway")
	return &Handlers{
		normalizer:   normalizer,
		sink:         sink,
		enforcements: enforcements,
		owners:       owners,
		audit:        newAuditResolver(source, logger),
		logger:       logger,
	}
}

// auditedEvent is a gateway event whose actor must be read from the audit log.
type auditedEvent struct {
	kind       string
	guildID    string
	channelID  string
	targetID   string
	targetName string
	actions    []discordgo.AuditLogAction
	// requirePermissions drops the event unless the audit entry changed permissions.
	requirePermissions bool
}

// Register installs every handler on s. ctx bounds the work handlers hand to the pipeline.
func (h *Handlers) Register(ctx context.Context, s *Session) {
	h.logger.Info("Setting up Discord event handlers")

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		h.logger.Info("Bot ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
		s.setBotID(r.User.ID)
	})

	s.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) {
		h.syncOwner(ctx, g.Guild)
	})

	s.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildUpdate) {
		h.syncOwner(ctx, g.Guild)
	})

	s.AddHandler(func(_ *discordgo.Session, a *discordgo.GuildAuditLogEntryCreate) {
		if a.GuildID == "" {
			return
		}
		h.audit.observe(a.GuildID, a.AuditLogEntry)
	})

	s.AddHandler(func(sess *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.GuildID == "" {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:       ingest.KindChannelDelete,
			guildID:    c.GuildID,
			channelID:  c.ID,
			targetID:   c.ID,
			targetName: c.Name,
			actions:    []discordgo.AuditLogAction{discordgo.AuditLogActionChannelDelete},
		})
	})

	s.AddHandler(func(sess *discordgo.Session, c *discordgo.ChannelUpdate) {
		if c.GuildID == "" || !overwritesChanged(c.BeforeUpdate, c.Channel) {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:       ingest.KindPermissionChange,
			guildID:    c.GuildID,
			channelID:  c.ID,
			targetID:   c.ID,
			targetName: c.Name,
			actions: []discordgo.AuditLogAction{
				discordgo.AuditLogActionChannelOverwriteUpdate,
				discordgo.AuditLogActionChannelOverwriteCreate,
				discordgo.AuditLogActionChannelOverwriteDelete,
			},
		})
	})

	s.AddHandler(func(sess *discordgo.Session, r *discordgo.GuildRoleDelete) {
		if r.GuildID == "" {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:     ingest.KindRoleDelete,
			guildID:  r.GuildID,
			targetID: r.RoleID,
			actions:  []discordgo.AuditLogAction{discordgo.AuditLogActionRoleDelete},
		})
	})

	s.AddHandler(func(sess *discordgo.Session, r *discordgo.GuildRoleUpdate) {
		if r.GuildID == "" || r.Role == nil {
			return
		}
		// Managed roles belong to integrations and are edited by Discord itself.
		if r.Role.Managed {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:               ingest.KindPermissionChange,
			guildID:            r.GuildID,
			targetID:           r.Role.ID,
			targetName:         r.Role.Name,
			actions:            []discordgo.AuditLogAction{discordgo.AuditLogActionRoleUpdate},
			requirePermissions: true,
		})
	})

	s.AddHandler(func(sess *discordgo.Session, b *discordgo.GuildBanAdd) {
		if b.GuildID == "" || b.User == nil {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:       ingest.KindMemberBan,
			guildID:    b.GuildID,
			targetID:   b.User.ID,
			targetName: b.User.Username,
			actions:    []discordgo.AuditLogAction{discordgo.AuditLogActionMemberBanAdd},
		})
	})

	s.AddHandler(func(sess *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if m.GuildID == "" || m.Member == nil || m.User == nil {
			return
		}
		// A removal with no matching kick entry is a voluntary leave.
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:       ingest.KindMemberKick,
			guildID:    m.GuildID,
			targetID:   m.User.ID,
			targetName: m.User.Username,
			actions:    []discordgo.AuditLogAction{discordgo.AuditLogActionMemberKick},
		})
	})

	s.AddHandler(func(sess *discordgo.Session, w *discordgo.WebhooksUpdate) {
		if w.GuildID == "" {
			return
		}
		h.handleAudited(ctx, sess.State, auditedEvent{
			kind:      ingest.KindWebhookCreate,
			guildID:   w.GuildID,
			channelID: w.ChannelID,
			actions:   []discordgo.AuditLogAction{discordgo.AuditLogActionWebhookCreate},
		})
	})

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		raw, ok := messageEvent(m)
		if !ok {
			return
		}
		h.submit(ctx, nil, raw)
	})

	// Enforcement undone by hand: forget it so a repeat offense enforces again.
	s.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanRemove) {
		if b.GuildID == "" || b.User == nil {
			return
		}
		h.forget(b.GuildID, b.User.ID, models.ActionBan)
	})

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.GuildID == "" || m.Member == nil || m.User == nil {
			return
		}
		h.forget(m.GuildID, m.User.ID, models.ActionBan, models.ActionKick)
	})

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		if m.GuildID == "" || m.Member == nil || m.User == nil {
			return
		}
		if timeoutCleared(m.BeforeUpdate, m.Member) {
			h.forget(m.GuildID, m.User.ID, models.ActionTimeout)
		}
	})

	h.logger.Info("Discord event handlers configured")
}

func (h *Handlers) handleAudited(ctx context.Context, members memberState, ev auditedEvent) {
	for _, action := range ev.actions {
		entry, ok := h.audit.claim(ev.guildID, action, ev.targetID)
		if !ok {
			continue
		}
		if ev.requirePermissions && !entry.permissions {
			return
		}

		targetID := ev.targetID
		if targetID == "" {
			targetID = entry.targetID
		}
		raw := ingest.RawEvent{
			Kind:      ev.kind,
			GuildID:   ev.guildID,
			ActorID:   entry.actorID,
			ChannelID: ev.channelID,
			TargetID:  targetID,
			Metadata:  map[string]string{models.MetaAuditEntry: entry.id},
		}
		if ev.targetName != "" {
			raw.Metadata[models.MetaTargetName] = ev.targetName
		}
		h.submit(ctx, members, raw)
		return
	}

	h.logger.Debug("No audit entry for event",
		zap.String("kind", ev.kind),
		zap.String("guild_id", ev.guildID),
		zap.String("target_id", ev.targetID))
}

// submit attaches the actor's roles, normalizes raw and hands it to the sink.
func (h *Handlers) submit(ctx context.Context, members memberState, raw ingest.RawEvent) {
	if !withActor(members, &raw) {
		h.logger.Debug("Skipping event by bot actor",
			zap.String("kind", raw.Kind),
			zap.String("actor_id", raw.ActorID))
		return
	}

	evt, err := h.normalizer.Normalize(raw)
	if errors.Is(err, ingest.ErrNotFlagged) || errors.Is(err, models.ErrUnsupportedEvent) {
		return
	}
	if err != nil {
		h.logger.Warn("Dropping malformed gateway event", zap.String("kind", raw.Kind), zap.Error(err))
		return
	}

	if err := h.sink.Submit(ctx, evt); err != nil {
		if errors.Is(err, correlator.ErrStopped) || ctx.Err() != nil {
			return
		}
		h.logger.Warn("Failed to queue event",
			zap.Uint64("guild_id", evt.GuildID),
			zap.String("category", evt.Category.String()),
			zap.Error(err))
	}
}

func (h *Handlers) syncOwner(ctx context.Context, g *discordgo.Guild) {
	if g == nil || g.ID == "" || g.OwnerID == "" {
		return
	}
	guildID, err := util.StringToUint64(g.ID)
	if err != nil {
		return
	}
	ownerID, err := util.StringToUint64(g.OwnerID)
	if err != nil {
		return
	}
	if err := h.owners.SetOwner(ctx, guildID, ownerID); err != nil {
		h.logger.Warn("Failed to record guild owner", zap.Uint64("guild_id", guildID), zap.Error(err))
	}
}

func (h *Handlers) forget(guildID, userID string, actions ...models.Action) {
	g, err := util.StringToUint64(guildID)
	if err != nil {
		return
	}
	u, err := util.StringToUint64(userID)
	if err != nil {
		return
	}
	for _, a := range actions {
		h.enforcements.Forget(g, u, a)
	}
	h.logger.Debug("Forgot applied actions", zap.Uint64("guild_id", g), zap.Uint64("user_id", u))
}

// withActor copies the actor's roles from state into raw. It reports false when the
// actor is a bot.
func withActor(members memberState, raw *ingest.RawEvent) bool {
	if members == nil {
		return true
	}
	m, err := members.Member(raw.GuildID, raw.ActorID)
	if err != nil || m == nil {
		return true
	}
	if m.User != nil && m.User.Bot {
		return false
	}
	raw.RoleIDs = m.Roles
	return true
}

// messageEvent builds the raw event for a guild message. Bot, webhook and DM
// messages are ignored.
func messageEvent(m *discordgo.MessageCreate) (ingest.RawEvent, bool) {
	if m == nil || m.Message == nil || m.GuildID == "" || m.Author == nil {
		return ingest.RawEvent{}, false
	}
	if m.Author.Bot || m.WebhookID != "" {
		return ingest.RawEvent{}, false
	}

	raw := ingest.RawEvent{
		Kind:      ingest.KindMessageCreate,
		GuildID:   m.GuildID,
		ActorID:   m.Author.ID,
		ChannelID: m.ChannelID,
		TargetID:  m.ID,
		Timestamp: m.Timestamp,
		Metadata:  map[string]string{models.MetaContent: m.Content},
	}
	if m.Member != nil {
		raw.RoleIDs = m.Member.Roles
	}
	return raw, true
}

// overwritesChanged reports whether a channel's permission overwrites differ. An
// uncached previous state counts as a change.
func overwritesChanged(before, after *discordgo.Channel) bool {
	if after == nil {
		return false
	}
	if before == nil {
		return true
	}
	if len(before.PermissionOverwrites) != len(after.PermissionOverwrites) {
		return true
	}

	prev := make(map[string]discordgo.PermissionOverwrite, len(before.PermissionOverwrites))
	for _, o := range before.PermissionOverwrites {
		if o != nil {
			prev[o.ID] = *o
		}
	}
	for _, o := range after.PermissionOverwrites {
		if o == nil {
			continue
		}
		p, ok := prev[o.ID]
		if !ok || p.Allow != o.Allow || p.Deny != o.Deny || p.Type != o.Type {
			return true
		}
	}
	return false
}

func timeoutCleared(before, after *discordgo.Member) bool {
	if before == nil || after == nil || before.CommunicationDisabledUntil == nil {
		return false
	}
	return after.CommunicationDisabledUntil == nil
}
