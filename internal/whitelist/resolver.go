// Package whitelist decides whether an actor is exempt from detection.
package whitelist

import (
	"sync/atomic"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

// Reason explains why an event was exempted.
type Reason string

const (
	NotExempt     Reason = ""
	ExemptBot     Reason = "bot"
	ExemptOwner   Reason = "owner"
	ExemptUser    Reason = "user"
	ExemptRole    Reason = "role"
	ExemptChannel Reason = "channel"
)

// Resolver checks whitelist membership against a policy snapshot.
type Resolver struct {
	botID atomic.Uint64
}

// NewResolver creates a resolver. botID is the bot's own user id; its actions are
// always exempt. Zero disables that check.
func NewResolver(botID uint64) *Resolver {
	r := &Resolver{}
	r.botID.Store(botID)
	return r
}

// SetBotID updates the bot's own id once the gateway session reports it.
func (r *Resolver) SetBotID(botID uint64) {
	r.botID.Store(botID)
}

// IsExempt reports whether the actor, any role it holds, or the originating
// channel is whitelisted for the guild.
func (r *Resolver) IsExempt(guildID, actorID uint64, roleIDs []uint64, channelID uint64, policy *config.GuildPolicy) bool {
	return r.Explain(guildID, actorID, roleIDs, channelID, policy) != NotExempt
}

// Explain is IsExempt, returning which rule matched.
func (r *Resolver) Explain(guildID, actorID uint64, roleIDs []uint64, channelID uint64, policy *config.GuildPolicy) Reason {
	if policy == nil || policy.GuildID != guildID {
		return NotExempt
	}
	botID := r.botID.Load()
	switch {
	case botID != 0 && actorID == botID:
		return ExemptBot
	case policy.OwnerID != 0 && actorID == policy.OwnerID:
		return ExemptOwner
	case policy.Whitelist.Has(config.WhitelistUser, actorID):
		return ExemptUser
	}
	for _, role := range roleIDs {
		if policy.Whitelist.Has(config.WhitelistRole, role) {
			return ExemptRole
		}
	}
	if channelID != 0 && policy.Whitelist.Has(config.WhitelistChannel, channelID) {
		return ExemptChannel
	}
	return NotExempt
}

// EventExempt applies IsExempt to a normalized event.
func (r *Resolver) EventExempt(evt models.ModerationEvent, policy *config.GuildPolicy) Reason {
	return r.Explain(evt.GuildID, evt.ActorID, evt.RoleIDs, evt.ChannelID, policy)
}
