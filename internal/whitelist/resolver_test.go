package whitelist_test

import (
	"testing"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/whitelist"
	"github.com/stretchr/testify/assert"
)

func TestExplain(t *testing.T) {
	t.Parallel()

	policy := config.DefaultConfig().PolicyDefaults()(1).
		WithOwner(900).
		WithWhitelistEntry(config.WhitelistUser, 10).
		WithWhitelistEntry(config.WhitelistRole, 20).
		WithWhitelistEntry(config.WhitelistChannel, 30)

	r := whitelist.NewResolver(999)

	tests := []struct {
		name    string
		guild   uint64
		actor   uint64
		roles   []uint64
		channel uint64
		want    whitelist.Reason
	}{
		{"plain member", 1, 5, []uint64{21, 22}, 31, whitelist.NotExempt},
		{"user", 1, 10, nil, 0, whitelist.ExemptUser},
		{"any held role", 1, 5, []uint64{21, 20}, 0, whitelist.ExemptRole},
		{"channel", 1, 5, nil, 30, whitelist.ExemptChannel},
		{"owner", 1, 900, nil, 0, whitelist.ExemptOwner},
		{"bot", 1, 999, nil, 0, whitelist.ExemptBot},
		{"other guild policy", 2, 10, nil, 0, whitelist.NotExempt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, r.Explain(tt.guild, tt.actor, tt.roles, tt.channel, policy))
			assert.Equal(t, tt.want != whitelist.NotExempt, r.IsExempt(tt.guild, tt.actor, tt.roles, tt.channel, policy))
		})
	}
}

func TestEventExempt(t *testing.T) {
	t.Parallel()

	policy := config.DefaultConfig().PolicyDefaults()(1).WithWhitelistEntry(config.WhitelistRole, 20)
	r := whitelist.NewResolver(0)

	evt := models.ModerationEvent{GuildID: 1, ActorID: 5, RoleIDs: []uint64{20}, Category: models.CategoryChannelDelete}
	assert.Equal(t, whitelist.ExemptRole, r.EventExempt(evt, policy))
	assert.Equal(t, whitelist.NotExempt, r.EventExempt(evt, nil))
}
