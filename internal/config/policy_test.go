package config_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basePolicy(guildID uint64) *config.GuildPolicy {
	return config.DefaultConfig().PolicyDefaults()(guildID)
}

func TestEffectiveLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit  int
		strict bool
		factor float64
		want   int
	}{
		{limit: 3, want: 3},
		{limit: 3, strict: true, factor: 0.5, want: 2},
		{limit: 4, strict: true, factor: 0.5, want: 2},
		{limit: 1, strict: true, factor: 0.1, want: 1},
		{limit: 10, strict: true, factor: 0.25, want: 3},
	}

	for _, tt := range tests {
		p := basePolicy(1).WithLimit(models.CategoryRoleDelete, config.CategoryLimit{Limit: tt.limit, Window: time.Minute})
		p.Strict = tt.strict
		if tt.factor > 0 {
			p.StrictFactor = tt.factor
		}
		assert.Equal(t, tt.want, p.EffectiveLimit(models.CategoryRoleDelete), "limit=%d strict=%v factor=%v", tt.limit, tt.strict, tt.factor)
	}

	assert.Zero(t, (&config.GuildPolicy{}).EffectiveLimit(models.CategoryMessage))
}

func TestActionForFallsBackToDefault(t *testing.T) {
	t.Parallel()

	p := basePolicy(1).WithLimit(models.CategoryMessage, config.CategoryLimit{Limit: 5, Window: time.Second})
	assert.Equal(t, p.DefaultAction, p.ActionFor(models.CategoryMessage))
	assert.Equal(t, models.ActionBan, p.ActionFor(models.CategoryChannelDelete))
	assert.Equal(t, 60*time.Second, p.MaxWindow())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *config.GuildPolicy)
		field  string
	}{
		{"negative limit", func(p *config.GuildPolicy) {
			p.Categories[models.CategoryRoleDelete] = config.CategoryLimit{Limit: -1, Window: time.Second}
		}, "role_delete.limit"},
		{"zero window", func(p *config.GuildPolicy) {
			p.Categories[models.CategoryRoleDelete] = config.CategoryLimit{Limit: 1}
		}, "role_delete.window"},
		{"strict factor of one", func(p *config.GuildPolicy) { p.StrictFactor = 1 }, "strict_factor"},
		{"near ratio zero", func(p *config.GuildPolicy) { p.NearRatio = 0 }, "near_ratio"},
		{"inverse category action", func(p *config.GuildPolicy) {
			p.Categories[models.CategoryMemberBan] = config.CategoryLimit{Limit: 1, Window: time.Second, Action: models.ActionUnban}
		}, "member_ban.action"},
		{"missing guild", func(p *config.GuildPolicy) { p.GuildID = 0 }, "guild_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := basePolicy(7).Clone()
			tt.mutate(p)

			err := p.Validate()
			require.ErrorIs(t, err, models.ErrConfiguration)
			var cfgErr *models.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, basePolicy(7).Validate())
}

func TestWithHelpersDoNotMutate(t *testing.T) {
	t.Parallel()

	orig := basePolicy(1)
	next := orig.
		WithWhitelistEntry(config.WhitelistRole, 10).
		WithLimit(models.CategoryMessage, config.CategoryLimit{Limit: 99, Window: time.Hour}).
		WithStrict(true)

	assert.False(t, orig.Whitelist.Has(config.WhitelistRole, 10))
	assert.True(t, next.Whitelist.Has(config.WhitelistRole, 10))
	assert.Equal(t, 5, orig.Categories[models.CategoryMessage].Limit)
	assert.Equal(t, 99, next.Categories[models.CategoryMessage].Limit)
	assert.False(t, orig.Strict)

	removed := next.WithoutWhitelistEntry(config.WhitelistRole, 10)
	assert.True(t, next.Whitelist.Has(config.WhitelistRole, 10))
	assert.False(t, removed.Whitelist.Has(config.WhitelistRole, 10))
}

type recordingPersister struct {
	mu    sync.Mutex
	saved []uint64
	err   error
}

func (r *recordingPersister) SavePolicy(_ context.Context, p *config.GuildPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, p.GuildID)
	return nil
}

func TestPolicyStoreSetAndGet(t *testing.T) {
	t.Parallel()

	persister := &recordingPersister{}
	store := config.NewPolicyStore(basePolicy, persister)

	_, ok := store.Lookup(5)
	assert.False(t, ok)
	assert.Equal(t, uint64(5), store.Get(5).GuildID, "unconfigured guilds use defaults")

	require.NoError(t, store.Set(t.Context(), basePolicy(5).WithEnabled(false)))
	got, ok := store.Lookup(5)
	require.True(t, ok)
	assert.False(t, got.Enabled)
	assert.Equal(t, []uint64{5}, persister.saved)

	bad := basePolicy(5).WithLimit(models.CategoryMessage, config.CategoryLimit{Limit: 0, Window: time.Second})
	require.ErrorIs(t, store.Set(t.Context(), bad), models.ErrConfiguration)
	assert.False(t, store.Get(5).Enabled, "rejected policy never replaces the snapshot")
}

func TestPolicyStorePersistFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	persister := &recordingPersister{err: errors.New("disk full")}
	store := config.NewPolicyStore(basePolicy, persister)

	_, err := store.Update(t.Context(), 9, func(p *config.GuildPolicy) *config.GuildPolicy { return p.WithStrict(true) })
	require.Error(t, err)
	_, ok := store.Lookup(9)
	assert.False(t, ok)
}

func TestPolicyStoreConcurrentUpdates(t *testing.T) {
	t.Parallel()

	store := config.NewPolicyStore(basePolicy, nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			_, err := store.Update(t.Context(), 1, func(p *config.GuildPolicy) *config.GuildPolicy {
				return p.WithWhitelistEntry(config.WhitelistUser, id)
			})
			assert.NoError(t, err)
		}(uint64(i + 1))
		go func() {
			defer wg.Done()
			p := store.Get(1)
			_ = p.Whitelist.Len()
		}()
	}
	wg.Wait()

	assert.Len(t, store.Get(1).Whitelist.Entries(config.WhitelistUser), 50)
}
