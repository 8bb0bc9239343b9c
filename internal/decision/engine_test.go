package decision_test

import (
	"testing"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/correlator"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/decision"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/stretchr/testify/assert"
)

func policyWith(limit int, window time.Duration, action models.Action) *config.GuildPolicy {
	return config.DefaultConfig().PolicyDefaults()(1).
		WithLimit(models.CategoryChannelDelete, config.CategoryLimit{Limit: limit, Window: window, Action: action})
}

func TestEvaluateScenario(t *testing.T) {
	t.Parallel()

	policy := policyWith(3, 60*time.Second, models.ActionBan)
	tracker := correlator.NewWindowTracker()
	engine := decision.NewEngine()
	t0 := time.Unix(0, 0)

	var kinds []decision.VerdictKind
	for _, sec := range []int{0, 10, 20, 30} {
		evt := models.ModerationEvent{GuildID: 1, ActorID: 5, Category: models.CategoryChannelDelete, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
		count := tracker.Record(evt.GuildID, evt.Category, evt.Timestamp, policy.Window(evt.Category))
		v := engine.Evaluate(evt, policy, count)
		kinds = append(kinds, v.Kind)
		if v.Kind == decision.Escalate {
			assert.Equal(t, models.ActionBan, v.Action)
		}
	}
	assert.Equal(t, []decision.VerdictKind{decision.Allow, decision.Allow, decision.Escalate, decision.Escalate}, kinds)
}

func TestEvaluateThresholdProperty(t *testing.T) {
	t.Parallel()

	engine := decision.NewEngine()
	evt := models.ModerationEvent{GuildID: 1, ActorID: 2, Category: models.CategoryChannelDelete}

	for limit := 1; limit <= 20; limit++ {
		policy := policyWith(limit, time.Minute, models.ActionKick)
		for count := 0; count <= limit+5; count++ {
			v := engine.Evaluate(evt, policy, count)
			if count >= limit {
				assert.Equal(t, decision.Escalate, v.Kind, "limit=%d count=%d", limit, count)
				assert.Equal(t, models.ActionKick, v.Action)
			} else {
				assert.NotEqual(t, decision.Escalate, v.Kind, "limit=%d count=%d", limit, count)
				assert.Empty(t, v.Action)
			}
		}
	}
}

func TestEvaluateWarnBand(t *testing.T) {
	t.Parallel()

	engine := decision.NewEngine()
	evt := models.ModerationEvent{GuildID: 1, ActorID: 2, Category: models.CategoryChannelDelete}
	policy := policyWith(10, time.Minute, models.ActionBan)

	assert.Equal(t, decision.Allow, engine.Evaluate(evt, policy, 7).Kind)
	assert.Equal(t, decision.Warn, engine.Evaluate(evt, policy, 8).Kind)
	assert.Equal(t, decision.Warn, engine.Evaluate(evt, policy, 9).Kind)

	custom := policy.Clone()
	custom.NearRatio = 0.5
	assert.Equal(t, decision.Warn, engine.Evaluate(evt, custom, 5).Kind)
	assert.Equal(t, decision.Allow, engine.Evaluate(evt, custom, 4).Kind)
}

func TestEvaluateStrictMode(t *testing.T) {
	t.Parallel()

	engine := decision.NewEngine()
	evt := models.ModerationEvent{GuildID: 1, ActorID: 2, Category: models.CategoryChannelDelete}
	policy := policyWith(6, time.Minute, models.ActionBan).WithStrict(true)

	v := engine.Evaluate(evt, policy, 3)
	assert.Equal(t, decision.Escalate, v.Kind)
	assert.Equal(t, 3, v.Limit)
	assert.Equal(t, decision.Allow, engine.Evaluate(evt, policy, 2).Kind)
}

func TestEvaluateUnconfiguredCategoryAllows(t *testing.T) {
	t.Parallel()

	policy := &config.GuildPolicy{GuildID: 1, NearRatio: 0.8, StrictFactor: 0.5, DefaultAction: models.ActionBan}
	v := decision.NewEngine().Evaluate(models.ModerationEvent{GuildID: 1, ActorID: 2, Category: models.CategoryMessage}, policy, 1000)
	assert.Equal(t, decision.Allow, v.Kind)
}

func TestMostSevere(t *testing.T) {
	t.Parallel()

	esc := func(actor uint64, c models.Category, a models.Action, count int) decision.Verdict {
		return decision.Verdict{Kind: decision.Escalate, Action: a, Count: count, Event: models.ModerationEvent{ActorID: actor, Category: c}}
	}

	got := decision.MostSevere([]decision.Verdict{
		esc(1, models.CategoryWebhookCreate, models.ActionRevokePermissions, 5),
		{Kind: decision.Warn, Event: models.ModerationEvent{ActorID: 3, Category: models.CategoryMemberBan}},
		esc(1, models.CategoryMemberBan, models.ActionBan, 3),
		esc(2, models.CategoryMessage, models.ActionTimeout, 5),
		esc(1, models.CategoryChannelDelete, models.ActionKick, 3),
		esc(2, models.CategoryMessage, models.ActionTimeout, 6),
	})

	assert.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Event.ActorID)
	assert.Equal(t, models.CategoryMemberBan, got[0].Event.Category)
	assert.Equal(t, models.ActionBan, got[0].Action)
	assert.Equal(t, uint64(2), got[1].Event.ActorID)
	assert.Equal(t, 6, got[1].Count, "later verdict of the same category wins")

	assert.Empty(t, decision.MostSevere(nil))
}
