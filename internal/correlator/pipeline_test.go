package correlator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/decision"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/dispatcher"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/whitelist"
)

type policyMap struct {
	mu       sync.Mutex
	policies map[uint64]*config.GuildPolicy
}

func (p *policyMap) Get(guildID uint64) *config.GuildPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if policy, ok := p.policies[guildID]; ok {
		return policy
	}
	return config.DefaultConfig().PolicyDefaults()(guildID)
}

func (p *policyMap) set(policy *config.GuildPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies[policy.GuildID] = policy
}

type recordingDispatcher struct {
	mu   sync.Mutex
	reqs []dispatcher.Request
}

func (d *recordingDispatcher) Apply(_ context.Context, req dispatcher.Request) (dispatcher.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	return dispatcher.Result{}, nil
}

func (d *recordingDispatcher) requests() []dispatcher.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatcher.Request(nil), d.reqs...)
}

type recordingNotifier struct {
	mu          sync.Mutex
	warnings    map[uint64][]int
	escalations int
}

func (n *recordingNotifier) NotifyWarning(_ context.Context, _ *config.GuildPolicy, v decision.Verdict) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings[v.Event.GuildID] = append(n.warnings[v.Event.GuildID], v.Count)
}

func (n *recordingNotifier) NotifyEscalation(context.Context, *config.GuildPolicy, decision.Verdict, dispatcher.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalations++
}

func (n *recordingNotifier) warningCounts(guildID uint64) []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.warnings[guildID]...)
}

type pipeline struct {
	*Correlator
	policies *policyMap
	dispatch *recordingDispatcher
	notify   *recordingNotifier
}

func newPipeline(t *testing.T, opts Options) *pipeline {
	t.Helper()
	policies := &policyMap{policies: make(map[uint64]*config.GuildPolicy)}
	d := &recordingDispatcher{}
	n := &recordingNotifier{warnings: make(map[uint64][]int)}
	c := New(NewWindowTracker(), decision.NewEngine(), whitelist.NewResolver(999), policies, d, n, opts, zaptest.NewLogger(t))
	return &pipeline{Correlator: c, policies: policies, dispatch: d, notify: n}
}

func deleteEvents(guildID, actorID uint64, secs ...int) []models.ModerationEvent {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.ModerationEvent, 0, len(secs))
	for _, s := range secs {
		out = append(out, models.ModerationEvent{
			GuildID:   guildID,
			ActorID:   actorID,
			Category:  models.CategoryChannelDelete,
			Timestamp: base.Add(time.Duration(s) * time.Second),
			RoleIDs:   []uint64{77},
		})
	}
	return out
}

func TestProcessEscalatesOnce(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{})
	p.policies.set(config.DefaultConfig().PolicyDefaults()(1).
		WithLimit(models.CategoryChannelDelete, config.CategoryLimit{Limit: 3, Window: time.Minute, Action: models.ActionBan}))

	selected := p.process(t.Context(), 1, deleteEvents(1, 5, 0, 10, 20, 30))
	require.Len(t, selected, 1)
	assert.Equal(t, 4, selected[0].Count)

	reqs := p.dispatch.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, uint64(5), reqs[0].UserID)
	assert.Equal(t, models.ActionBan, reqs[0].Action)
	assert.Equal(t, models.CategoryChannelDelete, reqs[0].Category)
	assert.Equal(t, 1, p.notify.escalations)
}

func TestProcessRoleWhitelisted(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{})
	p.policies.set(config.DefaultConfig().PolicyDefaults()(1).
		WithLimit(models.CategoryChannelDelete, config.CategoryLimit{Limit: 3, Window: time.Minute, Action: models.ActionBan}).
		WithWhitelistEntry(config.WhitelistRole, 77))

	selected := p.process(t.Context(), 1, deleteEvents(1, 5, 0, 10, 20, 30))
	assert.Empty(t, selected)
	assert.Empty(t, p.dispatch.requests())
	assert.Zero(t, p.tracker.CurrentCount(1, models.CategoryChannelDelete, deleteEvents(1, 5, 30)[0].Timestamp, time.Minute))
}

func TestProcessDisabledGuild(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{})
	p.policies.set(config.DefaultConfig().PolicyDefaults()(1).WithEnabled(false))

	selected := p.process(t.Context(), 1, deleteEvents(1, 5, 0, 1, 2, 3, 4, 5))
	assert.Empty(t, selected)
	assert.Zero(t, p.tracker.Len())
}

func TestProcessBotActorExempt(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{})
	selected := p.process(t.Context(), 1, deleteEvents(1, 999, 0, 1, 2, 3, 4, 5))
	assert.Empty(t, selected)
}

func TestProcessKeepsMostSevere(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{})
	p.policies.set(config.DefaultConfig().PolicyDefaults()(1).
		WithLimit(models.CategoryChannelDelete, config.CategoryLimit{Limit: 1, Window: time.Minute, Action: models.ActionKick}).
		WithLimit(models.CategoryMemberBan, config.CategoryLimit{Limit: 1, Window: time.Minute, Action: models.ActionBan}))

	events := deleteEvents(1, 5, 0)
	ban := events[0]
	ban.Category = models.CategoryMemberBan
	events = append(events, ban)

	selected := p.process(t.Context(), 1, events)
	require.Len(t, selected, 1)
	assert.Equal(t, models.ActionBan, selected[0].Action)
	require.Len(t, p.dispatch.requests(), 1)
}

func TestDetailsFor(t *testing.T) {
	t.Parallel()

	policy := config.DefaultConfig().PolicyDefaults()(1)
	evt := models.ModerationEvent{
		ChannelID: 10,
		TargetID:  11,
		RoleIDs:   []uint64{3},
		Metadata:  map[string]string{models.MetaContent: "spam"},
	}

	assert.Equal(t, policy.TimeoutDuration, detailsFor(models.ActionTimeout, evt, policy).Duration)
	assert.Equal(t, models.ActionDetails{ChannelID: 10, MessageID: 11, Content: "spam"}, detailsFor(models.ActionDeleteMessage, evt, policy))
	assert.Equal(t, []uint64{3}, detailsFor(models.ActionRevokePermissions, evt, policy).RoleIDs)
	assert.Equal(t, models.ActionDetails{}, detailsFor(models.ActionBan, evt, policy))
}

func TestRunPreservesPerGuildOrder(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{Workers: 4, QueueSize: 8, BatchSize: 3})
	for _, g := range []uint64{1, 2, 3} {
		policy := config.DefaultConfig().PolicyDefaults()(g).
			WithLimit(models.CategoryChannelDelete, config.CategoryLimit{Limit: 1000, Window: time.Hour, Action: models.ActionBan})
		policy.NearRatio = 0.0001
		p.policies.set(policy)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	const n = 50
	secs := make([]int, n)
	for i := range secs {
		secs[i] = i
	}

	var wg sync.WaitGroup
	for _, g := range []uint64{1, 2, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, evt := range deleteEvents(g, 5, secs...) {
				assert.NoError(t, p.Submit(ctx, evt))
			}
		}()
	}
	wg.Wait()

	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	for _, g := range []uint64{1, 2, 3} {
		assert.Eventually(t, func() bool {
			return len(p.notify.warningCounts(g)) == n
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, want, p.notify.warningCounts(g), "guild %d", g)
	}

	cancel()
	require.NoError(t, <-done)

	err := p.Submit(context.Background(), deleteEvents(1, 5, 0)[0])
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSubmitHonoursContextWhileWorkersBusy(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, Options{Workers: 1, QueueSize: 8, BatchSize: 1})
	// No worker ever takes from ready, so scheduling blocks.
	p.ready = make(chan *guildQueue)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, deleteEvents(1, 5, 0)[0])
	require.ErrorIs(t, err, context.DeadlineExceeded)

	q := p.queue(1)
	assert.Len(t, q.events, 1)
	assert.False(t, q.scheduled.Load(), "a later submission must be able to schedule the guild")
}
