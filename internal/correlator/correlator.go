package correlator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/decision"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/dispatcher"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/metrics"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/whitelist"
)

var ErrStopped = errors.New("correlator stopped")

type Policies interface {
	Get(guildID uint64) *config.GuildPolicy
}

type Dispatcher interface {
	Apply(ctx context.Context, req dispatcher.Request) (dispatcher.Result, error)
}

// Notifier receives alerts for near-threshold activity and escalations.
type Notifier interface {
	NotifyWarning(ctx context.Context, policy *config.GuildPolicy, v decision.Verdict)
	NotifyEscalation(ctx context.Context, policy *config.GuildPolicy, v decision.Verdict, res dispatcher.Result, err error)
}

type Options struct {
	Workers    int
	QueueSize  int
	BatchSize  int
	GCInterval time.Duration
	// Heartbeat, when set, is called after every collection pass.
	Heartbeat func()
}

type guildQueue struct {
	guildID   uint64
	events    chan models.ModerationEvent
	scheduled atomic.Bool
}

// Correlator runs events through whitelist, window tracking and evaluation.
// Events of one guild are processed in submission order by one worker at a
// time; different guilds proceed in parallel.
type Correlator struct {
	tracker    *WindowTracker
	engine     *decision.Engine
	whitelist  *whitelist.Resolver
	policies   Policies
	dispatcher Dispatcher
	notifier   Notifier
	opts       Options

	mu     sync.Mutex
	queues map[uint64]*guildQueue
	ready  chan *guildQueue
	done   chan struct{}
	once   sync.Once

	logger *zap.Logger
}

func New(tracker *WindowTracker, engine *decision.Engine, wl *whitelist.Resolver, policies Policies, d Dispatcher, n Notifier, opts Options, logger *zap.Logger) *Correlator {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = time.Minute
	}
	return &Correlator{
		tracker:    tracker,
		engine:     engine,
		whitelist:  wl,
		policies:   policies,
		dispatcher: d,
		notifier:   n,
		opts:       opts,
		queues:     make(map[uint64]*guildQueue),
		ready:      make(chan *guildQueue, 4096),
		done:       make(chan struct{}),
		logger:     logger.Named("correlator"),
	}
}

// Tracker exposes the window tracker for status queries.
func (c *Correlator) Tracker() *WindowTracker {
	return c.tracker
}

// Submit enqueues evt on its guild's queue. It blocks while the queue is full.
// If ctx ends while the guild waits for a worker, the event stays queued and is
// drained with the guild's next submission.
func (c *Correlator) Submit(ctx context.Context, evt models.ModerationEvent) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	q := c.queue(evt.GuildID)
	metrics.EventsReceived.WithLabelValues(evt.Category.String()).Inc()

	select {
	case q.events <- evt:
	case <-ctx.Done():
		metrics.EventsDropped.WithLabelValues("timeout").Inc()
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	metrics.QueueDepth.Inc()
	return c.schedule(ctx, q)
}

// Run starts the workers and the counter collector. It returns when ctx ends.
func (c *Correlator) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })

	p := pool.New().WithMaxGoroutines(c.opts.Workers + 1).WithContext(ctx)
	for range c.opts.Workers {
		p.Go(c.worker)
	}
	p.Go(c.collectLoop)

	c.logger.Info("Correlator started",
		zap.Int("workers", c.opts.Workers),
		zap.Int("queue_size", c.opts.QueueSize),
		zap.Int("batch_size", c.opts.BatchSize))

	err := p.Wait()
	if ctx.Err() != nil {
		err = nil
	}
	c.logger.Info("Correlator stopped")
	return err
}

// Counts returns the live window count for every configured category.
func (c *Correlator) Counts(guildID uint64, now time.Time) map[models.Category]int {
	policy := c.policies.Get(guildID)
	windows := make(map[models.Category]time.Duration, len(policy.Categories))
	for cat, limit := range policy.Categories {
		windows[cat] = limit.Window
	}
	return c.tracker.Snapshot(guildID, now, windows)
}

func (c *Correlator) queue(guildID uint64) *guildQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[guildID]
	if !ok {
		q = &guildQueue{guildID: guildID, events: make(chan models.ModerationEvent, c.opts.QueueSize)}
		c.queues[guildID] = q
	}
	return q
}

func (c *Correlator) schedule(ctx context.Context, q *guildQueue) error {
	if !q.scheduled.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case c.ready <- q:
		return nil
	case <-ctx.Done():
		q.scheduled.Store(false)
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

func (c *Correlator) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-c.ready:
			c.drain(ctx, q)
		}
	}
}

// drain processes batches until the queue is empty or another guild is waiting.
func (c *Correlator) drain(ctx context.Context, q *guildQueue) {
	for {
		batch := c.take(q)
		if len(batch) > 0 {
			c.process(ctx, q.guildID, batch)
		}

		if len(q.events) == 0 {
			q.scheduled.Store(false)
			// An event may have landed between the length check and the store.
			if len(q.events) == 0 || !q.scheduled.CompareAndSwap(false, true) {
				return
			}
		}

		select {
		case c.ready <- q:
			return
		default:
		}
	}
}

func (c *Correlator) take(q *guildQueue) []models.ModerationEvent {
	batch := make([]models.ModerationEvent, 0, min(c.opts.BatchSize, len(q.events)))
	for len(batch) < c.opts.BatchSize {
		select {
		case evt := <-q.events:
			metrics.QueueDepth.Dec()
			batch = append(batch, evt)
		default:
			return batch
		}
	}
	return batch
}

// process evaluates one batch for a guild and dispatches the resulting actions.
// Dispatch runs only after every tracker and policy read of the batch is done.
func (c *Correlator) process(ctx context.Context, guildID uint64, batch []models.ModerationEvent) []decision.Verdict {
	var (
		policy      *config.GuildPolicy
		escalations []decision.Verdict
	)

	for _, evt := range batch {
		start := time.Now()
		policy = c.policies.Get(guildID)

		if !policy.Enabled {
			metrics.EventsDropped.WithLabelValues("disabled").Inc()
			continue
		}
		if reason := c.whitelist.EventExempt(evt, policy); reason != whitelist.NotExempt {
			metrics.EventsExempt.WithLabelValues(string(reason)).Inc()
			continue
		}

		window := policy.Window(evt.Category)
		if window <= 0 {
			metrics.EventsDropped.WithLabelValues("unconfigured").Inc()
			continue
		}

		count := c.tracker.Record(guildID, evt.Category, evt.Timestamp, window)
		v := c.engine.Evaluate(evt, policy, count)
		metrics.Verdicts.WithLabelValues(evt.Category.String(), v.Kind.String()).Inc()
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

		switch v.Kind {
		case decision.Warn:
			if c.notifier != nil {
				c.notifier.NotifyWarning(ctx, policy, v)
			}
		case decision.Escalate:
			escalations = append(escalations, v)
		}
	}

	selected := decision.MostSevere(escalations)
	for _, v := range selected {
		c.escalate(ctx, policy, v)
	}
	return selected
}

func (c *Correlator) escalate(ctx context.Context, policy *config.GuildPolicy, v decision.Verdict) {
	evt := v.Event
	req := dispatcher.Request{
		GuildID:  evt.GuildID,
		UserID:   evt.ActorID,
		Action:   v.Action,
		Reason:   "Anti-nuke: " + evt.Category.String() + " limit exceeded",
		Category: evt.Category,
		Details:  detailsFor(v.Action, evt, policy),
	}

	res, err := c.dispatcher.Apply(ctx, req)
	logger := c.logger.With(
		zap.Uint64("guild_id", evt.GuildID),
		zap.Uint64("actor_id", evt.ActorID),
		zap.String("category", evt.Category.String()),
		zap.String("action", v.Action.String()),
		zap.Int("count", v.Count),
		zap.Int("limit", v.Limit))
	if err != nil {
		logger.Error("Escalation failed", zap.Error(err))
	} else {
		logger.Info("Escalation dispatched", zap.Bool("already_applied", res.AlreadyApplied))
	}

	if c.notifier != nil {
		c.notifier.NotifyEscalation(ctx, policy, v, res, err)
	}
}

func detailsFor(action models.Action, evt models.ModerationEvent, policy *config.GuildPolicy) models.ActionDetails {
	switch action {
	case models.ActionTimeout:
		return models.ActionDetails{Duration: policy.TimeoutDuration}
	case models.ActionDeleteMessage:
		return models.ActionDetails{
			ChannelID: evt.ChannelID,
			MessageID: evt.TargetID,
			Content:   evt.Meta(models.MetaContent),
		}
	case models.ActionRevokePermissions:
		return models.ActionDetails{RoleIDs: evt.RoleIDs}
	default:
		return models.ActionDetails{}
	}
}

func (c *Correlator) collectLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			removed := c.tracker.Collect(now)
			metrics.ActiveCounters.Set(float64(c.tracker.Len()))
			if removed > 0 {
				c.logger.Debug("Collected idle window counters", zap.Int("removed", removed))
			}
			if c.opts.Heartbeat != nil {
				c.opts.Heartbeat()
			}
		}
	}
}
