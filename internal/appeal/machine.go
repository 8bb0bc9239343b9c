package appeal

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/dispatcher"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/metrics"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Store persists appeals. CommitApproval must write the approved appeal and the
// violation's override flag in one transaction.
type Store interface {
	SaveAppeal(ctx context.Context, a models.Appeal) error
	CommitApproval(ctx context.Context, a models.Appeal, violationID uuid.UUID) error
	LoadAppeals(ctx context.Context) ([]models.Appeal, error)
}

// Violations is the part of the ledger appeals depend on.
type Violations interface {
	Get(id uuid.UUID) (models.ViolationRecord, bool)
	History(guildID, userID uint64) []models.ViolationRecord
	MarkOverridden(ctx context.Context, id uuid.UUID) error
	ApplyOverride(id uuid.UUID) error
}

// Dispatcher reverses actions.
type Dispatcher interface {
	Apply(ctx context.Context, req dispatcher.Request) (dispatcher.Result, error)
}

// Policies supplies per guild appeal timing.
type Policies interface {
	Get(guildID uint64) *config.GuildPolicy
}

// Machine owns every appeal and enforces its lifecycle.
type Machine struct {
	store      Store
	violations Violations
	dispatcher Dispatcher
	policies   Policies
	cooldowns  *CooldownManager

	mu      sync.Mutex
	appeals map[uuid.UUID]*models.Appeal
	// inflight gates transitions so at most one runs per appeal.
	inflight map[uuid.UUID]chan struct{}
	// submitting holds violations whose new appeal is being persisted.
	submitting map[uuid.UUID]struct{}

	retry  util.RetryOptions
	now    func() time.Time
	logger *zap.Logger
}

func NewMachine(store Store, violations Violations, d Dispatcher, policies Policies, logger *zap.Logger) *Machine {
	return &Machine{
		store:      store,
		violations: violations,
		dispatcher: d,
		policies:   policies,
		cooldowns:  NewCooldownManager(time.Now),
		appeals:    make(map[uuid.UUID]*models.Appeal),
		inflight:   make(map[uuid.UUID]chan struct{}),
		submitting: make(map[uuid.UUID]struct{}),
		retry:      util.StoreRetryOptions(),
		now:        time.Now,
		logger:     logger.Named("appeal"),
	}
}

// WithClock replaces the clock for the machine and its cooldowns.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	m.cooldowns.now = now
	return m
}

func (m *Machine) WithRetryOptions(opts util.RetryOptions) *Machine {
	m.retry = opts
	return m
}

// Load restores appeals from the store and seeds submission cooldowns. Approved
// appeals whose violation is not flagged overridden get the flag repaired.
func (m *Machine) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	appeals, err := m.store.LoadAppeals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load appeals: %w", err)
	}

	var repair []uuid.UUID
	m.mu.Lock()
	for i := range appeals {
		a := appeals[i]
		m.appeals[a.ID] = &a
		m.cooldowns.Seed(a.GuildID, a.UserID, a.Category, a.SubmittedAt)
		if a.Status != models.AppealApproved {
			continue
		}
		if rec, ok := m.violations.Get(a.ViolationID); ok && !rec.Overridden {
			repair = append(repair, rec.ID)
		}
	}
	m.mu.Unlock()

	for _, id := range repair {
		if err := m.violations.MarkOverridden(ctx, id); err != nil {
			return fmt.Errorf("failed to repair override of %s: %w", id, err)
		}
		m.logger.Warn("Repaired override flag of approved violation", zap.String("violation_id", id.String()))
	}
	m.logger.Info("Loaded appeals", zap.Int("count", len(appeals)))
	return nil
}

// Submit opens an appeal against one of the user's violations.
func (m *Machine) Submit(ctx context.Context, guildID, userID uint64, violationID uuid.UUID, statement string) (models.Appeal, error) {
	rec, ok := m.violations.Get(violationID)
	if !ok || rec.GuildID != guildID || rec.UserID != userID {
		return models.Appeal{}, fmt.Errorf("violation %s: %w", violationID, models.ErrNotFound)
	}
	if !rec.Appealable() {
		return models.Appeal{}, fmt.Errorf("violation %s with action %s: %w", violationID, rec.Action, models.ErrNotAppealable)
	}

	window := m.policies.Get(guildID).AppealCooldown

	m.mu.Lock()
	if m.hasOpenAppeal(violationID) {
		m.mu.Unlock()
		return models.Appeal{}, fmt.Errorf("violation %s already has an open appeal: %w", violationID, models.ErrNotAppealable)
	}
	undo, remaining := m.cooldowns.Reserve(guildID, userID, rec.Category, window)
	if remaining > 0 {
		m.mu.Unlock()
		return models.Appeal{}, fmt.Errorf("%w: try again in %s", models.ErrCooldownActive, remaining.Round(time.Second))
	}
	m.submitting[violationID] = struct{}{}
	m.mu.Unlock()

	now := m.now()
	a := models.Appeal{
		ID:          uuid.New(),
		GuildID:     guildID,
		UserID:      userID,
		ViolationID: violationID,
		Category:    rec.Category,
		Status:      models.AppealPending,
		Statement:   strings.TrimSpace(statement),
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	err := m.persist(ctx, a)

	m.mu.Lock()
	delete(m.submitting, violationID)
	if err == nil {
		m.appeals[a.ID] = &a
	}
	m.mu.Unlock()
	if err != nil {
		undo()
		return models.Appeal{}, err
	}

	metrics.AppealTransitions.WithLabelValues("", string(models.AppealPending)).Inc()

	m.logger.Info("Appeal submitted",
		zap.String("appeal_id", a.ID.String()),
		zap.Uint64("guild_id", guildID),
		zap.Uint64("user_id", userID),
		zap.String("violation_id", violationID.String()))
	return a, nil
}

// Investigate moves a pending appeal under review by resolverID.
func (m *Machine) Investigate(ctx context.Context, id uuid.UUID, resolverID uint64) (models.Appeal, error) {
	if resolverID == 0 {
		return models.Appeal{}, models.ErrResolverRequired
	}
	return m.transition(ctx, id, func(a *models.Appeal) error {
		if a.Status != models.AppealPending {
			return fmt.Errorf("appeal %s is %s: %w", id, a.Status, models.ErrAlreadyResolved)
		}
		a.Status = models.AppealInvestigating
		a.InvestigatorID = resolverID
		return nil
	})
}

// Reject closes the appeal and leaves the original action in place.
func (m *Machine) Reject(ctx context.Context, id uuid.UUID, resolverID uint64, reason string) (models.Appeal, error) {
	if resolverID == 0 {
		return models.Appeal{}, models.ErrResolverRequired
	}
	return m.transition(ctx, id, func(a *models.Appeal) error {
		m.resolve(a, models.AppealRejected, resolverID, reason)
		return nil
	})
}

// Approve reverses the disputed action and closes the appeal. The violation is
// marked overridden before the appeal reads as approved, and both are persisted
// together. If the reversal fails nothing changes. A reversal that already went
// out for this appeal is not sent again.
func (m *Machine) Approve(ctx context.Context, id uuid.UUID, resolverID uint64, reason string) (models.Appeal, error) {
	if resolverID == 0 {
		return models.Appeal{}, models.ErrResolverRequired
	}

	current, release, err := m.begin(ctx, id)
	if err != nil {
		return models.Appeal{}, err
	}
	defer release()

	rec, ok := m.violations.Get(current.ViolationID)
	if !ok {
		return models.Appeal{}, fmt.Errorf("violation %s: %w", current.ViolationID, models.ErrNotFound)
	}
	if rec.Overridden {
		return models.Appeal{}, fmt.Errorf("violation %s is already overridden: %w", rec.ID, models.ErrNotAppealable)
	}
	inverse, ok := rec.Action.Inverse()
	if !ok {
		return models.Appeal{}, fmt.Errorf("violation %s with action %s: %w", rec.ID, rec.Action, models.ErrNotAppealable)
	}

	if m.reversed(rec, id, inverse) {
		m.logger.Info("Reversal already dispatched, retrying commit", zap.String("appeal_id", id.String()))
	} else {
		_, err = m.dispatcher.Apply(ctx, dispatcher.Request{
			GuildID:  rec.GuildID,
			UserID:   rec.UserID,
			Action:   inverse,
			Reason:   fmt.Sprintf("Appeal %s approved: %s", id, reason),
			Category: rec.Category,
			Details:  rec.Details,
			AppealID: id,
		})
		if err != nil {
			return models.Appeal{}, fmt.Errorf("failed to reverse %s for appeal %s: %w", rec.Action, id, err)
		}
	}

	approved := current
	m.resolve(&approved, models.AppealApproved, resolverID, reason)

	if m.store != nil {
		err = util.Retry(ctx, func() error {
			return m.store.CommitApproval(ctx, approved, rec.ID)
		}, m.retry)
		if err != nil {
			return models.Appeal{}, fmt.Errorf("failed to commit approval of appeal %s: %w", id, err)
		}
	}

	if err := m.violations.ApplyOverride(rec.ID); err != nil {
		return models.Appeal{}, err
	}
	m.mu.Lock()
	m.appeals[id] = &approved
	m.mu.Unlock()

	metrics.AppealTransitions.WithLabelValues(string(current.Status), string(models.AppealApproved)).Inc()
	m.logger.Info("Appeal approved",
		zap.String("appeal_id", id.String()),
		zap.Uint64("resolver_id", resolverID),
		zap.String("inverse", inverse.String()))
	return approved, nil
}

// reversed reports whether the ledger already holds a successful inverse of rec
// dispatched for appealID.
func (m *Machine) reversed(rec models.ViolationRecord, appealID uuid.UUID, inverse models.Action) bool {
	for _, r := range m.violations.History(rec.GuildID, rec.UserID) {
		if r.AppealID == appealID && r.Action == inverse {
			return true
		}
	}
	return false
}

// hasOpenAppeal reports whether violationID has an unresolved or in-progress
// appeal. Callers hold mu.
func (m *Machine) hasOpenAppeal(violationID uuid.UUID) bool {
	if _, ok := m.submitting[violationID]; ok {
		return true
	}
	for _, a := range m.appeals {
		if a.ViolationID == violationID && !a.Status.Terminal() {
			return true
		}
	}
	return false
}

// Sweep returns abandoned investigations to pending and reports how many moved.
func (m *Machine) Sweep(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	var stale []uuid.UUID
	for id, a := range m.appeals {
		if a.Status != models.AppealInvestigating {
			continue
		}
		if _, busy := m.inflight[id]; busy {
			continue
		}
		abandon := m.policies.Get(a.GuildID).AbandonAfter
		if abandon > 0 && !a.UpdatedAt.Add(abandon).After(now) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	moved := 0
	for _, id := range stale {
		_, err := m.transition(ctx, id, func(a *models.Appeal) error {
			if a.Status != models.AppealInvestigating {
				return models.ErrAlreadyResolved
			}
			a.Status = models.AppealPending
			a.InvestigatorID = 0
			return nil
		})
		if err != nil {
			m.logger.Warn("Failed to return abandoned appeal", zap.String("appeal_id", id.String()), zap.Error(err))
			continue
		}
		moved++
	}

	if moved > 0 {
		m.logger.Info("Returned abandoned appeals to pending", zap.Int("count", moved))
	}
	m.cooldowns.Prune(m.maxCooldown())
	return moved
}

func (m *Machine) Get(id uuid.UUID) (models.Appeal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appeals[id]
	if !ok {
		return models.Appeal{}, false
	}
	return *a, true
}

// List returns the guild's appeals, newest first. An empty status matches all.
func (m *Machine) List(guildID uint64, status models.AppealStatus) []models.Appeal {
	m.mu.Lock()
	out := make([]models.Appeal, 0)
	for _, a := range m.appeals {
		if a.GuildID != guildID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b models.Appeal) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return out
}

// begin waits for any running transition on id, then claims it.
func (m *Machine) begin(ctx context.Context, id uuid.UUID) (models.Appeal, func(), error) {
	for {
		m.mu.Lock()
		a, ok := m.appeals[id]
		if !ok {
			m.mu.Unlock()
			return models.Appeal{}, nil, fmt.Errorf("appeal %s: %w", id, models.ErrNotFound)
		}
		if a.Status.Terminal() {
			m.mu.Unlock()
			return models.Appeal{}, nil, fmt.Errorf("appeal %s is %s: %w", id, a.Status, models.ErrAlreadyResolved)
		}
		if done, busy := m.inflight[id]; busy {
			m.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return models.Appeal{}, nil, ctx.Err()
			}
		}

		done := make(chan struct{})
		m.inflight[id] = done
		current := *a
		m.mu.Unlock()

		release := func() {
			m.mu.Lock()
			delete(m.inflight, id)
			m.mu.Unlock()
			close(done)
		}
		return current, release, nil
	}
}

func (m *Machine) transition(ctx context.Context, id uuid.UUID, fn func(a *models.Appeal) error) (models.Appeal, error) {
	current, release, err := m.begin(ctx, id)
	if err != nil {
		return models.Appeal{}, err
	}
	defer release()

	next := current
	if err := fn(&next); err != nil {
		return models.Appeal{}, err
	}
	next.UpdatedAt = m.now()

	if err := m.persist(ctx, next); err != nil {
		return models.Appeal{}, err
	}

	m.mu.Lock()
	m.appeals[id] = &next
	m.mu.Unlock()

	metrics.AppealTransitions.WithLabelValues(string(current.Status), string(next.Status)).Inc()
	m.logger.Debug("Appeal transitioned",
		zap.String("appeal_id", id.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)))
	return next, nil
}

func (m *Machine) resolve(a *models.Appeal, status models.AppealStatus, resolverID uint64, reason string) {
	now := m.now()
	a.Status = status
	a.ResolverID = resolverID
	a.ResolutionReason = strings.TrimSpace(reason)
	a.ResolvedAt = &now
	a.UpdatedAt = now
}

func (m *Machine) persist(ctx context.Context, a models.Appeal) error {
	if m.store == nil {
		return nil
	}
	err := util.Retry(ctx, func() error {
		return m.store.SaveAppeal(ctx, a)
	}, m.retry)
	if err != nil {
		return fmt.Errorf("failed to persist appeal %s: %w", a.ID, err)
	}
	return nil
}

func (m *Machine) maxCooldown() time.Duration {
	m.mu.Lock()
	guilds := make(map[uint64]struct{})
	for _, a := range m.appeals {
		guilds[a.GuildID] = struct{}{}
	}
	m.mu.Unlock()

	longest := 24 * time.Hour
	for guildID := range guilds {
		longest = max(longest, m.policies.Get(guildID).AppealCooldown)
	}
	return longest
}
