package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/metrics"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Recorder appends ledger entries.
type Recorder interface {
	Append(ctx context.Context, rec models.ViolationRecord) (models.ViolationRecord, error)
}

// Options tunes retries and defaults.
type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	DefaultTimeout  time.Duration
}

// Request asks for one action against one user.
type Request struct {
	GuildID  uint64
	UserID   uint64
	Action   models.Action
	Reason   string
	Category models.Category
	Details  models.ActionDetails
	// AppealID links reversal dispatches to the appeal that caused them.
	AppealID uuid.UUID
}

// Result describes a completed dispatch. Record is the ledger entry written for
// it, which is a failed:<action> entry when the dispatch failed.
type Result struct {
	Record         models.ViolationRecord
	AlreadyApplied bool
	Attempts       int
}

// Actions that leave state on the platform are tracked so repeats are no-ops.
type family string

const (
	familyNone    family = ""
	familyBan     family = "ban"
	familyKick    family = "kick"
	familyTimeout family = "timeout"
	familyRoles   family = "roles"
)

func familyOf(a models.Action) family {
	switch a {
	case models.ActionBan, models.ActionUnban:
		return familyBan
	case models.ActionKick:
		return familyKick
	case models.ActionTimeout, models.ActionTimeoutClear:
		return familyTimeout
	case models.ActionRevokePermissions, models.ActionRestoreRoles:
		return familyRoles
	default:
		return familyNone
	}
}

type appliedKey struct {
	guildID uint64
	userID  uint64
	family  family
}

type appliedState struct {
	// until is the expiry of a timeout; zero means until reverted.
	until  time.Time
	record uuid.UUID
}

// Dispatcher applies actions through a Platform with bounded retries and writes
// exactly one ledger entry per dispatch that reaches the platform.
type Dispatcher struct {
	platform Platform
	ledger   Recorder
	opts     Options

	group   singleflight.Group
	mu      sync.Mutex
	applied map[appliedKey]appliedState

	now    func() time.Time
	logger *zap.Logger
}

func New(platform Platform, ledger Recorder, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval < opts.InitialInterval {
		opts.MaxInterval = opts.InitialInterval * 8
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Minute
	}
	return &Dispatcher{
		platform: platform,
		ledger:   ledger,
		opts:     opts,
		applied:  make(map[appliedKey]appliedState),
		now:      time.Now,
		logger:   logger.Named("dispatcher"),
	}
}

// WithClock replaces the clock used for timeouts and records.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Apply executes req. Concurrent identical requests share one execution.
func (d *Dispatcher) Apply(ctx context.Context, req Request) (Result, error) {
	if req.GuildID == 0 || req.UserID == 0 {
		return Result{}, fmt.Errorf("%w: dispatch needs guild and user", models.ErrMalformedEvent)
	}
	if !req.Action.Valid() {
		return Result{}, &models.ConfigError{Field: "action", Reason: fmt.Sprintf("unknown action %q", req.Action)}
	}

	key := strconv.FormatUint(req.GuildID, 10) + ":" + strconv.FormatUint(req.UserID, 10) + ":" + string(req.Action)
	type outcome struct {
		res Result
		err error
	}
	v, _, _ := d.group.Do(key, func() (any, error) {
		res, err := d.apply(ctx, req)
		return outcome{res, err}, nil
	})
	out := v.(outcome)
	return out.res, out.err
}

// Forget clears tracked state after the platform changed outside the dispatcher,
// e.g. a moderator unbanned a user by hand or a kicked member rejoined.
func (d *Dispatcher) Forget(guildID, userID uint64, action models.Action) {
	fam := familyOf(action)
	if fam == familyNone {
		return
	}
	d.mu.Lock()
	delete(d.applied, appliedKey{guildID, userID, fam})
	d.mu.Unlock()
}

func (d *Dispatcher) apply(ctx context.Context, req Request) (Result, error) {
	logger := d.logger.With(
		zap.Uint64("guild_id", req.GuildID),
		zap.Uint64("user_id", req.UserID),
		zap.String("action", req.Action.String()))

	if req.Action == models.ActionTimeout && req.Details.Duration <= 0 {
		req.Details.Duration = d.opts.DefaultTimeout
	}

	fam := familyOf(req.Action)
	key := appliedKey{req.GuildID, req.UserID, fam}

	if req.Action.IsForward() && fam != familyNone {
		if state, ok := d.lookupApplied(key); ok {
			return d.reapply(ctx, req, key, state, logger)
		}
	}

	attempts, err := d.call(ctx, req)
	if err != nil {
		return d.recordFailure(ctx, req, attempts, err, logger)
	}

	rec, err := d.ledger.Append(ctx, d.newRecord(req, req.Action))
	d.markApplied(req, key, rec.ID)
	if err != nil {
		metrics.ActionsDispatched.WithLabelValues(req.Action.String(), "unrecorded").Inc()
		return Result{Attempts: attempts}, fmt.Errorf("action %s applied but not recorded: %w", req.Action, err)
	}

	metrics.ActionsDispatched.WithLabelValues(req.Action.String(), "applied").Inc()
	logger.Info("Action applied", zap.Int("attempts", attempts), zap.String("record_id", rec.ID.String()))
	return Result{Record: rec, Attempts: attempts}, nil
}

// reapply handles a forward action already in effect. Timeouts are extended on
// the platform; everything else is a no-op. Neither writes a new record.
func (d *Dispatcher) reapply(ctx context.Context, req Request, key appliedKey, state appliedState, logger *zap.Logger) (Result, error) {
	res := Result{AlreadyApplied: true}
	if rec, ok := d.ledgerRecord(state.record); ok {
		res.Record = rec
	}

	if req.Action == models.ActionTimeout {
		attempts, err := d.call(ctx, req)
		res.Attempts = attempts
		if err != nil {
			return d.recordFailure(ctx, req, attempts, err, logger)
		}
		d.mu.Lock()
		d.applied[key] = appliedState{until: d.now().Add(req.Details.Duration), record: state.record}
		d.mu.Unlock()
		logger.Debug("Timeout extended", zap.Duration("duration", req.Details.Duration))
	}

	metrics.ActionsDispatched.WithLabelValues(req.Action.String(), "already_applied").Inc()
	return res, nil
}

// call runs the platform operation with exponential backoff. Transient failures
// that exhaust the attempts are returned as permanent.
func (d *Dispatcher) call(ctx context.Context, req Request) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		metrics.ActionAttempts.WithLabelValues(req.Action.String()).Inc()
		err := d.invoke(ctx, req)
		if err != nil && errors.Is(err, models.ErrPermanentActionFailure) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := util.NewBackOff(ctx, util.RetryOptions{
		InitialInterval: d.opts.InitialInterval,
		MaxInterval:     d.opts.MaxInterval,
		MaxRetries:      uint64(d.opts.MaxAttempts - 1),
	})
	err := backoff.Retry(op, b)
	if err != nil && !errors.Is(err, models.ErrPermanentActionFailure) {
		err = models.Permanent(fmt.Errorf("gave up after %d attempt(s): %w", attempts, err))
	}
	return attempts, err
}

func (d *Dispatcher) invoke(ctx context.Context, req Request) error {
	p := d.platform
	g, u, reason := req.GuildID, req.UserID, req.Reason

	switch req.Action {
	case models.ActionWarning:
		return p.Warn(ctx, g, u, reason)
	case models.ActionTimeout:
		return p.Timeout(ctx, g, u, d.now().Add(req.Details.Duration), reason)
	case models.ActionDeleteMessage:
		if req.Details.ChannelID == 0 || req.Details.MessageID == 0 {
			return models.Permanent(errors.New("no message to delete"))
		}
		return p.DeleteMessage(ctx, req.Details.ChannelID, req.Details.MessageID, reason)
	case models.ActionKick:
		return p.Kick(ctx, g, u, reason)
	case models.ActionBan:
		return p.Ban(ctx, g, u, reason)
	case models.ActionRevokePermissions:
		return p.RemoveRoles(ctx, g, u, req.Details.RoleIDs, reason)
	case models.ActionUnban:
		return p.Unban(ctx, g, u, reason)
	case models.ActionTimeoutClear:
		return p.ClearTimeout(ctx, g, u, reason)
	case models.ActionRestoreRoles:
		return p.RestoreRoles(ctx, g, u, req.Details.RoleIDs, reason)
	case models.ActionRestoreMessage:
		if req.Details.ChannelID == 0 || req.Details.Content == "" {
			return models.Permanent(errors.New("no message content to restore"))
		}
		return p.RestoreMessage(ctx, req.Details.ChannelID, u, req.Details.Content)
	case models.ActionClearViolation:
		return nil
	default:
		return models.Permanent(fmt.Errorf("unsupported action %q", req.Action))
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, req Request, attempts int, cause error, logger *zap.Logger) (Result, error) {
	actErr := &models.ActionError{
		Action:   req.Action,
		GuildID:  req.GuildID,
		UserID:   req.UserID,
		Attempts: attempts,
		Err:      cause,
	}
	metrics.ActionsDispatched.WithLabelValues(req.Action.String(), "failed").Inc()
	logger.Warn("Action failed", zap.Int("attempts", attempts), zap.Error(cause))

	rec, err := d.ledger.Append(ctx, d.newRecord(req, req.Action.Failed()))
	if err != nil {
		return Result{Attempts: attempts}, errors.Join(actErr, fmt.Errorf("failed to record failure: %w", err))
	}
	return Result{Record: rec, Attempts: attempts}, actErr
}

func (d *Dispatcher) newRecord(req Request, action models.Action) models.ViolationRecord {
	return models.ViolationRecord{
		ID:        uuid.New(),
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		Category:  req.Category,
		Action:    action,
		Reason:    req.Reason,
		Timestamp: d.now(),
		Details:   req.Details,
		AppealID:  req.AppealID,
	}
}

func (d *Dispatcher) markApplied(req Request, key appliedKey, record uuid.UUID) {
	if key.family == familyNone {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.Action.IsInverse() {
		delete(d.applied, key)
		return
	}
	state := appliedState{record: record}
	if req.Action == models.ActionTimeout {
		state.until = d.now().Add(req.Details.Duration)
	}
	d.applied[key] = state
}

func (d *Dispatcher) lookupApplied(key appliedKey) (appliedState, bool) {
	if key.family == familyNone {
		return appliedState{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.applied[key]
	if ok && !state.until.IsZero() && !d.now().Before(state.until) {
		delete(d.applied, key)
		return appliedState{}, false
	}
	return state, ok
}

func (d *Dispatcher) ledgerRecord(id uuid.UUID) (models.ViolationRecord, bool) {
	if l, ok := d.ledger.(interface {
		Get(uuid.UUID) (models.ViolationRecord, bool)
	}); ok {
		return l.Get(id)
	}
	return models.ViolationRecord{}, false
}
