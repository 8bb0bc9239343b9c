// Package ledger keeps the append-only violation history.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Store durably persists ledger entries. Writes must be idempotent by record id.
type Store interface {
	AppendViolation(ctx context.Context, rec models.ViolationRecord) error
	MarkViolationOverridden(ctx context.Context, id uuid.UUID) error
	LoadViolations(ctx context.Context) ([]models.ViolationRecord, error)
}

type userKey struct {
	guildID uint64
	userID  uint64
}

// Ledger is an in-memory index over the violation history, written through to a Store.
type Ledger struct {
	mu      sync.RWMutex
	records map[uuid.UUID]models.ViolationRecord
	byUser  map[userKey][]uuid.UUID
	byGuild map[uint64][]uuid.UUID

	store  Store
	retry  util.RetryOptions
	now    func() time.Time
	logger *zap.Logger
}

// New creates a ledger. store may be nil for a memory-only ledger.
func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		records: make(map[uuid.UUID]models.ViolationRecord),
		byUser:  make(map[userKey][]uuid.UUID),
		byGuild: make(map[uint64][]uuid.UUID),
		store:   store,
		retry:   util.StoreRetryOptions(),
		now:     time.Now,
		logger:  logger.Named("ledger"),
	}
}

// WithRetryOptions overrides the store retry policy.
func (l *Ledger) WithRetryOptions(opts util.RetryOptions) *Ledger {
	l.retry = opts
	return l
}

// Load replaces the in-memory index with the store's contents.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	recs, err := l.store.LoadViolations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load violations: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range recs {
		l.index(rec)
	}
	l.logger.Info("Loaded violation history", zap.Int("count", len(recs)))
	return nil
}

// Append adds rec to the ledger and returns it with its id and timestamp set.
// Appending a record whose id already exists returns the stored record.
func (l *Ledger) Append(ctx context.Context, rec models.ViolationRecord) (models.ViolationRecord, error) {
	if rec.GuildID == 0 || rec.UserID == 0 {
		return models.ViolationRecord{}, fmt.Errorf("%w: violation needs guild and user", models.ErrMalformedEvent)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}

	if existing, ok := l.Get(rec.ID); ok {
		return existing, nil
	}

	if l.store != nil {
		err := util.Retry(ctx, func() error {
			return l.store.AppendViolation(ctx, rec)
		}, l.retry)
		if err != nil {
			return models.ViolationRecord{}, fmt.Errorf("failed to persist violation %s: %w", rec.ID, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[rec.ID]; ok {
		return existing, nil
	}
	l.index(rec)

	l.logger.Debug("Violation recorded",
		zap.String("id", rec.ID.String()),
		zap.Uint64("guild_id", rec.GuildID),
		zap.Uint64("user_id", rec.UserID),
		zap.String("action", rec.Action.String()))
	return rec, nil
}

// MarkOverridden persists and applies the override flag. It is idempotent.
func (l *Ledger) MarkOverridden(ctx context.Context, id uuid.UUID) error {
	if _, ok := l.Get(id); !ok {
		return fmt.Errorf("violation %s: %w", id, models.ErrNotFound)
	}
	if l.store != nil {
		err := util.Retry(ctx, func() error {
			return l.store.MarkViolationOverridden(ctx, id)
		}, l.retry)
		if err != nil {
			return fmt.Errorf("failed to persist override of %s: %w", id, err)
		}
	}
	return l.ApplyOverride(id)
}

// ApplyOverride sets the flag in memory only. Use it after the flag was persisted
// as part of a larger transaction.
func (l *Ledger) ApplyOverride(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return fmt.Errorf("violation %s: %w", id, models.ErrNotFound)
	}
	rec.Overridden = true
	l.records[id] = rec
	return nil
}

// Get returns a record by id.
func (l *Ledger) Get(id uuid.UUID) (models.ViolationRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	return rec, ok
}

// History returns a user's records in a guild, oldest first.
func (l *Ledger) History(guildID, userID uint64) []models.ViolationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(l.byUser[userKey{guildID, userID}])
}

// Recent returns up to n of a guild's newest records, newest first.
func (l *Ledger) Recent(guildID uint64, n int) []models.ViolationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.collect(l.byGuild[guildID])
	slices.Reverse(recs)
	if n > 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}

// Count returns the number of records for a guild.
func (l *Ledger) Count(guildID uint64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byGuild[guildID])
}

func (l *Ledger) collect(ids []uuid.UUID) []models.ViolationRecord {
	out := make([]models.ViolationRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.records[id])
	}
	return out
}

// index inserts rec keeping per-user and per-guild slices ordered by timestamp.
// Callers hold mu.
func (l *Ledger) index(rec models.ViolationRecord) {
	if _, ok := l.records[rec.ID]; ok {
		l.records[rec.ID] = rec
		return
	}
	l.records[rec.ID] = rec
	uk := userKey{rec.GuildID, rec.UserID}
	l.byUser[uk] = l.insertOrdered(l.byUser[uk], rec)
	l.byGuild[rec.GuildID] = l.insertOrdered(l.byGuild[rec.GuildID], rec)
}

func (l *Ledger) insertOrdered(ids []uuid.UUID, rec models.ViolationRecord) []uuid.UUID {
	i := len(ids)
	for i > 0 && l.records[ids[i-1]].Timestamp.After(rec.Timestamp) {
		i--
	}
	return slices.Insert(ids, i, rec.ID)
}
