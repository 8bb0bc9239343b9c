// Package service is the configuration and query surface used by commands.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/appeal"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/ledger"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

const recentActionLimit = 10

// Counter reports live window counts for a guild.
type Counter interface {
	Counts(guildID uint64, now time.Time) map[models.Category]int
}

// AppealNotifier announces appeal resolutions.
type AppealNotifier interface {
	NotifyAppeal(ctx context.Context, policy *config.GuildPolicy, a models.Appeal)
}

// Status summarizes a guild's protection state.
type Status struct {
	GuildID       uint64
	Enabled       bool
	Strict        bool
	LogChannelID  uint64
	ModuleCounts  map[models.Category]int
	Limits        map[models.Category]int
	Whitelisted   int
	OpenAppeals   int
	TotalRecords  int
	RecentActions []models.ViolationRecord
	PolicyUpdated time.Time
}

type Moderation struct {
	policies *config.PolicyStore
	ledger   *ledger.Ledger
	appeals  *appeal.Machine
	counter  Counter
	notifier AppealNotifier
	now      func() time.Time
	logger   *zap.Logger
}

func NewModeration(policies *config.PolicyStore, l *ledger.Ledger, appeals *appeal.Machine, counter Counter, notifier AppealNotifier, logger *zap.Logger) *Moderation {
	return &Moderation{
		policies: policies,
		ledger:   l,
		appeals:  appeals,
		counter:  counter,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.Named("service"),
	}
}

func (s *Moderation) GetPolicy(guildID uint64) *config.GuildPolicy {
	return s.policies.Get(guildID)
}

// SetPolicy validates, persists and publishes a whole policy.
func (s *Moderation) SetPolicy(ctx context.Context, p *config.GuildPolicy) error {
	if err := s.policies.Set(ctx, p); err != nil {
		return err
	}
	s.logger.Info("Policy replaced", zap.Uint64("guild_id", p.GuildID))
	return nil
}

func (s *Moderation) AddWhitelistEntry(ctx context.Context, guildID uint64, kind config.WhitelistKind, id uint64) (*config.GuildPolicy, error) {
	if err := checkEntry(kind, id); err != nil {
		return nil, err
	}
	return s.update(ctx, guildID, "whitelist_add", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithWhitelistEntry(kind, id)
	})
}

func (s *Moderation) RemoveWhitelistEntry(ctx context.Context, guildID uint64, kind config.WhitelistKind, id uint64) (*config.GuildPolicy, error) {
	if err := checkEntry(kind, id); err != nil {
		return nil, err
	}
	if !s.policies.Get(guildID).Whitelist.Has(kind, id) {
		return nil, fmt.Errorf("%s %d is not whitelisted: %w", kind, id, models.ErrNotFound)
	}
	return s.update(ctx, guildID, "whitelist_remove", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithoutWhitelistEntry(kind, id)
	})
}

func (s *Moderation) SetEnabled(ctx context.Context, guildID uint64, enabled bool) (*config.GuildPolicy, error) {
	return s.update(ctx, guildID, "enabled", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithEnabled(enabled)
	})
}

func (s *Moderation) SetStrict(ctx context.Context, guildID uint64, strict bool) (*config.GuildPolicy, error) {
	return s.update(ctx, guildID, "strict", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithStrict(strict)
	})
}

func (s *Moderation) SetLimit(ctx context.Context, guildID uint64, category models.Category, limit config.CategoryLimit) (*config.GuildPolicy, error) {
	if !category.Valid() {
		return nil, &models.ConfigError{Field: "category", Reason: fmt.Sprintf("unknown category %q", category)}
	}
	return s.update(ctx, guildID, "limit", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithLimit(category, limit)
	})
}

func (s *Moderation) SetLogChannel(ctx context.Context, guildID, channelID uint64) (*config.GuildPolicy, error) {
	return s.update(ctx, guildID, "log_channel", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithLogChannel(channelID)
	})
}

// SetOwner records the guild owner, skipping the write when nothing changed.
func (s *Moderation) SetOwner(ctx context.Context, guildID, ownerID uint64) error {
	if s.policies.Get(guildID).OwnerID == ownerID {
		return nil
	}
	_, err := s.update(ctx, guildID, "owner", func(p *config.GuildPolicy) *config.GuildPolicy {
		return p.WithOwner(ownerID)
	})
	return err
}

func (s *Moderation) update(ctx context.Context, guildID uint64, field string, fn func(*config.GuildPolicy) *config.GuildPolicy) (*config.GuildPolicy, error) {
	p, err := s.policies.Update(ctx, guildID, fn)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Policy updated", zap.Uint64("guild_id", guildID), zap.String("field", field))
	return p, nil
}

func (s *Moderation) CurrentStatus(guildID uint64) Status {
	p := s.policies.Get(guildID)
	now := s.now()

	limits := make(map[models.Category]int, len(p.Categories))
	for cat := range p.Categories {
		limits[cat] = p.EffectiveLimit(cat)
	}

	counts := map[models.Category]int{}
	if s.counter != nil {
		counts = s.counter.Counts(guildID, now)
	}

	return Status{
		GuildID:       guildID,
		Enabled:       p.Enabled,
		Strict:        p.Strict,
		LogChannelID:  p.LogChannelID,
		ModuleCounts:  counts,
		Limits:        limits,
		Whitelisted:   p.Whitelist.Len(),
		OpenAppeals:   len(s.appeals.List(guildID, models.AppealPending)) + len(s.appeals.List(guildID, models.AppealInvestigating)),
		TotalRecords:  s.ledger.Count(guildID),
		RecentActions: s.ledger.Recent(guildID, recentActionLimit),
		PolicyUpdated: p.UpdatedAt,
	}
}

func (s *Moderation) ListAppeals(guildID uint64, status models.AppealStatus) ([]models.Appeal, error) {
	if status != "" && !status.Valid() {
		return nil, &models.ConfigError{Field: "status", Reason: fmt.Sprintf("unknown appeal status %q", status)}
	}
	return s.appeals.List(guildID, status), nil
}

func (s *Moderation) GetViolationHistory(guildID, userID uint64) []models.ViolationRecord {
	return s.ledger.History(guildID, userID)
}

func (s *Moderation) GetAppeal(guildID uint64, id uuid.UUID) (models.Appeal, error) {
	a, ok := s.appeals.Get(id)
	if !ok || a.GuildID != guildID {
		return models.Appeal{}, fmt.Errorf("appeal %s: %w", id, models.ErrNotFound)
	}
	return a, nil
}

func (s *Moderation) SubmitAppeal(ctx context.Context, guildID, userID uint64, violationID uuid.UUID, statement string) (models.Appeal, error) {
	return s.appeals.Submit(ctx, guildID, userID, violationID, statement)
}

func (s *Moderation) InvestigateAppeal(ctx context.Context, guildID uint64, id uuid.UUID, resolverID uint64) (models.Appeal, error) {
	if _, err := s.GetAppeal(guildID, id); err != nil {
		return models.Appeal{}, err
	}
	return s.appeals.Investigate(ctx, id, resolverID)
}

// ResolveAppeal approves or rejects an appeal and announces the outcome.
func (s *Moderation) ResolveAppeal(ctx context.Context, guildID uint64, id uuid.UUID, resolverID uint64, approve bool, reason string) (models.Appeal, error) {
	if _, err := s.GetAppeal(guildID, id); err != nil {
		return models.Appeal{}, err
	}

	var (
		a   models.Appeal
		err error
	)
	if approve {
		a, err = s.appeals.Approve(ctx, id, resolverID, reason)
	} else {
		a, err = s.appeals.Reject(ctx, id, resolverID, reason)
	}
	if err != nil {
		return models.Appeal{}, err
	}

	if s.notifier != nil {
		s.notifier.NotifyAppeal(ctx, s.policies.Get(guildID), a)
	}
	return a, nil
}

func checkEntry(kind config.WhitelistKind, id uint64) error {
	if !kind.Valid() {
		return &models.ConfigError{Field: "whitelist.kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if id == 0 {
		return &models.ConfigError{Field: "whitelist.id", Reason: "must be set"}
	}
	return nil
}
