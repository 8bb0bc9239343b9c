package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

var whitelistKinds = []config.WhitelistKind{config.WhitelistUser, config.WhitelistRole, config.WhitelistChannel}

// SavePolicy replaces the stored policy for p.GuildID.
func (d *Database) SavePolicy(ctx context.Context, p *config.GuildPolicy) error {
	guildID := util.Uint64ToString(p.GuildID)

	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO guild_policies (guild_id, enabled, strict, strict_factor, near_ratio, default_action,
				owner_id, log_channel_id, timeout_ms, appeal_cooldown_ms, abandon_after_ms, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(guild_id) DO UPDATE SET
				enabled = excluded.enabled,
				strict = excluded.strict,
				strict_factor = excluded.strict_factor,
				near_ratio = excluded.near_ratio,
				default_action = excluded.default_action,
				owner_id = excluded.owner_id,
				log_channel_id = excluded.log_channel_id,
				timeout_ms = excluded.timeout_ms,
				appeal_cooldown_ms = excluded.appeal_cooldown_ms,
				abandon_after_ms = excluded.abandon_after_ms,
				updated_at = excluded.updated_at`,
			guildID, boolToInt(p.Enabled), boolToInt(p.Strict), p.StrictFactor, p.NearRatio, string(p.DefaultAction),
			util.Uint64ToString(p.OwnerID), util.Uint64ToString(p.LogChannelID),
			p.TimeoutDuration.Milliseconds(), p.AppealCooldown.Milliseconds(), p.AbandonAfter.Milliseconds(),
			toMillis(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert policy: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM category_limits WHERE guild_id = ?`, guildID); err != nil {
			return fmt.Errorf("failed to clear limits: %w", err)
		}
		for cat, limit := range p.Categories {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO category_limits (guild_id, category, max_actions, window_ms, action)
				VALUES (?, ?, ?, ?, ?)`,
				guildID, string(cat), limit.Limit, limit.Window.Milliseconds(), string(limit.Action))
			if err != nil {
				return fmt.Errorf("failed to insert limit %s: %w", cat, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM whitelist WHERE guild_id = ?`, guildID); err != nil {
			return fmt.Errorf("failed to clear whitelist: %w", err)
		}
		for _, kind := range whitelistKinds {
			for _, id := range p.Whitelist.Entries(kind) {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO whitelist (guild_id, kind, target_id) VALUES (?, ?, ?)`,
					guildID, string(kind), util.Uint64ToString(id))
				if err != nil {
					return fmt.Errorf("failed to insert whitelist entry: %w", err)
				}
			}
		}
		return nil
	})
}

// LoadPolicies returns every stored policy.
func (d *Database) LoadPolicies(ctx context.Context) ([]*config.GuildPolicy, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT guild_id, enabled, strict, strict_factor, near_ratio, default_action, owner_id,
			log_channel_id, timeout_ms, appeal_cooldown_ms, abandon_after_ms, updated_at
		FROM guild_policies`)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	byGuild := make(map[string]*config.GuildPolicy)
	var order []*config.GuildPolicy
	for rows.Next() {
		var (
			guildID, defaultAction, ownerID, logChannelID string
			enabled, strict                               int
			timeoutMS, cooldownMS, abandonMS, updatedAt   int64
			p                                             config.GuildPolicy
		)
		if err := rows.Scan(&guildID, &enabled, &strict, &p.StrictFactor, &p.NearRatio, &defaultAction,
			&ownerID, &logChannelID, &timeoutMS, &cooldownMS, &abandonMS, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}

		if p.GuildID, err = util.StringToUint64(guildID); err != nil {
			return nil, fmt.Errorf("invalid guild id %q: %w", guildID, err)
		}
		p.OwnerID, _ = util.StringToUint64(ownerID)
		p.LogChannelID, _ = util.StringToUint64(logChannelID)
		p.Enabled = enabled != 0
		p.Strict = strict != 0
		p.DefaultAction = models.Action(defaultAction)
		p.TimeoutDuration = time.Duration(timeoutMS) * time.Millisecond
		p.AppealCooldown = time.Duration(cooldownMS) * time.Millisecond
		p.AbandonAfter = time.Duration(abandonMS) * time.Millisecond
		p.UpdatedAt = fromMillis(updatedAt)
		p.Categories = make(map[models.Category]config.CategoryLimit)

		byGuild[guildID] = &p
		order = append(order, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.loadLimits(ctx, byGuild); err != nil {
		return nil, err
	}
	if err := d.loadWhitelists(ctx, byGuild); err != nil {
		return nil, err
	}
	return order, nil
}

func (d *Database) loadLimits(ctx context.Context, byGuild map[string]*config.GuildPolicy) error {
	rows, err := d.db.QueryContext(ctx, `SELECT guild_id, category, max_actions, window_ms, action FROM category_limits`)
	if err != nil {
		return fmt.Errorf("failed to query limits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			guildID, category, action string
			limit                     int
			windowMS                  int64
		)
		if err := rows.Scan(&guildID, &category, &limit, &windowMS, &action); err != nil {
			return fmt.Errorf("failed to scan limit: %w", err)
		}
		p, ok := byGuild[guildID]
		if !ok {
			continue
		}
		p.Categories[models.Category(category)] = config.CategoryLimit{
			Limit:  limit,
			Window: time.Duration(windowMS) * time.Millisecond,
			Action: models.Action(action),
		}
	}
	return rows.Err()
}

func (d *Database) loadWhitelists(ctx context.Context, byGuild map[string]*config.GuildPolicy) error {
	rows, err := d.db.QueryContext(ctx, `SELECT guild_id, kind, target_id FROM whitelist`)
	if err != nil {
		return fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guildID, kind, targetID string
		if err := rows.Scan(&guildID, &kind, &targetID); err != nil {
			return fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		p, ok := byGuild[guildID]
		if !ok || !config.WhitelistKind(kind).Valid() {
			continue
		}
		id, err := util.StringToUint64(targetID)
		if err != nil {
			continue
		}
		p.Whitelist = p.Whitelist.With(config.WhitelistKind(kind), id)
	}
	return rows.Err()
}

// SyncPolicies loads stored policies into the in-memory store.
func (d *Database) SyncPolicies(ctx context.Context, store *config.PolicyStore) error {
	policies, err := d.LoadPolicies(ctx)
	if err != nil {
		return err
	}
	if err := store.Load(policies); err != nil {
		return fmt.Errorf("failed to sync policies: %w", err)
	}
	d.logger.Info("Synced guild policies", zap.Int("count", len(policies)))
	return nil
}
