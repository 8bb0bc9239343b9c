package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

const upsertAppeal = `
	INSERT INTO appeals (id, guild_id, user_id, violation_id, category, status, statement, submitted_at,
		updated_at, investigator_id, resolved_at, resolver_id, resolution_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		updated_at = excluded.updated_at,
		investigator_id = excluded.investigator_id,
		resolved_at = excluded.resolved_at,
		resolver_id = excluded.resolver_id,
		resolution_reason = excluded.resolution_reason`

func (d *Database) SaveAppeal(ctx context.Context, a models.Appeal) error {
	return saveAppeal(ctx, d.db, a)
}

// CommitApproval stores the approved appeal and overrides its violation atomically.
func (d *Database) CommitApproval(ctx context.Context, a models.Appeal, violationID uuid.UUID) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := markOverridden(ctx, tx, violationID); err != nil {
			return err
		}
		return saveAppeal(ctx, tx, a)
	})
}

func saveAppeal(ctx context.Context, db execer, a models.Appeal) error {
	var resolvedAt sql.NullInt64
	if a.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: toMillis(*a.ResolvedAt), Valid: true}
	}

	_, err := db.ExecContext(ctx, upsertAppeal,
		a.ID.String(), util.Uint64ToString(a.GuildID), util.Uint64ToString(a.UserID), a.ViolationID.String(),
		string(a.Category), string(a.Status), a.Statement, toMillis(a.SubmittedAt), toMillis(a.UpdatedAt),
		util.Uint64ToString(a.InvestigatorID), resolvedAt, util.Uint64ToString(a.ResolverID), a.ResolutionReason)
	if err != nil {
		return fmt.Errorf("failed to save appeal: %w", err)
	}
	return nil
}

func (d *Database) LoadAppeals(ctx context.Context) ([]models.Appeal, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, violation_id, category, status, statement, submitted_at, updated_at,
			investigator_id, resolved_at, resolver_id, resolution_reason
		FROM appeals ORDER BY submitted_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query appeals: %w", err)
	}
	defer rows.Close()

	var out []models.Appeal
	for rows.Next() {
		var (
			id, guildID, userID, violationID, category, status string
			investigatorID, resolverID                         string
			submittedAt, updatedAt                             int64
			resolvedAt                                         sql.NullInt64
			a                                                  models.Appeal
		)
		if err := rows.Scan(&id, &guildID, &userID, &violationID, &category, &status, &a.Statement,
			&submittedAt, &updatedAt, &investigatorID, &resolvedAt, &resolverID, &a.ResolutionReason); err != nil {
			return nil, fmt.Errorf("failed to scan appeal: %w", err)
		}

		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid appeal id %q: %w", id, err)
		}
		if a.ViolationID, err = uuid.Parse(violationID); err != nil {
			return nil, fmt.Errorf("invalid violation id %q: %w", violationID, err)
		}
		a.GuildID, _ = util.StringToUint64(guildID)
		a.UserID, _ = util.StringToUint64(userID)
		a.InvestigatorID, _ = util.StringToUint64(investigatorID)
		a.ResolverID, _ = util.StringToUint64(resolverID)
		a.Category = models.Category(category)
		a.Status = models.AppealStatus(status)
		a.SubmittedAt = fromMillis(submittedAt)
		a.UpdatedAt = fromMillis(updatedAt)
		if resolvedAt.Valid {
			t := fromMillis(resolvedAt.Int64)
			a.ResolvedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
