package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendViolation inserts rec. Re-inserting an existing id is a no-op.
func (d *Database) AppendViolation(ctx context.Context, rec models.ViolationRecord) error {
	details, err := sonic.MarshalString(rec.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	appealID := ""
	if rec.AppealID != uuid.Nil {
		appealID = rec.AppealID.String()
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO violations (id, guild_id, user_id, category, action, reason, timestamp, overridden, details, appeal_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID.String(), util.Uint64ToString(rec.GuildID), util.Uint64ToString(rec.UserID),
		string(rec.Category), string(rec.Action), rec.Reason, toMillis(rec.Timestamp),
		boolToInt(rec.Overridden), details, appealID)
	if err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

func (d *Database) MarkViolationOverridden(ctx context.Context, id uuid.UUID) error {
	return markOverridden(ctx, d.db, id)
}

func markOverridden(ctx context.Context, db execer, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `UPDATE violations SET overridden = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark violation overridden: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("violation %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *Database) LoadViolations(ctx context.Context) ([]models.ViolationRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, category, action, reason, timestamp, overridden, details, appeal_id
		FROM violations ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()

	var out []models.ViolationRecord
	for rows.Next() {
		var (
			id, guildID, userID, category, action, details, appealID string
			rec                                                     models.ViolationRecord
			timestamp                                               int64
			overridden                                              int
		)
		if err := rows.Scan(&id, &guildID, &userID, &category, &action, &rec.Reason, &timestamp,
			&overridden, &details, &appealID); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}

		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid violation id %q: %w", id, err)
		}
		if appealID != "" {
			rec.AppealID, _ = uuid.Parse(appealID)
		}
		rec.GuildID, _ = util.StringToUint64(guildID)
		rec.UserID, _ = util.StringToUint64(userID)
		rec.Category = models.Category(category)
		rec.Action = models.Action(action)
		rec.Timestamp = fromMillis(timestamp)
		rec.Overridden = overridden != 0
		if details != "" {
			if err := sonic.UnmarshalString(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details of %s: %w", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
