package dispatcher

import (
	"context"
	"time"
)

// Platform is the chat platform's moderation API. Every call must be safe to
// repeat. Implementations wrap failures with models.Transient or models.Permanent;
// unclassified errors are treated as transient.
type Platform interface {
	Warn(ctx context.Context, guildID, userID uint64, reason string) error
	Timeout(ctx context.Context, guildID, userID uint64, until time.Time, reason string) error
	ClearTimeout(ctx context.Context, guildID, userID uint64, reason string) error
	Kick(ctx context.Context, guildID, userID uint64, reason string) error
	Ban(ctx context.Context, guildID, userID uint64, reason string) error
	Unban(ctx context.Context, guildID, userID uint64, reason string) error
	DeleteMessage(ctx context.Context, channelID, messageID uint64, reason string) error
	RestoreMessage(ctx context.Context, channelID, authorID uint64, content string) error
	RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64, reason string) error
	RestoreRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64, reason string) error
}
