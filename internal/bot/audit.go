package bot

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	auditCacheTTL   = 5 * time.Second
	auditCacheSize  = 4096
	auditFetchLimit = 5
	// auditFreshness bounds how old an audit entry may be and still explain a gateway event.
	auditFreshness = 15 * time.Second
)

// AuditSource is the part of discordgo.Session used to look up who performed an action.
type AuditSource interface {
	GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error)
}

type auditEntry struct {
	id          string
	actorID     string
	targetID    string
	permissions bool
}

// auditResolver attributes gateway events to the member who caused them. Entries
// pushed by GuildAuditLogEntryCreate are cached briefly; misses fall back to a
// REST fetch. Each audit entry explains at most one event.
type auditResolver struct {
	source AuditSource
	cache  *expirable.LRU[string, auditEntry]
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	claimed *expirable.LRU[string, struct{}]
}

func newAuditResolver(source AuditSource, logger *zap.Logger) *auditResolver {
	return &auditResolver{
		source:  source,
		cache:   expirable.NewLRU[string, auditEntry](auditCacheSize, nil, auditCacheTTL),
		claimed: expirable.NewLRU[string, struct{}](auditCacheSize, nil, 2*auditFreshness),
		now:     time.Now,
		logger:  logger,
	}
}

func auditKey(guildID string, action discordgo.AuditLogAction, targetID string) string {
	return guildID + ":" + strconv.Itoa(int(action)) + ":" + targetID
}

// observe caches an entry delivered over the gateway.
func (a *auditResolver) observe(guildID string, entry *discordgo.AuditLogEntry) {
	if entry == nil || entry.ActionType == nil || entry.UserID == "" {
		return
	}
	e := toAuditEntry(entry)
	a.cache.Add(auditKey(guildID, *entry.ActionType, entry.TargetID), e)
	a.cache.Add(auditKey(guildID, *entry.ActionType, ""), e)
}

// claim finds the newest fresh, unclaimed entry for action (and targetID, when set)
// and marks it used. Entries made by bot users are never returned.
func (a *auditResolver) claim(guildID string, action discordgo.AuditLogAction, targetID string) (auditEntry, bool) {
	if e, ok := a.cache.Get(auditKey(guildID, action, targetID)); ok && a.take(e.id) {
		return e, true
	}

	log, err := a.source.GuildAuditLog(guildID, "", "", int(action), auditFetchLimit)
	if err != nil {
		a.logger.Warn("Failed to fetch audit log",
			zap.String("guild_id", guildID),
			zap.Int("action", int(action)),
			zap.Error(err))
		return auditEntry{}, false
	}

	bots := make(map[string]bool, len(log.Users))
	for _, u := range log.Users {
		if u != nil && u.Bot {
			bots[u.ID] = true
		}
	}

	for _, entry := range log.AuditLogEntries {
		if entry == nil || entry.UserID == "" {
			continue
		}
		if targetID != "" && entry.TargetID != targetID {
			continue
		}
		// Entries are returned newest first.
		if !a.fresh(entry.ID) {
			break
		}
		if bots[entry.UserID] {
			a.logger.Debug("Skipping audit entry by bot user",
				zap.String("guild_id", guildID),
				zap.String("user_id", entry.UserID))
			return auditEntry{}, false
		}
		e := toAuditEntry(entry)
		if !a.take(e.id) {
			continue
		}
		a.cache.Add(auditKey(guildID, action, entry.TargetID), e)
		return e, true
	}
	return auditEntry{}, false
}

func (a *auditResolver) take(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claimed.Contains(id) {
		return false
	}
	a.claimed.Add(id, struct{}{})
	return true
}

func (a *auditResolver) fresh(entryID string) bool {
	ts, err := discordgo.SnowflakeTimestamp(entryID)
	if err != nil {
		return false
	}
	return a.now().Sub(ts) <= auditFreshness
}

func toAuditEntry(entry *discordgo.AuditLogEntry) auditEntry {
	return auditEntry{
		id:          entry.ID,
		actorID:     entry.UserID,
		targetID:    entry.TargetID,
		permissions: changesPermissions(entry),
	}
}

func changesPermissions(entry *discordgo.AuditLogEntry) bool {
	for _, c := range entry.Changes {
		if c != nil && c.Key != nil && *c.Key == discordgo.AuditLogChangeKeyPermissions {
			return true
		}
	}
	return false
}
