package appeal

import (
	"sync"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

type cooldownKey struct {
	guildID  uint64
	userID   uint64
	category models.Category
}

// CooldownManager remembers the last appeal submission per guild, user and
// category.
type CooldownManager struct {
	mu        sync.RWMutex
	cooldowns map[cooldownKey]time.Time
	now       func() time.Time
}

func NewCooldownManager(now func() time.Time) *CooldownManager {
	if now == nil {
		now = time.Now
	}
	return &CooldownManager{
		cooldowns: make(map[cooldownKey]time.Time),
		now:       now,
	}
}

// Reserve starts the cooldown now unless one is still running, in which case it
// returns the time left. The returned undo restores the previous entry, so a
// submission that fails to persist does not hold the cooldown.
func (cm *CooldownManager) Reserve(guildID, userID uint64, category models.Category, window time.Duration) (undo func(), remaining time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := cooldownKey{guildID, userID, category}
	now := cm.now()
	prev, had := cm.cooldowns[key]
	if had {
		if left := window - now.Sub(prev); left > 0 {
			return nil, left
		}
	}
	cm.cooldowns[key] = now

	return func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()
		if !cm.cooldowns[key].Equal(now) {
			return
		}
		if had {
			cm.cooldowns[key] = prev
		} else {
			delete(cm.cooldowns, key)
		}
	}, 0
}

// Seed records a submission at a known time, keeping the newest one.
func (cm *CooldownManager) Seed(guildID, userID uint64, category models.Category, at time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	key := cooldownKey{guildID, userID, category}
	if prev, ok := cm.cooldowns[key]; ok && prev.After(at) {
		return
	}
	cm.cooldowns[key] = at
}

// Prune drops entries older than maxAge and returns how many were removed.
func (cm *CooldownManager) Prune(maxAge time.Duration) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cutoff := cm.now().Add(-maxAge)
	removed := 0
	for key, last := range cm.cooldowns {
		if last.Before(cutoff) {
			delete(cm.cooldowns, key)
			removed++
		}
	}
	return removed
}
