package correlator

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

const shardCount = 64

type windowKey struct {
	guildID  uint64
	category models.Category
}

// windowCounter holds the ordered timestamps of one (guild, category) key.
// mu serializes evict-then-count so two evaluations never interleave.
type windowCounter struct {
	mu     sync.Mutex
	stamps []time.Time
	window time.Duration
	// last is the newest timestamp ever stored; zero if nothing was stored.
	last time.Time
	dead bool
}

type windowShard struct {
	mu       sync.RWMutex
	counters map[windowKey]*windowCounter
}

// WindowTracker keeps strictly sliding per-(guild, category) counters. A window of
// length w ending at now covers (now-w, now]; older entries are evicted on every
// access before counting.
type WindowTracker struct {
	shards [shardCount]windowShard

	maxMu     sync.Mutex
	maxWindow map[models.Category]time.Duration
}

func NewWindowTracker() *WindowTracker {
	t := &WindowTracker{maxWindow: make(map[models.Category]time.Duration)}
	for i := range t.shards {
		t.shards[i].counters = make(map[windowKey]*windowCounter)
	}
	return t
}

// Record adds an event at ts and returns the number of events in the window
// ending at the newest timestamp seen for the key.
func (t *WindowTracker) Record(guildID uint64, category models.Category, ts time.Time, window time.Duration) int {
	if !category.Valid() || window <= 0 {
		return 0
	}
	t.noteWindow(category, window)

	key := windowKey{guildID: guildID, category: category}
	for {
		c := t.getOrCreate(key)
		c.mu.Lock()
		if c.dead {
			// Collected between lookup and lock; the shard now holds a fresh counter.
			c.mu.Unlock()
			continue
		}

		now := ts
		if n := len(c.stamps); n > 0 && c.stamps[n-1].After(now) {
			now = c.stamps[n-1]
		}
		cutoff := now.Add(-window)
		c.evict(cutoff)
		if ts.After(cutoff) {
			c.insert(ts)
		}
		c.window = window
		count := len(c.stamps)
		c.mu.Unlock()
		return count
	}
}

// CurrentCount evicts entries outside the window ending at now and returns what remains.
func (t *WindowTracker) CurrentCount(guildID uint64, category models.Category, now time.Time, window time.Duration) int {
	if window <= 0 {
		return 0
	}
	c, ok := t.lookup(windowKey{guildID: guildID, category: category})
	if !ok {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return 0
	}
	c.evict(now.Add(-window))
	return len(c.stamps)
}

// Snapshot returns the current count of every category in windows for a guild.
func (t *WindowTracker) Snapshot(guildID uint64, now time.Time, windows map[models.Category]time.Duration) map[models.Category]int {
	out := make(map[models.Category]int, len(windows))
	for category, window := range windows {
		out[category] = t.CurrentCount(guildID, category, now, window)
	}
	return out
}

// Collect drops counters that have been empty for longer than the largest window
// seen for their category. It returns the number of counters removed.
func (t *WindowTracker) Collect(now time.Time) int {
	t.maxMu.Lock()
	longest := make(map[models.Category]time.Duration, len(t.maxWindow))
	for c, w := range t.maxWindow {
		longest[c] = w
	}
	t.maxMu.Unlock()

	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for key, c := range s.counters {
			c.mu.Lock()
			// The newest entry leaves the window at last+window.
			emptySince := c.last.Add(c.window)
			if c.last.IsZero() || !emptySince.After(now) {
				c.stamps = c.stamps[:0]
				if c.last.IsZero() || now.Sub(emptySince) > longest[key.category] {
					c.dead = true
					delete(s.counters, key)
					removed++
				}
			}
			c.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live counters.
func (t *WindowTracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		n += len(s.counters)
		s.mu.RUnlock()
	}
	return n
}

func (t *WindowTracker) noteWindow(category models.Category, window time.Duration) {
	t.maxMu.Lock()
	if window > t.maxWindow[category] {
		t.maxWindow[category] = window
	}
	t.maxMu.Unlock()
}

func (t *WindowTracker) shard(key windowKey) *windowShard {
	return &t.shards[key.guildID%shardCount]
}

func (t *WindowTracker) lookup(key windowKey) (*windowCounter, bool) {
	s := t.shard(key)
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	return c, ok
}

func (t *WindowTracker) getOrCreate(key windowKey) *windowCounter {
	if c, ok := t.lookup(key); ok {
		return c
	}

	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[key]; ok {
		return c
	}
	c := &windowCounter{}
	s.counters[key] = c
	return c
}

// evict removes every stamp at or before cutoff.
func (c *windowCounter) evict(cutoff time.Time) {
	i := sort.Search(len(c.stamps), func(i int) bool {
		return c.stamps[i].After(cutoff)
	})
	if i > 0 {
		c.stamps = slices.Delete(c.stamps, 0, i)
	}
}

// insert keeps stamps ascending; late arrivals land in sorted position.
func (c *windowCounter) insert(ts time.Time) {
	i := sort.Search(len(c.stamps), func(i int) bool {
		return c.stamps[i].After(ts)
	})
	c.stamps = slices.Insert(c.stamps, i, ts)
	if ts.After(c.last) {
		c.last = ts
	}
}
