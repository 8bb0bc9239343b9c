package config

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

// CategoryLimit is the threshold for one category. An empty Action falls back to
// the policy's DefaultAction.
type CategoryLimit struct {
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
	Action models.Action `json:"action,omitempty"`
}

// WhitelistKind selects which whitelist set an entry belongs to.
type WhitelistKind string

const (
	WhitelistUser    WhitelistKind = "user"
	WhitelistRole    WhitelistKind = "role"
	WhitelistChannel WhitelistKind = "channel"
)

func (k WhitelistKind) Valid() bool {
	return k == WhitelistUser || k == WhitelistRole || k == WhitelistChannel
}

// Whitelist holds the exempt users, roles and channels of a guild. The zero value
// is empty. Modifications return a new Whitelist and leave the receiver untouched.
type Whitelist struct {
	sets map[WhitelistKind]map[uint64]struct{}
}

// NewWhitelist builds a whitelist from id slices.
func NewWhitelist(users, roles, channels []uint64) Whitelist {
	w := Whitelist{sets: make(map[WhitelistKind]map[uint64]struct{}, 3)}
	for kind, ids := range map[WhitelistKind][]uint64{
		WhitelistUser:    users,
		WhitelistRole:    roles,
		WhitelistChannel: channels,
	} {
		set := make(map[uint64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		w.sets[kind] = set
	}
	return w
}

// Has reports whether id is present in the set for kind.
func (w Whitelist) Has(kind WhitelistKind, id uint64) bool {
	_, ok := w.sets[kind][id]
	return ok
}

// Entries returns the sorted ids of one set.
func (w Whitelist) Entries(kind WhitelistKind) []uint64 {
	ids := make([]uint64, 0, len(w.sets[kind]))
	for id := range w.sets[kind] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (w Whitelist) Len() int {
	n := 0
	for _, set := range w.sets {
		n += len(set)
	}
	return n
}

// With returns a copy of w that also contains id.
func (w Whitelist) With(kind WhitelistKind, id uint64) Whitelist {
	next := w.clone()
	next.sets[kind][id] = struct{}{}
	return next
}

// Without returns a copy of w that no longer contains id.
func (w Whitelist) Without(kind WhitelistKind, id uint64) Whitelist {
	next := w.clone()
	delete(next.sets[kind], id)
	return next
}

func (w Whitelist) clone() Whitelist {
	return NewWhitelist(w.Entries(WhitelistUser), w.Entries(WhitelistRole), w.Entries(WhitelistChannel))
}

// GuildPolicy is an immutable snapshot of a guild's moderation configuration.
// Never modify a policy obtained from a PolicyStore; derive a new one with the
// With helpers and swap it in through the store.
type GuildPolicy struct {
	GuildID uint64
	Enabled bool
	Strict  bool

	// StrictFactor scales every limit while Strict is set. Must be in (0,1).
	StrictFactor float64
	// NearRatio is the fraction of a limit at which a warn verdict is produced.
	NearRatio float64

	Categories    map[models.Category]CategoryLimit
	DefaultAction models.Action
	Whitelist     Whitelist

	OwnerID         uint64
	LogChannelID    uint64
	TimeoutDuration time.Duration
	AppealCooldown  time.Duration
	AbandonAfter    time.Duration

	UpdatedAt time.Time
}

// Limit returns the configured limit for a category.
func (p *GuildPolicy) Limit(c models.Category) (CategoryLimit, bool) {
	l, ok := p.Categories[c]
	return l, ok
}

// Window returns the window length for a category, or 0 if it is not configured.
func (p *GuildPolicy) Window(c models.Category) time.Duration {
	return p.Categories[c].Window
}

// EffectiveLimit applies strict mode to the configured limit. The result is
// rounded up and never drops below 1. Unconfigured categories return 0.
func (p *GuildPolicy) EffectiveLimit(c models.Category) int {
	l, ok := p.Categories[c]
	if !ok || l.Limit <= 0 {
		return 0
	}
	if !p.Strict {
		return l.Limit
	}
	adjusted := int(math.Ceil(float64(l.Limit) * p.StrictFactor))
	if adjusted < 1 {
		return 1
	}
	return adjusted
}

// ActionFor returns the auto-response configured for a category.
func (p *GuildPolicy) ActionFor(c models.Category) models.Action {
	if l, ok := p.Categories[c]; ok && l.Action != "" {
		return l.Action
	}
	return p.DefaultAction
}

// MaxWindow is the largest window across all configured categories.
func (p *GuildPolicy) MaxWindow() time.Duration {
	var longest time.Duration
	for _, l := range p.Categories {
		longest = max(longest, l.Window)
	}
	return longest
}

// Validate rejects policies that must never reach the hot path.
func (p *GuildPolicy) Validate() error {
	if p.GuildID == 0 {
		return &models.ConfigError{Field: "guild_id", Reason: "must be set"}
	}
	if p.StrictFactor <= 0 || p.StrictFactor >= 1 {
		return &models.ConfigError{Field: "strict_factor", Reason: fmt.Sprintf("%v is outside (0,1)", p.StrictFactor)}
	}
	if p.NearRatio <= 0 || p.NearRatio > 1 {
		return &models.ConfigError{Field: "near_ratio", Reason: fmt.Sprintf("%v is outside (0,1]", p.NearRatio)}
	}
	if !p.DefaultAction.IsForward() {
		return &models.ConfigError{Field: "default_action", Reason: fmt.Sprintf("%q is not an auto-response", p.DefaultAction)}
	}
	for c, l := range p.Categories {
		if !c.Valid() {
			return &models.ConfigError{Field: "category", Reason: fmt.Sprintf("unknown category %q", c)}
		}
		if l.Limit <= 0 {
			return &models.ConfigError{Field: c.String() + ".limit", Reason: fmt.Sprintf("%d must be positive", l.Limit)}
		}
		if l.Window <= 0 {
			return &models.ConfigError{Field: c.String() + ".window", Reason: fmt.Sprintf("%v must be positive", l.Window)}
		}
		if l.Action != "" && !l.Action.IsForward() {
			return &models.ConfigError{Field: c.String() + ".action", Reason: fmt.Sprintf("%q is not an auto-response", l.Action)}
		}
	}
	if p.TimeoutDuration < 0 || p.AppealCooldown < 0 || p.AbandonAfter < 0 {
		return &models.ConfigError{Field: "durations", Reason: "must not be negative"}
	}
	return nil
}

// Clone returns a deep copy that can be modified before it is published.
func (p *GuildPolicy) Clone() *GuildPolicy {
	next := *p
	next.Categories = make(map[models.Category]CategoryLimit, len(p.Categories))
	for c, l := range p.Categories {
		next.Categories[c] = l
	}
	next.Whitelist = p.Whitelist.clone()
	return &next
}

func (p *GuildPolicy) WithEnabled(enabled bool) *GuildPolicy {
	next := p.Clone()
	next.Enabled = enabled
	return next
}

func (p *GuildPolicy) WithStrict(strict bool) *GuildPolicy {
	next := p.Clone()
	next.Strict = strict
	return next
}

func (p *GuildPolicy) WithLimit(c models.Category, l CategoryLimit) *GuildPolicy {
	next := p.Clone()
	next.Categories[c] = l
	return next
}

func (p *GuildPolicy) WithWhitelistEntry(kind WhitelistKind, id uint64) *GuildPolicy {
	next := p.Clone()
	next.Whitelist = p.Whitelist.With(kind, id)
	return next
}

func (p *GuildPolicy) WithoutWhitelistEntry(kind WhitelistKind, id uint64) *GuildPolicy {
	next := p.Clone()
	next.Whitelist = p.Whitelist.Without(kind, id)
	return next
}

func (p *GuildPolicy) WithLogChannel(channelID uint64) *GuildPolicy {
	next := p.Clone()
	next.LogChannelID = channelID
	return next
}

func (p *GuildPolicy) WithOwner(ownerID uint64) *GuildPolicy {
	next := p.Clone()
	next.OwnerID = ownerID
	return next
}
