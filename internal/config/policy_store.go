package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// PolicyPersister durably stores policy snapshots before they are published.
type PolicyPersister interface {
	SavePolicy(ctx context.Context, p *GuildPolicy) error
}

// PolicyStore publishes immutable GuildPolicy snapshots. Readers load the current
// map without locking; writers are serialized and replace the whole map.
type PolicyStore struct {
	writeMu   sync.Mutex
	snapshot  atomic.Pointer[map[uint64]*GuildPolicy]
	defaults  func(guildID uint64) *GuildPolicy
	persister PolicyPersister
}

// NewPolicyStore creates a store. defaults builds the policy for guilds that were
// never configured; persister may be nil.
func NewPolicyStore(defaults func(guildID uint64) *GuildPolicy, persister PolicyPersister) *PolicyStore {
	ps := &PolicyStore{defaults: defaults, persister: persister}
	empty := make(map[uint64]*GuildPolicy)
	ps.snapshot.Store(&empty)
	return ps
}

// Get returns the current snapshot for a guild, falling back to defaults.
func (ps *PolicyStore) Get(guildID uint64) *GuildPolicy {
	if p, ok := ps.Lookup(guildID); ok {
		return p
	}
	return ps.defaults(guildID)
}

// Lookup returns the stored snapshot, if any.
func (ps *PolicyStore) Lookup(guildID uint64) (*GuildPolicy, bool) {
	p, ok := (*ps.snapshot.Load())[guildID]
	return p, ok
}

// All returns every stored snapshot.
func (ps *PolicyStore) All() []*GuildPolicy {
	m := *ps.snapshot.Load()
	out := make([]*GuildPolicy, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

// Load publishes policies read from storage without persisting them again.
func (ps *PolicyStore) Load(policies []*GuildPolicy) error {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()

	next := ps.copyCurrent()
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("stored policy for guild %d: %w", p.GuildID, err)
		}
		next[p.GuildID] = p
	}
	ps.snapshot.Store(&next)
	return nil
}

// Set validates, persists and publishes p.
func (ps *PolicyStore) Set(ctx context.Context, p *GuildPolicy) error {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()
	return ps.publish(ctx, p)
}

// Update derives a new snapshot from the current one and publishes it. fn must
// return a new policy and leave its argument untouched.
func (ps *PolicyStore) Update(ctx context.Context, guildID uint64, fn func(*GuildPolicy) *GuildPolicy) (*GuildPolicy, error) {
	ps.writeMu.Lock()
	defer ps.writeMu.Unlock()

	next := fn(ps.Get(guildID))
	if err := ps.publish(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (ps *PolicyStore) publish(ctx context.Context, p *GuildPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()

	if ps.persister != nil {
		if err := ps.persister.SavePolicy(ctx, p); err != nil {
			return fmt.Errorf("failed to persist policy for guild %d: %w", p.GuildID, err)
		}
	}

	next := ps.copyCurrent()
	next[p.GuildID] = p
	ps.snapshot.Store(&next)
	return nil
}

func (ps *PolicyStore) copyCurrent() map[uint64]*GuildPolicy {
	cur := *ps.snapshot.Load()
	next := make(map[uint64]*GuildPolicy, len(cur)+1)
	for id, p := range cur {
		next[id] = p
	}
	return next
}
