// Package decision turns window counts into verdicts.
package decision

import (
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

type VerdictKind uint8

const (
	Allow VerdictKind = iota
	Warn
	Escalate
)

func (k VerdictKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of evaluating one event. Action is only set for Escalate.
type Verdict struct {
	Kind   VerdictKind
	Action models.Action
	Count  int
	Limit  int
	Event  models.ModerationEvent
}

// Engine evaluates events against a policy snapshot. It holds no state.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate compares count, the window count including evt, with the effective
// limit for evt's category.
func (e *Engine) Evaluate(evt models.ModerationEvent, policy *config.GuildPolicy, count int) Verdict {
	v := Verdict{Kind: Allow, Count: count, Event: evt}

	limit := policy.EffectiveLimit(evt.Category)
	if limit <= 0 {
		return v
	}
	v.Limit = limit

	switch {
	case count >= limit:
		v.Kind = Escalate
		v.Action = policy.ActionFor(evt.Category)
	case float64(count) >= float64(limit)*policy.NearRatio:
		v.Kind = Warn
	}
	return v
}

// MostSevere reduces the escalations of one evaluation pass to a single verdict
// per actor: the one whose category ranks highest. Between equal categories the
// later verdict wins. Non-escalations are ignored. Order follows each actor's
// first escalation.
func MostSevere(verdicts []Verdict) []Verdict {
	best := make(map[uint64]int)
	var out []Verdict
	for _, v := range verdicts {
		if v.Kind != Escalate {
			continue
		}
		i, seen := best[v.Event.ActorID]
		if !seen {
			best[v.Event.ActorID] = len(out)
			out = append(out, v)
			continue
		}
		if v.Event.Category.Severity() >= out[i].Event.Category.Severity() {
			out[i] = v
		}
	}
	return out
}
