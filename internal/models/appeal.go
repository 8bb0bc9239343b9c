package models

import (
	"time"

	"github.com/google/uuid"
)

// AppealStatus is the lifecycle state of an appeal.
type AppealStatus string

const (
	AppealPending       AppealStatus = "pending"
	AppealInvestigating AppealStatus = "investigating"
	AppealApproved      AppealStatus = "approved"
	AppealRejected      AppealStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s AppealStatus) Terminal() bool {
	return s == AppealApproved || s == AppealRejected
}

func (s AppealStatus) Valid() bool {
	switch s {
	case AppealPending, AppealInvestigating, AppealApproved, AppealRejected:
		return true
	}
	return false
}

// Emoji returns the emoji used when rendering the status.
func (s AppealStatus) Emoji() string {
	switch s {
	case AppealPending:
		return "⏳"
	case AppealInvestigating:
		return "🔎"
	case AppealApproved:
		return "✅"
	case AppealRejected:
		return "❌"
	default:
		return "❓"
	}
}

// Appeal disputes a single ViolationRecord.
type Appeal struct {
	ID          uuid.UUID    `json:"id"`
	GuildID     uint64       `json:"guild_id"`
	UserID      uint64       `json:"user_id"`
	ViolationID uuid.UUID    `json:"violation_id"`
	Category    Category     `json:"category"`
	Status      AppealStatus `json:"status"`
	Statement   string       `json:"statement"`
	SubmittedAt time.Time    `json:"submitted_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	InvestigatorID   uint64     `json:"investigator_id,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolverID       uint64     `json:"resolver_id,omitempty"`
	ResolutionReason string     `json:"resolution_reason,omitempty"`
}
