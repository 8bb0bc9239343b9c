package models

import (
	"time"

	"github.com/google/uuid"
)

// ViolationRecord is one ledger entry. Overridden is the only field that changes
// after the record is appended.
type ViolationRecord struct {
	ID         uuid.UUID     `json:"id"`
	GuildID    uint64        `json:"guild_id"`
	UserID     uint64        `json:"user_id"`
	Category   Category      `json:"category"`
	Action     Action        `json:"action"`
	Reason     string        `json:"reason"`
	Timestamp  time.Time     `json:"timestamp"`
	Overridden bool          `json:"overridden"`
	Details    ActionDetails `json:"details"`
	// AppealID is set on records written by an appeal reversal.
	AppealID uuid.UUID `json:"appeal_id,omitempty"`
}

// Appealable reports whether the record describes an enforcement that can still be reversed.
func (r ViolationRecord) Appealable() bool {
	return !r.Overridden && r.Action.IsForward()
}
