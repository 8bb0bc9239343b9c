package models

import (
	"strings"
	"time"
)

// Action is an automatic response or its compensating operation.
type Action string

const (
	ActionWarning           Action = "warning"
	ActionTimeout           Action = "timeout"
	ActionDeleteMessage     Action = "delete_message"
	ActionKick              Action = "kick"
	ActionBan               Action = "ban"
	ActionRevokePermissions Action = "revoke_permissions"

	ActionUnban          Action = "unban"
	ActionTimeoutClear   Action = "timeout_clear"
	ActionClearViolation Action = "clear_violation"
	ActionRestoreRoles   Action = "restore_roles"
	ActionRestoreMessage Action = "restore_message"
)

const failedPrefix = "failed:"

var inverseActions = map[Action]Action{
	ActionBan:               ActionUnban,
	ActionTimeout:           ActionTimeoutClear,
	ActionWarning:           ActionClearViolation,
	ActionRevokePermissions: ActionRestoreRoles,
	ActionDeleteMessage:     ActionRestoreMessage,
	ActionKick:              ActionClearViolation,
}

// Inverse returns the compensating action, if one exists.
func (a Action) Inverse() (Action, bool) {
	inv, ok := inverseActions[a]
	return inv, ok
}

// IsForward reports whether a is an auto-response a policy may configure.
func (a Action) IsForward() bool {
	_, ok := inverseActions[a]
	return ok
}

func (a Action) IsInverse() bool {
	switch a {
	case ActionUnban, ActionTimeoutClear, ActionClearViolation, ActionRestoreRoles, ActionRestoreMessage:
		return true
	}
	return false
}

func (a Action) Valid() bool {
	return a.IsForward() || a.IsInverse()
}

// Failed returns the ledger action recorded when a dispatch fails permanently.
func (a Action) Failed() Action {
	return Action(failedPrefix + string(a))
}

func (a Action) IsFailed() bool {
	return strings.HasPrefix(string(a), failedPrefix)
}

func (a Action) String() string {
	return string(a)
}

// ParseAction accepts forward and inverse action names.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.Valid()
}

// ActionDetails carries what an action, and later its inverse, needs beyond guild and user.
type ActionDetails struct {
	Duration  time.Duration `json:"duration,omitempty"`
	ChannelID uint64        `json:"channel_id,omitempty"`
	MessageID uint64        `json:"message_id,omitempty"`
	RoleIDs   []uint64      `json:"role_ids,omitempty"`
	Content   string        `json:"content,omitempty"`
}
