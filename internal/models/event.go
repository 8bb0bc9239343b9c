package models

import "time"

// Category is the kind of guild activity a window is tracked for.
type Category string

const (
	CategoryChannelDelete    Category = "channel_delete"
	CategoryRoleDelete       Category = "role_delete"
	CategoryMemberBan        Category = "member_ban"
	CategoryMemberKick       Category = "member_kick"
	CategoryWebhookCreate    Category = "webhook_create"
	CategoryPermissionChange Category = "permission_change"
	CategoryMessage          Category = "message"
)

// Categories lists every tracked category, most severe first.
var Categories = []Category{
	CategoryMemberBan,
	CategoryMemberKick,
	CategoryRoleDelete,
	CategoryChannelDelete,
	CategoryPermissionChange,
	CategoryWebhookCreate,
	CategoryMessage,
}

// Severity ranks a category for tie-breaking; higher wins. Unknown categories rank 0.
func (c Category) Severity() int {
	for i, cat := range Categories {
		if cat == c {
			return len(Categories) - i
		}
	}
	return 0
}

func (c Category) Valid() bool {
	return c.Severity() > 0
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts the canonical names used in config and commands.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// ModerationEvent is a normalized guild event. It is a value type and is never
// mutated after the normalizer builds it.
type ModerationEvent struct {
	GuildID   uint64
	ActorID   uint64
	Category  Category
	Timestamp time.Time

	// ChannelID is the channel the event originated in, if any.
	ChannelID uint64
	// TargetID is the deleted channel/role, the banned member, the message, etc.
	TargetID uint64
	// RoleIDs are the roles the actor held when the event was observed.
	RoleIDs  []uint64
	Metadata map[string]string
}

// Meta returns a metadata value or "".
func (e ModerationEvent) Meta(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}

// Metadata keys populated by the gateway adapter.
const (
	MetaContent    = "content"
	MetaTargetName = "target_name"
	MetaFlagged    = "flagged"
	MetaSeverity   = "severity"
	MetaAuditEntry = "audit_entry"
)
