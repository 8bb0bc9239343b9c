package ingest

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

// Raw event kinds accepted from the gateway adapter.
const (
	KindChannelDelete    = "CHANNEL_DELETE"
	KindRoleDelete       = "GUILD_ROLE_DELETE"
	KindMemberBan        = "GUILD_BAN_ADD"
	KindMemberKick       = "GUILD_MEMBER_KICK"
	KindWebhookCreate    = "WEBHOOK_CREATE"
	KindPermissionChange = "PERMISSION_UPDATE"
	KindMessageCreate    = "MESSAGE_CREATE"
)

var kindCategories = map[string]models.Category{
	KindChannelDelete:    models.CategoryChannelDelete,
	KindRoleDelete:       models.CategoryRoleDelete,
	KindMemberBan:        models.CategoryMemberBan,
	KindMemberKick:       models.CategoryMemberKick,
	KindWebhookCreate:    models.CategoryWebhookCreate,
	KindPermissionChange: models.CategoryPermissionChange,
	KindMessageCreate:    models.CategoryMessage,
}

// ErrNotFlagged is returned for messages the classifier did not flag. It is not
// a failure; callers drop the event.
var ErrNotFlagged = errors.New("message not flagged")

// RawEvent is what the gateway adapter hands over. Identifiers are snowflake strings.
type RawEvent struct {
	Kind      string
	GuildID   string
	ActorID   string
	ChannelID string
	TargetID  string
	RoleIDs   []string
	Timestamp time.Time
	Metadata  map[string]string
}

// Classifier scores message content. Implementations are pluggable.
type Classifier interface {
	Classify(content string) (flagged bool, severity int)
}

// Normalizer turns raw gateway payloads into ModerationEvents.
type Normalizer struct {
	classifier Classifier
	now        func() time.Time
}

// NewNormalizer creates a normalizer. A nil classifier trusts the "flagged"
// metadata set upstream; a nil clock uses time.Now.
func NewNormalizer(classifier Classifier, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{classifier: classifier, now: now}
}

// Normalize validates raw and builds an immutable event from it.
func (n *Normalizer) Normalize(raw RawEvent) (models.ModerationEvent, error) {
	if raw.GuildID == "" {
		return models.ModerationEvent{}, fmt.Errorf("%w: missing guild id", models.ErrMalformedEvent)
	}
	if raw.ActorID == "" {
		return models.ModerationEvent{}, fmt.Errorf("%w: missing actor id", models.ErrMalformedEvent)
	}

	category, ok := kindCategories[raw.Kind]
	if !ok {
		if category, ok = models.ParseCategory(raw.Kind); !ok {
			return models.ModerationEvent{}, fmt.Errorf("%w: %q", models.ErrUnsupportedEvent, raw.Kind)
		}
	}

	guildID, err := parseID("guild id", raw.GuildID)
	if err != nil {
		return models.ModerationEvent{}, err
	}
	actorID, err := parseID("actor id", raw.ActorID)
	if err != nil {
		return models.ModerationEvent{}, err
	}
	channelID, err := parseOptionalID("channel id", raw.ChannelID)
	if err != nil {
		return models.ModerationEvent{}, err
	}
	targetID, err := parseOptionalID("target id", raw.TargetID)
	if err != nil {
		return models.ModerationEvent{}, err
	}

	roleIDs := make([]uint64, 0, len(raw.RoleIDs))
	for _, r := range raw.RoleIDs {
		id, err := parseID("role id", r)
		if err != nil {
			return models.ModerationEvent{}, err
		}
		roleIDs = append(roleIDs, id)
	}

	metadata := maps.Clone(raw.Metadata)
	if metadata == nil {
		metadata = make(map[string]string)
	}

	if category == models.CategoryMessage {
		if err := n.classify(metadata); err != nil {
			return models.ModerationEvent{}, err
		}
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = n.now()
	}

	return models.ModerationEvent{
		GuildID:   guildID,
		ActorID:   actorID,
		Category:  category,
		Timestamp: ts,
		ChannelID: channelID,
		TargetID:  targetID,
		RoleIDs:   roleIDs,
		Metadata:  metadata,
	}, nil
}

func (n *Normalizer) classify(metadata map[string]string) error {
	if n.classifier != nil {
		flagged, severity := n.classifier.Classify(metadata[models.MetaContent])
		if !flagged {
			return ErrNotFlagged
		}
		metadata[models.MetaFlagged] = "true"
		metadata[models.MetaSeverity] = strconv.Itoa(severity)
		return nil
	}
	if metadata[models.MetaFlagged] != "true" {
		return ErrNotFlagged
	}
	return nil
}

func parseID(field, s string) (uint64, error) {
	id, err := util.StringToUint64(s)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad %s %q", models.ErrMalformedEvent, field, s)
	}
	return id, nil
}

func parseOptionalID(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return parseID(field, s)
}
