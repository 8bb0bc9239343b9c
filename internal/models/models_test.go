package models_test

import (
	"errors"
	"testing"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCategorySeverityOrder(t *testing.T) {
	t.Parallel()

	order := []models.Category{
		models.CategoryMemberBan,
		models.CategoryMemberKick,
		models.CategoryRoleDelete,
		models.CategoryChannelDelete,
		models.CategoryPermissionChange,
		models.CategoryWebhookCreate,
		models.CategoryMessage,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i-1].Severity(), order[i].Severity(), "%s should outrank %s", order[i-1], order[i])
	}
	assert.Zero(t, models.Category("emoji_delete").Severity())
	assert.False(t, models.Category("").Valid())
}

func TestActionInverse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action  models.Action
		inverse models.Action
		ok      bool
	}{
		{models.ActionBan, models.ActionUnban, true},
		{models.ActionTimeout, models.ActionTimeoutClear, true},
		{models.ActionWarning, models.ActionClearViolation, true},
		{models.ActionRevokePermissions, models.ActionRestoreRoles, true},
		{models.ActionDeleteMessage, models.ActionRestoreMessage, true},
		{models.ActionKick, models.ActionClearViolation, true},
		{models.ActionUnban, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			t.Parallel()
			inv, ok := tt.action.Inverse()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.inverse, inv)
		})
	}
}

func TestFailedAction(t *testing.T) {
	t.Parallel()

	failed := models.ActionBan.Failed()
	assert.Equal(t, models.Action("failed:ban"), failed)
	assert.True(t, failed.IsFailed())
	assert.False(t, failed.Valid())
	assert.False(t, models.ViolationRecord{Action: failed}.Appealable())
	assert.True(t, models.ViolationRecord{Action: models.ActionBan}.Appealable())
	assert.False(t, models.ViolationRecord{Action: models.ActionBan, Overridden: true}.Appealable())
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	var cfgErr error = &models.ConfigError{Field: "limit", Reason: "must be positive"}
	assert.ErrorIs(t, cfgErr, models.ErrConfiguration)
	assert.EqualError(t, cfgErr, "invalid limit: must be positive")

	actErr := &models.ActionError{
		Action: models.ActionBan, GuildID: 1, UserID: 2, Attempts: 3,
		Err: models.Permanent(errors.New("403 missing permissions")),
	}
	assert.ErrorIs(t, actErr, models.ErrPermanentActionFailure)
	assert.NotErrorIs(t, actErr, models.ErrTransientActionFailure)

	var target *models.ActionError
	assert.ErrorAs(t, error(actErr), &target)
	assert.Equal(t, 3, target.Attempts)
}
