package database_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/database"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

func openTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(t.Context(), filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testViolation() models.ViolationRecord {
	return models.ViolationRecord{
		ID:        uuid.New(),
		GuildID:   100,
		UserID:    200,
		Category:  models.CategoryRoleDelete,
		Action:    models.ActionRevokePermissions,
		Reason:    "role deletions",
		Timestamp: time.UnixMilli(1_700_000_000_123).UTC(),
		Details:   models.ActionDetails{RoleIDs: []uint64{1, 2}},
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	policy := config.DefaultConfig().PolicyDefaults()(42).
		WithStrict(true).
		WithLogChannel(555).
		WithOwner(7).
		WithWhitelistEntry(config.WhitelistRole, 9).
		WithWhitelistEntry(config.WhitelistUser, 10).
		WithLimit(models.CategoryMessage, config.CategoryLimit{Limit: 8, Window: 15 * time.Second, Action: models.ActionDeleteMessage})
	policy.UpdatedAt = time.UnixMilli(1_700_000_000_000).UTC()

	require.NoError(t, db.SavePolicy(t.Context(), policy))
	// Saving again replaces rather than duplicates.
	require.NoError(t, db.SavePolicy(t.Context(), policy.WithoutWhitelistEntry(config.WhitelistUser, 10)))

	loaded, err := db.LoadPolicies(t.Context())
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, uint64(42), got.GuildID)
	assert.True(t, got.Strict)
	assert.Equal(t, uint64(555), got.LogChannelID)
	assert.Equal(t, uint64(7), got.OwnerID)
	assert.Equal(t, policy.StrictFactor, got.StrictFactor)
	assert.Equal(t, policy.AppealCooldown, got.AppealCooldown)
	assert.Equal(t, policy.Categories, got.Categories)
	assert.True(t, got.Whitelist.Has(config.WhitelistRole, 9))
	assert.False(t, got.Whitelist.Has(config.WhitelistUser, 10))
	assert.NoError(t, got.Validate())
}

func TestSyncPolicies(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	defaults := config.DefaultConfig().PolicyDefaults()
	require.NoError(t, db.SavePolicy(t.Context(), defaults(1).WithEnabled(false)))

	store := config.NewPolicyStore(defaults, db)
	require.NoError(t, db.SyncPolicies(t.Context(), store))
	assert.False(t, store.Get(1).Enabled)
	assert.True(t, store.Get(2).Enabled)
}

func TestViolationsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	rec := testViolation()
	require.NoError(t, db.AppendViolation(t.Context(), rec))
	require.NoError(t, db.AppendViolation(t.Context(), rec))

	recs, err := db.LoadViolations(t.Context())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec, recs[0])

	require.NoError(t, db.MarkViolationOverridden(t.Context(), rec.ID))
	require.NoError(t, db.MarkViolationOverridden(t.Context(), rec.ID))
	recs, err = db.LoadViolations(t.Context())
	require.NoError(t, err)
	assert.True(t, recs[0].Overridden)

	err = db.MarkViolationOverridden(t.Context(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAppealsAndCommitApproval(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	rec := testViolation()
	require.NoError(t, db.AppendViolation(t.Context(), rec))

	submitted := time.UnixMilli(1_700_000_100_000).UTC()
	a := models.Appeal{
		ID:          uuid.New(),
		GuildID:     rec.GuildID,
		UserID:      rec.UserID,
		ViolationID: rec.ID,
		Category:    rec.Category,
		Status:      models.AppealPending,
		Statement:   "my account was stolen",
		SubmittedAt: submitted,
		UpdatedAt:   submitted,
	}
	require.NoError(t, db.SaveAppeal(t.Context(), a))

	resolved := submitted.Add(time.Hour)
	a.Status = models.AppealApproved
	a.ResolverID = 300
	a.ResolvedAt = &resolved
	a.UpdatedAt = resolved
	a.ResolutionReason = "confirmed"
	require.NoError(t, db.CommitApproval(t.Context(), a, rec.ID))

	appeals, err := db.LoadAppeals(t.Context())
	require.NoError(t, err)
	require.Len(t, appeals, 1)
	assert.Equal(t, a, appeals[0])

	recs, err := db.LoadViolations(t.Context())
	require.NoError(t, err)
	assert.True(t, recs[0].Overridden)
}

func TestCommitApprovalRollsBack(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	rec := testViolation()
	require.NoError(t, db.AppendViolation(t.Context(), rec))

	a := models.Appeal{
		ID:          uuid.New(),
		GuildID:     rec.GuildID,
		UserID:      rec.UserID,
		ViolationID: rec.ID,
		Status:      models.AppealApproved,
		SubmittedAt: time.UnixMilli(1).UTC(),
		UpdatedAt:   time.UnixMilli(1).UTC(),
	}
	err := db.CommitApproval(t.Context(), a, uuid.New())
	require.ErrorIs(t, err, models.ErrNotFound)

	appeals, err := db.LoadAppeals(t.Context())
	require.NoError(t, err)
	assert.Empty(t, appeals)
}
