package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

type fakePlatform struct {
	mu    sync.Mutex
	calls map[string]int
	// errs is consumed one error per call for the named method.
	errs  map[string][]error
	block chan struct{}
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{calls: make(map[string]int), errs: make(map[string][]error)}
}

func (f *fakePlatform) fail(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakePlatform) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakePlatform) hit(method string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if queue := f.errs[method]; len(queue) > 0 {
		f.errs[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *fakePlatform) Warn(context.Context, uint64, uint64, string) error { return f.hit("warn") }
func (f *fakePlatform) Timeout(context.Context, uint64, uint64, time.Time, string) error {
	return f.hit("timeout")
}
func (f *fakePlatform) ClearTimeout(context.Context, uint64, uint64, string) error {
	return f.hit("clear_timeout")
}
func (f *fakePlatform) Kick(context.Context, uint64, uint64, string) error  { return f.hit("kick") }
func (f *fakePlatform) Ban(context.Context, uint64, uint64, string) error   { return f.hit("ban") }
func (f *fakePlatform) Unban(context.Context, uint64, uint64, string) error { return f.hit("unban") }
func (f *fakePlatform) DeleteMessage(context.Context, uint64, uint64, string) error {
	return f.hit("delete_message")
}
func (f *fakePlatform) RestoreMessage(context.Context, uint64, uint64, string) error {
	return f.hit("restore_message")
}
func (f *fakePlatform) RemoveRoles(context.Context, uint64, uint64, []uint64, string) error {
	return f.hit("remove_roles")
}
func (f *fakePlatform) RestoreRoles(context.Context, uint64, uint64, []uint64, string) error {
	return f.hit("restore_roles")
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []models.ViolationRecord
	err     error
}

func (r *fakeRecorder) Append(_ context.Context, rec models.ViolationRecord) (models.ViolationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.ViolationRecord{}, r.err
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *fakeRecorder) Get(id uuid.UUID) (models.ViolationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.ViolationRecord{}, false
}

func (r *fakeRecorder) all() []models.ViolationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ViolationRecord(nil), r.records...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakePlatform, *fakeRecorder) {
	t.Helper()
	platform := newFakePlatform()
	recorder := &fakeRecorder{}
	d := New(platform, recorder, Options{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     4 * time.Millisecond,
	}, zaptest.NewLogger(t))
	return d, platform, recorder
}

func banRequest() Request {
	return Request{
		GuildID:  1,
		UserID:   42,
		Action:   models.ActionBan,
		Reason:   "mass channel deletion",
		Category: models.CategoryChannelDelete,
	}
}

func TestApplyRecordsOnce(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)

	res, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.AlreadyApplied)
	assert.Equal(t, models.ActionBan, res.Record.Action)
	assert.Equal(t, uint64(42), res.Record.UserID)
	assert.Equal(t, 1, platform.count("ban"))
	assert.Len(t, recorder.all(), 1)
	assert.True(t, isApplied(d, 1, 42, models.ActionBan))
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)

	first, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)

	second, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)
	assert.True(t, second.AlreadyApplied)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, 1, platform.count("ban"))
	assert.Len(t, recorder.all(), 1)
}

func TestApplyConcurrentDuplicatesCollapse(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	platform.block = make(chan struct{})

	var wg sync.WaitGroup
	var errs atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Apply(context.Background(), banRequest()); err != nil {
				errs.Add(1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(platform.block)
	wg.Wait()

	assert.Zero(t, errs.Load())
	assert.Equal(t, 1, platform.count("ban"))
	assert.Len(t, recorder.all(), 1)
}

func TestApplyRetriesTransient(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	platform.fail("ban", models.Transient(errors.New("502")), models.Transient(errors.New("503")))

	res, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, platform.count("ban"))
	require.Len(t, recorder.all(), 1)
	assert.Equal(t, models.ActionBan, recorder.all()[0].Action)
}

func TestApplyExhaustsRetries(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	transient := models.Transient(errors.New("gateway timeout"))
	platform.fail("ban", transient, transient, transient, transient)

	_, err := d.Apply(t.Context(), banRequest())
	require.Error(t, err)

	var actErr *models.ActionError
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, 3, actErr.Attempts)
	assert.ErrorIs(t, err, models.ErrPermanentActionFailure)
	assert.Equal(t, 3, platform.count("ban"))

	records := recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.ActionBan.Failed(), records[0].Action)
	assert.False(t, isApplied(d, 1, 42, models.ActionBan))
}

func TestApplyPermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	platform.fail("ban", models.Permanent(errors.New("403 missing permissions")))

	_, err := d.Apply(t.Context(), banRequest())
	require.ErrorIs(t, err, models.ErrPermanentActionFailure)
	assert.Equal(t, 1, platform.count("ban"))
	require.Len(t, recorder.all(), 1)
	assert.True(t, recorder.all()[0].Action.IsFailed())
}

func TestTimeoutExtendsWithoutNewRecord(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	req := Request{GuildID: 1, UserID: 7, Action: models.ActionTimeout, Reason: "spam"}

	_, err := d.Apply(t.Context(), req)
	require.NoError(t, err)

	res, err := d.Apply(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Equal(t, 2, platform.count("timeout"))
	assert.Len(t, recorder.all(), 1)
}

func TestTimeoutExpires(t *testing.T) {
	t.Parallel()

	d, _, recorder := newTestDispatcher(t)
	now := time.Unix(1_700_000_000, 0)
	d.WithClock(func() time.Time { return now })

	req := Request{GuildID: 1, UserID: 7, Action: models.ActionTimeout, Details: models.ActionDetails{Duration: time.Minute}}
	_, err := d.Apply(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, isApplied(d, 1, 7, models.ActionTimeout))

	now = now.Add(2 * time.Minute)
	assert.False(t, isApplied(d, 1, 7, models.ActionTimeout))

	res, err := d.Apply(t.Context(), req)
	require.NoError(t, err)
	assert.False(t, res.AlreadyApplied)
	assert.Len(t, recorder.all(), 2)
}

func TestInverseClearsAppliedState(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	_, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)

	appealID := uuid.New()
	res, err := d.Apply(t.Context(), Request{GuildID: 1, UserID: 42, Action: models.ActionUnban, AppealID: appealID})
	require.NoError(t, err)
	assert.Equal(t, appealID, res.Record.AppealID)
	assert.Equal(t, 1, platform.count("unban"))
	assert.False(t, isApplied(d, 1, 42, models.ActionBan))
	assert.Len(t, recorder.all(), 2)

	_, err = d.Apply(t.Context(), banRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, platform.count("ban"))
}

func TestForget(t *testing.T) {
	t.Parallel()

	d, platform, _ := newTestDispatcher(t)
	_, err := d.Apply(t.Context(), banRequest())
	require.NoError(t, err)

	d.Forget(1, 42, models.ActionUnban)
	assert.False(t, isApplied(d, 1, 42, models.ActionBan))

	_, err = d.Apply(t.Context(), banRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, platform.count("ban"))
}

func TestClearViolationSkipsPlatform(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	res, err := d.Apply(t.Context(), Request{GuildID: 1, UserID: 42, Action: models.ActionClearViolation})
	require.NoError(t, err)
	assert.Equal(t, models.ActionClearViolation, res.Record.Action)
	assert.Empty(t, platform.calls)
	assert.Len(t, recorder.all(), 1)
}

func TestDeleteMessageRequiresTarget(t *testing.T) {
	t.Parallel()

	d, platform, _ := newTestDispatcher(t)
	_, err := d.Apply(t.Context(), Request{GuildID: 1, UserID: 42, Action: models.ActionDeleteMessage})
	require.ErrorIs(t, err, models.ErrPermanentActionFailure)
	assert.Zero(t, platform.count("delete_message"))
}

func TestApplyRejectsBadRequests(t *testing.T) {
	t.Parallel()

	d, _, recorder := newTestDispatcher(t)

	_, err := d.Apply(t.Context(), Request{UserID: 1, Action: models.ActionBan})
	require.ErrorIs(t, err, models.ErrMalformedEvent)

	_, err = d.Apply(t.Context(), Request{GuildID: 1, UserID: 1, Action: "explode"})
	require.ErrorIs(t, err, models.ErrConfiguration)

	assert.Empty(t, recorder.all())
}

func TestApplyLedgerFailure(t *testing.T) {
	t.Parallel()

	d, platform, recorder := newTestDispatcher(t)
	recorder.err = errors.New("disk full")

	_, err := d.Apply(t.Context(), banRequest())
	require.Error(t, err)
	assert.Equal(t, 1, platform.count("ban"))
	// The ban did happen, so a retry must not hit the platform again.
	assert.True(t, isApplied(d, 1, 42, models.ActionBan))
}

func isApplied(d *Dispatcher, guildID, userID uint64, action models.Action) bool {
	_, ok := d.lookupApplied(appliedKey{guildID, userID, familyOf(action)})
	return ok
}
