package correlator_test

import (
	"sync"
	"testing"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/correlator"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestRecordSlidingWindow(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	w := 60 * time.Second
	cat := models.CategoryChannelDelete

	assert.Equal(t, 1, tracker.Record(1, cat, at(0), w))
	assert.Equal(t, 2, tracker.Record(1, cat, at(10), w))
	assert.Equal(t, 3, tracker.Record(1, cat, at(20), w))
	assert.Equal(t, 4, tracker.Record(1, cat, at(30), w))

	// at(60) evicts at(0): the window is (0, 60].
	assert.Equal(t, 4, tracker.Record(1, cat, at(60), w))
	assert.Equal(t, 3, tracker.CurrentCount(1, cat, at(75), w))
	assert.Equal(t, 0, tracker.CurrentCount(1, cat, at(200), w))
}

func TestNoBucketBoundaryReset(t *testing.T) {
	t.Parallel()

	// A fixed 60s bucket would reset at t=60 and see two bursts of 3 as separate.
	tracker := correlator.NewWindowTracker()
	w := 60 * time.Second
	cat := models.CategoryRoleDelete
	for _, sec := range []int{57, 58, 59} {
		tracker.Record(7, cat, at(sec), w)
	}
	assert.Equal(t, 4, tracker.Record(7, cat, at(61), w))
	assert.Equal(t, 5, tracker.Record(7, cat, at(62), w))
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	w := time.Minute
	tracker.Record(1, models.CategoryMemberBan, at(0), w)
	tracker.Record(1, models.CategoryMemberBan, at(1), w)
	tracker.Record(2, models.CategoryMemberBan, at(1), w)
	tracker.Record(1, models.CategoryMemberKick, at(1), w)

	assert.Equal(t, 2, tracker.CurrentCount(1, models.CategoryMemberBan, at(2), w))
	assert.Equal(t, 1, tracker.CurrentCount(2, models.CategoryMemberBan, at(2), w))
	assert.Equal(t, 1, tracker.CurrentCount(1, models.CategoryMemberKick, at(2), w))
	assert.Equal(t, 0, tracker.CurrentCount(3, models.CategoryMemberBan, at(2), w))
}

func TestUnknownCategoryIsEmpty(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	assert.Equal(t, 0, tracker.Record(1, models.Category("sticker_delete"), at(0), time.Minute))
	assert.Equal(t, 0, tracker.CurrentCount(1, models.Category("sticker_delete"), at(0), time.Minute))
	assert.Equal(t, 0, tracker.Len())
}

func TestOutOfOrderTimestamps(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	w := 10 * time.Second
	cat := models.CategoryWebhookCreate

	tracker.Record(1, cat, at(20), w)
	assert.Equal(t, 2, tracker.Record(1, cat, at(15), w), "late event inside the window counts")
	assert.Equal(t, 2, tracker.Record(1, cat, at(5), w), "late event outside the window is not stored")
	assert.Equal(t, 1, tracker.CurrentCount(1, cat, at(26), w))
}

func TestWindowShrinkAppliesOnNextAccess(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	cat := models.CategoryMessage
	for sec := range 10 {
		tracker.Record(1, cat, at(sec), time.Minute)
	}
	assert.Equal(t, 10, tracker.CurrentCount(1, cat, at(9), time.Minute))
	assert.Equal(t, 3, tracker.CurrentCount(1, cat, at(9), 3*time.Second))
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	tracker.Record(1, models.CategoryMemberBan, at(0), time.Minute)
	tracker.Record(1, models.CategoryMemberBan, at(1), time.Minute)

	got := tracker.Snapshot(1, at(2), map[models.Category]time.Duration{
		models.CategoryMemberBan:  time.Minute,
		models.CategoryRoleDelete: time.Minute,
	})
	assert.Equal(t, map[models.Category]int{models.CategoryMemberBan: 2, models.CategoryRoleDelete: 0}, got)
}

func TestCollect(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	tracker.Record(1, models.CategoryMemberBan, at(0), 10*time.Second)
	tracker.Record(2, models.CategoryMemberBan, at(0), 30*time.Second)
	tracker.Record(3, models.CategoryMemberBan, at(100), 10*time.Second)
	assert.Equal(t, 3, tracker.Len())

	// Largest member_ban window is 30s. Guild 1 empties at 10s, guild 2 at 30s.
	assert.Equal(t, 0, tracker.Collect(at(35)))
	assert.Equal(t, 1, tracker.Collect(at(41)))
	assert.Equal(t, 2, tracker.Len())
	assert.Equal(t, 1, tracker.Collect(at(61)))
	assert.Equal(t, 1, tracker.Len(), "counter with live entries is kept")

	// A collected key starts fresh.
	assert.Equal(t, 1, tracker.Record(1, models.CategoryMemberBan, at(200), 10*time.Second))
}

func TestConcurrentRecordSameKey(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	const goroutines, perGoroutine = 16, 100
	w := time.Hour

	var wg sync.WaitGroup
	for g := range goroutines {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range perGoroutine {
				tracker.Record(1, models.CategoryChannelDelete, t0.Add(time.Duration(g*perGoroutine+i)*time.Millisecond), w)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, tracker.CurrentCount(1, models.CategoryChannelDelete, t0.Add(2*time.Second), w))
}

func TestConcurrentRecordAndCollect(t *testing.T) {
	t.Parallel()

	tracker := correlator.NewWindowTracker()
	w := time.Second
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				tracker.Collect(at(1000))
			}
		}
	}()

	for i := range 500 {
		// Every record lands at the same instant so the count is monotonic unless lost.
		got := tracker.Record(42, models.CategoryMemberKick, at(1000), w)
		assert.Equal(t, i+1, got)
	}
	close(stop)
	wg.Wait()
}
