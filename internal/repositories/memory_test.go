package repositories

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T) (*MemoryStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	store := NewMemoryStore()
	student := uuid.New()
	counselor := uuid.New()
	store.AddStudent(student)
	store.AddCounselor(counselor, "Dr. Rao")
	return store, student, counselor
}

func TestMemoryStore_CreateSessionClaimsCounselorExclusively(t *testing.T) {
	store, _, counselor := newSeededStore(t)
	ctx := context.Background()

	var wins, lost int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CreateSession(ctx, models.NewSession(uuid.New(), counselor, "exam stress", time.Now()))
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return
			}
			assert.ErrorIs(t, err, ErrCounselorUnavailable)
			atomic.AddInt32(&lost, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), lost)
	c, err := store.GetCounselor(ctx, counselor)
	require.NoError(t, err)
	assert.False(t, c.IsAvailable)
	assert.NotNil(t, c.BusySessionID)
}

func TestMemoryStore_FailedCreateLeavesCounselorAvailable(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	second := uuid.New()
	store.AddCounselor(second, "Dr. Iyer")

	require.NoError(t, store.CreateSession(context.Background(), models.NewSession(student, counselor, "first", time.Now())))

	err := store.CreateSession(context.Background(), models.NewSession(student, second, "second", time.Now()))
	assert.ErrorIs(t, err, ErrLiveSessionExists)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.CreateSession(ctx, models.NewSession(uuid.New(), second, "third", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)

	c, err := store.GetCounselor(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, c.IsAvailable)
	assert.Nil(t, c.BusySessionID)
}

func TestMemoryStore_ReleaseOnlyByHolder(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	session := models.NewSession(student, counselor, "sleep", time.Now())
	require.NoError(t, store.CreateSession(context.Background(), session))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.False(t, store.releaseLocked(counselor, uuid.New()))
	assert.True(t, store.releaseLocked(counselor, session.ID))
	assert.False(t, store.releaseLocked(counselor, session.ID), "second release must be a no-op")
}

func TestMemoryStore_TransitionReleasesCounselorOnce(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	ctx := context.Background()
	now := time.Now()

	session := models.NewSession(student, counselor, "exam stress", now)
	require.NoError(t, store.CreateSession(ctx, session))

	active, err := store.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusPending}, models.SessionStatusActive, now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, active.Status)
	require.NotNil(t, active.AcceptedAt)

	done, err := store.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusActive}, models.SessionStatusCompleted, now)
	require.NoError(t, err)
	require.NotNil(t, done.EndedAt)

	c, err := store.GetCounselor(ctx, counselor)
	require.NoError(t, err)
	assert.True(t, c.IsAvailable)

	// Someone else claims the counselor; a replayed transition must not free them.
	other := models.NewSession(uuid.New(), counselor, "insomnia", now)
	require.NoError(t, store.CreateSession(ctx, other))

	current, err := store.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusActive}, models.SessionStatusCompleted, now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrTransitionConflict)
	assert.Equal(t, *done.EndedAt, *current.EndedAt)

	c, err = store.GetCounselor(ctx, counselor)
	require.NoError(t, err)
	assert.False(t, c.IsAvailable)
	assert.Equal(t, other.ID, *c.BusySessionID)
}

func TestMemoryStore_OneLiveSessionPerStudent(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, models.NewSession(student, counselor, "first", time.Now())))
	err := store.CreateSession(ctx, models.NewSession(student, counselor, "second", time.Now()))
	assert.ErrorIs(t, err, ErrLiveSessionExists)

	live, err := store.FindLiveSessionByStudent(ctx, student)
	require.NoError(t, err)
	assert.Equal(t, "first", live.IssueDetails)
}

func TestMemoryStore_AttachOutcomeRequiresCompleted(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	ctx := context.Background()

	session := models.NewSession(student, counselor, "sleep", time.Now())
	require.NoError(t, store.CreateSession(ctx, session))

	feedback := "helpful"
	_, err := store.AttachOutcome(ctx, session.ID, models.SessionOutcome{Feedback: &feedback})
	assert.ErrorIs(t, err, ErrTransitionConflict)

	_, err = store.TransitionSession(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusPending}, models.SessionStatusCompleted, time.Now())
	require.NoError(t, err)

	rating := 5
	updated, err := store.AttachOutcome(ctx, session.ID, models.SessionOutcome{Feedback: &feedback, Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, "helpful", *updated.Feedback)
	assert.Equal(t, 5, *updated.Rating)
	assert.Nil(t, updated.Notes)
}

func TestMemoryStore_ListStaleSessions(t *testing.T) {
	store, student, counselor := newSeededStore(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	session := models.NewSession(student, counselor, "old request", old)
	require.NoError(t, store.CreateSession(ctx, session))

	stale, err := store.ListStaleSessions(ctx, models.SessionStatusPending, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, session.ID, stale[0].ID)

	stale, err = store.ListStaleSessions(ctx, models.SessionStatusPending, old.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestMemoryStore_ListAvailableSkipsExcluded(t *testing.T) {
	store := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	store.AddCounselor(a, "A")
	store.AddCounselor(b, "B")
	ctx := context.Background()

	ids, err := store.ListAvailableCounselors(ctx, []uuid.UUID{a}, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, ids)

	n, err := store.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
