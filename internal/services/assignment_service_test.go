package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSession_AssignsAndNotifiesCounselor(t *testing.T) {
	f := newFixture(t)
	dashboard := f.connect(f.counselor, websocket.RoleCounselor)

	session := f.request(t)

	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.Equal(t, f.counselor, session.CounselorID)
	assert.Equal(t, models.RoomNameFor(session.ID), session.RoomName)
	assert.False(t, f.counselorAvailable(t))

	msgs := drain(dashboard)
	require.Equal(t, []string{websocket.TypeSessionRequested, websocket.TypeSessionsUpdated}, typesOf(msgs))
	event := msgs[0].Payload.(dtos.SessionRequestedEvent)
	assert.Equal(t, session.ID, event.SessionID)
	assert.Equal(t, "panic attack", event.IssueDetails)
	assert.Equal(t, f.student, event.StudentID)
}

func TestRequestSession_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("blank issue details", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.assign.RequestSession(ctx, f.student, "   ")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown student", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.assign.RequestSession(ctx, uuid.New(), "stress")
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.True(t, f.counselorAvailable(t))
	})

	t.Run("no counselor available", func(t *testing.T) {
		f := newFixture(t)
		f.request(t)
		other := uuid.New()
		f.store.AddStudent(other)

		_, err := f.assign.RequestSession(ctx, other, "stress")
		assert.ErrorIs(t, err, ErrNoCounselorAvailable)
	})

	t.Run("student already has a live session", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddCounselor(uuid.New(), "Dr. Iyer")
		f.request(t)

		_, err := f.assign.RequestSession(ctx, f.student, "again")
		assert.ErrorIs(t, err, ErrLiveSessionExists)
		n, err := f.assign.AvailableCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRequestSession_AtMostOneBookingPerCounselor(t *testing.T) {
	f := newFixture(t)
	counselors := map[uuid.UUID]bool{f.counselor: true}
	for i := 0; i < 2; i++ {
		id := uuid.New()
		f.store.AddCounselor(id, "counselor")
		counselors[id] = true
	}

	const students = 20
	ids := make([]uuid.UUID, students)
	for i := range ids {
		ids[i] = uuid.New()
		f.store.AddStudent(ids[i])
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		assigned = make(map[uuid.UUID]int)
		failures int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(studentID uuid.UUID) {
			defer wg.Done()
			session, err := f.assign.RequestSession(context.Background(), studentID, "exam stress")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrNoCounselorAvailable)
				failures++
				return
			}
			assigned[session.CounselorID]++
		}(id)
	}
	wg.Wait()

	assert.Len(t, assigned, len(counselors))
	for id, n := range assigned {
		assert.True(t, counselors[id])
		assert.Equal(t, 1, n, "counselor %s booked more than once", id)
	}
	assert.Equal(t, students-len(counselors), failures)
}

// racingStore loses the first claim to a concurrent request.
type racingStore struct {
	*repositories.MemoryStore
	mu     sync.Mutex
	stolen bool
}

func (s *racingStore) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	if !s.stolen {
		s.stolen = true
		s.mu.Unlock()
		rival := models.NewSession(uuid.New(), session.CounselorID, "rival", time.Now())
		if err := s.MemoryStore.CreateSession(ctx, rival); err != nil {
			return err
		}
	} else {
		s.mu.Unlock()
	}
	return s.MemoryStore.CreateSession(ctx, session)
}

func TestRequestSession_RetriesNextCandidateAfterLostClaim(t *testing.T) {
	store := &racingStore{MemoryStore: repositories.NewMemoryStore()}
	student := uuid.New()
	first, second := uuid.New(), uuid.New()
	store.AddStudent(student)
	store.AddCounselor(first, "first")
	store.AddCounselor(second, "second")

	svc := NewAssignmentService(store, websocket.NewHub(zerolog.Nop()), 3, zerolog.Nop())
	session, err := svc.RequestSession(context.Background(), student, "sleep")
	require.NoError(t, err)

	ids, err := store.ListAvailableCounselors(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, ids, "one counselor stolen, the other claimed")
	assert.Contains(t, []uuid.UUID{first, second}, session.CounselorID)
}

// failingCreateStore cannot persist sessions.
type failingCreateStore struct {
	*repositories.MemoryStore
}

func (s *failingCreateStore) CreateSession(context.Context, *models.Session) error {
	return errors.New("disk full")
}

func TestRequestSession_FailedCreateLeavesCounselorAvailable(t *testing.T) {
	store := &failingCreateStore{MemoryStore: repositories.NewMemoryStore()}
	student, counselor := uuid.New(), uuid.New()
	store.AddStudent(student)
	store.AddCounselor(counselor, "c")

	svc := NewAssignmentService(store, websocket.NewHub(zerolog.Nop()), 3, zerolog.Nop())
	_, err := svc.RequestSession(context.Background(), student, "grief")
	require.Error(t, err)

	c, err := store.GetCounselor(context.Background(), counselor)
	require.NoError(t, err)
	assert.True(t, c.IsAvailable)
	assert.Nil(t, c.BusySessionID)
}

// hangupStore cancels the request context once a counselor has been picked,
// as when the HTTP client disconnects mid-request.
type hangupStore struct {
	*repositories.MemoryStore
	cancel context.CancelFunc
}

func (s *hangupStore) ListAvailableCounselors(ctx context.Context, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	ids, err := s.MemoryStore.ListAvailableCounselors(ctx, exclude, limit)
	s.cancel()
	return ids, err
}

func TestRequestSession_CancelledRequestLeavesCounselorAvailable(t *testing.T) {
	mem := repositories.NewMemoryStore()
	student, counselor := uuid.New(), uuid.New()
	mem.AddStudent(student)
	mem.AddCounselor(counselor, "c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewAssignmentService(&hangupStore{MemoryStore: mem, cancel: cancel}, websocket.NewHub(zerolog.Nop()), 3, zerolog.Nop())

	_, err := svc.RequestSession(ctx, student, "grief")
	require.ErrorIs(t, err, context.Canceled)

	c, err := mem.GetCounselor(context.Background(), counselor)
	require.NoError(t, err)
	assert.True(t, c.IsAvailable)
	assert.Nil(t, c.BusySessionID)

	_, err = mem.FindLiveSessionByStudent(context.Background(), student)
	assert.ErrorIs(t, err, repositories.ErrSessionNotFound)

	retried, err := NewAssignmentService(mem, websocket.NewHub(zerolog.Nop()), 3, zerolog.Nop()).
		RequestSession(context.Background(), student, "grief")
	require.NoError(t, err)
	assert.Equal(t, counselor, retried.CounselorID)
}

func TestRequestSession_LogsRequestID(t *testing.T) {
	store := repositories.NewMemoryStore()
	student, counselor := uuid.New(), uuid.New()
	store.AddStudent(student)
	store.AddCounselor(counselor, "c")

	var buf bytes.Buffer
	svc := NewAssignmentService(store, websocket.NewHub(zerolog.Nop()), 3, zerolog.New(&buf))
	ctx := logger.WithRequestID(context.Background(), "req-99")

	_, err := svc.RequestSession(ctx, student, "exam stress")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"session requested"`)
	assert.Contains(t, buf.String(), `"request_id":"req-99"`)
}
