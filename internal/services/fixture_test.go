package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testRejoinWindow = 10 * time.Minute

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingReview struct {
	mu       sync.Mutex
	sessions []uuid.UUID
}

func (r *recordingReview) RequireReview(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, session.ID)
	return nil
}

func (r *recordingReview) calls() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.sessions...)
}

type fixture struct {
	store     *repositories.MemoryStore
	hub       *websocket.Hub
	registry  *websocket.Registry
	clock     *fakeClock
	review    *recordingReview
	assign    *AssignmentService
	sessions  *SessionService
	signaling *SignalingService

	student   uuid.UUID
	counselor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	f := &fixture{
		store:     repositories.NewMemoryStore(),
		hub:       websocket.NewHub(log),
		registry:  websocket.NewRegistry(websocket.RegistryOptions{GracePeriod: time.Minute}, log),
		clock:     &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		review:    &recordingReview{},
		student:   uuid.New(),
		counselor: uuid.New(),
	}
	f.store.AddStudent(f.student)
	f.store.AddCounselor(f.counselor, "Dr. Rao")

	f.assign = NewAssignmentService(f.store, f.hub, 5, log)
	f.assign.now = f.clock.Now
	f.sessions = NewSessionService(f.store, f.hub, f.registry, f.review,
		SessionPolicy{RejoinWindow: testRejoinWindow}, log).WithClock(f.clock.Now)
	f.signaling = NewSignalingService(f.sessions, f.registry, log)
	return f
}

// connect registers a buffered client with no socket behind it.
func (f *fixture) connect(pid uuid.UUID, role string) *websocket.Client {
	c := websocket.NewClient(pid, role, nil, 32)
	f.hub.Register(c)
	return c
}

func (f *fixture) request(t *testing.T) *models.Session {
	t.Helper()
	session, err := f.assign.RequestSession(context.Background(), f.student, "panic attack")
	require.NoError(t, err)
	return session
}

func (f *fixture) activeSession(t *testing.T) *models.Session {
	t.Helper()
	session := f.request(t)
	active, err := f.sessions.Accept(context.Background(), session.ID, f.counselor)
	require.NoError(t, err)
	return active
}

func (f *fixture) counselorAvailable(t *testing.T) bool {
	t.Helper()
	c, err := f.store.GetCounselor(context.Background(), f.counselor)
	require.NoError(t, err)
	return c.IsAvailable
}

func drain(c *websocket.Client) []websocket.OutboundMessage {
	var out []websocket.OutboundMessage
	for {
		select {
		case m := <-c.Send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func typesOf(msgs []websocket.OutboundMessage) []string {
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	return types
}
