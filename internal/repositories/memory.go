package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
)

// MemoryStore keeps sessions and counselors in process memory. A single mutex
// makes every conditional update atomic, matching the row-level guarantees of
// the SQL store.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*models.Session
	rooms      map[string]uuid.UUID
	counselors map[uuid.UUID]*models.Counselor
	students   map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[uuid.UUID]*models.Session),
		rooms:      make(map[string]uuid.UUID),
		counselors: make(map[uuid.UUID]*models.Counselor),
		students:   make(map[uuid.UUID]struct{}),
	}
}

// AddStudent registers a student id so requests from it are accepted.
func (m *MemoryStore) AddStudent(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[id] = struct{}{}
}

// AddCounselor registers an available counselor.
func (m *MemoryStore) AddCounselor(id uuid.UUID, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counselors[id] = &models.Counselor{
		ID:          id,
		DisplayName: displayName,
		IsAvailable: true,
		UpdatedAt:   time.Now().UTC(),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.StudentID == session.StudentID && s.Status.IsLive() {
			return ErrLiveSessionExists
		}
	}
	if _, ok := m.rooms[session.RoomName]; ok {
		return ErrDuplicateRoomName
	}
	if err := m.claimLocked(session.CounselorID, session.ID); err != nil {
		return err
	}

	m.sessions[session.ID] = session.Clone()
	m.rooms[session.RoomName] = session.ID
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetSessionByRoom(ctx context.Context, roomName string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.rooms[roomName]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.sessions[id].Clone(), nil
}

func (m *MemoryStore) FindLiveSessionByStudent(ctx context.Context, studentID uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.StudentID == studentID && s.Status.IsLive() {
			return s.Clone(), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) TransitionSession(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, at time.Time) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !containsStatus(from, s.Status) {
		return s.Clone(), ErrTransitionConflict
	}

	at = at.UTC()
	s.Status = to
	switch {
	case to == models.SessionStatusActive:
		s.AcceptedAt = &at
	case to.IsTerminal():
		s.EndedAt = &at
		m.releaseLocked(s.CounselorID, s.ID)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) AttachOutcome(ctx context.Context, id uuid.UUID, outcome models.SessionOutcome) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Status != models.SessionStatusCompleted {
		return s.Clone(), ErrTransitionConflict
	}

	if outcome.Notes != nil {
		v := *outcome.Notes
		s.Notes = &v
	}
	if outcome.Feedback != nil {
		v := *outcome.Feedback
		s.Feedback = &v
	}
	if outcome.Rating != nil {
		v := *outcome.Rating
		s.Rating = &v
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListStaleSessions(ctx context.Context, status models.SessionStatus, before time.Time) ([]*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Session
	for _, s := range m.sessions {
		if s.Status != status {
			continue
		}
		switch status {
		case models.SessionStatusPending:
			if s.CreatedAt.Before(before) {
				out = append(out, s.Clone())
			}
		case models.SessionStatusActive:
			if s.AcceptedAt != nil && s.AcceptedAt.Before(before) {
				out = append(out, s.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) StudentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.students[id]
	return ok, nil
}

func (m *MemoryStore) ListAvailableCounselors(ctx context.Context, exclude []uuid.UUID, limit int) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skip := make(map[uuid.UUID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*models.Counselor, 0, len(m.counselors))
	for _, c := range m.counselors {
		if _, skipped := skip[c.ID]; skipped || !c.IsAvailable {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})

	out := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, c.ID)
	}
	return out, nil
}

// claimLocked marks counselorID busy with sessionID if it is available.
func (m *MemoryStore) claimLocked(counselorID, sessionID uuid.UUID) error {
	c, ok := m.counselors[counselorID]
	if !ok {
		return ErrCounselorNotFound
	}
	if !c.IsAvailable {
		return ErrCounselorUnavailable
	}
	c.IsAvailable = false
	held := sessionID
	c.BusySessionID = &held
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// releaseLocked restores availability only while sessionID still holds the
// counselor, so repeated calls restore at most once.
func (m *MemoryStore) releaseLocked(counselorID, sessionID uuid.UUID) bool {
	c, ok := m.counselors[counselorID]
	if !ok || c.BusySessionID == nil || *c.BusySessionID != sessionID {
		return false
	}
	c.IsAvailable = true
	c.BusySessionID = nil
	c.UpdatedAt = time.Now().UTC()
	return true
}

func (m *MemoryStore) GetCounselor(ctx context.Context, id uuid.UUID) (*models.Counselor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counselors[id]
	if !ok {
		return nil, ErrCounselorNotFound
	}
	cp := *c
	if c.BusySessionID != nil {
		held := *c.BusySessionID
		cp.BusySessionID = &held
	}
	return &cp, nil
}

func (m *MemoryStore) CountAvailable(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.counselors {
		if c.IsAvailable {
			n++
		}
	}
	return n, nil
}
