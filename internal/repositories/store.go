package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrCounselorNotFound  = errors.New("counselor not found")
	ErrLiveSessionExists  = errors.New("student already has a live session")
	ErrTransitionConflict = errors.New("session is not in an expected state")
	ErrDuplicateRoomName  = errors.New("room name already in use")

	// ErrCounselorUnavailable means the counselor was claimed by another
	// session before this one could be created.
	ErrCounselorUnavailable = errors.New("counselor is no longer available")
)

// SessionStore is the durable record of sessions. It is the single source of
// truth for session status.
type SessionStore interface {
	// CreateSession claims session.CounselorID for the session and inserts it
	// as one atomic step: either both happen or neither does. A counselor
	// that is already busy yields ErrCounselorUnavailable.
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetSessionByRoom(ctx context.Context, roomName string) (*models.Session, error)
	FindLiveSessionByStudent(ctx context.Context, studentID uuid.UUID) (*models.Session, error)

	// TransitionSession moves a session to `to` only if its current status is
	// one of `from`, stamping accepted_at or ended_at with `at`. A terminal
	// target releases the session's counselor in the same atomic step. On
	// conflict the current session is returned with ErrTransitionConflict.
	TransitionSession(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus, at time.Time) (*models.Session, error)

	// AttachOutcome appends notes/feedback/rating to a completed session.
	AttachOutcome(ctx context.Context, id uuid.UUID, outcome models.SessionOutcome) (*models.Session, error)

	// ListStaleSessions returns pending sessions created before `before`, or
	// active sessions accepted before `before`.
	ListStaleSessions(ctx context.Context, status models.SessionStatus, before time.Time) ([]*models.Session, error)

	StudentExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CounselorStore owns counselor availability.
type CounselorStore interface {
	ListAvailableCounselors(ctx context.Context, exclude []uuid.UUID, limit int) ([]uuid.UUID, error)


	GetCounselor(ctx context.Context, id uuid.UUID) (*models.Counselor, error)
	CountAvailable(ctx context.Context) (int, error)
}

// Store is the full persistence surface the core depends on.
type Store interface {
	SessionStore
	CounselorStore
}

func containsStatus(statuses []models.SessionStatus, s models.SessionStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}
