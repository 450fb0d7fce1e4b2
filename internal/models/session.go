package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusDismissed SessionStatus = "dismissed"
)

// IsTerminal reports whether no further transition can leave this status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusDismissed
}

// IsLive reports whether the session still holds its counselor.
func (s SessionStatus) IsLive() bool {
	return s == SessionStatusPending || s == SessionStatusActive
}

type Session struct {
	ID          uuid.UUID `db:"id"`
	StudentID   uuid.UUID `db:"student_id"`
	CounselorID uuid.UUID `db:"counselor_id"`

	RoomName     string        `db:"room_name"`
	Status       SessionStatus `db:"status"`
	IssueDetails string        `db:"issue_details"`

	CreatedAt  time.Time  `db:"created_at"`
	AcceptedAt *time.Time `db:"accepted_at"`
	EndedAt    *time.Time `db:"ended_at"`

	// Outcome fields, writable only once the session is completed.
	Notes    *string `db:"notes"`
	Feedback *string `db:"feedback"`
	Rating   *int    `db:"rating"`
}

// NewSession builds a pending session for an already claimed counselor.
func NewSession(studentID, counselorID uuid.UUID, issueDetails string, now time.Time) *Session {
	id := uuid.New()
	return &Session{
		ID:           id,
		StudentID:    studentID,
		CounselorID:  counselorID,
		RoomName:     RoomNameFor(id),
		Status:       SessionStatusPending,
		IssueDetails: issueDetails,
		CreatedAt:    now.UTC(),
	}
}

// RoomNameFor derives the signaling room key from the session id.
func RoomNameFor(sessionID uuid.UUID) string {
	return "session-" + sessionID.String()
}

// IsParticipant reports whether id is the student or the counselor.
func (s *Session) IsParticipant(id uuid.UUID) bool {
	return id != uuid.Nil && (id == s.StudentID || id == s.CounselorID)
}

// OtherParticipant returns the peer of id, or uuid.Nil when id is not a participant.
func (s *Session) OtherParticipant(id uuid.UUID) uuid.UUID {
	switch id {
	case s.StudentID:
		return s.CounselorID
	case s.CounselorID:
		return s.StudentID
	default:
		return uuid.Nil
	}
}

// Clone returns a copy that does not share pointer fields with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.AcceptedAt != nil {
		t := *s.AcceptedAt
		c.AcceptedAt = &t
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Notes != nil {
		v := *s.Notes
		c.Notes = &v
	}
	if s.Feedback != nil {
		v := *s.Feedback
		c.Feedback = &v
	}
	if s.Rating != nil {
		v := *s.Rating
		c.Rating = &v
	}
	return &c
}

// SessionOutcome is appended to a completed session by its participants.
type SessionOutcome struct {
	Notes    *string
	Feedback *string
	Rating   *int
}
