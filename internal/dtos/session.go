package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
)

// Request a counseling session
type RequestSessionRequest struct {
	IssueDetails string `json:"issue_details" binding:"required,max=4000"`
}

// Feedback from the student after a completed session
type FeedbackRequest struct {
	Feedback string `json:"feedback" binding:"required,max=4000"`
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
}

// Counselor notes after a completed session
type NotesRequest struct {
	Notes string `json:"notes" binding:"required,max=10000"`
}

// Session response
type SessionResponse struct {
	ID           uuid.UUID  `json:"id"`
	StudentID    uuid.UUID  `json:"student_id"`
	CounselorID  uuid.UUID  `json:"counselor_id"`
	RoomName     string     `json:"room_name"`
	Status       string     `json:"status"`
	IssueDetails string     `json:"issue_details"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	Feedback     *string    `json:"feedback,omitempty"`
	Rating       *int       `json:"rating,omitempty"`
}

// Returned by accept and rejoin so both peers know which room to join
type RoomResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	RoomName  string    `json:"room_name"`
	Status    string    `json:"status"`
}

type AvailabilityResponse struct {
	AvailableCounselors int `json:"available_counselors"`
}

// sessionRequested event for the counselor dashboard
type SessionRequestedEvent struct {
	SessionID    uuid.UUID `json:"sessionId"`
	IssueDetails string    `json:"issueDetails"`
	StudentID    uuid.UUID `json:"studentId"`
	Timestamp    time.Time `json:"timestamp"`
}

// sessionEnded-{id} event for the peer that did not end the session
type SessionEndedEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
	EndedBy   string    `json:"endedBy,omitempty"` // "student", "counselor" or "system"
	EndedAt   time.Time `json:"endedAt"`
	// Prompt tells the client which follow-up to show: "feedback" or "clinical_review".
	Prompt string `json:"prompt,omitempty"`
}

// sessionsUpdated is a refresh hint for counselor dashboards
type SessionsUpdatedEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
}

type ClinicalReviewEvent struct {
	SessionID uuid.UUID `json:"sessionId"`
	StudentID uuid.UUID `json:"studentId"`
	EndedAt   time.Time `json:"endedAt"`
}

func NewSessionResponse(s *models.Session) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID,
		StudentID:    s.StudentID,
		CounselorID:  s.CounselorID,
		RoomName:     s.RoomName,
		Status:       string(s.Status),
		IssueDetails: s.IssueDetails,
		CreatedAt:    s.CreatedAt,
		AcceptedAt:   s.AcceptedAt,
		EndedAt:      s.EndedAt,
		Notes:        s.Notes,
		Feedback:     s.Feedback,
		Rating:       s.Rating,
	}
}
