package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

const (
	promptFeedback       = "feedback"
	promptClinicalReview = "clinical_review"

	endedByStudent   = "student"
	endedByCounselor = "counselor"
	endedBySystem    = "system"
)

type SessionPolicy struct {
	// RejoinWindow is how long after ending a completed session its
	// participants may re-enter the room.
	RejoinWindow time.Duration
}

// SessionService drives the session lifecycle:
// pending -> active -> completed, and pending|active -> dismissed.
type SessionService struct {
	store    repositories.SessionStore
	notifier Notifier
	rooms    RoomController
	review   ReviewHook
	policy   SessionPolicy
	now      func() time.Time
	log      zerolog.Logger
}

func NewSessionService(
	store repositories.SessionStore,
	notifier Notifier,
	rooms RoomController,
	review ReviewHook,
	policy SessionPolicy,
	log zerolog.Logger,
) *SessionService {
	if review == nil {
		review = NoopReviewHook{}
	}
	return &SessionService{
		store:    store,
		notifier: notifier,
		rooms:    rooms,
		review:   review,
		policy:   policy,
		now:      time.Now,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// WithClock replaces the time source, for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Get returns a session visible to one of its participants.
func (s *SessionService) Get(ctx context.Context, sessionID, participantID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(participantID) {
		return nil, ErrNotParticipant
	}
	return session, nil
}

// Accept moves a pending session to active. Only the assigned counselor may
// accept, and accepting an already active session returns it unchanged.
func (s *SessionService) Accept(ctx context.Context, sessionID, counselorID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CounselorID != counselorID {
		logger.FromContext(ctx, s.log).Warn().
			Str("session_id", sessionID.String()).
			Str("actor_id", counselorID.String()).
			Msg("accept by non-assigned counselor rejected")
		return nil, ErrNotParticipant
	}
	if session.Status != models.SessionStatusPending {
		return absorb(session, models.SessionStatusActive)
	}

	updated, err := s.store.TransitionSession(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusPending}, models.SessionStatusActive, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrTransitionConflict) {
			return absorb(updated, models.SessionStatusActive)
		}
		return nil, errors.Wrap(err, "accept session")
	}

	logger.FromContext(ctx, s.log).Info().Str("session_id", sessionID.String()).Msg("session accepted")
	s.notifier.BroadcastRole(websocket.RoleCounselor, websocket.TypeSessionsUpdated, dtos.SessionsUpdatedEvent{
		SessionID: updated.ID,
		Status:    string(updated.Status),
	})
	return updated, nil
}

// End completes a pending or active session on behalf of either participant.
// The counselor is released in the same step, and ending twice is a no-op.
func (s *SessionService) End(ctx context.Context, sessionID, actorID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if session.Status.IsTerminal() {
		return absorb(session, models.SessionStatusCompleted)
	}

	updated, err := s.store.TransitionSession(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusPending, models.SessionStatusActive},
		models.SessionStatusCompleted, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrTransitionConflict) {
			return absorb(updated, models.SessionStatusCompleted)
		}
		return nil, errors.Wrap(err, "end session")
	}

	s.afterTerminal(ctx, updated, actorID)
	return updated, nil
}

// Dismiss cancels a pending or active session without collecting feedback.
// A nil actorID means the system is dismissing it.
func (s *SessionService) Dismiss(ctx context.Context, sessionID, actorID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != uuid.Nil && actorID != session.CounselorID {
		return nil, ErrNotParticipant
	}
	if session.Status.IsTerminal() {
		return absorb(session, models.SessionStatusDismissed)
	}

	updated, err := s.store.TransitionSession(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusPending, models.SessionStatusActive},
		models.SessionStatusDismissed, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrTransitionConflict) {
			return absorb(updated, models.SessionStatusDismissed)
		}
		return nil, errors.Wrap(err, "dismiss session")
	}

	s.afterTerminal(ctx, updated, actorID)
	return updated, nil
}

// Rejoin lets a participant re-enter the room of an active session, or of a
// completed one while now - endedAt is within the rejoin window. Rejoining
// does not reactivate the session.
func (s *SessionService) Rejoin(ctx context.Context, sessionID, participantID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(participantID) {
		return nil, ErrNotParticipant
	}
	if err := s.checkRoomOpen(session); err != nil {
		return nil, err
	}
	return session, nil
}

// AuthorizeRoom resolves a signaling room to its session and applies the same
// rules as Rejoin.
func (s *SessionService) AuthorizeRoom(ctx context.Context, roomName string, participantID uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetSessionByRoom(ctx, roomName)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "lookup session room")
	}
	if !session.IsParticipant(participantID) {
		return nil, ErrNotParticipant
	}
	if err := s.checkRoomOpen(session); err != nil {
		return nil, err
	}
	return session, nil
}

// AttachFeedback records the student's feedback and rating on a completed session.
func (s *SessionService) AttachFeedback(ctx context.Context, sessionID, studentID uuid.UUID, feedback string, rating int) (*models.Session, error) {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" || rating < 1 || rating > 5 {
		return nil, ErrInvalidRequest
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.StudentID != studentID {
		return nil, ErrNotParticipant
	}
	return s.attach(ctx, session, models.SessionOutcome{Feedback: &feedback, Rating: &rating})
}

// AttachNotes records the counselor's notes on a completed session.
func (s *SessionService) AttachNotes(ctx context.Context, sessionID, counselorID uuid.UUID, notes string) (*models.Session, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrInvalidRequest
	}
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CounselorID != counselorID {
		return nil, ErrNotParticipant
	}
	return s.attach(ctx, session, models.SessionOutcome{Notes: &notes})
}

// DismissStale dismisses pending sessions nobody accepted within
// pendingTimeout, and active sessions older than idleTimeout whose room is empty.
func (s *SessionService) DismissStale(ctx context.Context, pendingTimeout, idleTimeout time.Duration) (int, error) {
	now := s.now()
	dismissed := 0

	pending, err := s.store.ListStaleSessions(ctx, models.SessionStatusPending, now.Add(-pendingTimeout))
	if err != nil {
		return 0, errors.Wrap(err, "list stale pending sessions")
	}
	for _, session := range pending {
		if s.dismissStale(ctx, session) {
			dismissed++
		}
	}

	active, err := s.store.ListStaleSessions(ctx, models.SessionStatusActive, now.Add(-idleTimeout))
	if err != nil {
		return dismissed, errors.Wrap(err, "list idle active sessions")
	}
	for _, session := range active {
		if s.rooms.MemberCount(session.RoomName) > 0 {
			continue
		}
		if s.dismissStale(ctx, session) {
			dismissed++
		}
	}
	return dismissed, nil
}

func (s *SessionService) dismissStale(ctx context.Context, session *models.Session) bool {
	updated, err := s.Dismiss(ctx, session.ID, uuid.Nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("stale session not dismissed")
		return false
	}
	return updated.Status == models.SessionStatusDismissed
}

func (s *SessionService) attach(ctx context.Context, session *models.Session, outcome models.SessionOutcome) (*models.Session, error) {
	if session.Status != models.SessionStatusCompleted {
		return nil, ErrOutcomeNotAllowed
	}
	updated, err := s.store.AttachOutcome(ctx, session.ID, outcome)
	if err != nil {
		if errors.Is(err, repositories.ErrTransitionConflict) {
			return nil, ErrOutcomeNotAllowed
		}
		return nil, errors.Wrap(err, "attach session outcome")
	}
	return updated, nil
}

func (s *SessionService) checkRoomOpen(session *models.Session) error {
	switch session.Status {
	case models.SessionStatusActive:
		return nil
	case models.SessionStatusCompleted:
		if session.EndedAt == nil || s.now().Sub(*session.EndedAt) > s.policy.RejoinWindow {
			return ErrWindowExpired
		}
		return nil
	case models.SessionStatusDismissed:
		return ErrWindowExpired
	default:
		return ErrRoomNotOpen
	}
}

// afterTerminal tears down the room and tells the peer who did not end the
// session. Delivery failures never undo the transition.
func (s *SessionService) afterTerminal(ctx context.Context, session *models.Session, actorID uuid.UUID) {
	s.rooms.CloseRoom(session.RoomName)

	endedBy := endedBySystem
	switch actorID {
	case session.StudentID:
		endedBy = endedByStudent
	case session.CounselorID:
		endedBy = endedByCounselor
	}

	logger.FromContext(ctx, s.log).Info().
		Str("session_id", session.ID.String()).
		Str("status", string(session.Status)).
		Str("ended_by", endedBy).
		Msg("session ended")

	event := dtos.SessionEndedEvent{
		SessionID: session.ID,
		Status:    string(session.Status),
		EndedBy:   endedBy,
	}
	if session.EndedAt != nil {
		event.EndedAt = *session.EndedAt
	}
	eventType := websocket.SessionEndedType(session.ID)

	// Follow-up prompts only apply once a call was accepted.
	held := session.Status == models.SessionStatusCompleted && session.AcceptedAt != nil

	for _, pid := range []uuid.UUID{session.StudentID, session.CounselorID} {
		if pid == actorID {
			continue
		}
		e := event
		if held {
			e.Prompt = promptFeedback
			if pid == session.CounselorID {
				e.Prompt = promptClinicalReview
			}
		}
		s.notifier.Notify(pid, eventType, e)
	}
	s.notifier.BroadcastRole(websocket.RoleCounselor, websocket.TypeSessionsUpdated, dtos.SessionsUpdatedEvent{
		SessionID: session.ID,
		Status:    string(session.Status),
	})

	if held && actorID == session.CounselorID {
		if err := s.review.RequireReview(ctx, session); err != nil {
			logger.FromContext(ctx, s.log).Error().Err(err).Str("session_id", session.ID.String()).Msg("clinical review hook failed")
		}
	}
}

func (s *SessionService) load(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "load session")
	}
	return session, nil
}

// absorb resolves a request that lost to an earlier transition: asking again
// for the state the session is already in succeeds, anything else conflicts.
func absorb(current *models.Session, target models.SessionStatus) (*models.Session, error) {
	if current == nil {
		return nil, ErrInvalidTransition
	}
	if current.Status == target {
		return current, nil
	}
	return current, ErrInvalidTransition
}
