package services

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

const defaultAssignAttempts = 5

// AssignmentService books an available counselor for a student request.
type AssignmentService struct {
	store    repositories.Store
	notifier Notifier
	attempts uint
	now      func() time.Time
	log      zerolog.Logger
}

func NewAssignmentService(store repositories.Store, notifier Notifier, attempts int, log zerolog.Logger) *AssignmentService {
	if attempts <= 0 {
		attempts = defaultAssignAttempts
	}
	return &AssignmentService{
		store:    store,
		notifier: notifier,
		attempts: uint(attempts),
		now:      time.Now,
		log:      log.With().Str("component", "assignment").Logger(),
	}
}

// RequestSession claims one available counselor and creates a pending session
// bound to it. A counselor lost to a concurrent claim is skipped and the next
// candidate is tried, up to the configured number of attempts.
func (s *AssignmentService) RequestSession(ctx context.Context, studentID uuid.UUID, issueDetails string) (*models.Session, error) {
	issueDetails = strings.TrimSpace(issueDetails)
	if studentID == uuid.Nil || issueDetails == "" {
		return nil, ErrInvalidRequest
	}

	exists, err := s.store.StudentExists(ctx, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup student")
	}
	if !exists {
		return nil, errors.Wrap(ErrInvalidRequest, "unknown student")
	}

	if _, err := s.store.FindLiveSessionByStudent(ctx, studentID); err == nil {
		return nil, ErrLiveSessionExists
	} else if !errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, errors.Wrap(err, "lookup live session")
	}

	session := models.NewSession(studentID, uuid.Nil, issueDetails, s.now())
	if err := s.book(ctx, session); err != nil {
		return nil, err
	}
	counselorID := session.CounselorID

	logger.FromContext(ctx, s.log).Info().
		Str("session_id", session.ID.String()).
		Str("student_id", studentID.String()).
		Str("counselor_id", counselorID.String()).
		Msg("session requested")

	s.notifier.Notify(counselorID, websocket.TypeSessionRequested, dtos.SessionRequestedEvent{
		SessionID:    session.ID,
		IssueDetails: session.IssueDetails,
		StudentID:    studentID,
		Timestamp:    session.CreatedAt,
	})
	s.notifier.BroadcastRole(websocket.RoleCounselor, websocket.TypeSessionsUpdated, dtos.SessionsUpdatedEvent{
		SessionID: session.ID,
		Status:    string(session.Status),
	})

	return session, nil
}

// AvailableCount reports how many counselors could take a request right now.
func (s *AssignmentService) AvailableCount(ctx context.Context) (int, error) {
	n, err := s.store.CountAvailable(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count available counselors")
	}
	return n, nil
}

// book binds session to the first available counselor and persists it. The
// store claims the counselor and inserts the session as one step.
func (s *AssignmentService) book(ctx context.Context, session *models.Session) error {
	var lost []uuid.UUID

	err := retry.Do(
		func() error {
			candidates, err := s.store.ListAvailableCounselors(ctx, lost, 1)
			if err != nil {
				return retry.Unrecoverable(errors.Wrap(err, "list available counselors"))
			}
			if len(candidates) == 0 {
				return retry.Unrecoverable(ErrNoCounselorAvailable)
			}

			session.CounselorID = candidates[0]
			err = s.store.CreateSession(ctx, session)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, repositories.ErrCounselorUnavailable):
				lost = append(lost, session.CounselorID)
				return errClaimLost
			case errors.Is(err, repositories.ErrLiveSessionExists):
				return retry.Unrecoverable(ErrLiveSessionExists)
			default:
				return retry.Unrecoverable(errors.Wrap(err, "create session"))
			}
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errClaimLost) }),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Debug().Uint("attempt", n+1).Err(err).Msg("counselor claim lost, retrying")
		}),
	)
	if err != nil {
		session.CounselorID = uuid.Nil
		if errors.Is(err, errClaimLost) {
			logger.FromContext(ctx, s.log).Warn().Int("lost_claims", len(lost)).Msg("assignment attempts exhausted")
			return ErrNoCounselorAvailable
		}
		return err
	}
	return nil
}
