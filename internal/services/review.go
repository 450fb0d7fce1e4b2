package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
)

// ReviewHook is called after a counselor completes a session so the clinical
// review step can begin.
type ReviewHook interface {
	RequireReview(ctx context.Context, session *models.Session) error
}

type NoopReviewHook struct{}

func (NoopReviewHook) RequireReview(context.Context, *models.Session) error { return nil }

// ReviewPrompter asks the counselor's open dashboards to show the review form.
type ReviewPrompter struct {
	notifier Notifier
}

func NewReviewPrompter(notifier Notifier) *ReviewPrompter {
	return &ReviewPrompter{notifier: notifier}
}

func (p *ReviewPrompter) RequireReview(_ context.Context, session *models.Session) error {
	event := dtos.ClinicalReviewEvent{
		SessionID: session.ID,
		StudentID: session.StudentID,
	}
	if session.EndedAt != nil {
		event.EndedAt = *session.EndedAt
	}
	if p.notifier.Notify(session.CounselorID, websocket.TypeClinicalReviewRequired, event) == 0 {
		return errors.Errorf("counselor %s not reachable for review of session %s", session.CounselorID, session.ID)
	}
	return nil
}
