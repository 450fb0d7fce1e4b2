package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/services"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrWindowExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrLiveSessionExists),
		errors.Is(err, services.ErrRoomNotOpen),
		errors.Is(err, services.ErrOutcomeNotAllowed):
		return http.StatusConflict
	case errors.Is(err, services.ErrNoCounselorAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto the response. A rejected transition
// carries the session's current state so the client can resync.
func writeError(c *gin.Context, log zerolog.Logger, err error, current *models.Session) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), log).Error().
			Err(err).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": errorMessage(err)}
	if current != nil && errors.Is(err, services.ErrInvalidTransition) {
		body["session"] = dtos.NewSessionResponse(current)
	}
	c.JSON(status, body)
}

// errorMessage is the client-facing text for err. Wrapped context stays in
// the logs.
func errorMessage(err error) string {
	for _, known := range []error{
		services.ErrNoCounselorAvailable,
		services.ErrInvalidRequest,
		services.ErrInvalidTransition,
		services.ErrNotParticipant,
		services.ErrWindowExpired,
		services.ErrSessionNotFound,
		services.ErrLiveSessionExists,
		services.ErrOutcomeNotAllowed,
		services.ErrRoomNotOpen,
		ws.ErrRoomFull,
		ws.ErrNotParticipant,
		ws.ErrNotMember,
		ws.ErrRoomNotFound,
		ws.ErrMalformedMessage,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "request failed"
}
