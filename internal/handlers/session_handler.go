package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/services"
	"github.com/rs/zerolog"
)

type SessionHandler struct {
	assignment *services.AssignmentService
	sessions   *services.SessionService
	log        zerolog.Logger
}

func NewSessionHandler(
	assignment *services.AssignmentService,
	sessions *services.SessionService,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		assignment: assignment,
		sessions:   sessions,
		log:        log.With().Str("component", "session_handler").Logger(),
	}
}

// RequestSession books a counselor for the calling student.
func (h *SessionHandler) RequestSession(c *gin.Context) {
	auth, ok := h.auth(c)
	if !ok {
		return
	}

	var req dtos.RequestSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.assignment.RequestSession(c.Request.Context(), auth.ParticipantID, req.IssueDetails)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusCreated, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionID, auth.ParticipantID)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

// Accept is called by the assigned counselor; both peers then join the
// returned room.
func (h *SessionHandler) Accept(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	session, err := h.sessions.Accept(c.Request.Context(), sessionID, auth.ParticipantID)
	if err != nil {
		writeError(c, h.log, err, session)
		return
	}

	c.JSON(http.StatusOK, roomResponse(session))
}

func (h *SessionHandler) End(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	session, err := h.sessions.End(c.Request.Context(), sessionID, auth.ParticipantID)
	if err != nil {
		writeError(c, h.log, err, session)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) Dismiss(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	session, err := h.sessions.Dismiss(c.Request.Context(), sessionID, auth.ParticipantID)
	if err != nil {
		writeError(c, h.log, err, session)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) Rejoin(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	session, err := h.sessions.Rejoin(c.Request.Context(), sessionID, auth.ParticipantID)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusOK, roomResponse(session))
}

func (h *SessionHandler) Feedback(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req dtos.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.AttachFeedback(c.Request.Context(), sessionID, auth.ParticipantID, req.Feedback, req.Rating)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) Notes(c *gin.Context) {
	auth, sessionID, ok := h.authAndID(c)
	if !ok {
		return
	}

	var req dtos.NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.AttachNotes(c.Request.Context(), sessionID, auth.ParticipantID, req.Notes)
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

// AvailableCounselors returns how many counselors are free right now.
func (h *SessionHandler) AvailableCounselors(c *gin.Context) {
	n, err := h.assignment.AvailableCount(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err, nil)
		return
	}

	c.JSON(http.StatusOK, dtos.AvailabilityResponse{AvailableCounselors: n})
}

func (h *SessionHandler) auth(c *gin.Context) (*middlewares.AuthContext, bool) {
	auth, err := middlewares.GetAuth(c)
	if err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error().Err(err).Msg("auth context missing, middleware not installed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	return auth, true
}

func (h *SessionHandler) authAndID(c *gin.Context) (*middlewares.AuthContext, uuid.UUID, bool) {
	auth, ok := h.auth(c)
	if !ok {
		return nil, uuid.Nil, false
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, uuid.Nil, false
	}
	return auth, sessionID, true
}

func roomResponse(s *models.Session) dtos.RoomResponse {
	return dtos.RoomResponse{
		SessionID: s.ID,
		RoomName:  s.RoomName,
		Status:    string(s.Status),
	}
}
