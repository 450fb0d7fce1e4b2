package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/CalmConnect/internal/handlers"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	jwtSecret string,
	log zerolog.Logger,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(jwtSecret, log))

	student := middlewares.RequireRole(ws.RoleStudent)
	counselor := middlewares.RequireRole(ws.RoleCounselor)

	protected.POST("/sessions", student, sessionHandler.RequestSession)
	protected.GET("/sessions/:id", sessionHandler.GetSession)
	protected.POST("/sessions/:id/accept", counselor, sessionHandler.Accept)
	protected.POST("/sessions/:id/end", sessionHandler.End)
	protected.POST("/sessions/:id/dismiss", counselor, sessionHandler.Dismiss)
	protected.POST("/sessions/:id/rejoin", sessionHandler.Rejoin)
	protected.POST("/sessions/:id/feedback", student, sessionHandler.Feedback)
	protected.POST("/sessions/:id/notes", counselor, sessionHandler.Notes)

	protected.GET("/counselors/available", sessionHandler.AvailableCounselors)
}
