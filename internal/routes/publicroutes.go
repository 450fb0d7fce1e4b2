package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/CalmConnect/internal/handlers"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	"github.com/rs/zerolog"
)

func RegisterPublicEndpoints(
	router *gin.Engine,
	webSocketHandler *handlers.WebSocketHandler,
	jwtSecret string,
	log zerolog.Logger,
) {
	// Browsers cannot send headers on the upgrade request, so the token
	// travels as a query parameter and is verified before the upgrade.
	wsAuth := middlewares.WebSocketAuthMiddleware(jwtSecret, log)
	router.GET("/ws", wsAuth, webSocketHandler.HandleWebSocket)
}
