package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/utils"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

type authContextKey struct{}

// AuthContext is the verified caller identity. Role always comes from the
// token, never from request parameters.
type AuthContext struct {
	ParticipantID uuid.UUID
	Role          string
}

// AuthMiddleware authenticates API requests with an Authorization: Bearer token.
func AuthMiddleware(jwtSecret string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		authenticate(c, token, jwtSecret, log)
	}
}

// WebSocketAuthMiddleware authenticates the upgrade request from the token
// query parameter, since browsers cannot set headers on websocket requests.
// Must be used BEFORE the upgrade.
func WebSocketAuthMiddleware(jwtSecret string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		authenticate(c, token, jwtSecret, log)
	}
}

func authenticate(c *gin.Context, token, jwtSecret string, log zerolog.Logger) {
	claims, err := utils.ParseAccessToken(token, jwtSecret)
	if err != nil {
		logger.FromContext(c.Request.Context(), log).Debug().Err(err).Str("path", c.FullPath()).Msg("token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	participantID, err := claims.ParticipantID()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	if claims.Role != websocket.RoleStudent && claims.Role != websocket.RoleCounselor {
		logger.FromContext(c.Request.Context(), log).Warn().
			Str("participant_id", participantID.String()).
			Str("role", claims.Role).
			Msg("unsupported role")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not permitted"})
		return
	}

	auth := &AuthContext{ParticipantID: participantID, Role: claims.Role}
	c.Set(ContextUserID, participantID)
	c.Set(ContextRole, claims.Role)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), authContextKey{}, auth))

	c.Next()
}

// RequireRole rejects callers whose token carries a different role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only a " + role + " can do this"})
			return
		}
		c.Next()
	}
}

// GetAuth retrieves the caller identity set by either middleware.
func GetAuth(c *gin.Context) (*AuthContext, error) {
	val := c.Request.Context().Value(authContextKey{})
	if val == nil {
		return nil, errors.New("authentication context not found")
	}

	auth, ok := val.(*AuthContext)
	if !ok {
		return nil, errors.New("invalid authentication context type")
	}

	return auth, nil
}
