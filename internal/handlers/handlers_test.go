package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	"github.com/preetsinghmakkar/CalmConnect/internal/repositories"
	"github.com/preetsinghmakkar/CalmConnect/internal/services"
	"github.com/preetsinghmakkar/CalmConnect/internal/utils"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-secret"

type testServer struct {
	router    *gin.Engine
	store     *repositories.MemoryStore
	hub       *ws.Hub
	registry  *ws.Registry
	student   uuid.UUID
	counselor uuid.UUID
}

// newTestServer wires the real services over the in-memory store, the same
// way cmd/server does.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	s := &testServer{
		store:     repositories.NewMemoryStore(),
		hub:       ws.NewHub(log),
		registry:  ws.NewRegistry(ws.RegistryOptions{GracePeriod: time.Second}, log),
		student:   uuid.New(),
		counselor: uuid.New(),
	}
	s.store.AddStudent(s.student)
	s.store.AddCounselor(s.counselor, "Dr. Mehta")

	assignment := services.NewAssignmentService(s.store, s.hub, 3, log)
	sessions := services.NewSessionService(s.store, s.hub, s.registry, services.NewReviewPrompter(s.hub),
		services.SessionPolicy{RejoinWindow: 10 * time.Minute}, log)
	signaling := services.NewSignalingService(sessions, s.registry, log)

	sessionHandler := NewSessionHandler(assignment, sessions, log)
	wsHandler := NewWebSocketHandler(signaling, s.hub, s.registry, ConnOptions{
		SendBuffer:     16,
		PongWait:       5 * time.Second,
		PingPeriod:     4 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 64 << 10,
	}, log)

	r := gin.New()
	api := r.Group("/api", middlewares.AuthMiddleware(testSecret, log))
	api.POST("/sessions", middlewares.RequireRole(ws.RoleStudent), sessionHandler.RequestSession)
	api.GET("/sessions/:id", sessionHandler.GetSession)
	api.POST("/sessions/:id/accept", middlewares.RequireRole(ws.RoleCounselor), sessionHandler.Accept)
	api.POST("/sessions/:id/end", sessionHandler.End)
	api.POST("/sessions/:id/dismiss", middlewares.RequireRole(ws.RoleCounselor), sessionHandler.Dismiss)
	api.POST("/sessions/:id/rejoin", sessionHandler.Rejoin)
	api.POST("/sessions/:id/feedback", middlewares.RequireRole(ws.RoleStudent), sessionHandler.Feedback)
	api.POST("/sessions/:id/notes", middlewares.RequireRole(ws.RoleCounselor), sessionHandler.Notes)
	api.GET("/counselors/available", sessionHandler.AvailableCounselors)
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(testSecret, log), wsHandler.HandleWebSocket)
	s.router = r
	return s
}

func bearer(t *testing.T, id uuid.UUID, role string) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, utils.AccessClaims{
		UserID: id.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, id uuid.UUID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer(t, id, role))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
