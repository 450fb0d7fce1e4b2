package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/dtos"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	student, counselor := ws.RoleStudent, ws.RoleCounselor

	w := s.do(t, http.MethodGet, "/api/counselors/available", s.student, student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dtos.AvailabilityResponse](t, w).AvailableCounselors)

	w = s.do(t, http.MethodPost, "/api/sessions", s.counselor, counselor, gin.H{"issue_details": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code, "counselors cannot request sessions")

	w = s.do(t, http.MethodPost, "/api/sessions", s.student, student, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/sessions", s.student, student, gin.H{"issue_details": "panic attack"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dtos.SessionResponse](t, w)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, s.counselor, created.CounselorID)
	base := "/api/sessions/" + created.ID.String()

	other := uuid.New()
	s.store.AddStudent(other)
	w = s.do(t, http.MethodPost, "/api/sessions", other, student, gin.H{"issue_details": "anxiety"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodPost, "/api/sessions", s.student, student, gin.H{"issue_details": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, base+"/accept", s.counselor, counselor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	room := decode[dtos.RoomResponse](t, w)
	assert.Equal(t, created.RoomName, room.RoomName)
	assert.Equal(t, "active", room.Status)

	w = s.do(t, http.MethodGet, base, other, student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, base+"/end", s.student, student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", decode[dtos.SessionResponse](t, w).Status)

	w = s.do(t, http.MethodPost, base+"/end", s.counselor, counselor, nil)
	require.Equal(t, http.StatusOK, w.Code, "duplicate end is absorbed")

	w = s.do(t, http.MethodPost, base+"/dismiss", s.counselor, counselor, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[struct {
		Error   string               `json:"error"`
		Session dtos.SessionResponse `json:"session"`
	}](t, w)
	assert.Equal(t, "completed", conflict.Session.Status)

	w = s.do(t, http.MethodPost, base+"/feedback", s.student, student, gin.H{"feedback": "thanks", "rating": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, base+"/feedback", s.student, student, gin.H{"feedback": "thanks", "rating": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, *decode[dtos.SessionResponse](t, w).Rating)

	w = s.do(t, http.MethodPost, base+"/notes", s.counselor, counselor, gin.H{"notes": "check in next week"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/rejoin", s.student, student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.RoomName, decode[dtos.RoomResponse](t, w).RoomName)

	w = s.do(t, http.MethodGet, "/api/counselors/available", s.counselor, counselor, nil)
	assert.Equal(t, 1, decode[dtos.AvailabilityResponse](t, w).AvailableCounselors)
}

func TestSessionHandler_BadIDs(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/sessions/not-a-uuid", s.student, ws.RoleStudent, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/sessions/"+uuid.NewString()+"/end", s.student, ws.RoleStudent, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
