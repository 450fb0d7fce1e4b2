package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/preetsinghmakkar/CalmConnect/internal/logger"
	"github.com/preetsinghmakkar/CalmConnect/internal/middlewares"
	"github.com/preetsinghmakkar/CalmConnect/internal/services"
	ws "github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

const messageTimeout = 5 * time.Second

type ConnOptions struct {
	SendBuffer     int
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	AllowOrigins   []string
}

type WebSocketHandler struct {
	signaling *services.SignalingService
	hub       *ws.Hub
	registry  *ws.Registry
	opts      ConnOptions
	upgrader  websocket.Upgrader
	log       zerolog.Logger
}

func NewWebSocketHandler(
	signaling *services.SignalingService,
	hub *ws.Hub,
	registry *ws.Registry,
	opts ConnOptions,
	log zerolog.Logger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		signaling: signaling,
		hub:       hub,
		registry:  registry,
		opts:      opts,
		log:       log.With().Str("component", "websocket_handler").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// HandleWebSocket is the WebSocket endpoint handler.
// MUST be protected by WebSocketAuthMiddleware.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	log := logger.FromContext(c.Request.Context(), h.log)

	auth, err := middlewares.GetAuth(c)
	if err != nil {
		log.Error().Err(err).Msg("missing authentication context")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(auth.ParticipantID, auth.Role, conn, h.opts.SendBuffer)
	h.hub.Register(client)

	log.Info().
		Str("participant_id", client.ParticipantID.String()).
		Str("role", client.Role).
		Str("conn_id", client.ID.String()).
		Msg("websocket connected")

	go h.writePump(client)
	go h.readPump(client)
}

// readPump reads frames until the connection fails, then detaches the client
// from every room before returning.
func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		h.registry.Disconnect(client)
		h.hub.Unregister(client)
		client.Close()
		h.log.Info().
			Str("participant_id", client.ParticipantID.String()).
			Str("conn_id", client.ID.String()).
			Msg("websocket disconnected")
	}()

	conn := client.Conn
	if h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("participant_id", client.ParticipantID.String()).Msg("unexpected close")
			}
			return
		}

		var msg ws.WebSocketMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			h.reject(client, "", ws.ErrMalformedMessage)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		err = h.signaling.HandleMessage(ctx, client, msg)
		cancel()
		if err != nil {
			h.reject(client, msg.Type, err)
		}
	}
}

// writePump is the only goroutine writing to the connection.
func (h *WebSocketHandler) writePump(client *ws.Client) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	conn := client.Conn
	for {
		select {
		case message := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteJSON(message); err != nil {
				h.log.Debug().Err(err).Str("participant_id", client.ParticipantID.String()).Msg("write failed")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done:
			conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *WebSocketHandler) reject(client *ws.Client, msgType string, err error) {
	event := h.log.Debug()
	if errors.Is(err, services.ErrNotParticipant) || errors.Is(err, ws.ErrNotParticipant) {
		event = h.log.Warn()
	}
	event.Err(err).
		Str("participant_id", client.ParticipantID.String()).
		Str("type", msgType).
		Msg("signaling message rejected")

	client.Enqueue(ws.OutboundMessage{
		Type:    ws.TypeError,
		Payload: ws.ErrorPayload{Message: errorMessage(err)},
	})
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}
