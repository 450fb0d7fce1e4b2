package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/CalmConnect/internal/models"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
)

// Notifier pushes events to connected participants. *websocket.Hub implements it.
type Notifier interface {
	Notify(participantID uuid.UUID, eventType string, payload any) int
	BroadcastRole(role, eventType string, payload any) int
}

// RoomController is the part of the room registry the state machine drives.
type RoomController interface {
	CloseRoom(roomName string)
	MemberCount(roomName string) int
}

// SignalRouter is the part of the room registry the signaling dispatcher drives.
type SignalRouter interface {
	Join(roomName string, client *websocket.Client, allowed []uuid.UUID) error
	Relay(roomName, msgType string, sender *websocket.Client, to uuid.UUID, payload json.RawMessage) (bool, error)
	Leave(roomName string, client *websocket.Client) bool
}

// RoomAuthorizer decides whether a participant may enter a session room.
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, roomName string, participantID uuid.UUID) (*models.Session, error)
}
