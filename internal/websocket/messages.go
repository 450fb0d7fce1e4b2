package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound message types
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
)

// Outbound message types
const (
	TypePong                   = "pong"
	TypeError                  = "error"
	TypeRoomParticipants       = "room-participants"
	TypeUserJoined             = "user-joined"
	TypeUserLeft               = "user-left"
	TypeSessionRequested       = "sessionRequested"
	TypeSessionsUpdated        = "sessionsUpdated"
	TypeClinicalReviewRequired = "clinicalReviewRequired"
)

// SessionEndedType is the per-session event name sent to the non-ending peer.
func SessionEndedType(sessionID uuid.UUID) string {
	return "sessionEnded-" + sessionID.String()
}

// IsRelayType reports whether msgType is forwarded peer to peer.
func IsRelayType(msgType string) bool {
	switch msgType {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// WebSocketMessage is the envelope every inbound frame is decoded into.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is queued on a client's send channel and written as JSON.
type OutboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// JoinRoomPayload is sent by a peer to enter a session room.
type JoinRoomPayload struct {
	Room   string `json:"room" validate:"required,max=128"`
	UserID string `json:"userId" validate:"omitempty,uuid"`
}

// LeaveRoomPayload is an explicit leave.
type LeaveRoomPayload struct {
	Room string `json:"room" validate:"required,max=128"`
}

// SignalPayload carries offer/answer/ice-candidate. Exactly one of Offer,
// Answer, Candidate is set, matching the envelope type.
type SignalPayload struct {
	Room      string          `json:"room" validate:"required,max=128"`
	From      string          `json:"from" validate:"required,uuid"`
	To        string          `json:"to" validate:"required,uuid"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// RoomParticipantsPayload is the reply to a successful join.
type RoomParticipantsPayload struct {
	Room         string   `json:"room"`
	Participants []string `json:"participants"`
}

// UserPresencePayload is used for user-joined and user-left.
type UserPresencePayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
