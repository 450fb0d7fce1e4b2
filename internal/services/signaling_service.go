package services

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/preetsinghmakkar/CalmConnect/internal/websocket"
	"github.com/rs/zerolog"
)

// SignalingService dispatches inbound websocket frames to the room registry.
// It never inspects SDP or ICE beyond checking their shape; payloads are
// forwarded to the peer as received.
type SignalingService struct {
	auth     RoomAuthorizer
	rooms    SignalRouter
	validate *validator.Validate
	log      zerolog.Logger
}

func NewSignalingService(auth RoomAuthorizer, rooms SignalRouter, log zerolog.Logger) *SignalingService {
	return &SignalingService{
		auth:     auth,
		rooms:    rooms,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "signaling").Logger(),
	}
}

// HandleMessage processes one frame from client. A returned error rejects
// that frame only; the connection stays open.
func (s *SignalingService) HandleMessage(ctx context.Context, client *websocket.Client, msg websocket.WebSocketMessage) error {
	switch msg.Type {
	case websocket.TypeJoinRoom:
		return s.handleJoin(ctx, client, msg.Payload)
	case websocket.TypeLeaveRoom:
		var p websocket.LeaveRoomPayload
		if err := s.decode(msg.Payload, &p); err != nil {
			return err
		}
		s.rooms.Leave(p.Room, client)
		return nil
	case websocket.TypeOffer, websocket.TypeAnswer, websocket.TypeICECandidate:
		return s.handleSignal(client, msg)
	case websocket.TypePing:
		client.Enqueue(websocket.OutboundMessage{Type: websocket.TypePong})
		return nil
	default:
		return errors.Wrapf(websocket.ErrMalformedMessage, "unsupported message type %q", msg.Type)
	}
}

func (s *SignalingService) handleJoin(ctx context.Context, client *websocket.Client, raw json.RawMessage) error {
	var p websocket.JoinRoomPayload
	if err := s.decode(raw, &p); err != nil {
		return err
	}
	if p.UserID != "" && p.UserID != client.ParticipantID.String() {
		s.log.Warn().
			Str("participant_id", client.ParticipantID.String()).
			Str("claimed_id", p.UserID).
			Msg("join with mismatched user id")
		return ErrNotParticipant
	}

	session, err := s.auth.AuthorizeRoom(ctx, p.Room, client.ParticipantID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			s.log.Warn().
				Str("room", p.Room).
				Str("participant_id", client.ParticipantID.String()).
				Msg("join by non-participant rejected")
		}
		return err
	}

	return s.rooms.Join(p.Room, client, []uuid.UUID{session.StudentID, session.CounselorID})
}

func (s *SignalingService) handleSignal(client *websocket.Client, msg websocket.WebSocketMessage) error {
	var p websocket.SignalPayload
	if err := s.decode(msg.Payload, &p); err != nil {
		return err
	}

	from, _ := uuid.Parse(p.From)
	to, _ := uuid.Parse(p.To)
	if from != client.ParticipantID {
		s.log.Warn().
			Str("room", p.Room).
			Str("participant_id", client.ParticipantID.String()).
			Str("claimed_from", p.From).
			Msg("spoofed sender rejected")
		return ErrNotParticipant
	}

	if err := checkSignalBody(msg.Type, p); err != nil {
		return err
	}

	delivered, err := s.rooms.Relay(p.Room, msg.Type, client, to, msg.Payload)
	if err != nil {
		return err
	}
	if !delivered {
		s.log.Debug().
			Str("room", p.Room).
			Str("type", msg.Type).
			Str("to", p.To).
			Msg("recipient not in room, message dropped")
	}
	return nil
}

// checkSignalBody verifies the payload carries the WebRTC object its type
// names, using pion's wire types. An empty candidate string marks the end of
// candidates and is forwarded like any other.
func checkSignalBody(msgType string, p websocket.SignalPayload) error {
	switch msgType {
	case websocket.TypeOffer:
		return checkDescription(p.Offer, webrtc.SDPTypeOffer)
	case websocket.TypeAnswer:
		return checkDescription(p.Answer, webrtc.SDPTypeAnswer)
	case websocket.TypeICECandidate:
		if len(p.Candidate) == 0 {
			return errors.Wrap(websocket.ErrMalformedMessage, "missing candidate")
		}
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &c); err != nil {
			return errors.Wrap(websocket.ErrMalformedMessage, "invalid candidate")
		}
		return nil
	}
	return websocket.ErrMalformedMessage
}

func checkDescription(raw json.RawMessage, want webrtc.SDPType) error {
	if len(raw) == 0 {
		return errors.Wrapf(websocket.ErrMalformedMessage, "missing %s", want)
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return errors.Wrapf(websocket.ErrMalformedMessage, "invalid %s", want)
	}
	if sd.Type != want || sd.SDP == "" {
		return errors.Wrapf(websocket.ErrMalformedMessage, "invalid %s", want)
	}
	return nil
}

func (s *SignalingService) decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return errors.Wrap(websocket.ErrMalformedMessage, "missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Wrap(websocket.ErrMalformedMessage, err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		return errors.Wrap(websocket.ErrMalformedMessage, err.Error())
	}
	return nil
}
