package websocket

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// delivery is one outbound message addressed to one member.
type delivery struct {
	to  *Client
	msg OutboundMessage
}

// The plan* functions compute what a room operation sends, given the member
// table before the operation. They never mutate members and never touch the
// network; the Room applies the plan under its lock.

// planJoin announces joiner to existing members and lists them to the joiner.
func planJoin(room string, members map[uuid.UUID]*Client, joiner *Client) []delivery {
	ids := memberIDs(members, joiner.ParticipantID)

	out := make([]delivery, 0, len(ids)+1)
	for _, id := range ids {
		out = append(out, delivery{
			to: members[id],
			msg: OutboundMessage{
				Type:    TypeUserJoined,
				Payload: UserPresencePayload{UserID: joiner.ParticipantID.String()},
			},
		})
	}

	participants := make([]string, len(ids))
	for i, id := range ids {
		participants[i] = id.String()
	}
	out = append(out, delivery{
		to: joiner,
		msg: OutboundMessage{
			Type:    TypeRoomParticipants,
			Payload: RoomParticipantsPayload{Room: room, Participants: participants},
		},
	})
	return out
}

// planRelay forwards payload verbatim from sender to another member. sender
// must be the exact connection registered for its participant. A missing
// recipient yields no deliveries; handshake messages are not queued for
// departed peers.
func planRelay(members map[uuid.UUID]*Client, msgType string, sender *Client, to uuid.UUID, payload json.RawMessage) ([]delivery, error) {
	if !IsRelayType(msgType) {
		return nil, ErrMalformedMessage
	}
	if sender == nil || members[sender.ParticipantID] != sender {
		return nil, ErrNotMember
	}
	if sender.ParticipantID == to {
		return nil, ErrMalformedMessage
	}

	recipient, ok := members[to]
	if !ok {
		return nil, nil
	}
	return []delivery{{
		to:  recipient,
		msg: OutboundMessage{Type: msgType, Payload: payload},
	}}, nil
}

// planLeave tells the remaining members that leaver is gone.
func planLeave(members map[uuid.UUID]*Client, leaver uuid.UUID) []delivery {
	ids := memberIDs(members, leaver)

	out := make([]delivery, 0, len(ids))
	for _, id := range ids {
		out = append(out, delivery{
			to: members[id],
			msg: OutboundMessage{
				Type:    TypeUserLeft,
				Payload: UserPresencePayload{UserID: leaver.String()},
			},
		})
	}
	return out
}

func memberIDs(members map[uuid.UUID]*Client, exclude uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(members))
	for id := range members {
		if id == exclude {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
