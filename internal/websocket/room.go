package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Room is the membership table of one signaling room. All of its operations
// are serialized by mu; different rooms never share a lock.
type Room struct {
	Name       string
	CreatedAt  time.Time
	maxMembers int

	mu      sync.Mutex
	members map[uuid.UUID]*Client
	allowed map[uuid.UUID]struct{}
	closed  bool
	reaper  *time.Timer
	log     zerolog.Logger
}

func newRoom(name string, allowed []uuid.UUID, maxMembers int, log zerolog.Logger) *Room {
	set := make(map[uuid.UUID]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	return &Room{
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		maxMembers: maxMembers,
		members:    make(map[uuid.UUID]*Client),
		allowed:    set,
		log:        log.With().Str("room", name).Logger(),
	}
}

// join adds client, replacing an older connection of the same participant.
func (r *Room) join(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomClosed
	}
	pid := client.ParticipantID
	if len(r.allowed) > 0 {
		if _, ok := r.allowed[pid]; !ok {
			return ErrNotParticipant
		}
	}

	previous, rejoining := r.members[pid]
	if !rejoining && r.maxMembers > 0 && len(r.members) >= r.maxMembers {
		return ErrRoomFull
	}

	if r.reaper != nil {
		r.reaper.Stop()
		r.reaper = nil
	}

	if rejoining && previous != client {
		previous.removeRoom(r.Name)
		r.log.Info().Str("participant_id", pid.String()).Msg("replacing previous connection")
	}

	others := make(map[uuid.UUID]*Client, len(r.members))
	for id, c := range r.members {
		if id != pid {
			others[id] = c
		}
	}

	plan := planJoin(r.Name, others, client)
	r.members[pid] = client
	client.addRoom(r.Name)
	r.deliverLocked(plan)

	r.log.Debug().Str("participant_id", pid.String()).Int("members", len(r.members)).Msg("participant joined")
	return nil
}

// relay forwards a handshake message and reports whether it was delivered.
func (r *Room) relay(msgType string, sender *Client, to uuid.UUID, payload json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRoomNotFound
	}

	plan, err := planRelay(r.members, msgType, sender, to, payload)
	if err != nil {
		return false, err
	}
	if len(plan) == 0 {
		r.log.Debug().
			Str("type", msgType).
			Str("from", sender.ParticipantID.String()).
			Str("to", to.String()).
			Msg("dropping relay to absent peer")
		return false, nil
	}

	return r.deliverLocked(plan) == 0, nil
}

// leave removes pid. When client is non-nil only that exact connection is
// removed, so a stale connection cannot evict its replacement. It reports
// whether the room is now empty.
func (r *Room) leave(pid uuid.UUID, client *Client) (removed bool, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed = r.removeLocked(pid, client)
	return removed, len(r.members) == 0 && !r.closed
}

func (r *Room) removeLocked(pid uuid.UUID, client *Client) bool {
	member, ok := r.members[pid]
	if !ok || (client != nil && member != client) {
		return false
	}
	delete(r.members, pid)
	member.removeRoom(r.Name)
	r.deliverLocked(planLeave(r.members, pid))

	r.log.Debug().Str("participant_id", pid.String()).Int("members", len(r.members)).Msg("participant left")
	return true
}

// deliverLocked enqueues every delivery without blocking. A recipient whose
// buffer is full is treated as departed: it is evicted and closed, and the
// remaining members are told it left. It returns the number of evictions.
func (r *Room) deliverLocked(plan []delivery) int {
	evicted := 0
	for len(plan) > 0 {
		var stalled []*Client
		for _, d := range plan {
			if d.to.Enqueue(d.msg) {
				continue
			}
			stalled = append(stalled, d.to)
		}

		plan = nil
		for _, c := range stalled {
			if member, ok := r.members[c.ParticipantID]; !ok || member != c {
				continue
			}
			delete(r.members, c.ParticipantID)
			c.removeRoom(r.Name)
			c.Close()
			evicted++
			r.log.Warn().Str("participant_id", c.ParticipantID.String()).Msg("evicting stalled connection")
			plan = append(plan, planLeave(r.members, c.ParticipantID)...)
		}
	}
	return evicted
}

// close tears the room down and detaches every member.
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if r.reaper != nil {
		r.reaper.Stop()
		r.reaper = nil
	}
	for pid, member := range r.members {
		member.removeRoom(r.Name)
		delete(r.members, pid)
	}
}

func (r *Room) memberIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memberIDs(r.members, uuid.Nil)
}
