package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type RegistryOptions struct {
	GracePeriod time.Duration // how long an empty room survives
	MaxMembers  int
}

// Registry maps room names to rooms. Its own lock only guards the map; room
// operations run under the room's lock so different rooms proceed in parallel.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
	opts  RegistryOptions
	log   zerolog.Logger
}

func NewRegistry(opts RegistryOptions, log zerolog.Logger) *Registry {
	if opts.MaxMembers <= 0 {
		opts.MaxMembers = 2
	}
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts,
		log:   log.With().Str("component", "room_registry").Logger(),
	}
}

// Join adds client to roomName, creating the room on first join. allowed
// fixes the participant ids the room accepts when it is created.
func (r *Registry) Join(roomName string, client *Client, allowed []uuid.UUID) error {
	for {
		room := r.getOrCreate(roomName, allowed)
		err := room.join(client)
		if err == errRoomClosed {
			// Lost a race with the reaper; the next lookup creates a fresh room.
			continue
		}
		if err == ErrNotParticipant {
			r.log.Warn().
				Str("room", roomName).
				Str("participant_id", client.ParticipantID.String()).
				Msg("rejected join from non-participant")
		}
		return err
	}
}

// Relay forwards a handshake payload from sender to another member of the
// same room. sender must be the connection currently registered for its
// participant. It reports false, with no error, when the recipient is not
// present.
func (r *Registry) Relay(roomName, msgType string, sender *Client, to uuid.UUID, payload json.RawMessage) (bool, error) {
	room := r.get(roomName)
	if room == nil {
		return false, ErrRoomNotFound
	}
	return room.relay(msgType, sender, to, payload)
}

// Leave removes client from a room. Another connection of the same
// participant that holds the membership is left alone.
func (r *Registry) Leave(roomName string, client *Client) bool {
	return r.leave(roomName, client.ParticipantID, client)
}

// Disconnect removes client from every room it is a member of. It is called
// synchronously when the connection drops.
func (r *Registry) Disconnect(client *Client) {
	for _, name := range client.Rooms() {
		r.leave(name, client.ParticipantID, client)
	}
}

func (r *Registry) leave(roomName string, participantID uuid.UUID, client *Client) bool {
	room := r.get(roomName)
	if room == nil {
		return false
	}

	removed, empty := room.leave(participantID, client)
	if empty {
		r.scheduleReap(room)
	}
	return removed
}

// CloseRoom destroys a room immediately, for example when its session ends.
func (r *Registry) CloseRoom(roomName string) {
	r.mu.Lock()
	room, ok := r.rooms[roomName]
	if ok {
		delete(r.rooms, roomName)
	}
	r.mu.Unlock()

	if ok {
		room.close()
		r.log.Info().Str("room", roomName).Msg("room closed")
	}
}

// Members lists the participant ids currently in roomName.
func (r *Registry) Members(roomName string) []uuid.UUID {
	room := r.get(roomName)
	if room == nil {
		return nil
	}
	return room.memberIDs()
}

// MemberCount returns the number of members in roomName.
func (r *Registry) MemberCount(roomName string) int {
	return len(r.Members(roomName))
}

func (r *Registry) roomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *Registry) get(roomName string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[roomName]
}

func (r *Registry) getOrCreate(roomName string, allowed []uuid.UUID) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomName]
	if !ok {
		room = newRoom(roomName, allowed, r.opts.MaxMembers, r.log)
		r.rooms[roomName] = room
		r.log.Debug().Str("room", roomName).Msg("room created")
	}
	return room
}

func (r *Registry) scheduleReap(room *Room) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || len(room.members) > 0 {
		return
	}
	if room.reaper != nil {
		room.reaper.Stop()
	}
	if r.opts.GracePeriod <= 0 {
		go r.reap(room)
		return
	}
	room.reaper = time.AfterFunc(r.opts.GracePeriod, func() { r.reap(room) })
}

// reap destroys room if it is still registered and still empty.
func (r *Registry) reap(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room.Name] != room {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed || len(room.members) > 0 {
		return
	}
	room.closed = true
	room.reaper = nil
	delete(r.rooms, room.Name)
	r.log.Debug().Str("room", room.Name).Msg("empty room destroyed")
}
