package websocket

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	RoleStudent   = "student"
	RoleCounselor = "counselor"
)

// Client is one authenticated websocket connection. The same connection
// receives fan-out events and carries signaling for any rooms it joins.
type Client struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	Role          string // "student" or "counselor"
	Conn          *websocket.Conn
	Send          chan OutboundMessage
	Done          chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	rooms     map[string]struct{}
}

// NewClient builds a client with a bounded send buffer. conn may be nil for
// clients driven without a network connection.
func NewClient(participantID uuid.UUID, role string, conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		ID:            uuid.New(),
		ParticipantID: participantID,
		Role:          role,
		Conn:          conn,
		Send:          make(chan OutboundMessage, sendBuffer),
		Done:          make(chan struct{}),
		rooms:         make(map[string]struct{}),
	}
}

// Enqueue queues msg without blocking. It returns false when the client is
// closed or its buffer is full.
func (c *Client) Enqueue(msg OutboundMessage) bool {
	select {
	case <-c.Done:
		return false
	default:
	}

	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// Close closes the client connection. Send is never closed so concurrent
// Enqueue calls cannot panic; the write pump exits on Done.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// IsConnected checks if client is still connected
func (c *Client) IsConnected() bool {
	select {
	case <-c.Done:
		return false
	default:
		return true
	}
}

// Rooms returns the names of the rooms this client is a member of.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Client) addRoom(name string) {
	c.mu.Lock()
	c.rooms[name] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(name string) {
	c.mu.Lock()
	delete(c.rooms, name)
	c.mu.Unlock()
}
