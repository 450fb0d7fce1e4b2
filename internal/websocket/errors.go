package websocket

import "errors"

var (
	ErrRoomFull         = errors.New("room is full")
	ErrNotParticipant   = errors.New("participant is not allowed in this room")
	ErrNotMember        = errors.New("sender is not a member of this room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrMalformedMessage = errors.New("malformed signaling message")

	errRoomClosed = errors.New("room closed")
)
