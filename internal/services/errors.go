package services

import "errors"

var (
	ErrNoCounselorAvailable = errors.New("no counselor available")
	ErrInvalidRequest       = errors.New("invalid session request")
	ErrInvalidTransition    = errors.New("invalid session transition")
	ErrNotParticipant       = errors.New("not a participant of this session")
	ErrWindowExpired        = errors.New("rejoin window expired")
	ErrSessionNotFound      = errors.New("session not found")
	ErrLiveSessionExists    = errors.New("student already has a live session")
	ErrOutcomeNotAllowed    = errors.New("session outcome can only be recorded after completion")
	ErrRoomNotOpen          = errors.New("session room is not open")

	errClaimLost = errors.New("counselor claimed by a concurrent request")
)
