package domain

import "errors"

var (
	// ErrAlreadyAnswered is returned when a participant already has an answer for a stage.
	ErrAlreadyAnswered = errors.New("stage already answered")
	// ErrNoActiveStage is returned when no stage window contains the current time.
	ErrNoActiveStage = errors.New("no active stage")
	// ErrParticipantNotFound is returned when a participant has not registered.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrItemNotFound indicates an unknown schedule item id.
	ErrItemNotFound = errors.New("schedule item not found")
	// ErrInvalidSchedule wraps schedule validation failures.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrMediaUnavailable is returned when media cannot be resolved or sent.
	ErrMediaUnavailable = errors.New("media unavailable")
	// ErrNotConnected is returned when a participant has no live connection and no mailbox room.
	ErrNotConnected = errors.New("participant not connected")
	// ErrSendTimeout is returned when a transport send exceeds its deadline.
	ErrSendTimeout = errors.New("send timed out")
)
