package chat

import "errors"

var (
	// ErrSessionClosed is returned when sending on a closed session link
	ErrSessionClosed = errors.New("session link is closed")

	// ErrAlreadyStarted is returned when starting a component twice
	ErrAlreadyStarted = errors.New("already started")
)
