// Package session runs one polling runtime per registered bot and the
// registry, supervisor and manager that keep those runtimes alive.
package session

import "errors"

var (
	// ErrInvalidCredential is returned when the platform rejects a bot
	// token during registration.
	ErrInvalidCredential = errors.New("session: credential rejected by telegram")
	// ErrAlreadyRegistered is returned when a session for the same bot
	// id or token is already live.
	ErrAlreadyRegistered = errors.New("session: bot already registered")
	// ErrNotFound is returned when no live session exists for a bot id.
	ErrNotFound = errors.New("session: no live session for bot")
)
