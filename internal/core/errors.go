package core

import "errors"

// Error codes surfaced to clients in error envelopes.
const (
	ErrCodeUnauthenticated  = "unauthenticated"
	ErrCodeIdentityConflict = "identity_conflict"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnknownEvent     = "unknown_event"
)

var (
	// ErrIdentityConflict means a connection id was re-registered under a
	// different identity. This is an integration bug, not a runtime condition.
	ErrIdentityConflict = errors.New("connection already registered under a different identity")
	// ErrRegistryClosed is returned by Register after Shutdown.
	ErrRegistryClosed = errors.New("registry is shut down")
)
