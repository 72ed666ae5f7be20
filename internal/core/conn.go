package core

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Identity is the authenticated user attached to a connection.
// Immutable once the connection is registered.
type Identity struct {
	UserID string
	Name   string
	Roles  []string
}

// Sink is the transport side of a connection. The dispatcher pushes events
// through it and the liveness monitor closes it on eviction. Implementations
// must be safe for concurrent use.
type Sink interface {
	// Push queues an event for delivery. A non-nil error means this single
	// connection did not take the event; callers treat that as local to the
	// connection and never propagate it.
	Push(event string, data json.RawMessage) error
	// Close tears the transport down with a human-readable reason. It must be
	// safe to call more than once.
	Close(reason string)
}

// Conn is one live transport session as seen by the core. It is owned by the
// registry from Register until Deregister; other components only borrow it
// for the duration of a dispatch.
type Conn struct {
	ID        string
	Identity  Identity
	CreatedAt time.Time

	sink     Sink
	lastBeat atomic.Int64 // unix nanoseconds
}

// NewConn builds a connection handle around a transport sink.
func NewConn(id string, identity Identity, sink Sink, now time.Time) *Conn {
	c := &Conn{
		ID:        id,
		Identity:  identity,
		CreatedAt: now,
		sink:      sink,
	}
	c.lastBeat.Store(now.UnixNano())
	return c
}

// Touch records a heartbeat. Any inbound frame counts.
func (c *Conn) Touch(now time.Time) {
	c.lastBeat.Store(now.UnixNano())
}

// LastBeat returns the time of the most recent heartbeat.
func (c *Conn) LastBeat() time.Time {
	return time.Unix(0, c.lastBeat.Load())
}

// Push forwards an event to the transport sink.
func (c *Conn) Push(event string, data json.RawMessage) error {
	return c.sink.Push(event, data)
}

// CloseTransport asks the transport to close. Teardown then happens through
// the transport's own close path, the same as any other disconnect.
func (c *Conn) CloseTransport(reason string) {
	c.sink.Close(reason)
}
