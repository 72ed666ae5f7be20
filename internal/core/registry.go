package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks which identities are online and through which connections.
// It holds the forward relation (user id -> connection set) and its inverse
// (connection id -> connection) and mutates both under one mutex so neither
// can be observed out of step with the other.
type Registry struct {
	log *zerolog.Logger

	mu     sync.RWMutex
	byUser map[string]map[string]*Conn
	byConn map[string]*Conn
	closed bool
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		log:    logger,
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// Register inserts a connection into both maps. Registering the same
// connection id again with the same identity is a no-op; with a different
// identity it fails with ErrIdentityConflict and leaves the registry
// untouched.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	if existing, ok := r.byConn[c.ID]; ok {
		if existing.Identity.UserID != c.Identity.UserID {
			r.log.Error().
				Str("conn_id", c.ID).
				Str("user_id", c.Identity.UserID).
				Str("registered_user_id", existing.Identity.UserID).
				Msg("rejected re-registration under a different identity")
			return ErrIdentityConflict
		}
		return nil
	}

	conns, ok := r.byUser[c.Identity.UserID]
	if !ok {
		conns = make(map[string]*Conn)
		r.byUser[c.Identity.UserID] = conns
	}
	conns[c.ID] = c
	r.byConn[c.ID] = c

	r.log.Debug().
		Str("conn_id", c.ID).
		Str("user_id", c.Identity.UserID).
		Int("user_conns", len(conns)).
		Msg("connection registered")
	return nil
}

// Deregister removes a connection from both maps, pruning the identity entry
// when its last connection goes away. Unknown connection ids are a no-op so
// teardown stays safe to run twice.
func (r *Registry) Deregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)

	userID := c.Identity.UserID
	if conns, ok := r.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}

	r.log.Debug().
		Str("conn_id", connID).
		Str("user_id", userID).
		Msg("connection deregistered")
}

// Get returns the live connection for an id, if any.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

// ConnectionsFor returns a snapshot of the identity's live connections.
// An identity with no connections yields an empty slice, not an error.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the identity has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// CountAll returns the total number of live connections.
func (r *Registry) CountAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

// Shutdown refuses further registrations and closes every live transport.
// Each close drives the ordinary teardown path, so the maps drain through
// Deregister rather than being dropped on the floor.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.CloseTransport("server shutting down")
	}
	r.log.Info().Int("connections", len(conns)).Msg("registry shut down")
}
