package core

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/metrics"
)

// Dispatcher resolves delivery targets to live connections and pushes an
// event to each of them independently. A failed push to one connection never
// affects the others, never reaches the caller, and never mutates the
// registry; closing broken connections is the transport's job.
//
// Every method returns false only when the dispatcher itself has not been
// initialized. "Nobody was online" is a normal, silent outcome.
type Dispatcher struct {
	registry *Registry
	router   *ChannelRouter
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

// NewDispatcher builds a dispatcher over the given registry and router.
func NewDispatcher(registry *Registry, router *ChannelRouter, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		router:   router,
		log:      logger,
		metrics:  m,
	}
}

// EmitToUser delivers an event to every live connection of one identity.
func (d *Dispatcher) EmitToUser(userID, event string, data any) bool {
	if d == nil {
		return false
	}
	d.push(d.registry.ConnectionsFor(userID), event, data)
	return true
}

// EmitToUsers delivers an event to the de-duplicated union of connections
// across the given identities.
func (d *Dispatcher) EmitToUsers(userIDs []string, event string, data any) bool {
	if d == nil {
		return false
	}

	seen := make(map[string]struct{})
	var conns []*Conn
	for _, userID := range userIDs {
		for _, c := range d.registry.ConnectionsFor(userID) {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			conns = append(conns, c)
		}
	}
	d.push(conns, event, data)
	return true
}

// EmitToChannel delivers an event to the current members of a named channel.
func (d *Dispatcher) EmitToChannel(channel, event string, data any) bool {
	if d == nil {
		return false
	}

	ids := d.router.MembersOf(channel)
	conns := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := d.registry.Get(id); ok {
			conns = append(conns, c)
		}
	}
	d.push(conns, event, data)
	return true
}

// EmitToConversation delivers an event to a conversation channel.
func (d *Dispatcher) EmitToConversation(conversationID, event string, data any) bool {
	return d.EmitToChannel(ConversationChannel(conversationID), event, data)
}

// Broadcast delivers an event to every live connection.
func (d *Dispatcher) Broadcast(event string, data any) bool {
	if d == nil {
		return false
	}
	d.push(d.registry.All(), event, data)
	return true
}

// push marshals the payload once and attempts delivery to each connection in
// the snapshot. Per-connection failures are logged and swallowed.
func (d *Dispatcher) push(conns []*Conn, event string, data any) {
	if len(conns) == 0 {
		return
	}

	payload, err := gojson.Marshal(data)
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("marshal dispatch payload")
		return
	}

	for _, c := range conns {
		if err := c.Push(event, json.RawMessage(payload)); err != nil {
			d.metrics.DeliveryDropped()
			d.log.Debug().
				Err(err).
				Str("event", event).
				Str("conn_id", c.ID).
				Str("user_id", c.Identity.UserID).
				Msg("dropped delivery to connection")
			continue
		}
		d.metrics.DeliveryOK()
	}
}
