package core

import (
	"strings"
	"sync"
)

const (
	userChannelPrefix         = "user:"
	conversationChannelPrefix = "conversation:"
)

// UserChannel names the derived per-identity channel. Its membership is
// computed from the registry, never stored.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// ConversationChannel names the explicitly-joined channel for a conversation.
func ConversationChannel(conversationID string) string {
	return conversationChannelPrefix + conversationID
}

// ChannelRouter maintains named channel membership and resolves a channel
// name to the connection ids currently in it. Channels in the user: family
// delegate to the registry so a user's personal channel can never drift from
// their actual live connections.
type ChannelRouter struct {
	registry *Registry

	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> conn ids
	joined   map[string]map[string]struct{} // conn id -> channels
}

// NewChannelRouter builds a router that resolves derived channels through
// the given registry.
func NewChannelRouter(registry *Registry) *ChannelRouter {
	return &ChannelRouter{
		registry: registry,
		channels: make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a channel. Joining twice is a no-op. Derived
// user: channels are never joined explicitly; such requests are ignored.
func (cr *ChannelRouter) Join(channel, connID string) {
	if strings.HasPrefix(channel, userChannelPrefix) {
		return
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	members, ok := cr.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		cr.channels[channel] = members
	}
	members[connID] = struct{}{}

	chans, ok := cr.joined[connID]
	if !ok {
		chans = make(map[string]struct{})
		cr.joined[connID] = chans
	}
	chans[channel] = struct{}{}
}

// Leave removes a connection from a channel, pruning the channel when it
// empties. Leaving a channel the connection is not in is a no-op.
func (cr *ChannelRouter) Leave(channel, connID string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.leaveLocked(channel, connID)
}

// LeaveAll strips a connection from every explicitly-joined channel. Called
// during teardown; derived channels need no action since the registry forgets
// the connection in the same logical step.
func (cr *ChannelRouter) LeaveAll(connID string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	for channel := range cr.joined[connID] {
		cr.leaveLocked(channel, connID)
	}
}

func (cr *ChannelRouter) leaveLocked(channel, connID string) {
	if members, ok := cr.channels[channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(cr.channels, channel)
		}
	}
	if chans, ok := cr.joined[connID]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(cr.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the connection ids in a channel. The user:
// family is resolved through the registry.
func (cr *ChannelRouter) MembersOf(channel string) []string {
	if userID, ok := strings.CutPrefix(channel, userChannelPrefix); ok {
		conns := cr.registry.ConnectionsFor(userID)
		ids := make([]string, 0, len(conns))
		for _, c := range conns {
			ids = append(ids, c.ID)
		}
		return ids
	}

	cr.mu.RLock()
	defer cr.mu.RUnlock()

	members := cr.channels[channel]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// Channels returns a snapshot of the channels a connection has explicitly
// joined.
func (cr *ChannelRouter) Channels(connID string) []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	chans := cr.joined[connID]
	out := make([]string, 0, len(chans))
	for ch := range chans {
		out = append(out, ch)
	}
	return out
}
