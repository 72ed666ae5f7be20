package core

import (
	"sort"
	"testing"
)

func newTestRouter(t *testing.T) (*Registry, *ChannelRouter) {
	t.Helper()
	reg := NewRegistry(nopLogger())
	return reg, NewChannelRouter(reg)
}

func sortedMembers(cr *ChannelRouter, channel string) []string {
	ids := cr.MembersOf(channel)
	sort.Strings(ids)
	return ids
}

func TestRouterJoinLeave(t *testing.T) {
	_, cr := newTestRouter(t)

	cr.Join(ConversationChannel("42"), "a")
	cr.Join(ConversationChannel("42"), "b")
	cr.Join(ConversationChannel("42"), "a") // repeat join is a no-op

	got := sortedMembers(cr, ConversationChannel("42"))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected members: %v", got)
	}

	cr.Leave(ConversationChannel("42"), "a")
	cr.Leave(ConversationChannel("42"), "a") // repeat leave is a no-op
	cr.Leave(ConversationChannel("7"), "b")  // absent channel is a no-op

	got = sortedMembers(cr, ConversationChannel("42"))
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("unexpected members after leave: %v", got)
	}
}

func TestRouterPrunesEmptyChannels(t *testing.T) {
	_, cr := newTestRouter(t)

	cr.Join(ConversationChannel("42"), "a")
	cr.Leave(ConversationChannel("42"), "a")

	if got := cr.MembersOf(ConversationChannel("42")); len(got) != 0 {
		t.Fatalf("expected empty channel, got %v", got)
	}
	if len(cr.channels) != 0 {
		t.Fatalf("expected channel map to be pruned, have %d entries", len(cr.channels))
	}
}

func TestRouterDerivedUserChannel(t *testing.T) {
	reg, cr := newTestRouter(t)

	if err := reg.Register(newTestConn("a", "u1", nil)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(newTestConn("b", "u1", nil)); err != nil {
		t.Fatalf("register: %v", err)
	}

	got := sortedMembers(cr, UserChannel("u1"))
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("derived channel should mirror the registry, got %v", got)
	}

	reg.Deregister("a")
	got = cr.MembersOf(UserChannel("u1"))
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("derived channel should track deregistration, got %v", got)
	}
}

func TestRouterIgnoresExplicitUserChannelJoin(t *testing.T) {
	reg, cr := newTestRouter(t)

	cr.Join(UserChannel("u1"), "a")

	// Membership stays purely registry-derived.
	if got := cr.MembersOf(UserChannel("u1")); len(got) != 0 {
		t.Fatalf("explicit join of a derived channel must not stick, got %v", got)
	}
	if err := reg.Register(newTestConn("b", "u1", nil)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := cr.MembersOf(UserChannel("u1")); len(got) != 1 || got[0] != "b" {
		t.Fatalf("unexpected derived membership: %v", got)
	}
}

func TestRouterLeaveAll(t *testing.T) {
	_, cr := newTestRouter(t)

	cr.Join(ConversationChannel("1"), "a")
	cr.Join(ConversationChannel("2"), "a")
	cr.Join(ConversationChannel("2"), "b")

	cr.LeaveAll("a")

	if got := cr.MembersOf(ConversationChannel("1")); len(got) != 0 {
		t.Fatalf("conversation 1 should be empty, got %v", got)
	}
	if got := cr.MembersOf(ConversationChannel("2")); len(got) != 1 || got[0] != "b" {
		t.Fatalf("conversation 2 should keep b, got %v", got)
	}
	if got := cr.Channels("a"); len(got) != 0 {
		t.Fatalf("a should have no joined channels, got %v", got)
	}

	// Running teardown twice must stay silent.
	cr.LeaveAll("a")
}
