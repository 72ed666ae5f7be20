package core

import (
	"testing"

	gojson "github.com/goccy/go-json"
)

func newTestDispatcher(t *testing.T) (*Registry, *ChannelRouter, *Dispatcher) {
	t.Helper()
	reg := NewRegistry(nopLogger())
	router := NewChannelRouter(reg)
	return reg, router, NewDispatcher(reg, router, nopLogger(), nil)
}

func registerSink(t *testing.T, reg *Registry, connID, userID string) *fakeSink {
	t.Helper()
	sink := &fakeSink{}
	if err := reg.Register(newTestConn(connID, userID, sink)); err != nil {
		t.Fatalf("register %s: %v", connID, err)
	}
	return sink
}

func eventsOf(sink *fakeSink) []string {
	var events []string
	for _, p := range sink.pushed() {
		events = append(events, p.event)
	}
	return events
}

func TestDispatcherMultiDeviceFanOut(t *testing.T) {
	reg, _, d := newTestDispatcher(t)

	a := registerSink(t, reg, "a", "u1")
	b := registerSink(t, reg, "b", "u1")
	c := registerSink(t, reg, "c", "u1")
	other := registerSink(t, reg, "d", "u2")

	if ok := d.EmitToUser("u1", "notification", map[string]string{"id": "n1"}); !ok {
		t.Fatal("dispatch should report the subsystem active")
	}

	for name, sink := range map[string]*fakeSink{"a": a, "b": b, "c": c} {
		if got := eventsOf(sink); len(got) != 1 || got[0] != "notification" {
			t.Fatalf("connection %s: expected one notification, got %v", name, got)
		}
	}
	if got := eventsOf(other); len(got) != 0 {
		t.Fatalf("u2 must not receive u1's notification, got %v", got)
	}
}

func TestDispatcherConversationScoping(t *testing.T) {
	reg, router, d := newTestDispatcher(t)

	in42 := registerSink(t, reg, "a", "u1")
	also42 := registerSink(t, reg, "b", "u2")
	in7 := registerSink(t, reg, "c", "u3")
	nowhere := registerSink(t, reg, "e", "u4")

	router.Join(ConversationChannel("42"), "a")
	router.Join(ConversationChannel("42"), "b")
	router.Join(ConversationChannel("7"), "c")

	d.EmitToConversation("42", "message", map[string]string{"text": "hi"})

	if got := eventsOf(in42); len(got) != 1 {
		t.Fatalf("member of conversation 42 missed the message: %v", got)
	}
	if got := eventsOf(also42); len(got) != 1 {
		t.Fatalf("member of conversation 42 missed the message: %v", got)
	}
	if got := eventsOf(in7); len(got) != 0 {
		t.Fatalf("member of conversation 7 must not receive it, got %v", got)
	}
	if got := eventsOf(nowhere); len(got) != 0 {
		t.Fatalf("unjoined connection must not receive it, got %v", got)
	}
}

func TestDispatcherIsolatesFailedSend(t *testing.T) {
	reg, router, d := newTestDispatcher(t)

	ok1 := registerSink(t, reg, "a", "u1")
	broken := &fakeSink{failing: true}
	if err := reg.Register(newTestConn("b", "u2", broken)); err != nil {
		t.Fatalf("register b: %v", err)
	}
	ok2 := registerSink(t, reg, "c", "u3")

	for _, id := range []string{"a", "b", "c"} {
		router.Join(ConversationChannel("9"), id)
	}

	if ok := d.EmitToConversation("9", "message", "payload"); !ok {
		t.Fatal("a single failed send must not fail the dispatch")
	}

	if got := eventsOf(ok1); len(got) != 1 {
		t.Fatalf("healthy connection a missed the message: %v", got)
	}
	if got := eventsOf(ok2); len(got) != 1 {
		t.Fatalf("healthy connection c missed the message: %v", got)
	}
	// The failed send must not evict the connection; that is the transport's
	// close path, not the dispatcher's.
	if _, ok := reg.Get("b"); !ok {
		t.Fatal("failed send must not mutate the registry")
	}
}

func TestDispatcherEmitToUsersDeduplicates(t *testing.T) {
	reg, _, d := newTestDispatcher(t)

	a := registerSink(t, reg, "a", "u1")
	b := registerSink(t, reg, "b", "u2")

	d.EmitToUsers([]string{"u1", "u1", "u2", "ghost"}, "notification", nil)

	if got := eventsOf(a); len(got) != 1 {
		t.Fatalf("expected exactly one delivery to u1, got %v", got)
	}
	if got := eventsOf(b); len(got) != 1 {
		t.Fatalf("expected exactly one delivery to u2, got %v", got)
	}
}

func TestDispatcherBroadcast(t *testing.T) {
	reg, _, d := newTestDispatcher(t)

	sinks := []*fakeSink{
		registerSink(t, reg, "a", "u1"),
		registerSink(t, reg, "b", "u2"),
		registerSink(t, reg, "c", "u3"),
	}

	d.Broadcast("announcement", map[string]string{"text": "maintenance"})

	for i, sink := range sinks {
		if got := eventsOf(sink); len(got) != 1 || got[0] != "announcement" {
			t.Fatalf("connection %d: expected announcement, got %v", i, got)
		}
	}
}

func TestDispatcherPayloadReachesSinkAsJSON(t *testing.T) {
	reg, _, d := newTestDispatcher(t)
	sink := registerSink(t, reg, "a", "u1")

	d.EmitToUser("u1", "notification", map[string]any{"id": "n1", "unread": 3})

	pushes := sink.pushed()
	if len(pushes) != 1 {
		t.Fatalf("expected one push, got %d", len(pushes))
	}

	var decoded struct {
		ID     string `json:"id"`
		Unread int    `json:"unread"`
	}
	if err := gojson.Unmarshal(pushes[0].data, &decoded); err != nil {
		t.Fatalf("unmarshal delivered payload: %v", err)
	}
	if decoded.ID != "n1" || decoded.Unread != 3 {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestNilDispatcherReportsUnavailable(t *testing.T) {
	var d *Dispatcher

	if d.EmitToUser("u1", "notification", nil) {
		t.Fatal("nil dispatcher must report unavailable")
	}
	if d.EmitToUsers([]string{"u1"}, "notification", nil) {
		t.Fatal("nil dispatcher must report unavailable")
	}
	if d.EmitToChannel(ConversationChannel("1"), "message", nil) {
		t.Fatal("nil dispatcher must report unavailable")
	}
	if d.Broadcast("announcement", nil) {
		t.Fatal("nil dispatcher must report unavailable")
	}
}
