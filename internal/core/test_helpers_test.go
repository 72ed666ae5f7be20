package core

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// fakeSink records pushes and closes so tests can assert on delivery without
// a real transport.
type fakeSink struct {
	mu      sync.Mutex
	failing bool
	pushes  []pushRecord
	closes  []string
}

type pushRecord struct {
	event string
	data  json.RawMessage
}

func (f *fakeSink) Push(event string, data json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("transport closed")
	}
	f.pushes = append(f.pushes, pushRecord{event: event, data: data})
	return nil
}

func (f *fakeSink) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, reason)
}

func (f *fakeSink) pushed() []pushRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushRecord(nil), f.pushes...)
}

func (f *fakeSink) closeReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closes...)
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestConn(id, userID string, sink Sink) *Conn {
	if sink == nil {
		sink = &fakeSink{}
	}
	return NewConn(id, Identity{UserID: userID, Name: userID}, sink, time.Now())
}
