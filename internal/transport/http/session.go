package http

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/config"
	"github.com/velling/presence-server/internal/core"
	"github.com/velling/presence-server/internal/proto"
	"github.com/velling/presence-server/internal/utils"
)

var errSendBufferFull = errors.New("send buffer full")

// session runs one connection's lifecycle: register, ack, serve inbound
// events, tear down. It is also the connection's core.Sink, so the
// dispatcher and the liveness monitor reach the transport through it.
type session struct {
	ws   *websocket.Conn
	self *core.Conn
	deps Deps
	log  *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan proto.Envelope

	registered   bool
	closeOnce    sync.Once
	teardownOnce sync.Once
}

func newSession(parent context.Context, ws *websocket.Conn, identity core.Identity, deps Deps, cfg *config.Config, logger *zerolog.Logger) *session {
	ctx, cancel := context.WithCancel(parent)

	s := &session{
		ws:     ws,
		deps:   deps,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan proto.Envelope, cfg.SendBuffer),
	}
	s.self = core.NewConn(utils.NewID(), identity, s, time.Now())
	return s
}

// Push queues an event for this connection. A full buffer fails this
// connection only; the dispatcher swallows the error.
func (s *session) Push(event string, data json.RawMessage) error {
	select {
	case s.out <- proto.Envelope{Event: event, Data: data}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return errSendBufferFull
	}
}

// Close tears the transport down. Safe to call more than once; the liveness
// monitor and the registry shutdown path both use it.
func (s *session) Close(reason string) {
	s.closeOnce.Do(func() {
		_ = s.ws.Close(websocket.StatusGoingAway, reason)
		s.cancel()
	})
}

// serve registers the connection, acknowledges the handshake and pumps the
// read/write loops until either side fails. Teardown runs exactly once, no
// matter how the session ends.
func (s *session) serve() error {
	defer s.cancel()
	defer s.teardown()

	if err := s.deps.Registry.Register(s.self); err != nil {
		return err
	}
	s.registered = true
	s.deps.Metrics.ConnOpened()
	s.log.Info().
		Str("conn_id", s.self.ID).
		Str("user_id", s.self.Identity.UserID).
		Msg("presence session started")

	if ack, err := proto.Marshal(proto.ConnectedData{
		UserID:    s.self.Identity.UserID,
		SocketID:  s.self.ID,
		Timestamp: time.Now().UTC(),
	}); err == nil {
		_ = s.Push(proto.OutConnected, ack)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.readLoop()
	}()
	go func() {
		errCh <- s.writeLoop()
	}()

	err := <-errCh
	s.cancel()
	<-errCh
	return err
}

// teardown strips the connection from all channels, then from the registry,
// in that order. Both are idempotent, so a double-fire of the close event
// stays harmless.
func (s *session) teardown() {
	s.teardownOnce.Do(func() {
		s.deps.Router.LeaveAll(s.self.ID)
		s.deps.Registry.Deregister(s.self.ID)
		if s.registered {
			s.deps.Metrics.ConnClosed()
			s.log.Info().
				Str("conn_id", s.self.ID).
				Str("user_id", s.self.Identity.UserID).
				Msg("presence session ended")
		}
	})
}

func (s *session) readLoop() error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(s.ctx, s.ws, &env); err != nil {
			return err
		}
		// Any inbound frame counts as a heartbeat.
		s.self.Touch(time.Now())
		s.handle(env)
	}
}

func (s *session) writeLoop() error {
	for {
		select {
		case env := <-s.out:
			if err := wsjson.Write(s.ctx, s.ws, env); err != nil {
				return err
			}
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

func (s *session) handle(env proto.Envelope) {
	switch env.Event {
	case proto.InPing:
		s.reply(proto.OutPong, proto.PongData{Timestamp: time.Now().UTC()})

	case proto.InNotificationRead:
		id, ok := proto.DecodeID(env.Data)
		if !ok {
			s.replyError(core.ErrCodeBadRequest, "notification id required")
			return
		}
		s.reply(proto.OutNotificationReadConfirmed, proto.NotificationReadData{NotificationID: id})

	case proto.InNotificationsReadAll:
		s.reply(proto.OutNotificationsReadAllConfirmed, proto.ReadAllConfirmedData{Timestamp: time.Now().UTC()})

	case proto.InConversationJoin:
		id, ok := proto.DecodeID(env.Data)
		if !ok {
			s.replyError(core.ErrCodeBadRequest, "conversation id required")
			return
		}
		s.deps.Router.Join(core.ConversationChannel(id), s.self.ID)

	case proto.InConversationLeave:
		id, ok := proto.DecodeID(env.Data)
		if !ok {
			s.replyError(core.ErrCodeBadRequest, "conversation id required")
			return
		}
		s.deps.Router.Leave(core.ConversationChannel(id), s.self.ID)

	case proto.InTypingStart, proto.InTypingStop:
		id, ok := proto.DecodeID(env.Data)
		if !ok {
			s.replyError(core.ErrCodeBadRequest, "conversation id required")
			return
		}
		// The full channel membership receives this, the sender's own other
		// tabs included, so all of a user's devices stay in sync.
		s.deps.Dispatcher.EmitToConversation(id, proto.OutTypingUser, proto.TypingUserData{
			UserID:         s.self.Identity.UserID,
			ConversationID: id,
			Typing:         env.Event == proto.InTypingStart,
		})

	default:
		s.replyError(core.ErrCodeUnknownEvent, "unknown event: "+env.Event)
	}
}

// reply pushes an event back to this connection only.
func (s *session) reply(event string, data any) {
	payload, err := proto.Marshal(data)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("marshal reply")
		return
	}
	if err := s.Push(event, payload); err != nil {
		s.log.Debug().Err(err).Str("event", event).Str("conn_id", s.self.ID).Msg("dropped reply")
	}
}

func (s *session) replyError(code, msg string) {
	s.reply(proto.OutError, proto.ErrorData{Code: code, Msg: msg})
}
