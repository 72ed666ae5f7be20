package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/config"
)

// WSHandler upgrades HTTP connections into presence sessions. The handshake
// credential is taken from the Authorization header, falling back to a
// `token` query parameter; verification failures reject the request before
// the upgrade, so no registry state is ever touched for a bad credential.
type WSHandler struct {
	deps Deps
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{deps: deps, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity, err := h.deps.Verifier.Verify(handshakeCredential(r))
	if err != nil {
		h.deps.Metrics.HandshakeRejected()
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	s := newSession(r.Context(), conn, identity, h.deps, h.cfg, h.log)
	err = s.serve()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if st := websocket.CloseStatus(err); st != -1 {
			status = st
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Debug().Err(err).Str("conn_id", s.self.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshakeCredential extracts the bearer credential from the primary auth
// header or the token query fallback.
func handshakeCredential(r *stdhttp.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
