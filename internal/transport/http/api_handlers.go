package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/core"
	"github.com/velling/presence-server/internal/proto"
)

// APIHandlers exposes the dispatcher to external callers: REST endpoints for
// the four delivery shapes plus presence queries.
type APIHandlers struct {
	dispatcher *core.Dispatcher
	registry   *core.Registry
	log        *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(dispatcher *core.Dispatcher, registry *core.Registry, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		dispatcher: dispatcher,
		registry:   registry,
		log:        logger,
	}
}

// NotifyRequest targets a single identity across all its devices.
type NotifyRequest struct {
	UserID  string          `json:"userId" binding:"required"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NotifyBulkRequest targets an explicit list of identities.
type NotifyBulkRequest struct {
	UserIDs []string        `json:"userIds" binding:"required,min=1"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessageRequest targets a conversation channel.
type MessageRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// BroadcastRequest targets every live connection.
type BroadcastRequest struct {
	Event   string          `json:"event" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// DispatchResponse reports whether the delivery subsystem was active.
// "Nobody was online" is still delivered=true.
type DispatchResponse struct {
	Delivered bool `json:"delivered"`
}

// PresenceResponse describes one identity's live connections.
type PresenceResponse struct {
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// StatsResponse reports registry totals.
type StatsResponse struct {
	Connections int `json:"connections"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NotifyUser pushes an event to every device of one identity.
// POST /api/notifications
func (h *APIHandlers) NotifyUser(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid notify request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	event := req.Event
	if event == "" {
		event = proto.OutNotification
	}

	h.respond(c, h.dispatcher.EmitToUser(req.UserID, event, req.Payload))
}

// NotifyUsers pushes an event to the union of the listed identities.
// POST /api/notifications/bulk
func (h *APIHandlers) NotifyUsers(c *gin.Context) {
	var req NotifyBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid bulk notify request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	event := req.Event
	if event == "" {
		event = proto.OutNotification
	}

	h.respond(c, h.dispatcher.EmitToUsers(req.UserIDs, event, req.Payload))
}

// MessageConversation pushes an event to a conversation channel.
// POST /api/conversations/:id/messages
func (h *APIHandlers) MessageConversation(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid conversation message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	event := req.Event
	if event == "" {
		event = proto.OutMessage
	}

	h.respond(c, h.dispatcher.EmitToConversation(c.Param("id"), event, req.Payload))
}

// Broadcast pushes an event to every live connection.
// POST /api/broadcast
func (h *APIHandlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid broadcast request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.respond(c, h.dispatcher.Broadcast(req.Event, req.Payload))
}

// Presence reports whether an identity is online and on how many devices.
// GET /api/presence/:userId
func (h *APIHandlers) Presence(c *gin.Context) {
	userID := c.Param("userId")
	conns := h.registry.ConnectionsFor(userID)

	c.JSON(http.StatusOK, PresenceResponse{
		UserID:      userID,
		Online:      len(conns) > 0,
		Connections: len(conns),
	})
}

// Stats reports registry totals.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{Connections: h.registry.CountAll()})
}

func (h *APIHandlers) respond(c *gin.Context, delivered bool) {
	if !delivered {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "delivery unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, DispatchResponse{Delivered: true})
}
