package proto

import (
	"encoding/json"
	"time"

	gojson "github.com/goccy/go-json"
)

// Envelope is the wire format in both directions: an event name plus an
// opaque JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names (client to server). Each is scoped to the
// connection's identity automatically.
const (
	InNotificationRead     = "notification:read"
	InNotificationsReadAll = "notifications:read-all"
	InConversationJoin     = "conversation:join"
	InConversationLeave    = "conversation:leave"
	InTypingStart          = "typing:start"
	InTypingStop           = "typing:stop"
	InPing                 = "ping"
)

// Outbound event names (server to client).
const (
	OutConnected                     = "connected"
	OutPong                          = "pong"
	OutError                         = "error"
	OutNotification                  = "notification"
	OutMessage                       = "message"
	OutTypingUser                    = "typing:user"
	OutNotificationReadConfirmed     = "notification:read:confirmed"
	OutNotificationsReadAllConfirmed = "notifications:read-all:confirmed"
)

// ConnectedData acknowledges a completed handshake.
type ConnectedData struct {
	UserID    string    `json:"userId"`
	SocketID  string    `json:"socketId"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationReadData confirms a single notification read back to the
// sender.
type NotificationReadData struct {
	NotificationID string `json:"notificationId"`
}

// ReadAllConfirmedData confirms a read-all with the server-side time.
type ReadAllConfirmedData struct {
	Timestamp time.Time `json:"timestamp"`
}

// TypingUserData is broadcast to a conversation when a member starts or
// stops typing.
type TypingUserData struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Typing         bool   `json:"typing"`
}

// PongData answers an application-level ping.
type PongData struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorData describes a protocol-level error response.
type ErrorData struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Marshal encodes a payload for an envelope.
func Marshal(v any) (json.RawMessage, error) {
	b, err := gojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// DecodeID extracts an id payload. Clients send either a bare JSON string or
// an object carrying the id under a conventional key; both shapes are
// accepted.
func DecodeID(raw json.RawMessage) (string, bool) {
	var s string
	if err := gojson.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}

	var obj struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversationId"`
		NotificationID string `json:"notificationId"`
	}
	if err := gojson.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, v := range []string{obj.ID, obj.ConversationID, obj.NotificationID} {
		if v != "" {
			return v, true
		}
	}
	return "", false
}
