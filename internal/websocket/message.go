package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always outputs RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	// System messages
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
	MessageTypeAuth   = "auth"

	// Domain updates
	MessageTypeEventNew             = "event.new"
	MessageTypeGeofenceChanged      = "geofence.changed"
	MessageTypeAnalyticsInvalidated = "analytics.invalidated"
)

// Message is the envelope for every frame exchanged over the socket
type Message struct {
	// Type identifies the message kind (e.g. "event.new", "ping")
	Type string `json:"type"`

	// Payload carries the message-specific data
	Payload interface{} `json:"payload,omitempty"`

	// ID is an optional client-supplied identifier for request/response matching
	ID string `json:"id,omitempty"`

	// ReplyTo references the ID of the message being answered
	ReplyTo string `json:"reply_to,omitempty"`

	// Timestamp is when the message was created
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewMessageWithID creates a new message with an ID
func NewMessageWithID(msgType string, id string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ID = id
	return msg
}

// NewReply creates a reply to another message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	msg := NewMessage(msgType, payload)
	msg.ReplyTo = original.ID
	return msg
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// ParsePayload decodes the payload into target, round-tripping through JSON
// when the payload arrived as a generic map.
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return fmt.Errorf("message has no payload")
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload for ping messages
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload for pong responses
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// AuthPayload acknowledges the authenticated identity
type AuthPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// SystemPayload for system messages
type SystemPayload struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// GeofenceChangedPayload tells dashboards to refetch a fence
type GeofenceChangedPayload struct {
	FenceID string `json:"fenceId"`
	Action  string `json:"action"` // created, updated, deleted
}

// AnalyticsInvalidatedPayload tells dashboards their cached analytics are stale
type AnalyticsInvalidatedPayload struct {
	Reason string `json:"reason"`
}
