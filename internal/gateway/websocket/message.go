package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aetherflow/lobby/internal/lobby"
)

// MessageType identifies a websocket frame
type MessageType string

const (
	// system
	MessageTypePing       MessageType = "ping"
	MessageTypePong       MessageType = "pong"
	MessageTypeError      MessageType = "error"
	MessageTypeIdentify   MessageType = "identify"
	MessageTypeIdentified MessageType = "identified"

	// lobby
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeState       MessageType = "state"
	MessageTypeNotify      MessageType = "notify"
)

const (
	// ChannelLobby carries connection events; every connection starts subscribed
	ChannelLobby = "lobby"
	// ChannelWorld carries context switches
	ChannelWorld = "world"
)

const (
	EventConnecting   = "connecting"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventFailed       = "failed"
	EventTravel       = "travel"
)

// Message is the envelope of every frame in either direction
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// NewMessage creates a message with a fresh UUIDv7 id
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		ID:        newMessageID(),
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewErrorMessage creates an error frame
func NewErrorMessage(err string) *Message {
	return &Message{
		ID:        newMessageID(),
		Type:      MessageTypeError,
		Timestamp: time.Now(),
		Error:     err,
	}
}

// reply creates a message answering req
func reply(req *Message, msgType MessageType, data interface{}) *Message {
	msg := NewMessage(msgType, data)
	msg.RequestID = req.ID
	return msg
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// stringField reads a string member of an inbound data object
func (m *Message) stringField(key string) (string, bool) {
	data, ok := m.Data.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := data[key].(string)
	return v, ok && v != ""
}

// IdentifyData binds a connection to a player
type IdentifyData struct {
	UserID string `json:"user_id"`
}

// SubscribeData names a channel
type SubscribeData struct {
	Channel string `json:"channel"`
}

// NotifyData is pushed to channel subscribers
type NotifyData struct {
	Channel string      `json:"channel"`
	Event   string      `json:"event"`
	Data    interface{} `json:"data,omitempty"`
}

// LobbyEvent is the payload of a lobby channel notification
type LobbyEvent struct {
	Op    string                 `json:"op,omitempty"`
	Error string                 `json:"error,omitempty"`
	State *lobby.ConnectionState `json:"state,omitempty"`
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "unknown"
	}
	return id.String()
}
