package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aetherflow/lobby/internal/lobby"
)

const stateQueryTimeout = 2 * time.Second

// MessageHandler handles inbound frames
type MessageHandler interface {
	HandleMessage(conn *Connection, msg *Message)
}

// StateQuery reads the connection state from outside the lobby loop
type StateQuery func(ctx context.Context) (lobby.ConnectionState, error)

// DefaultHandler serves the lobby websocket protocol
type DefaultHandler struct {
	hub    *Hub
	logger *zap.Logger
	query  StateQuery
}

func NewDefaultHandler(hub *Hub, logger *zap.Logger) *DefaultHandler {
	return &DefaultHandler{
		hub:    hub,
		logger: logger,
	}
}

// SetStateQuery enables the state request
func (h *DefaultHandler) SetStateQuery(query StateQuery) {
	h.query = query
}

func (h *DefaultHandler) HandleMessage(conn *Connection, msg *Message) {
	h.logger.Debug("Handling message",
		zap.String("conn_id", conn.ID),
		zap.String("msg_type", string(msg.Type)),
		zap.String("msg_id", msg.ID),
	)

	switch msg.Type {
	case MessageTypePing:
		conn.UpdatePing()
		_ = conn.Send(reply(msg, MessageTypePong, map[string]interface{}{
			"timestamp": msg.Timestamp,
		}))

	case MessageTypeIdentify:
		h.handleIdentify(conn, msg)

	case MessageTypeSubscribe:
		h.handleSubscribe(conn, msg, true)

	case MessageTypeUnsubscribe:
		h.handleSubscribe(conn, msg, false)

	case MessageTypeState:
		h.handleState(conn, msg)

	default:
		h.logger.Debug("Unknown message type",
			zap.String("conn_id", conn.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		_ = conn.Send(NewErrorMessage("Unknown message type"))
	}
}

func (h *DefaultHandler) handleIdentify(conn *Connection, msg *Message) {
	userID, ok := msg.stringField("user_id")
	if !ok {
		_ = conn.Send(NewErrorMessage("user_id is required"))
		return
	}

	if err := h.hub.Identify(conn.ID, userID); err != nil {
		_ = conn.Send(NewErrorMessage("Failed to identify: " + err.Error()))
		return
	}
	_ = conn.Send(reply(msg, MessageTypeIdentified, IdentifyData{UserID: userID}))
}

func (h *DefaultHandler) handleSubscribe(conn *Connection, msg *Message, subscribe bool) {
	channel, ok := msg.stringField("channel")
	if !ok {
		_ = conn.Send(NewErrorMessage("Channel is required"))
		return
	}
	if channel != ChannelLobby && channel != ChannelWorld {
		_ = conn.Send(NewErrorMessage("Unknown channel: " + channel))
		return
	}

	var err error
	if subscribe {
		err = h.hub.SubscribeChannel(conn.ID, channel)
	} else {
		err = h.hub.UnsubscribeChannel(conn.ID, channel)
	}
	if err != nil {
		_ = conn.Send(NewErrorMessage("Failed to update subscription: " + err.Error()))
		return
	}

	_ = conn.Send(reply(msg, msg.Type, SubscribeData{Channel: channel}))
}

func (h *DefaultHandler) handleState(conn *Connection, msg *Message) {
	if h.query == nil {
		_ = conn.Send(NewErrorMessage("State is not available"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stateQueryTimeout)
	defer cancel()

	state, err := h.query(ctx)
	if err != nil {
		_ = conn.Send(NewErrorMessage("Failed to read state: " + err.Error()))
		return
	}
	_ = conn.Send(reply(msg, MessageTypeState, state))
}
