package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aetherflow/lobby/internal/lobby"
	"github.com/aetherflow/lobby/internal/world"
)

var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendChannelFull    = errors.New("send channel full")
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be shorter than pongWait
	maxMessageSize = 64 * 1024
	cleanupPeriod  = 30 * time.Second
)

// Recorder receives websocket and notification counters
type Recorder interface {
	RecordWSConnection(connected bool)
	RecordWSMessage(msgType, direction string)
	RecordNotification(event string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWSConnection(bool)         {}
func (nopRecorder) RecordWSMessage(string, string) {}
func (nopRecorder) RecordNotification(string)      {}

// Stats is a snapshot of the hub
type Stats struct {
	TotalConnections int `json:"total_connections"`
	IdentifiedUsers  int `json:"identified_users"`
	TotalChannels    int `json:"total_channels"`
}

// Hub tracks connections and pushes lobby events to them. It implements
// lobby.Notifier and lobby.FailureNotifier; those methods run on the lobby
// loop and never block on a client.
type Hub struct {
	connections map[string]*Connection
	userConns   map[string][]string
	channels    map[string]map[string]bool

	mu       sync.RWMutex
	logger   *zap.Logger
	recorder Recorder

	// state is read from notifier callbacks, which run on the lobby loop
	state func() lobby.ConnectionState

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub; recorder may be nil
func NewHub(logger *zap.Logger, recorder Recorder) *Hub {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]string),
		channels:    make(map[string]map[string]bool),
		logger:      logger,
		recorder:    recorder,
		ctx:         ctx,
		cancel:      cancel,
	}

	go hub.cleanupTask()

	return hub
}

// SetStateSource sets the snapshot attached to lobby events. fn is only
// called from notifier callbacks.
func (h *Hub) SetStateSource(fn func() lobby.ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = fn
}

// Register adds conn and subscribes it to the lobby channel
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn.ID] = conn
	h.addToChannel(ChannelLobby, conn)
	h.recorder.RecordWSConnection(true)

	h.logger.Info("Connection registered",
		zap.String("conn_id", conn.ID),
		zap.Int("total_connections", len(h.connections)),
	)
}

// Unregister removes the connection; unknown ids are ignored
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.remove(connID) {
		h.logger.Info("Connection unregistered",
			zap.String("conn_id", connID),
			zap.Int("total_connections", len(h.connections)),
		)
	}
}

func (h *Hub) GetConnection(connID string) (*Connection, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, exists := h.connections[connID]
	if !exists {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Broadcast sends msg to every connection and returns the number reached
func (h *Hub) Broadcast(msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conn := range h.connections {
		if err := conn.Send(msg); err == nil {
			count++
		}
	}
	return count
}

// BroadcastToChannel sends msg to the channel's subscribers
func (h *Hub) BroadcastToChannel(channel string, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for connID := range h.channels[channel] {
		if conn, exists := h.connections[connID]; exists {
			if err := conn.Send(msg); err == nil {
				count++
			}
		}
	}
	return count
}

// SendToUser sends msg to every connection identified as userID
func (h *Hub) SendToUser(userID string, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, connID := range h.userConns[userID] {
		if conn, exists := h.connections[connID]; exists {
			if err := conn.Send(msg); err == nil {
				count++
			}
		}
	}
	return count
}

func (h *Hub) SubscribeChannel(connID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return ErrConnectionNotFound
	}
	h.addToChannel(channel, conn)

	h.logger.Debug("Subscribed to channel",
		zap.String("conn_id", connID),
		zap.String("channel", channel),
		zap.Int("channel_subscribers", len(h.channels[channel])),
	)
	return nil
}

func (h *Hub) UnsubscribeChannel(connID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return ErrConnectionNotFound
	}
	conn.unsubscribe(channel)
	h.removeFromChannel(channel, connID)
	return nil
}

// Identify binds a connection to a player id
func (h *Hub) Identify(connID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[connID]
	if !exists {
		return ErrConnectionNotFound
	}
	if prev := conn.UserID(); prev != "" {
		h.removeUserConn(prev, connID)
	}
	conn.setUserID(userID)
	h.userConns[userID] = append(h.userConns[userID], connID)

	h.logger.Info("Connection identified",
		zap.String("conn_id", connID),
		zap.String("user_id", userID),
	)
	return nil
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		TotalConnections: len(h.connections),
		IdentifiedUsers:  len(h.userConns),
		TotalChannels:    len(h.channels),
	}
}

// OnConnecting implements lobby.Notifier
func (h *Hub) OnConnecting() {
	h.notify(EventConnecting, LobbyEvent{})
}

// OnConnected implements lobby.Notifier
func (h *Hub) OnConnected() {
	h.notify(EventConnected, LobbyEvent{})
}

// OnDisconnected implements lobby.Notifier
func (h *Hub) OnDisconnected() {
	h.notify(EventDisconnected, LobbyEvent{})
}

// OnFailed implements lobby.FailureNotifier
func (h *Hub) OnFailed(op lobby.Operation, err error) {
	event := LobbyEvent{Op: op.String()}
	if err != nil {
		event.Error = err.Error()
	}
	h.notify(EventFailed, event)
}

// OnTravel publishes a context switch to the world channel
func (h *Hub) OnTravel(ctx world.Context) {
	h.recorder.RecordNotification(EventTravel)
	h.BroadcastToChannel(ChannelWorld, NewMessage(MessageTypeNotify, NotifyData{
		Channel: ChannelWorld,
		Event:   EventTravel,
		Data:    ctx,
	}))
}

func (h *Hub) notify(event string, data LobbyEvent) {
	h.mu.RLock()
	state := h.state
	h.mu.RUnlock()

	if state != nil {
		snapshot := state()
		data.State = &snapshot
	}

	h.recorder.RecordNotification(event)
	count := h.BroadcastToChannel(ChannelLobby, NewMessage(MessageTypeNotify, NotifyData{
		Channel: ChannelLobby,
		Event:   event,
		Data:    data,
	}))

	h.logger.Debug("Lobby event pushed",
		zap.String("event", event),
		zap.Int("subscribers", count),
	)
}

// Close closes every connection and stops the cleanup task
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancel()
	for _, conn := range h.connections {
		_ = conn.Close()
	}

	h.logger.Info("Hub closed")
}

// addToChannel requires h.mu held for writing
func (h *Hub) addToChannel(channel string, conn *Connection) {
	conn.subscribe(channel)
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[string]bool)
	}
	h.channels[channel][conn.ID] = true
}

// remove requires h.mu held for writing
func (h *Hub) remove(connID string) bool {
	conn, exists := h.connections[connID]
	if !exists {
		return false
	}

	if userID := conn.UserID(); userID != "" {
		h.removeUserConn(userID, connID)
	}
	for _, channel := range conn.Subscriptions() {
		h.removeFromChannel(channel, connID)
	}
	delete(h.connections, connID)
	h.recorder.RecordWSConnection(false)
	return true
}

func (h *Hub) removeUserConn(userID, connID string) {
	connList := h.userConns[userID]
	for i, id := range connList {
		if id == connID {
			h.userConns[userID] = append(connList[:i], connList[i+1:]...)
			break
		}
	}

	if len(h.userConns[userID]) == 0 {
		delete(h.userConns, userID)
	}
}

func (h *Hub) removeFromChannel(channel, connID string) {
	if channelConns, exists := h.channels[channel]; exists {
		delete(channelConns, connID)
		if len(channelConns) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) cleanupTask() {
	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupDeadConnections(time.Now())
		case <-h.ctx.Done():
			return
		}
	}
}

// cleanupDeadConnections drops closed connections and those silent for
// two pong periods
func (h *Hub) cleanupDeadConnections(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	timeout := 2 * pongWait
	dead := make([]string, 0)
	for connID, conn := range h.connections {
		if conn.IsClosed() || now.Sub(conn.LastPing()) > timeout {
			dead = append(dead, connID)
		}
	}

	for _, connID := range dead {
		if conn, exists := h.connections[connID]; exists {
			_ = conn.Close()
			h.remove(connID)
		}
	}

	if len(dead) > 0 {
		h.logger.Info("Cleaned up dead connections",
			zap.Int("count", len(dead)),
			zap.Int("remaining", len(h.connections)),
		)
	}
	return len(dead)
}
