package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBufferSize = 256

// Connection is one websocket client
type Connection struct {
	ID string

	conn *websocket.Conn
	send chan *Message

	userID        string
	lastPing      time.Time
	closed        bool
	subscriptions map[string]bool

	mu       sync.RWMutex
	logger   *zap.Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection wraps conn. conn may be nil in tests.
func NewConnection(id string, conn *websocket.Conn, logger *zap.Logger, recorder Recorder) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Connection{
		ID:            id,
		conn:          conn,
		send:          make(chan *Message, sendBufferSize),
		lastPing:      time.Now(),
		subscriptions: make(map[string]bool),
		logger:        logger,
		recorder:      recorder,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Send queues msg without blocking
func (c *Connection) Send(msg *Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Send channel full, dropping message",
			zap.String("conn_id", c.ID),
			zap.String("msg_type", string(msg.Type)),
		)
		return ErrSendChannelFull
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	close(c.send)

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// UserID returns the identified player, or ""
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) setUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

func (c *Connection) UpdatePing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now()
}

func (c *Connection) LastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPing
}

func (c *Connection) subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[channel] = true
}

func (c *Connection) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, channel)
}

// IsSubscribed reports whether the connection receives channel
func (c *Connection) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[channel]
}

// Subscriptions returns the subscribed channels
func (c *Connection) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.subscriptions))
	for channel := range c.subscriptions {
		channels = append(channels, channel)
	}
	return channels
}

func (c *Connection) readPump(handler MessageHandler, onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.UpdatePing()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
			}
			return
		}

		msg, err := FromJSON(data)
		if err != nil {
			c.logger.Debug("Failed to parse message",
				zap.String("conn_id", c.ID),
				zap.Error(err),
			)
			_ = c.Send(NewErrorMessage("Invalid message format"))
			continue
		}
		c.recorder.RecordWSMessage(string(msg.Type), "received")

		if handler != nil {
			handler.HandleMessage(c, msg)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := msg.ToJSON()
			if err != nil {
				c.logger.Error("Failed to marshal message",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write message",
					zap.String("conn_id", c.ID),
					zap.Error(err),
				)
				return
			}
			c.recorder.RecordWSMessage(string(msg.Type), "sent")

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Start runs the read and write pumps; onClose runs once the reader exits
func (c *Connection) Start(handler MessageHandler, onClose func()) {
	go c.writePump()
	go c.readPump(handler, onClose)
}
