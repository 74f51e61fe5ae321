package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests and feeds connections to the hub
type Server struct {
	hub      *Hub
	logger   *zap.Logger
	handler  *DefaultHandler
	upgrader websocket.Upgrader
	recorder Recorder
}

// NewServer creates a server. An empty allowedOrigins accepts same-host
// origins only; "*" accepts any.
func NewServer(logger *zap.Logger, recorder Recorder, allowedOrigins []string) *Server {
	hub := NewHub(logger, recorder)

	return &Server{
		hub:      hub,
		logger:   logger,
		handler:  NewDefaultHandler(hub, logger),
		recorder: hub.recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

// SetStateQuery enables the state request on every connection
func (s *Server) SetStateQuery(query StateQuery) {
	s.handler.SetStateQuery(query)
}

// HandleWebSocket upgrades the request
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("Failed to upgrade connection",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			return
		}

		connID, err := uuid.NewV7()
		if err != nil {
			s.logger.Error("Failed to generate connection ID", zap.Error(err))
			_ = conn.Close()
			return
		}

		wsConn := NewConnection(connID.String(), conn, s.logger, s.recorder)
		s.hub.Register(wsConn)
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			_ = s.hub.Identify(wsConn.ID, userID)
		}
		wsConn.Start(s.handler, func() { s.hub.Unregister(wsConn.ID) })

		s.logger.Info("WebSocket connection established",
			zap.String("conn_id", wsConn.ID),
			zap.String("remote_addr", r.RemoteAddr),
		)
	}
}

func (s *Server) Stats() Stats {
	return s.hub.Stats()
}

func (s *Server) Close() {
	s.hub.Close()
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
