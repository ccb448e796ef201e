package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"huddle/internal/config"
	"huddle/internal/ratelimit"
	"huddle/internal/session"
)

// Server upgrades HTTP requests to WebSocket connections and hands them to
// the session manager.
type Server struct {
	manager  *session.Manager
	limits   config.LimitsConfig
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a WebSocket server for the given session manager.
func NewServer(manager *session.Manager, limits config.LimitsConfig, log *zap.Logger) *Server {
	return &Server{
		manager: manager,
		limits:  limits,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWs handles a WebSocket upgrade request and starts the connection's
// read and write pumps.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade error", zap.Error(err))
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, 256),
		manager: s.manager,
		limiter: ratelimit.NewLimiter(s.limits.MessagesPerSecond, s.limits.MessageBurst),
		maxSize: s.limits.MaxMessageSize,
		log:     s.log,
		done:    make(chan struct{}),
	}

	s.log.Debug("connection established", zap.String("connId", client.id))

	go client.writePump()
	go client.readPump()
}
