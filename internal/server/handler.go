package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/observability"
)

// Constants for WebSocket timeouts
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Stream pushes snapshot and clock updates to dashboard WebSocket clients
type Stream struct {
	upgrader       websocket.Upgrader
	authToken      string
	mon            Monitor
	metrics        *observability.Metrics
	logger         zerolog.Logger
	allowedOrigins []string

	mutex   sync.RWMutex
	clients map[string]*StreamClient
}

// StreamClient represents a connected dashboard
type StreamClient struct {
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewStream creates a WebSocket handler. An empty authToken disables the
// bearer check.
func NewStream(authToken string, mon Monitor, metrics *observability.Metrics, logger zerolog.Logger, allowedOrigins ...string) *Stream {
	s := &Stream{
		authToken:      authToken,
		mon:            mon,
		metrics:        metrics,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[string]*StreamClient),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	return s
}

// checkOrigin validates the Origin header against the allowlist
func (s *Stream) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}

	s.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP upgrades the request and streams updates until the client leaves
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.validateToken(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	s.handleConnection(conn)
}

// validateToken accepts "Authorization: Bearer <token>" or, for browsers
// that cannot set headers on WebSocket requests, ?access_token=<token>.
func (s *Stream) validateToken(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ") == s.authToken
	}
	return r.URL.Query().Get("access_token") == s.authToken
}

func (s *Stream) handleConnection(conn *websocket.Conn) {
	key := conn.RemoteAddr().String()

	s.mutex.Lock()
	s.clients[key] = &StreamClient{RemoteAddr: key, ConnectedAt: time.Now()}
	s.mutex.Unlock()
	s.metrics.StreamClientAdded()
	s.logger.Info().Str("client", key).Msg("Dashboard connected")

	updates, unsubscribe := s.mon.Subscribe()

	defer func() {
		unsubscribe()
		conn.Close()
		s.removeClient(key)
	}()

	// The read loop only services control frames; it ends when the client
	// goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn().Err(err).Str("client", key).Msg("WebSocket error")
				}
				return
			}
		}
	}()

	snap := s.mon.Snapshot()
	if !s.send(conn, models.MessageTypeSnapshot, snap) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case u, ok := <-updates:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			var payload interface{} = u.Elapsed
			if u.Snapshot != nil {
				payload = u.Snapshot
			}
			if !s.send(conn, u.Type, payload) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// send writes one message; false means the connection is unusable.
func (s *Stream) send(conn *websocket.Conn, msgType models.MessageType, payload interface{}) bool {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to create message")
		return true
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write message")
		return false
	}
	return true
}

func (s *Stream) removeClient(key string) {
	s.mutex.Lock()
	delete(s.clients, key)
	s.mutex.Unlock()
	s.metrics.StreamClientRemoved()
	s.logger.Info().Str("client", key).Msg("Dashboard disconnected")
}

// HandleClients lists the connected dashboards
func (s *Stream) HandleClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Clients())
}

// Clients returns the connected dashboards
func (s *Stream) Clients() []StreamClient {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]StreamClient, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, *c)
	}
	return out
}
