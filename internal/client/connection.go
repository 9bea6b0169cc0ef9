package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/models"
)

// ConnectionState represents the current state of the stream connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ErrUnauthorized is returned when the server rejects the token.
var ErrUnauthorized = errors.New("stream rejected the auth token")

// Handler receives every frame read from the stream, in order.
type Handler func(Frame)

// StreamConfig holds configuration for the stream subscriber
type StreamConfig struct {
	URL                  string
	AuthToken            string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	// StaleTimeout drops the connection when neither a frame nor a ping
	// arrived for this long.
	StaleTimeout time.Duration
	HistorySize  int
}

// StreamClient subscribes to a monitor's snapshot stream and reconnects
// with exponential backoff when the connection drops.
type StreamClient struct {
	cfg     StreamConfig
	handler Handler
	history *FrameBuffer
	logger  zerolog.Logger

	stateMutex sync.RWMutex
	state      ConnectionState
	conn       *websocket.Conn

	currentReconnectInterval time.Duration

	lastSeenMutex sync.RWMutex
	lastSeen      time.Time
}

// NewStreamClient creates a subscriber. handler may be nil.
func NewStreamClient(cfg StreamConfig, handler Handler, logger zerolog.Logger) *StreamClient {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.MaxReconnectInterval < cfg.ReconnectInterval {
		cfg.MaxReconnectInterval = cfg.ReconnectInterval
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 90 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 64
	}
	return &StreamClient{
		cfg:                      cfg,
		handler:                  handler,
		history:                  NewFrameBuffer(cfg.HistorySize, true),
		logger:                   logger,
		state:                    StateDisconnected,
		currentReconnectInterval: cfg.ReconnectInterval,
	}
}

func (c *StreamClient) setState(state ConnectionState) {
	c.stateMutex.Lock()
	c.state = state
	c.stateMutex.Unlock()
	c.logger.Debug().Str("state", state.String()).Msg("Stream state updated")
}

// State returns the current connection state
func (c *StreamClient) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *StreamClient) IsConnected() bool {
	return c.State() == StateConnected
}

// History returns the retained frames
func (c *StreamClient) History() *FrameBuffer {
	return c.history
}

// LastSeen is when the server was last heard from
func (c *StreamClient) LastSeen() time.Time {
	c.lastSeenMutex.RLock()
	defer c.lastSeenMutex.RUnlock()
	return c.lastSeen
}

func (c *StreamClient) touch() {
	c.lastSeenMutex.Lock()
	c.lastSeen = time.Now()
	c.lastSeenMutex.Unlock()
}

// Connect dials the stream once.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connecting to stream...")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetPingHandler(func(data string) error {
		c.touch()
		conn.SetReadDeadline(time.Now().Add(c.cfg.StaleTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	c.stateMutex.Lock()
	c.conn = conn
	c.stateMutex.Unlock()
	c.setState(StateConnected)
	c.touch()
	c.currentReconnectInterval = c.cfg.ReconnectInterval
	c.logger.Info().Msg("Connected to stream")
	return nil
}

// Run reads frames until ctx is cancelled, reconnecting as needed. It
// returns early only when the server rejects the token.
func (c *StreamClient) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.Connect(ctx); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			c.logger.Warn().Err(err).Msg("Connection failed")
			c.waitBeforeReconnect(ctx)
			continue
		}

		c.readLoop(ctx)

		if ctx.Err() == nil {
			c.logger.Info().Msg("Connection lost, will reconnect")
			c.waitBeforeReconnect(ctx)
		}
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (c *StreamClient) waitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	timer := time.NewTimer(c.currentReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.cfg.MaxReconnectInterval {
		c.currentReconnectInterval = c.cfg.MaxReconnectInterval
	}
}

// readLoop reads frames until the connection fails or ctx ends
func (c *StreamClient) readLoop(ctx context.Context) {
	c.stateMutex.RLock()
	conn := c.conn
	c.stateMutex.RUnlock()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	})
	defer stop()
	defer c.disconnect()

	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.StaleTimeout))
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		c.touch()
		c.handleMessage(&msg)
	}
}

// handleMessage records a frame and hands it to the handler
func (c *StreamClient) handleMessage(msg *models.Message) {
	frame := Frame{Type: msg.Type, Payload: msg.Payload, ReceivedAt: time.Now()}

	switch msg.Type {
	case models.MessageTypeSnapshot, models.MessageTypeClock:
		c.history.Push(frame)
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Server error")
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
		return
	}

	if c.handler != nil {
		c.handler(frame)
	}
}

// disconnect closes the WebSocket connection
func (c *StreamClient) disconnect() {
	c.stateMutex.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()
	c.logger.Info().Msg("Stream disconnected")
}

// Close sends a close frame on a connection opened with Connect. Run stops
// with its context instead.
func (c *StreamClient) Close() error {
	c.stateMutex.RLock()
	conn := c.conn
	c.stateMutex.RUnlock()
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	}
	c.disconnect()
	return nil
}
