package ledger

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// State represents the current state of the ledger connection
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time copy of the connection state. Identity is set
// only when connected, Reason only when failed.
type Status struct {
	State    State  `json:"state"`
	Identity string `json:"identity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Session is an authorized handle on the readings contract.
type Session struct {
	Identity string
	Store    ReadingStore
	closer   func()
}

// NewSession binds an identity to a store. closer may be nil.
func NewSession(identity string, store ReadingStore, closer func()) *Session {
	return &Session{Identity: identity, Store: store, closer: closer}
}

// Close releases the underlying transport.
func (s *Session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Provider grants access to the ledger. Authorize may prompt the operator
// and blocks until access is granted or refused.
type Provider interface {
	Authorize(ctx context.Context) (*Session, error)
}

// Connection holds the single ledger handle of the process.
type Connection struct {
	provider Provider
	logger   zerolog.Logger

	// connectMu serializes handshakes so concurrent callers share one prompt.
	connectMu sync.Mutex

	stateMutex sync.RWMutex
	state      State
	identity   string
	reason     string
	session    *Session
}

// NewConnection creates a disconnected connection. A nil provider makes
// every Connect fail with ErrProviderUnavailable.
func NewConnection(provider Provider, logger zerolog.Logger) *Connection {
	return &Connection{
		provider: provider,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// setState safely updates the connection state
func (c *Connection) setState(state State, identity, reason string) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
	c.identity = identity
	c.reason = reason
	c.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// Status returns the current connection state
func (c *Connection) Status() Status {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return Status{State: c.state, Identity: c.identity, Reason: c.reason}
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state == StateConnected
}

// Session returns the bound session, or nil when not connected.
func (c *Connection) Session() *Session {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	if c.state != StateConnected {
		return nil
	}
	return c.session
}

func (c *Connection) connectedIdentity() (string, bool) {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.identity, c.state == StateConnected
}

// Connect authorizes against the provider and binds the session. While
// connected it returns the existing identity without prompting again. On
// failure the state becomes StateFailed and the caller may retry.
func (c *Connection) Connect(ctx context.Context) (string, error) {
	if id, ok := c.connectedIdentity(); ok {
		return id, nil
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	// Another caller may have finished the handshake while we waited.
	if id, ok := c.connectedIdentity(); ok {
		return id, nil
	}

	if c.provider == nil {
		c.setState(StateFailed, "", ErrProviderUnavailable.Error())
		return "", ErrProviderUnavailable
	}

	c.setState(StateConnecting, "", "")
	c.logger.Info().Msg("Requesting ledger access...")

	session, err := c.provider.Authorize(ctx)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) && !errors.Is(err, ErrProviderUnavailable) {
			err = &ConnectionError{Reason: "authorize", Err: err}
		}
		c.setState(StateFailed, "", err.Error())
		c.logger.Warn().Err(err).Msg("Ledger connection failed")
		return "", err
	}

	c.stateMutex.Lock()
	c.session = session
	c.stateMutex.Unlock()
	c.setState(StateConnected, session.Identity, "")
	c.logger.Info().Str("identity", session.Identity).Msg("Connected to ledger")

	return session.Identity, nil
}

// Close releases the session. Called once at process exit.
func (c *Connection) Close() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.stateMutex.Lock()
	session := c.session
	c.session = nil
	c.stateMutex.Unlock()

	if session != nil {
		session.Close()
	}
	c.setState(StateDisconnected, "", "")
	c.logger.Info().Msg("Connection closed")
	return nil
}

// ShortIdentity abbreviates an address as 0x1234...abcd.
func ShortIdentity(identity string) string {
	if len(identity) <= 10 {
		return identity
	}
	return identity[:6] + "..." + identity[len(identity)-4:]
}
