package connection

import (
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/engine-bridge/internal/auth"
	"github.com/rickgao/engine-bridge/internal/events"
	"github.com/rickgao/engine-bridge/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no inbound traffic)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrManualDisconnect = errors.New("client disconnect")
)

// Close codes reported in DisconnectedEvent.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the lifecycle state of the duplex channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives inbound envelopes and teardown notifications.
// HandleEnvelope is never called concurrently for the same connection.
type Handler interface {
	HandleEnvelope(env model.Envelope, receivedAt time.Time)

	// HandleTeardown is called when the connection is lost or manually
	// closed. err is a CONNECTION_CLOSED *model.Error.
	HandleTeardown(err error)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string            // Engine websocket URL (e.g., wss://engine.example.com/ws)
	Credentials      *auth.Credentials // nil = no Authorization header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	WSURL                string
	Credentials          *auth.Credentials
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration // 0 disables stale detection
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	WriteTimeout         time.Duration
	BufferSize           int
	Now                  func() time.Time
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 10,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

// ConnectedEvent is published after a successful dial.
type ConnectedEvent struct {
	URL string
	At  time.Time
}

// DisconnectedEvent is published whenever an open connection goes away.
type DisconnectedEvent struct {
	Code   int
	Reason string
	Manual bool
	At     time.Time
}

// ErrorEvent is published for dial failures and transport errors.
type ErrorEvent struct {
	Err error
	At  time.Time
}

// MaxReconnectEvent is published once when reconnection gives up.
type MaxReconnectEvent struct {
	Attempts int
	At       time.Time
}

// StateChange is published on every state transition.
type StateChange struct {
	From State
	To   State
	At   time.Time
}

// Events holds the topics published by the Manager.
type Events struct {
	Connected                   *events.Topic[ConnectedEvent]
	Disconnected                *events.Topic[DisconnectedEvent]
	Errors                      *events.Topic[ErrorEvent]
	MaxReconnectAttemptsReached *events.Topic[MaxReconnectEvent]
	StateChanges                *events.Topic[StateChange]
}

func newEvents(logger *slog.Logger) *Events {
	return &Events{
		Connected:                   events.NewTopic[ConnectedEvent]("connected", logger),
		Disconnected:                events.NewTopic[DisconnectedEvent]("disconnected", logger),
		Errors:                      events.NewTopic[ErrorEvent]("error", logger),
		MaxReconnectAttemptsReached: events.NewTopic[MaxReconnectEvent]("maxReconnectAttemptsReached", logger),
		StateChanges:                events.NewTopic[StateChange]("stateChanged", logger),
	}
}

func (e *Events) close() {
	e.Connected.Close()
	e.Disconnected.Close()
	e.Errors.Close()
	e.MaxReconnectAttemptsReached.Close()
	e.StateChanges.Close()
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State             State
	URL               string
	ReconnectAttempts int
	ConnectedSince    time.Time // Zero when not connected
	LastSeen          time.Time // Last inbound frame of any kind
	LastHeartbeatSent time.Time
	LastHeartbeatRecv time.Time
}
