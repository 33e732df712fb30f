package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/engine-bridge/internal/model"
)

// session is one successfully dialed connection.
type session struct {
	client Client
	stop   chan struct{} // Closed exactly once on teardown
}

// Manager owns the duplex channel lifecycle.
type Manager struct {
	cfg       ManagerConfig
	handler   Handler
	logger    *slog.Logger
	events    *Events
	now       func() time.Time
	newClient func(ClientConfig, *slog.Logger) Client

	// Cancelled by Disconnect; bounds background reconnect dials.
	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	state             State
	current           *session
	attempts          int
	maxReported       bool
	reconnectTimer    *time.Timer
	connectedAt       time.Time
	lastHeartbeatSent time.Time
	lastHeartbeatRecv time.Time
}

// NewManager creates a new Connection Manager. handler must not be nil.
func NewManager(cfg ManagerConfig, handler Handler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultManagerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaults.ReconnectBaseDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger = logger.With("component", "connection")
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		events:    newEvents(logger),
		now:       now,
		newClient: NewClient,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateDisconnected,
	}
}

// Events returns the manager's event topics.
func (m *Manager) Events() *Events {
	return m.events
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the duplex channel is open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Stats returns current connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		State:             m.state,
		URL:               m.cfg.WSURL,
		ReconnectAttempts: m.attempts,
		LastHeartbeatSent: m.lastHeartbeatSent,
		LastHeartbeatRecv: m.lastHeartbeatRecv,
	}
	if m.state == StateConnected {
		stats.ConnectedSince = m.connectedAt
	}
	if m.current != nil {
		stats.LastSeen = m.current.client.LastSeen()
	}
	return stats
}

// Connect opens the duplex channel. On failure a reconnect is scheduled
// and the dial error is returned. Connect on a closed manager returns
// ErrAlreadyClosed; on an open or opening one it is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrAlreadyClosed
	case StateConnected, StateConnecting:
		m.mu.Unlock()
		return nil
	}
	m.stopReconnectTimerLocked()
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	return m.dial(ctx)
}

// Disconnect closes the channel permanently. Every pending request is
// rejected through the handler before Disconnect returns.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.setStateLocked(StateClosed)
	m.stopReconnectTimerLocked()
	sess := m.current
	m.current = nil
	m.mu.Unlock()

	m.cancel()

	if sess != nil {
		close(sess.stop)
		if err := sess.client.Close(); err != nil {
			m.logger.Debug("close websocket", "error", err)
		}
	}

	m.handler.HandleTeardown(model.NewConnectionClosedError("", ErrManualDisconnect))

	m.events.Disconnected.Publish(DisconnectedEvent{
		Code:   CloseNormal,
		Reason: ErrManualDisconnect.Error(),
		Manual: true,
		At:     m.now(),
	})
	m.events.close()

	m.logger.Info("connection closed by client")
	return nil
}

// Send transmits an envelope over the open channel.
func (m *Manager) Send(env model.Envelope) error {
	m.mu.Lock()
	sess := m.current
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || sess == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return sess.client.Send(data)
}

// dial creates a client and connects it, updating state either way.
func (m *Manager) dial(ctx context.Context) error {
	client := m.newClient(ClientConfig{
		URL:          m.cfg.WSURL,
		Credentials:  m.cfg.Credentials,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.BufferSize,
	}, m.logger)

	err := client.Connect(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		client.Close()
		return ErrAlreadyClosed
	}

	if err != nil {
		m.setStateLocked(StateDisconnected)
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.events.Errors.Publish(ErrorEvent{Err: err, At: m.now()})
		return fmt.Errorf("connect %s: %w", m.cfg.WSURL, err)
	}

	sess := &session{client: client, stop: make(chan struct{})}
	m.current = sess
	m.attempts = 0
	m.maxReported = false
	m.connectedAt = m.now()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.readLoop(sess)
	go m.heartbeatLoop(sess)

	m.events.Connected.Publish(ConnectedEvent{URL: m.cfg.WSURL, At: m.now()})
	m.logger.Info("connected to engine", "url", m.cfg.WSURL)

	return nil
}

// readLoop is the single dispatch loop for a session.
func (m *Manager) readLoop(sess *session) {
	for {
		select {
		case <-sess.stop:
			return

		case err := <-sess.client.Errors():
			// Frames that arrived before the error are still dispatched.
			m.drain(sess)
			m.handleConnectionLost(sess, err)
			return

		case msg := <-sess.client.Messages():
			m.handleMessage(sess, msg)
		}
	}
}

func (m *Manager) drain(sess *session) {
	for {
		select {
		case msg := <-sess.client.Messages():
			m.handleMessage(sess, msg)
		default:
			return
		}
	}
}

// handleMessage decodes one frame, answers heartbeats and forwards the rest.
func (m *Manager) handleMessage(sess *session, msg TimestampedMessage) {
	env, err := model.DecodeEnvelope(msg.Data)
	if err != nil {
		m.logger.Warn("dropping undecodable frame", "error", err, "size", len(msg.Data))
		return
	}

	if env.Type == model.TypeHeartbeat {
		m.mu.Lock()
		m.lastHeartbeatRecv = msg.ReceivedAt
		m.mu.Unlock()

		m.sendHeartbeat(sess)
		return
	}

	m.handler.HandleEnvelope(env, msg.ReceivedAt)
}

// heartbeatLoop sends heartbeats and, when configured, detects silence.
func (m *Manager) heartbeatLoop(sess *session) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C:
			m.sendHeartbeat(sess)

			if m.cfg.HeartbeatTimeout <= 0 {
				continue
			}
			lastSeen := sess.client.LastSeen()
			if m.now().Sub(lastSeen) > m.cfg.HeartbeatTimeout {
				m.logger.Warn("no inbound traffic, connection stale",
					"last_seen", lastSeen,
					"timeout", m.cfg.HeartbeatTimeout,
				)
				m.handleConnectionLost(sess, ErrStaleConnection)
				return
			}
		}
	}
}

func (m *Manager) sendHeartbeat(sess *session) {
	now := m.now()
	env, err := model.NewEnvelope(model.TypeHeartbeat, "", nil, now)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := sess.client.Send(data); err != nil {
		m.logger.Debug("failed to send heartbeat", "error", err)
		return
	}

	m.mu.Lock()
	m.lastHeartbeatSent = now
	m.mu.Unlock()
}

// handleConnectionLost tears down an unexpectedly closed session and
// schedules a reconnect.
func (m *Manager) handleConnectionLost(sess *session, cause error) {
	m.mu.Lock()
	if m.current != sess {
		// Superseded or manually closed.
		m.mu.Unlock()
		return
	}
	close(sess.stop)
	m.current = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	sess.client.Close()

	code, reason := closeInfo(cause)
	m.logger.Warn("connection lost",
		"code", code,
		"reason", reason,
	)

	m.handler.HandleTeardown(model.NewConnectionClosedError("", cause))

	m.events.Errors.Publish(ErrorEvent{Err: cause, At: m.now()})
	m.events.Disconnected.Publish(DisconnectedEvent{
		Code:   code,
		Reason: reason,
		At:     m.now(),
	})

	m.mu.Lock()
	if m.state == StateDisconnected {
		m.scheduleReconnectLocked()
	}
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the reconnect timer, or gives up once the
// attempt budget is spent. Must be called with mu held.
func (m *Manager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		if !m.maxReported {
			m.maxReported = true
			m.logger.Error("max reconnect attempts reached, giving up",
				"attempts", m.attempts,
			)
			m.events.MaxReconnectAttemptsReached.Publish(MaxReconnectEvent{
				Attempts: m.attempts,
				At:       m.now(),
			})
		}
		return
	}

	delay := ReconnectDelay(m.cfg.ReconnectBaseDelay, m.attempts)
	m.attempts++
	m.setStateLocked(StateReconnecting)

	m.logger.Info("scheduling reconnection",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)

	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
}

func (m *Manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// reconnect runs on the reconnect timer.
func (m *Manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	attempt := m.attempts
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)

	if err := m.dial(m.ctx); err != nil && !errors.Is(err, ErrAlreadyClosed) {
		m.logger.Warn("reconnection failed",
			"attempt", attempt,
			"error", err,
		)
	}
}

// setStateLocked records a transition. Must be called with mu held.
func (m *Manager) setStateLocked(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.events.StateChanges.Publish(StateChange{From: from, To: to, At: m.now()})
}

// closeInfo extracts a close code and reason from a read error.
func closeInfo(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	if err == nil {
		return CloseAbnormal, ""
	}
	return CloseAbnormal, err.Error()
}
