package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/engine-bridge/internal/version"
)

// Client represents a single WebSocket connection to the engine.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of all inbound frames.
	// Each message includes a local timestamp for when it was received.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel that receives the terminal read error.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool

	// LastSeen returns when the last frame (data, ping or pong) arrived.
	LastSeen() time.Time
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastSeenAt time.Time
	closed     bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	// Build headers
	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("User-Agent", version.UserAgent())
	if err := c.cfg.Credentials.Apply(header); err != nil {
		return fmt.Errorf("build credentials: %w", err)
	}

	handshake := c.cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultClientConfig().HandshakeTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastSeenAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(data string) error {
		c.touch()
		return nil
	})

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn != nil {
		// Send close message
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastSeen returns the time of the last inbound frame.
func (c *client) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeenAt
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastSeenAt = time.Now()
	c.mu.Unlock()
}

// readLoop reads messages from the WebSocket and sends them to the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		c.mu.Lock()
		c.lastSeenAt = receivedAt
		c.mu.Unlock()

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}
