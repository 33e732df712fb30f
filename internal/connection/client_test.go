package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/engine-bridge/internal/auth"
	"github.com/rickgao/engine-bridge/internal/version"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	err = client.Close()
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	testMsg := []byte(`{"test": "message"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type": "test", "data": 1}`,
		`{"type": "test", "data": 2}`,
		`{"type": "test", "data": 3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	// Collect received messages
	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := ClientConfig{
		URL:          "ws://localhost:12345",
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)

	err := client.Send([]byte("test"))
	if err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_PingRefreshesLastSeen(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
		if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
			t.Logf("ping error: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:          wsURL(server),
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	connectedAt := client.LastSeen()

	// Give time for ping to be processed
	time.Sleep(300 * time.Millisecond)

	if !client.IsConnected() {
		t.Error("expected client to be connected after ping")
	}
	if !client.LastSeen().After(connectedAt) {
		t.Errorf("LastSeen not refreshed by ping: %v", client.LastSeen())
	}
}

func TestClient_SendsAuthHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	creds, err := auth.LoadCredentials(auth.Options{Token: "secret-token"})
	require.NoError(t, err)

	client := NewClient(ClientConfig{URL: wsURL(server), Credentials: creds}, nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	h := <-headers
	assert.Equal(t, "Bearer secret-token", h.Get("Authorization"))
	assert.Equal(t, version.UserAgent(), h.Get("User-Agent"))
}

func TestClient_CloseFrameReported(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	select {
	case err := <-client.Errors():
		code, reason := closeInfo(err)
		assert.Equal(t, websocket.CloseGoingAway, code)
		assert.Equal(t, "shutting down", reason)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close error")
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	assert.Equal(t, 10*time.Second, clientCfg.HandshakeTimeout)
	assert.Equal(t, 5*time.Second, clientCfg.WriteTimeout)
	assert.Equal(t, 1000, clientCfg.BufferSize)

	mgrCfg := DefaultManagerConfig()
	assert.Equal(t, 30*time.Second, mgrCfg.HeartbeatInterval)
	assert.Equal(t, time.Second, mgrCfg.ReconnectBaseDelay)
	assert.Equal(t, 10, mgrCfg.MaxReconnectAttempts)
	assert.Zero(t, mgrCfg.HeartbeatTimeout)
}
