package socket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server. handler receives the
// 1-based connection number.
func mockWSServer(t *testing.T, handler func(int, *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{"graphql-ws"},
	}

	var count int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(int(atomic.AddInt32(&count, 1)), conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		URL:                  url,
		Protocols:            []string{"graphql-ws"},
		ReconnectInterval:    20 * time.Millisecond,
		ReconnectMaxInterval: 50 * time.Millisecond,
		ConnectTimeout:       time.Second,
		WriteTimeout:         time.Second,
	}
}

// drain reads until the peer goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestNew_UnsupportedScheme(t *testing.T) {
	tests := []string{
		"http://localhost/graphql",
		"/graphql",
		"tcp://localhost:1234",
	}

	for _, url := range tests {
		t.Run(url, func(t *testing.T) {
			_, err := New(Config{URL: url}, nil)
			if !errors.Is(err, ErrUnsupportedScheme) {
				t.Errorf("New(%q) error = %v, want ErrUnsupportedScheme", url, err)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{URL: "ws://localhost"}.withDefaults()
	def := DefaultConfig()

	if cfg.ReconnectInterval != def.ReconnectInterval {
		t.Errorf("ReconnectInterval = %v, want %v", cfg.ReconnectInterval, def.ReconnectInterval)
	}
	if cfg.ReconnectMaxInterval != def.ReconnectMaxInterval {
		t.Errorf("ReconnectMaxInterval = %v, want %v", cfg.ReconnectMaxInterval, def.ReconnectMaxInterval)
	}
	if cfg.ConnectTimeout != def.ConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, def.ConnectTimeout)
	}
	if cfg.WriteTimeout != def.WriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", cfg.WriteTimeout, def.WriteTimeout)
	}

	// Max interval never drops below the initial interval
	cfg = Config{ReconnectInterval: time.Minute}.withDefaults()
	if cfg.ReconnectMaxInterval != time.Minute {
		t.Errorf("ReconnectMaxInterval = %v, want %v", cfg.ReconnectMaxInterval, time.Minute)
	}
}

func TestConn_OpenSendReceive(t *testing.T) {
	received := make(chan string, 1)
	var subprotocol atomic.Value

	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		subprotocol.Store(conn.Subprotocol())
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(msg)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_ack"}`))
		drain(conn)
	})
	defer server.Close()

	c, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	messages := make(chan string, 1)
	c.SetHandlers(Handlers{
		OnOpen: func() {
			if err := c.Send([]byte(`{"type":"connection_init"}`)); err != nil {
				t.Errorf("Send in OnOpen failed: %v", err)
			}
		},
		OnMessage: func(data []byte) { messages <- string(data) },
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	select {
	case msg := <-received:
		if msg != `{"type":"connection_init"}` {
			t.Errorf("server received %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for init frame")
	}

	select {
	case msg := <-messages:
		if msg != `{"type":"connection_ack"}` {
			t.Errorf("client received %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack")
	}

	if !c.IsOpen() {
		t.Error("expected IsOpen to return true")
	}
	if got, _ := subprotocol.Load().(string); got != "graphql-ws" {
		t.Errorf("negotiated subprotocol = %q, want graphql-ws", got)
	}
}

func TestConn_SendNotConnected(t *testing.T) {
	c, err := New(testConfig("ws://localhost:12345"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.Send([]byte("test")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if c.IsOpen() {
		t.Error("expected IsOpen to return false before Start")
	}
}

func TestConn_ReconnectsAfterServerClose(t *testing.T) {
	server := mockWSServer(t, func(n int, conn *websocket.Conn) {
		if n == 1 {
			// Drop the first connection right away
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
			return
		}
		drain(conn)
	})
	defer server.Close()

	c, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var opens, closes, errs int32
	c.SetHandlers(Handlers{
		OnOpen:  func() { atomic.AddInt32(&opens, 1) },
		OnClose: func() { atomic.AddInt32(&closes, 1) },
		OnError: func(error) { atomic.AddInt32(&errs, 1) },
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	waitFor(t, "second open", func() bool { return atomic.LoadInt32(&opens) >= 2 })

	if atomic.LoadInt32(&closes) < 1 {
		t.Error("expected OnClose after server close")
	}
	if atomic.LoadInt32(&errs) < 1 {
		t.Error("expected OnError for abnormal close")
	}
}

func TestConn_RefreshReconnectsWithoutError(t *testing.T) {
	var mu sync.Mutex
	var conns int

	server := mockWSServer(t, func(n int, conn *websocket.Conn) {
		mu.Lock()
		conns = n
		mu.Unlock()
		drain(conn)
	})
	defer server.Close()

	c, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var opens, errs int32
	c.SetHandlers(Handlers{
		OnOpen:  func() { atomic.AddInt32(&opens, 1) },
		OnError: func(error) { atomic.AddInt32(&errs, 1) },
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	waitFor(t, "first open", func() bool { return atomic.LoadInt32(&opens) == 1 })

	c.Refresh()

	waitFor(t, "reopen after refresh", func() bool { return atomic.LoadInt32(&opens) == 2 })

	mu.Lock()
	if conns != 2 {
		t.Errorf("server saw %d connections, want 2", conns)
	}
	mu.Unlock()

	if n := atomic.LoadInt32(&errs); n != 0 {
		t.Errorf("OnError called %d times, want 0 for refresh", n)
	}
	if !c.IsOpen() {
		t.Error("expected IsOpen after refresh completes")
	}
}

func TestConn_DialFailureReported(t *testing.T) {
	// Nothing listens here
	c, err := New(testConfig("ws://127.0.0.1:1/graphql"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	errCh := make(chan error, 10)
	c.SetHandlers(Handlers{
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected non-nil dial error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dial error")
	}
}

func TestConn_CloseStopsReconnect(t *testing.T) {
	server := mockWSServer(t, func(_ int, conn *websocket.Conn) {
		drain(conn)
	})
	defer server.Close()

	c, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var opens, closes int32
	c.SetHandlers(Handlers{
		OnOpen:  func() { atomic.AddInt32(&opens, 1) },
		OnClose: func() { atomic.AddInt32(&closes, 1) },
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "open", func() bool { return atomic.LoadInt32(&opens) == 1 })

	if err := c.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	waitFor(t, "close", func() bool { return atomic.LoadInt32(&closes) == 1 })

	// Give the loop a chance to (wrongly) redial
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&opens); n != 1 {
		t.Errorf("opens = %d after Close, want 1", n)
	}
	if c.IsOpen() {
		t.Error("expected IsOpen to return false after Close")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Start after Close = %v, want ErrAlreadyClosed", err)
	}
}
