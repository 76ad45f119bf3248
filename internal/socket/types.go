package socket

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrAlreadyClosed     = errors.New("already closed")
)

// Config configures a reconnecting connection.
type Config struct {
	URL                  string        // WebSocket URL (ws:// or wss://)
	Protocols            []string      // Sub-protocols offered during the handshake
	ReconnectInterval    time.Duration // Initial wait between reconnect attempts
	ReconnectMaxInterval time.Duration // Upper bound for the backoff
	ConnectTimeout       time.Duration // Handshake timeout per dial
	WriteTimeout         time.Duration // Write deadline for sends
	Header               http.Header   // Extra handshake headers
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:    1 * time.Second,
		ReconnectMaxInterval: 30 * time.Second,
		ConnectTimeout:       2 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = def.ReconnectInterval
	}
	if c.ReconnectMaxInterval < c.ReconnectInterval {
		c.ReconnectMaxInterval = max(def.ReconnectMaxInterval, c.ReconnectInterval)
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Handlers receive connection events. All handlers run on the connection's
// read goroutine, except OnError for dial failures which runs on the
// reconnect loop (the same goroutine, between connections).
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnError   func(err error)
	OnClose   func()
}

// Conn is a persistent WebSocket connection that reconnects on its own.
type Conn interface {
	// Start begins dialing. The connection runs until ctx ends or Close is called.
	Start(ctx context.Context) error

	// Send writes a text frame. Returns ErrNotConnected when no socket is open.
	Send(data []byte) error

	// IsOpen reports whether a socket is currently open.
	IsOpen() bool

	// Refresh drops the current socket and reconnects immediately.
	Refresh()

	// SetHandlers replaces the event handlers.
	SetHandlers(h Handlers)

	// Close shuts the connection down for good.
	Close() error
}
