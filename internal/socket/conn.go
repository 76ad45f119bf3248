package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// conn implements the Conn interface.
type conn struct {
	cfg    Config
	logger *slog.Logger
	dialer websocket.Dialer

	handlersMu sync.RWMutex
	handlers   Handlers

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	ws         *websocket.Conn
	open       bool
	refreshing bool
	started    bool
	closed     bool
	cancel     context.CancelFunc
}

// New creates a reconnecting connection. It does not dial until Start.
func New(cfg Config, logger *slog.Logger) (Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	cfg = cfg.withDefaults()

	return &conn{
		cfg:    cfg,
		logger: logger.With("url", cfg.URL),
		dialer: websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			Subprotocols:     cfg.Protocols,
		},
	}, nil
}

// Start launches the reconnect loop.
func (c *conn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Send writes a text frame to the open socket.
func (c *conn) Send(data []byte) error {
	c.mu.RLock()
	ws, open := c.ws, c.open
	c.mu.RUnlock()

	if !open || ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

// IsOpen returns the current connection state.
func (c *conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Refresh closes the current socket; the reconnect loop dials again without
// waiting and without reporting the drop as an error.
func (c *conn) Refresh() {
	c.mu.Lock()
	ws := c.ws
	if ws == nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	c.mu.Unlock()

	c.logger.Info("refreshing websocket connection")

	c.writeMu.Lock()
	ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "refresh"),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	ws.Close()
}

// SetHandlers replaces the event handlers.
func (c *conn) SetHandlers(h Handlers) {
	c.handlersMu.Lock()
	c.handlers = h
	c.handlersMu.Unlock()
}

// Close stops the reconnect loop and closes the socket.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws, cancel := c.ws, c.cancel
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
	}

	// Cancelling unblocks the read loop, which closes the socket
	if cancel != nil {
		cancel()
	} else if ws != nil {
		return ws.Close()
	}
	return nil
}

// run dials, serves, and redials until ctx ends.
func (c *conn) run(ctx context.Context) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.cfg.ReconnectInterval
	retry.MaxInterval = c.cfg.ReconnectMaxInterval

	for {
		retry.Reset()
		ws, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		},
			backoff.WithBackOff(retry),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				c.logger.Warn("websocket dial failed",
					"error", err,
					"next_retry", next,
				)
				c.emitError(err)
			}),
		)
		if err != nil {
			// Only cancellation ends the retry loop
			return
		}

		refreshed := c.serve(ctx, ws)
		if ctx.Err() != nil {
			return
		}
		if refreshed {
			continue
		}

		// Dropped by the peer or the network: pace the next dial
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// dial performs a single handshake.
func (c *conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return ws, nil
}

// serve runs the read loop for one socket. Returns true if the socket was
// dropped by Refresh.
func (c *conn) serve(ctx context.Context, ws *websocket.Conn) bool {
	c.mu.Lock()
	c.ws = ws
	c.open = true
	c.refreshing = false
	c.mu.Unlock()

	c.logger.Debug("websocket connected", "subprotocol", ws.Subprotocol())

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	if h := c.getHandlers().OnOpen; h != nil {
		h()
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.open = false
			c.ws = nil
			refreshed := c.refreshing
			c.refreshing = false
			c.mu.Unlock()

			ws.Close()

			if ctx.Err() == nil && !refreshed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
				c.emitError(err)
			}

			c.logger.Debug("websocket disconnected", "refreshed", refreshed)
			if h := c.getHandlers().OnClose; h != nil {
				h()
			}
			return refreshed
		}

		if h := c.getHandlers().OnMessage; h != nil {
			h(data)
		}
	}
}

func (c *conn) getHandlers() Handlers {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.handlers
}

func (c *conn) emitError(err error) {
	if h := c.getHandlers().OnError; h != nil {
		h(err)
	}
}
