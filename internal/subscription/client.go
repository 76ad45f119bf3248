package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/hudlink/internal/protocol"
	"github.com/rickgao/hudlink/internal/socket"
)

// ConnFactory builds the socket a Client runs its Transport on.
type ConnFactory func(cfg socket.Config, logger *slog.Logger) (socket.Conn, error)

// DefaultConnFactory dials real WebSockets.
var DefaultConnFactory ConnFactory = socket.New

// Client owns at most one Transport and builds it on first use. Every
// Subscribe through the same Client shares that Transport.
type Client struct {
	ctx     context.Context
	cfg     socket.Config
	factory ConnFactory
	opts    []Option
	logger  *slog.Logger

	mu        sync.Mutex
	conn      socket.Conn
	transport *Transport
	closed    bool
}

// NewClient creates a Client. Nothing is dialed until the first Subscribe or
// Transport call. Cancelling ctx does not drop the socket; it stays open
// until Close so stop and connection_terminate frames can still be sent on
// shutdown.
func NewClient(ctx context.Context, cfg socket.Config, factory ConnFactory, opts ...Option) *Client {
	return &Client{
		ctx:     context.WithoutCancel(ctx),
		cfg:     cfg,
		factory: factory,
		opts:    opts,
		logger:  buildOptions(opts).logger,
	}
}

// Transport returns the shared Transport, constructing and starting it on
// the first call. Fails with ErrUnsupportedEnvironment when no socket can be
// built for the configured URL; in that case no Transport exists afterwards.
func (c *Client) Transport() (*Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.transport != nil {
		return c.transport, nil
	}

	if c.factory == nil {
		return nil, ErrUnsupportedEnvironment
	}

	conn, err := c.factory(c.cfg, c.logger)
	if err != nil {
		if errors.Is(err, socket.ErrUnsupportedScheme) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
		}
		return nil, fmt.Errorf("create socket: %w", err)
	}

	t := New(conn, c.opts...)
	if err := conn.Start(c.ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("start socket: %w", err)
	}

	c.logger.Info("subscription transport started", "url", c.cfg.URL)
	c.conn = conn
	c.transport = t
	return t, nil
}

// Subscribe registers a subscription on the shared Transport and returns its
// id together with the Transport, so the caller can Stop it later.
func (c *Client) Subscribe(req protocol.Request, onData DataHandler, onError ErrorHandler) (string, *Transport, error) {
	t, err := c.Transport()
	if err != nil {
		return "", nil, err
	}

	id, err := t.Subscribe(req, onData, onError)
	if err != nil {
		return "", nil, err
	}
	return id, t, nil
}

// SubscribeStream is Subscribe with a pull-based Stream in place of callbacks.
func (c *Client) SubscribeStream(name string, req protocol.Request) (*Stream, error) {
	t, err := c.Transport()
	if err != nil {
		return nil, err
	}
	return t.SubscribeStream(name, req)
}

// Close terminates the Transport, if any, and closes its socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	t, conn := c.transport, c.conn
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Close()
	return conn.Close()
}
