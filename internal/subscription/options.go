package subscription

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultKeepAliveTimeout is how long the transport waits for a keep-alive
// before refreshing the connection.
const DefaultKeepAliveTimeout = 5 * time.Second

// ConnectionErrorPolicy decides what happens to live subscriptions when the
// server sends connection_error.
type ConnectionErrorPolicy string

const (
	// PolicyKeep leaves subscriptions and the socket alone; recovery is up to
	// the socket's own reconnect behaviour.
	PolicyKeep ConnectionErrorPolicy = "keep"

	// PolicyRefresh forces a reconnect. Subscriptions are replayed on the
	// next connection_ack.
	PolicyRefresh ConnectionErrorPolicy = "refresh"

	// PolicyDrop removes every subscription and notifies each onError.
	PolicyDrop ConnectionErrorPolicy = "drop"
)

// ParseConnectionErrorPolicy parses a policy name. Empty means PolicyKeep.
func ParseConnectionErrorPolicy(s string) (ConnectionErrorPolicy, error) {
	switch p := ConnectionErrorPolicy(s); p {
	case "":
		return PolicyKeep, nil
	case PolicyKeep, PolicyRefresh, PolicyDrop:
		return p, nil
	default:
		return "", fmt.Errorf("unknown connection error policy %q", s)
	}
}

// DataHandler receives the payload of each data frame for one subscription.
type DataHandler func(payload json.RawMessage)

// ErrorHandler receives errors for one subscription, or for the transport
// when installed with WithErrorHandler.
type ErrorHandler func(err error)

// options holds Transport settings.
type options struct {
	logger           *slog.Logger
	initPayload      any
	keepAliveTimeout time.Duration
	connErrPolicy    ConnectionErrorPolicy
	onError          ErrorHandler
	onData           func(id string, payload json.RawMessage)
	onClosed         func()
}

// Option configures a Transport.
type Option func(*options)

func buildOptions(opts []Option) options {
	o := options{
		logger:           slog.Default(),
		initPayload:      map[string]any{},
		keepAliveTimeout: DefaultKeepAliveTimeout,
		connErrPolicy:    PolicyKeep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.keepAliveTimeout <= 0 {
		o.keepAliveTimeout = DefaultKeepAliveTimeout
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithInitPayload sets the payload sent in every connection_init frame.
func WithInitPayload(payload any) Option {
	return func(o *options) {
		o.initPayload = payload
	}
}

// WithKeepAliveTimeout sets the keep-alive watchdog deadline.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(o *options) {
		o.keepAliveTimeout = d
	}
}

// WithConnectionErrorPolicy sets the connection_error policy.
func WithConnectionErrorPolicy(p ConnectionErrorPolicy) Option {
	return func(o *options) {
		o.connErrPolicy = p
	}
}

// WithErrorHandler sets the generic handler for transport-level errors.
// The default logs them.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithDataHandler sets the handler for data frames of subscriptions that
// were registered without their own DataHandler.
func WithDataHandler(fn func(id string, payload json.RawMessage)) Option {
	return func(o *options) {
		o.onData = fn
	}
}

// WithClosedHandler sets a handler called every time the socket closes.
func WithClosedHandler(fn func()) Option {
	return func(o *options) {
		o.onClosed = fn
	}
}
