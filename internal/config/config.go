package config

import (
	"net/http"
	"time"

	"github.com/rickgao/hudlink/internal/protocol"
	"github.com/rickgao/hudlink/internal/socket"
)

// Config is the root configuration for a hudlink instance.
type Config struct {
	Transport     TransportConfig      `yaml:"transport"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Recorder      RecorderConfig       `yaml:"recorder"`
	Health        HealthConfig         `yaml:"health"`
}

// TransportConfig holds the GraphQL subscription endpoint settings.
type TransportConfig struct {
	URL                   string            `yaml:"url"`
	Protocols             []string          `yaml:"protocols"`
	Headers               map[string]string `yaml:"headers"` // Sent with the upgrade request
	ReconnectInterval     time.Duration     `yaml:"reconnect_interval"`
	ReconnectMaxInterval  time.Duration     `yaml:"reconnect_max_interval"`
	ConnectTimeout        time.Duration     `yaml:"connect_timeout"`
	WriteTimeout          time.Duration     `yaml:"write_timeout"`
	KeepAliveTimeout      time.Duration     `yaml:"keep_alive_timeout"`
	ConnectionErrorPolicy string            `yaml:"connection_error_policy"` // keep, refresh or drop
	InitPayload           map[string]any    `yaml:"init_payload"`
}

// SubscriptionConfig is one GraphQL subscription to open at startup.
type SubscriptionConfig struct {
	Name          string         `yaml:"name"`
	Query         string         `yaml:"query"`
	OperationName string         `yaml:"operation_name"`
	Variables     map[string]any `yaml:"variables"`
}

// RecorderConfig holds event persistence settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health/debug HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// SocketConfig converts the transport section for socket.New.
func (t TransportConfig) SocketConfig() socket.Config {
	var header http.Header
	if len(t.Headers) > 0 {
		header = make(http.Header, len(t.Headers))
		for k, v := range t.Headers {
			header.Set(k, v)
		}
	}

	return socket.Config{
		URL:                  t.URL,
		Protocols:            t.Protocols,
		ReconnectInterval:    t.ReconnectInterval,
		ReconnectMaxInterval: t.ReconnectMaxInterval,
		ConnectTimeout:       t.ConnectTimeout,
		WriteTimeout:         t.WriteTimeout,
		Header:               header,
	}
}

// Request builds the subscription request.
func (s SubscriptionConfig) Request() protocol.Request {
	return protocol.Request{
		Query:         s.Query,
		Variables:     s.Variables,
		OperationName: s.OperationName,
	}
}
