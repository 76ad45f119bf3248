package config

import (
	"time"

	"github.com/rickgao/hudlink/internal/protocol"
)

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval     = 1 * time.Second
	DefaultReconnectMaxInterval  = 30 * time.Second
	DefaultConnectTimeout        = 2 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultKeepAliveTimeout      = 5 * time.Second
	DefaultConnectionErrorPolicy = "keep"
	DefaultBatchSize             = 500
	DefaultFlushInterval         = 2 * time.Second
	DefaultBufferSize            = 1024
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultHealthPort            = 8080
)

func (c *Config) applyDefaults() {
	// Transport defaults
	if len(c.Transport.Protocols) == 0 {
		c.Transport.Protocols = []string{protocol.Subprotocol}
	}
	if c.Transport.ReconnectInterval == 0 {
		c.Transport.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Transport.ReconnectMaxInterval == 0 {
		c.Transport.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if c.Transport.ConnectTimeout == 0 {
		c.Transport.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.KeepAliveTimeout == 0 {
		c.Transport.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if c.Transport.ConnectionErrorPolicy == "" {
		c.Transport.ConnectionErrorPolicy = DefaultConnectionErrorPolicy
	}

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Recorder.Database)

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
