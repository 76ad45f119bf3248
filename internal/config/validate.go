package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/rickgao/hudlink/internal/subscription"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Transport.validate(); err != nil {
		return err
	}

	if len(c.Subscriptions) == 0 {
		return errors.New("subscriptions must contain at least one entry")
	}
	seen := make(map[string]bool, len(c.Subscriptions))
	for i, s := range c.Subscriptions {
		prefix := fmt.Sprintf("subscriptions[%d]", i)
		if s.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, s.Name)
		}
		seen[s.Name] = true
		if s.Query == "" {
			return fmt.Errorf("%s.query is required", prefix)
		}
	}

	if c.Recorder.Enabled {
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
		if err := c.Recorder.Database.validate("recorder.database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (t *TransportConfig) validate() error {
	if t.URL == "" {
		return errors.New("transport.url is required")
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("transport.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport.url must use ws or wss, got %q", u.Scheme)
	}
	if t.ReconnectMaxInterval < t.ReconnectInterval {
		return fmt.Errorf("transport.reconnect_max_interval (%s) cannot be less than reconnect_interval (%s)",
			t.ReconnectMaxInterval, t.ReconnectInterval)
	}
	if _, err := subscription.ParseConnectionErrorPolicy(t.ConnectionErrorPolicy); err != nil {
		return fmt.Errorf("transport.connection_error_policy: %w", err)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
