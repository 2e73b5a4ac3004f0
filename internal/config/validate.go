package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}

	if c.Server.Transport != "websocket" && c.Server.Transport != "polling" {
		return fmt.Errorf("server.transport must be websocket or polling, got %q", c.Server.Transport)
	}
	if c.Server.PingInterval >= c.Server.PingTimeout {
		return errors.New("server.ping_interval must be shorter than server.ping_timeout")
	}

	if c.RateLimit.ConnectionsPerMinute < 1 {
		return errors.New("rate_limit.connections_per_minute must be >= 1")
	}
	if c.RateLimit.MessagesPerMinute < 1 {
		return errors.New("rate_limit.messages_per_minute must be >= 1")
	}
	if c.RateLimit.EventsPerMinute < 1 {
		return errors.New("rate_limit.events_per_minute must be >= 1")
	}

	if c.Database.Enabled() {
		if c.Database.Name == "" {
			return errors.New("database.name is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
		if c.Database.Password == "" {
			return errors.New("database.password is required")
		}
		if c.Database.MaxConns < 1 {
			return errors.New("database.max_conns must be >= 1")
		}
		if c.Database.MinConns < 0 {
			return errors.New("database.min_conns must be >= 0")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
