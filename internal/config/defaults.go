package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultListenAddr           = ":8443"
	DefaultTransport            = "websocket"
	DefaultPingTimeout          = 60 * time.Second
	DefaultWriteTimeout         = 10 * time.Second
	DefaultConnectionsPerMinute = 60
	DefaultMessagesPerMinute    = 120
	DefaultEventsPerMinute      = 180
	DefaultIdleTimeout          = 30 * time.Minute
	DefaultCleanupInterval      = 5 * time.Minute
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultFlushInterval        = 5 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *ServerConfig) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultListenAddr
	}
	if c.Server.Transport == "" {
		c.Server.Transport = DefaultTransport
	}
	if c.Server.PingTimeout == 0 {
		c.Server.PingTimeout = DefaultPingTimeout
	}
	if c.Server.PingInterval == 0 {
		// Conventional socket-server ratio: interval is a third of the timeout.
		c.Server.PingInterval = c.Server.PingTimeout / 3
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}

	if c.RateLimit.ConnectionsPerMinute == 0 {
		c.RateLimit.ConnectionsPerMinute = DefaultConnectionsPerMinute
	}
	if c.RateLimit.MessagesPerMinute == 0 {
		c.RateLimit.MessagesPerMinute = DefaultMessagesPerMinute
	}
	if c.RateLimit.EventsPerMinute == 0 {
		c.RateLimit.EventsPerMinute = DefaultEventsPerMinute
	}

	if c.Rooms.IdleTimeout == 0 {
		c.Rooms.IdleTimeout = DefaultIdleTimeout
	}
	if c.Rooms.CleanupInterval == 0 {
		c.Rooms.CleanupInterval = DefaultCleanupInterval
	}

	if c.Database.Enabled() {
		if c.Database.Port == 0 {
			c.Database.Port = DefaultDBPort
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = DefaultDBSSLMode
		}
		if c.Database.MaxConns == 0 {
			c.Database.MaxConns = DefaultMaxConns
		}
		if c.Database.MinConns == 0 {
			c.Database.MinConns = DefaultMinConns
		}
		if c.Database.FlushInterval == 0 {
			c.Database.FlushInterval = DefaultFlushInterval
		}
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
