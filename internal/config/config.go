package config

import "time"

// ServerConfig is the root configuration for a room server instance.
type ServerConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Server    ListenConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this server.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ListenConfig holds transport settings. Transport is a hint forwarded to
// clients ("websocket" or "polling"); the core's logic does not depend on
// it.
type ListenConfig struct {
	Addr         string        `yaml:"addr"`
	Transport    string        `yaml:"transport"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig holds token verification settings. Token issuance is the
// hosting layer's concern; only the verification secret lives here.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// RateLimitConfig holds per-minute sliding-window thresholds.
type RateLimitConfig struct {
	ConnectionsPerMinute int `yaml:"connections_per_minute"`
	MessagesPerMinute    int `yaml:"messages_per_minute"`
	EventsPerMinute      int `yaml:"events_per_minute"`
}

// RoomsConfig holds registry housekeeping settings.
type RoomsConfig struct {
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DatabaseConfig holds the optional snapshot store. When Host is empty,
// persistence and recovery are disabled and the core runs purely in
// memory.
type DatabaseConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SSLMode       string        `yaml:"ssl_mode"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Enabled reports whether a snapshot store is configured.
func (db DatabaseConfig) Enabled() bool { return db.Host != "" }

// MetricsConfig holds the metrics/health endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
