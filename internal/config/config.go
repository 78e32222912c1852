package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Broker   BrokerConfig   `mapstructure:"broker" validate:"required"`
	Realtime RealtimeConfig `mapstructure:"realtime" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0,lte=44640"`
}

// RedisConfig holds the connection settings shared by the stream broker and
// the cross-instance broadcaster.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// BrokerConfig selects and tunes the event transport.
type BrokerConfig struct {
	Driver        string        `mapstructure:"driver" validate:"required,oneof=redis memory"`
	Stream        string        `mapstructure:"stream" validate:"required"`
	Group         string        `mapstructure:"group" validate:"required"`
	Consumer      string        `mapstructure:"consumer" validate:"required"`
	BatchSize     int64         `mapstructure:"batch_size" validate:"gt=0,lte=1000"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout" validate:"gt=0"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle" validate:"gt=0"`
	ClaimInterval time.Duration `mapstructure:"claim_interval" validate:"gt=0"`
	// HTTPIngress exposes POST /api/events, publishing task actions through
	// this broker. It is always on with the memory driver.
	HTTPIngress   bool          `mapstructure:"http_ingress"`
}

// RealtimeConfig configures the socket endpoint and how pushes reach sessions.
type RealtimeConfig struct {
	Path             string        `mapstructure:"path" validate:"required,startswith=/"`
	Fanout           string        `mapstructure:"fanout" validate:"required,oneof=local redis"`
	BroadcastChannel string        `mapstructure:"broadcast_channel" validate:"required"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout" validate:"gt=0"`
	SendBuffer       int           `mapstructure:"send_buffer" validate:"gt=0"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	PingInterval     time.Duration `mapstructure:"ping_interval" validate:"gt=0"`
}

// IngressEnabled reports whether the server accepts task actions over HTTP.
// The memory broker has no other publisher.
func (c *Config) IngressEnabled() bool {
	return c.Broker.Driver == "memory" || c.Broker.HTTPIngress
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Broker.Driver == "redis" || c.Realtime.Fanout == "redis"
}
