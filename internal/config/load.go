package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. NOTIFY_DATABASE_URL for database.url.
const EnvPrefix = "NOTIFY"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("notify")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tasknotify")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct tag validation over a loaded configuration and the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.NeedsRedis() && cfg.Redis.URL == "" {
		return fmt.Errorf("config validation failed: redis.url is required when broker.driver or realtime.fanout is redis")
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal, including keys without a meaningful default.
func setDefaults(v *viper.Viper) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "notification-service"
	}

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("redis.url", "")

	v.SetDefault("broker.driver", "redis")
	v.SetDefault("broker.stream", "notifications:events")
	v.SetDefault("broker.group", "notification-service")
	v.SetDefault("broker.consumer", hostname)
	v.SetDefault("broker.batch_size", 16)
	v.SetDefault("broker.block_timeout", 5*time.Second)
	v.SetDefault("broker.claim_min_idle", 30*time.Second)
	v.SetDefault("broker.claim_interval", 15*time.Second)
	v.SetDefault("broker.http_ingress", false)

	v.SetDefault("realtime.path", "/ws/notifications")
	v.SetDefault("realtime.fanout", "local")
	v.SetDefault("realtime.broadcast_channel", "notifications:push")
	v.SetDefault("realtime.auth_timeout", 10*time.Second)
	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.ping_interval", 30*time.Second)
}
