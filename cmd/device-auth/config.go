package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every environment variable, e.g. DEVICE_AUTH_INSTANCE_URL
const envPrefix = "DEVICE_AUTH"

// Push backends for waiting on approval
const (
	backendWebSocket = "websocket"
	backendRedis     = "redis"
)

// Config holds CLI configuration loaded from environment variables
type Config struct {
	InstanceURL    string        `envconfig:"INSTANCE_URL" default:"http://localhost:8080"`
	PushBackend    string        `envconfig:"PUSH_BACKEND" default:"websocket"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	RedisPrefix    string        `envconfig:"REDIS_PREFIX" default:"deviceauth:"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"warn"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	LoginTimeout   time.Duration `envconfig:"LOGIN_TIMEOUT" default:"15m"`

	// RefreshToken is used by refresh when --refresh-token is not given
	RefreshToken string `envconfig:"REFRESH_TOKEN"`
}

// loadConfig reads the environment
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that depend on each other
func (c Config) Validate() error {
	switch c.PushBackend {
	case backendWebSocket:
	case backendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s_REDIS_URL is required for the %s push backend", envPrefix, backendRedis)
		}
	default:
		return fmt.Errorf("unknown push backend %q", c.PushBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.LoginTimeout <= 0 {
		return fmt.Errorf("login timeout must be positive")
	}
	return nil
}
