package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every setting of the quota sync service and its CLI. Values
// come from, in increasing priority: built-in defaults, the TOML file named
// by QUOTASYNC_CONFIG, and environment variables.
type Config struct {
	NATS  NATSConfig  `toml:"nats"`
	Redis RedisConfig `toml:"redis"`
	Log   LogConfig   `toml:"log"`
}

type NATSConfig struct {
	URL            string        `toml:"url"`             // NATS_URL (default "nats://nats:4222")
	Stream         string        `toml:"stream"`          // NATS_STREAM (default "QUOTAS")
	Subject        string        `toml:"subject"`         // NATS_SUBJECT (default "quota.updated")
	Consumer       string        `toml:"consumer"`        // NATS_CONSUMER (default "quota-sync-kong")
	ConnectTimeout time.Duration `toml:"connect_timeout"` // NATS_CONNECT_TIMEOUT (default 2s)
	PublishTimeout time.Duration `toml:"publish_timeout"` // NATS_PUBLISH_TIMEOUT (default 2s)
	FetchBatch     int           `toml:"fetch_batch"`     // NATS_FETCH_BATCH (default 10)
	FetchTimeout   time.Duration `toml:"fetch_timeout"`   // NATS_FETCH_TIMEOUT (default 5s)
	MaxDeliver     int           `toml:"max_deliver"`     // NATS_MAX_DELIVER (default 10; -1 = unlimited)
	AckWait        time.Duration `toml:"ack_wait"`        // NATS_ACK_WAIT (default 30s)
}

type RedisConfig struct {
	Host      string        `toml:"host"`       // REDIS_HOST (default "redis")
	Port      int           `toml:"port"`       // REDIS_PORT (default 6379)
	DB        int           `toml:"db"`         // REDIS_DB (default 0)
	Password  string        `toml:"password"`   // REDIS_PASSWORD (optional)
	KeyPrefix string        `toml:"key_prefix"` // REDIS_KEY_PREFIX (default "quota:tenant:")
	Timeout   time.Duration `toml:"timeout"`    // REDIS_TIMEOUT (default 2s)
}

type LogConfig struct {
	Level  string `toml:"level"`  // LOG_LEVEL (default "info")
	Format string `toml:"format"` // LOG_FORMAT (default "text")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://nats:4222",
			Stream:         "QUOTAS",
			Subject:        "quota.updated",
			Consumer:       "quota-sync-kong",
			ConnectTimeout: 2 * time.Second,
			PublishTimeout: 2 * time.Second,
			FetchBatch:     10,
			FetchTimeout:   5 * time.Second,
			MaxDeliver:     10,
			AckWait:        30 * time.Second,
		},
		Redis: RedisConfig{
			Host:      "redis",
			Port:      6379,
			KeyPrefix: "quota:tenant:",
			Timeout:   2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load() (*Config, error) {
	c := Defaults()

	if path := os.Getenv("QUOTASYNC_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("QUOTASYNC_CONFIG %s: %w", path, err)
		}
	}

	c.NATS.URL = envOrDefault("NATS_URL", c.NATS.URL)
	c.NATS.Stream = envOrDefault("NATS_STREAM", c.NATS.Stream)
	c.NATS.Subject = envOrDefault("NATS_SUBJECT", c.NATS.Subject)
	c.NATS.Consumer = envOrDefault("NATS_CONSUMER", c.NATS.Consumer)
	c.Redis.Host = envOrDefault("REDIS_HOST", c.Redis.Host)
	c.Redis.Password = envOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.KeyPrefix = envOrDefault("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)
	c.Log.Level = envOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("LOG_FORMAT", c.Log.Format)

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"NATS_CONNECT_TIMEOUT", &c.NATS.ConnectTimeout},
		{"NATS_PUBLISH_TIMEOUT", &c.NATS.PublishTimeout},
		{"NATS_FETCH_TIMEOUT", &c.NATS.FetchTimeout},
		{"NATS_ACK_WAIT", &c.NATS.AckWait},
		{"REDIS_TIMEOUT", &c.Redis.Timeout},
	} {
		if err := envDuration(d.key, d.dst); err != nil {
			return nil, err
		}
	}

	for _, n := range []struct {
		key string
		dst *int
	}{
		{"NATS_FETCH_BATCH", &c.NATS.FetchBatch},
		{"NATS_MAX_DELIVER", &c.NATS.MaxDeliver},
		{"REDIS_PORT", &c.Redis.Port},
		{"REDIS_DB", &c.Redis.DB},
	} {
		if err := envInt(n.key, n.dst); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.NATS.Stream == "" || c.NATS.Subject == "" || c.NATS.Consumer == "" {
		return fmt.Errorf("NATS_STREAM, NATS_SUBJECT and NATS_CONSUMER must not be empty")
	}
	if c.NATS.FetchBatch <= 0 {
		return fmt.Errorf("NATS_FETCH_BATCH must be positive, got %d", c.NATS.FetchBatch)
	}
	if c.NATS.MaxDeliver == 0 || c.NATS.MaxDeliver < -1 {
		return fmt.Errorf("NATS_MAX_DELIVER must be positive or -1, got %d", c.NATS.MaxDeliver)
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("REDIS_PORT out of range: %d", c.Redis.Port)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
