package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"QUOTASYNC_CONFIG",
	"NATS_URL", "NATS_STREAM", "NATS_SUBJECT", "NATS_CONSUMER",
	"NATS_CONNECT_TIMEOUT", "NATS_PUBLISH_TIMEOUT", "NATS_FETCH_BATCH",
	"NATS_FETCH_TIMEOUT", "NATS_MAX_DELIVER", "NATS_ACK_WAIT",
	"REDIS_HOST", "REDIS_PORT", "REDIS_DB", "REDIS_PASSWORD",
	"REDIS_KEY_PREFIX", "REDIS_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}
	if cfg.NATS.Stream != "QUOTAS" || cfg.NATS.Subject != "quota.updated" || cfg.NATS.Consumer != "quota-sync-kong" {
		t.Errorf("NATS names = %q %q %q", cfg.NATS.Stream, cfg.NATS.Subject, cfg.NATS.Consumer)
	}
	if cfg.NATS.ConnectTimeout != 2*time.Second || cfg.NATS.FetchTimeout != 5*time.Second {
		t.Errorf("NATS timeouts = %v %v", cfg.NATS.ConnectTimeout, cfg.NATS.FetchTimeout)
	}
	if cfg.NATS.FetchBatch != 10 || cfg.NATS.MaxDeliver != 10 {
		t.Errorf("FetchBatch/MaxDeliver = %d/%d", cfg.NATS.FetchBatch, cfg.NATS.MaxDeliver)
	}
	if cfg.Redis.Host != "redis" || cfg.Redis.Port != 6379 || cfg.Redis.DB != 0 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Redis.KeyPrefix != "quota:tenant:" {
		t.Errorf("KeyPrefix = %q", cfg.Redis.KeyPrefix)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	for _, tc := range []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, c *Config)
	}{
		{
			name: "NATS",
			env: map[string]string{
				"NATS_URL":         "nats://localhost:4333",
				"NATS_CONSUMER":    "quota-sync-test",
				"NATS_FETCH_BATCH": "25",
				"NATS_ACK_WAIT":    "1m",
				"NATS_MAX_DELIVER": "-1",
			},
			check: func(t *testing.T, c *Config) {
				if c.NATS.URL != "nats://localhost:4333" || c.NATS.Consumer != "quota-sync-test" {
					t.Errorf("NATS = %+v", c.NATS)
				}
				if c.NATS.FetchBatch != 25 || c.NATS.AckWait != time.Minute || c.NATS.MaxDeliver != -1 {
					t.Errorf("NATS = %+v", c.NATS)
				}
			},
		},
		{
			name: "Redis",
			env: map[string]string{
				"REDIS_HOST":       "cache.internal",
				"REDIS_PORT":       "6380",
				"REDIS_DB":         "3",
				"REDIS_PASSWORD":   "hunter2",
				"REDIS_KEY_PREFIX": "q:",
				"REDIS_TIMEOUT":    "500ms",
			},
			check: func(t *testing.T, c *Config) {
				want := RedisConfig{Host: "cache.internal", Port: 6380, DB: 3, Password: "hunter2", KeyPrefix: "q:", Timeout: 500 * time.Millisecond}
				if c.Redis != want {
					t.Errorf("Redis = %+v, want %+v", c.Redis, want)
				}
			},
		},
		{
			name: "Log",
			env:  map[string]string{"LOG_LEVEL": "debug", "LOG_FORMAT": "json"},
			check: func(t *testing.T, c *Config) {
				if c.Log.Level != "debug" || c.Log.Format != "json" {
					t.Errorf("Log = %+v", c.Log)
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	for _, tc := range []struct {
		key, value string
	}{
		{"NATS_FETCH_TIMEOUT", "soon"},
		{"NATS_FETCH_BATCH", "ten"},
		{"NATS_FETCH_BATCH", "0"},
		{"NATS_MAX_DELIVER", "0"},
		{"REDIS_PORT", "99999"},
		{"REDIS_DB", "x"},
		{"REDIS_TIMEOUT", "2"},
	} {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Errorf("error %q does not name %s", err, tc.key)
			}
		})
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	clearAllEnv(t)

	path := filepath.Join(t.TempDir(), "quotasync.toml")
	body := `
[nats]
url = "nats://file:4222"
consumer = "from-file"
fetch_batch = 50

[redis]
host = "file-redis"
key_prefix = "file:"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUOTASYNC_CONFIG", path)
	t.Setenv("NATS_CONSUMER", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://file:4222" {
		t.Errorf("URL = %q, want file value", cfg.NATS.URL)
	}
	if cfg.NATS.Consumer != "from-env" {
		t.Errorf("Consumer = %q, env should win over file", cfg.NATS.Consumer)
	}
	if cfg.NATS.FetchBatch != 50 {
		t.Errorf("FetchBatch = %d", cfg.NATS.FetchBatch)
	}
	if cfg.Redis.Host != "file-redis" || cfg.Redis.KeyPrefix != "file:" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	// Untouched keys keep their defaults.
	if cfg.Redis.Port != 6379 || cfg.NATS.Stream != "QUOTAS" {
		t.Errorf("defaults lost: port=%d stream=%q", cfg.Redis.Port, cfg.NATS.Stream)
	}
}

func TestLoad_TOMLFileMissing(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("QUOTASYNC_CONFIG", filepath.Join(t.TempDir(), "nope.toml"))

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "QUOTASYNC_CONFIG") {
		t.Fatalf("Load err = %v, want QUOTASYNC_CONFIG error", err)
	}
}
