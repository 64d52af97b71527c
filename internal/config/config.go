// Package config loads hookwatch configuration from a YAML file, environment
// variables and defaults, in that order of precedence (env wins over file).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Push   PushConfig   `yaml:"push"`
	Status StatusConfig `yaml:"status"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	URL   string `yaml:"url"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

type PushConfig struct {
	Transport         string        `yaml:"transport"`
	Path              string        `yaml:"path"`
	Reconnect         bool          `yaml:"reconnect"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectStrategy string        `yaml:"reconnect_strategy"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

type StatusConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MinInterval     time.Duration `yaml:"min_interval"`
	ChangeThreshold int           `yaml:"change_threshold"`
}

type StoreConfig struct {
	FetchLimit int `yaml:"fetch_limit"`
	MaxRecords int `yaml:"max_records"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a config populated with every default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:  "http://127.0.0.1:3790",
			Port: 3790,
		},
		Push: PushConfig{
			Transport:         "sse",
			Path:              "/events/stream",
			Reconnect:         true,
			ReconnectDelay:    time.Second,
			MaxReconnectDelay: 30 * time.Second,
			ReconnectAttempts: 10,
			ReconnectStrategy: "exponential",
			HeartbeatInterval: 10 * time.Second,
			HeartbeatTimeout:  45 * time.Second,
			BufferSize:        100,
		},
		Status: StatusConfig{
			PollInterval:    5 * time.Second,
			MinInterval:     2 * time.Second,
			ChangeThreshold: 10,
		},
		Store: StoreConfig{
			FetchLimit: 100,
			MaxRecords: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// HOOKWATCH_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. Malformed numeric or
// duration values are ignored and the current value is kept.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = ParseDuration(v, *dst)
		}
	}

	str("HOOKWATCH_URL", &c.Server.URL)
	num("HOOKWATCH_PORT", &c.Server.Port)
	str("HOOKWATCH_TOKEN", &c.Server.Token)

	str("HOOKWATCH_TRANSPORT", &c.Push.Transport)
	if v, ok := lookup("HOOKWATCH_RECONNECT"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Push.Reconnect = b
		}
	}
	dur("HOOKWATCH_RECONNECT_DELAY", &c.Push.ReconnectDelay)
	dur("HOOKWATCH_MAX_RECONNECT_DELAY", &c.Push.MaxReconnectDelay)
	num("HOOKWATCH_RECONNECT_ATTEMPTS", &c.Push.ReconnectAttempts)
	str("HOOKWATCH_RECONNECT_STRATEGY", &c.Push.ReconnectStrategy)
	dur("HOOKWATCH_HEARTBEAT_INTERVAL", &c.Push.HeartbeatInterval)
	dur("HOOKWATCH_HEARTBEAT_TIMEOUT", &c.Push.HeartbeatTimeout)
	num("HOOKWATCH_BUFFER_SIZE", &c.Push.BufferSize)

	dur("HOOKWATCH_POLL_INTERVAL", &c.Status.PollInterval)

	str("HOOKWATCH_LOG_LEVEL", &c.Log.Level)
	str("HOOKWATCH_LOG_FORMAT", &c.Log.Format)
	str("HOOKWATCH_LOG_FILE", &c.Log.File)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	switch c.Push.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("push.transport must be sse or websocket, got %q", c.Push.Transport)
	}
	switch c.Push.ReconnectStrategy {
	case "linear", "exponential":
	default:
		return fmt.Errorf("push.reconnect_strategy must be linear or exponential, got %q", c.Push.ReconnectStrategy)
	}
	if c.Push.HeartbeatInterval <= 0 {
		return errors.New("push.heartbeat_interval must be positive")
	}
	if c.Push.HeartbeatTimeout <= c.Push.HeartbeatInterval {
		return errors.New("push.heartbeat_timeout must be greater than push.heartbeat_interval")
	}
	if c.Push.ReconnectAttempts < 0 || c.Push.BufferSize < 0 {
		return errors.New("push.reconnect_attempts and push.buffer_size must not be negative")
	}
	if c.Push.ReconnectDelay <= 0 || c.Push.MaxReconnectDelay < c.Push.ReconnectDelay {
		return errors.New("push.reconnect_delay must be positive and not exceed push.max_reconnect_delay")
	}
	if c.Status.MinInterval <= 0 {
		return errors.New("status.min_interval must be positive")
	}
	return nil
}

// StreamURL returns the push endpoint URL for the configured transport.
func (c *Config) StreamURL() string {
	base := strings.TrimSuffix(c.Server.URL, "/")
	if c.Push.Transport == "websocket" {
		base = strings.Replace(base, "https://", "wss://", 1)
		base = strings.Replace(base, "http://", "ws://", 1)
		path := c.Push.Path
		if path == "" || path == "/events/stream" {
			path = "/events/ws"
		}
		return base + path
	}
	return base + c.Push.Path
}

// ParseDuration parses a duration string, supporting both "10s" format and plain seconds.
func ParseDuration(val string, defaultVal time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}
