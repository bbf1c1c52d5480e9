package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.lostfound/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	ServerURL      string    `toml:"server_url"`
	WebURL         string    `toml:"web_url"`
	WSPath         string    `toml:"ws_path"`
	UserID         string    `toml:"user_id"`
	RequestTimeout Duration  `toml:"request_timeout"`
	MetricsAddr    string    `toml:"metrics_addr"`
	LogLevel       string    `toml:"log_level"`
	Reconnect      Reconnect `toml:"reconnect"`
	Typing         Typing    `toml:"typing"`
}

// Reconnect bounds the channel's automatic reconnection.
type Reconnect struct {
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
}

// Typing holds the typing indicator timings.
type Typing struct {
	Debounce Duration `toml:"debounce"`
	Expiry   Duration `toml:"expiry"`
}

// Duration is a time.Duration that reads and writes as "1s", "200ms" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		ServerURL:      "http://localhost:5000",
		WebURL:         "http://localhost:5173",
		WSPath:         "/ws",
		RequestTimeout: Duration{30 * time.Second},
		LogLevel:       "info",
		Reconnect: Reconnect{
			Attempts: 10,
			Delay:    Duration{time.Second},
		},
		Typing: Typing{
			Debounce: Duration{200 * time.Millisecond},
			Expiry:   Duration{2 * time.Second},
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overrides fields from LF_* environment variables. A .env file in the
// working directory is loaded first if present; real environment wins over it.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("LF_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("LF_WEB_URL"); v != "" {
		c.WebURL = v
	}
	if v := os.Getenv("LF_USER_ID"); v != "" {
		c.UserID = v
	}
	if v := os.Getenv("LF_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server_url %q: want http(s)://host[:port]", c.ServerURL)
	}
	if c.Reconnect.Attempts < 0 {
		return fmt.Errorf("reconnect.attempts must be >= 0, got %d", c.Reconnect.Attempts)
	}
	if c.Reconnect.Delay.Duration < 0 {
		return fmt.Errorf("reconnect.delay must be >= 0, got %s", c.Reconnect.Delay)
	}
	if c.Typing.Debounce.Duration <= 0 || c.Typing.Expiry.Duration <= 0 {
		return fmt.Errorf("typing.debounce and typing.expiry must be positive")
	}
	return nil
}

// WebSocketURL derives the channel endpoint from ServerURL and WSPath.
func (c *Config) WebSocketURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.WSPath
	return u.String(), nil
}

// ChatLink is the web app's deep link to a chat. It falls back to
// ServerURL when no web_url is configured.
func (c *Config) ChatLink(chatID string) (string, error) {
	base := c.WebURL
	if base == "" {
		base = c.ServerURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse web_url: %w", err)
	}
	return u.JoinPath("chat", chatID).String(), nil
}
