package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds stake alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "stake >= 10000", "rank == 1",
	// "entries >= 20".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort            = 8001
	DefaultLogLevel            = "info"
	DefaultTokenLength         = 8
	DefaultLeaderboardCapacity = 20
	DefaultStreamInterval      = 5 * time.Second
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the request layer, admin API and stream listen on.
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Auth configures how the admin API and /metrics authenticate clients.
	Auth AuthConfig `yaml:"auth"`

	// Session controls token issuance and expiry.
	Session SessionConfig `yaml:"session"`

	// Leaderboard controls the per-offer board size.
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`

	// RateLimit throttles stake submissions.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Stream controls the websocket leaderboard feed.
	Stream StreamConfig `yaml:"stream"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication for the admin surface.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// SessionConfig controls session tokens.
type SessionConfig struct {
	// TokenLength is the number of hex characters in a token (4..32, default 8).
	TokenLength int `yaml:"token_length"`

	// TTL is the idle timeout after which a session stops resolving.
	// Zero (the default) means sessions never expire.
	TTL time.Duration `yaml:"ttl"`
}

// LeaderboardConfig controls per-offer leaderboards.
type LeaderboardConfig struct {
	// Capacity is the number of entries each board retains (default 20).
	Capacity int `yaml:"capacity"`
}

// RateLimitConfig throttles POST /{offerID}/stake across all clients.
type RateLimitConfig struct {
	// StakesPerSecond is the sustained rate. Zero disables limiting.
	StakesPerSecond float64 `yaml:"stakes_per_second"`

	// Burst is the bucket size. Defaults to ceil(StakesPerSecond) when zero.
	Burst int `yaml:"burst"`
}

// EffectiveBurst returns Burst, or a burst derived from the rate when unset.
func (r RateLimitConfig) EffectiveBurst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	b := int(r.StakesPerSecond)
	if float64(b) < r.StakesPerSecond {
		b++
	}
	if b < 1 {
		b = 1
	}
	return b
}

// StreamConfig controls the websocket leaderboard feed.
type StreamConfig struct {
	// Interval is how often every connected client receives its offer's board.
	Interval time.Duration `yaml:"interval"`

	// AllowedOrigins lists browser origins that may open the stream, for
	// example "https://odds.example.com". "*" allows any origin. Empty means
	// same host only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SlogLevel maps LogLevel to a slog.Level.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config data, applying defaults and validating the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is also the
// configuration used when the server runs without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			LogLevel: DefaultLogLevel,
			Session: SessionConfig{
				TokenLength: DefaultTokenLength,
			},
			Leaderboard: LeaderboardConfig{
				Capacity: DefaultLeaderboardCapacity,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Session.TokenLength < 4 || s.Session.TokenLength > 32 {
		return fmt.Errorf("server.session.token_length %d is out of range [4, 32]", s.Session.TokenLength)
	}
	if s.Session.TTL < 0 {
		return fmt.Errorf("server.session.ttl must not be negative")
	}
	if s.Leaderboard.Capacity <= 0 {
		return fmt.Errorf("server.leaderboard.capacity must be positive, got %d", s.Leaderboard.Capacity)
	}
	if s.RateLimit.StakesPerSecond < 0 || s.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit values must not be negative")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if err := checkCondition(r.Condition); err != nil {
			return fmt.Errorf("server.alerts.rules[%d] %q: %w", i, r.Name, err)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}

// checkCondition verifies a rule condition has the "field op value" shape
// with a known field, operator and an integer value.
func checkCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	switch parts[0] {
	case "stake", "rank", "entries":
	default:
		return fmt.Errorf("condition %q: unknown field %q", cond, parts[0])
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==":
	default:
		return fmt.Errorf("condition %q: unknown operator %q", cond, parts[1])
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return fmt.Errorf("condition %q: value must be an integer", cond)
	}
	return nil
}
