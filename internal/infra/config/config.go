package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig holds settings for the workflow-execution backend.
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`      // whole request/response cycle
	ConnTimeout time.Duration `yaml:"conn_timeout"` // dial only
	// RateLimit is the global invocation budget in requests per second.
	// 0 disables pacing.
	RateLimit    float64       `yaml:"rate_limit"`
	Discovery    bool          `yaml:"discovery"`
	DiscoveryTTL time.Duration `yaml:"discovery_ttl"`
	Pool         PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// TargetConfig defines one statically configured target.
type TargetConfig struct {
	Key         string         `yaml:"key"`
	RemoteID    string         `yaml:"remote_id"`
	DisplayName string         `yaml:"display_name"`
	Keywords    []string       `yaml:"keywords,omitempty"`
	Tweaks      map[string]any `yaml:"tweaks,omitempty"`
}

// RoutingConfig holds routing policy settings.
type RoutingConfig struct {
	DefaultTarget        string `yaml:"default_target"`
	LongFormTarget       string `yaml:"long_form_target"`
	ConversationalTarget string `yaml:"conversational_target"`
	LongFormThreshold    int    `yaml:"long_form_threshold"`
	AutoRouting          bool   `yaml:"auto_routing"`
	MultiTarget          bool   `yaml:"multi_target"`
}

// SessionConfig holds session binding settings.
type SessionConfig struct {
	Memory bool   `yaml:"memory"`
	Store  string `yaml:"store"` // "memory" or "sqlite"
	Path   string `yaml:"path"`  // sqlite database path
	// TTL evicts bindings idle longer than this. 0 keeps bindings for
	// the process lifetime.
	TTL time.Duration `yaml:"ttl"`
}

// HTTPChannelConfig holds the HTTP chat API settings.
type HTTPChannelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SlackChannelConfig holds Slack Socket Mode settings.
type SlackChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

// ChannelsConfig groups the chat host surfaces.
type ChannelsConfig struct {
	HTTP  HTTPChannelConfig  `yaml:"http"`
	Slack SlackChannelConfig `yaml:"slack"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// BreakerConfig holds circuit breaker settings for the backend client.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// Config is the top-level application configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Targets  []TargetConfig `yaml:"targets"`
	Routing  RoutingConfig  `yaml:"routing"`
	Session  SessionConfig  `yaml:"session"`
	Channels ChannelsConfig `yaml:"channels"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:7860",
			Timeout:      30 * time.Second,
			ConnTimeout:  5 * time.Second,
			RateLimit:    5,
			Discovery:    true,
			DiscoveryTTL: 5 * time.Minute,
		},
		Routing: RoutingConfig{
			DefaultTarget:     "default",
			LongFormThreshold: 500,
			AutoRouting:       true,
			MultiTarget:       true,
		},
		Session: SessionConfig{
			Memory: true,
			Store:  "memory",
		},
		Channels: ChannelsConfig{
			HTTP: HTTPChannelConfig{Enabled: true, Addr: ":8080"},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("FLOWRELAY_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps FLOWRELAY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWRELAY_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("FLOWRELAY_BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("FLOWRELAY_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("FLOWRELAY_BACKEND_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backend.RateLimit = f
		}
	}
	if v := os.Getenv("FLOWRELAY_BACKEND_DISCOVERY"); v != "" {
		cfg.Backend.Discovery = v == "true"
	}
	if v := os.Getenv("FLOWRELAY_BACKEND_DISCOVERY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.DiscoveryTTL = d
		}
	}
	if v := os.Getenv("FLOWRELAY_ROUTING_DEFAULT_TARGET"); v != "" {
		cfg.Routing.DefaultTarget = v
	}
	if v := os.Getenv("FLOWRELAY_ROUTING_MULTI_TARGET"); v != "" {
		cfg.Routing.MultiTarget = v == "true"
	}
	if v := os.Getenv("FLOWRELAY_ROUTING_AUTO_ROUTING"); v != "" {
		cfg.Routing.AutoRouting = v == "true"
	}
	if v := os.Getenv("FLOWRELAY_SESSION_MEMORY"); v != "" {
		cfg.Session.Memory = v == "true"
	}
	if v := os.Getenv("FLOWRELAY_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("FLOWRELAY_SESSION_PATH"); v != "" {
		cfg.Session.Path = v
	}
	if v := os.Getenv("FLOWRELAY_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("FLOWRELAY_HTTP_ADDR"); v != "" {
		cfg.Channels.HTTP.Addr = v
	}
	if v := os.Getenv("FLOWRELAY_SLACK_BOT_TOKEN"); v != "" {
		cfg.Channels.Slack.BotToken = v
		cfg.Channels.Slack.Enabled = true
	}
	if v := os.Getenv("FLOWRELAY_SLACK_APP_TOKEN"); v != "" {
		cfg.Channels.Slack.AppToken = v
	}
	if v := os.Getenv("FLOWRELAY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FLOWRELAY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FLOWRELAY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FLOWRELAY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// validatePermissions checks the config file has restrictive permissions.
// Config files can carry API keys; group/world readability is refused.
func validatePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("config file %s is readable by others (mode %o); run: chmod 600 %s",
			path, info.Mode().Perm(), path)
	}
	return nil
}
