package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a loaded config for contradictions a running process
// could not recover from.
func Validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit must not be negative")
	}
	if cfg.Backend.Timeout < 0 || cfg.Backend.ConnTimeout < 0 {
		return fmt.Errorf("backend timeouts must not be negative")
	}

	switch cfg.Session.Store {
	case "", "memory":
	case "sqlite":
		if cfg.Session.Path == "" {
			return fmt.Errorf("session.path is required when session.store is sqlite")
		}
	default:
		return fmt.Errorf("session.store %q is not supported (use memory or sqlite)", cfg.Session.Store)
	}
	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must not be negative")
	}

	if cfg.Routing.LongFormThreshold < 0 {
		return fmt.Errorf("routing.long_form_threshold must not be negative")
	}

	seen := make(map[string]struct{}, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Key == "" {
			return fmt.Errorf("targets[%d]: key is required", i)
		}
		if t.RemoteID == "" {
			return fmt.Errorf("target %q: remote_id is required", t.Key)
		}
		k := strings.ToLower(t.Key)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("target %q is defined more than once", t.Key)
		}
		seen[k] = struct{}{}
	}

	if cfg.Channels.Slack.Enabled {
		if cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "" {
			return fmt.Errorf("slack channel requires bot_token and app_token")
		}
	}
	if cfg.Channels.HTTP.Enabled && cfg.Channels.HTTP.Addr == "" {
		return fmt.Errorf("http channel requires addr")
	}

	switch cfg.Logger.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level %q is not supported", cfg.Logger.Level)
	}

	return nil
}
