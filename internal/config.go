package internal

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds environment-derived settings resolved once at process
// start and threaded through registry construction. Components never read
// the ambient environment themselves.
type Config struct {
	// Homes maps a provider slug to an explicit home-directory override.
	// Absent slugs fall back to the provider's documented default path.
	Homes map[string]string
	// LogLevel is the verbosity requested via SESSION_BRIDGE_LOG.
	LogLevel LogLevel
}

// homeKeys maps provider slugs to the koanf key their override variable
// lowercases to (CLAUDE_HOME -> claude.home, and so on).
var homeKeys = map[string]string{
	"claude-code": "claude.home",
	"codex":       "codex.home",
	"gemini":      "gemini.home",
	"vibe":        "vibe.home",
	"cursor":      "cursor.agent.home",
	"factory":     "factory.home",
}

// LoadConfig resolves provider home overrides and logging verbosity from
// the environment.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := &Config{Homes: make(map[string]string)}
	for slug, key := range homeKeys {
		if v := k.String(key); v != "" {
			cfg.Homes[slug] = v
		}
	}
	cfg.LogLevel = ParseLogLevel(k.String("session.bridge.log"))

	return cfg, nil
}

// Home returns the configured home for a provider slug, or fallback when
// no override is set.
func (c *Config) Home(slug, fallback string) string {
	if c == nil {
		return fallback
	}
	if v, ok := c.Homes[slug]; ok {
		return v
	}
	return fallback
}
