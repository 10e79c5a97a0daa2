package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for Herald.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Agent     AgentConfig               `json:"agent"`
	Providers map[string]ProviderConfig `json:"providers"`
	Channels  ChannelsConfig            `json:"channels"`
	Memory    MemoryConfig              `json:"memory"`
	Cache     CacheConfig               `json:"cache"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel        string   `json:"logLevel"`
	LogFile         string   `json:"logFile,omitempty"`       // optional log file path
	DefaultProvider string   `json:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty"` // provider failover order
}

// AgentConfig identifies the agent. An empty ID is derived from the name.
type AgentConfig struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	PersonaFile string `json:"personaFile,omitempty"`
}

type ProviderConfig struct {
	Enabled         bool   `json:"enabled"`
	APIBase         string `json:"apiBase,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	SmallModel      string `json:"smallModel,omitempty"`
	LargeModel      string `json:"largeModel,omitempty"`
	RateLimitPerMin int    `json:"rateLimitPerMinute,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	Feed     FeedConfig     `json:"feed"`
}

type TelegramConfig struct {
	Enabled              bool   `json:"enabled"`
	Token                string `json:"token,omitempty"`
	IgnoreBotMessages    bool   `json:"ignoreBotMessages"`
	IgnoreDirectMessages bool   `json:"ignoreDirectMessages"`
}

type DiscordConfig struct {
	Enabled              bool   `json:"enabled"`
	Token                string `json:"token,omitempty"`
	GuildID              string `json:"guildId,omitempty"`
	IgnoreBotMessages    bool   `json:"ignoreBotMessages"`
	IgnoreDirectMessages bool   `json:"ignoreDirectMessages"`
}

// FeedConfig configures the public short-post feed and its autonomous loops.
type FeedConfig struct {
	Enabled         bool           `json:"enabled"`
	APIBase         string         `json:"apiBase,omitempty"`
	BearerToken     string         `json:"bearerToken,omitempty"`
	Username        string         `json:"username,omitempty"`
	DryRun          bool           `json:"dryRun"`
	PostImmediately bool           `json:"postImmediately"`
	Post            IntervalConfig `json:"post"`
	Tag             TagConfig      `json:"tag"`
}

// IntervalConfig is a [min, max] minute window. Zero fields defer to the persona.
type IntervalConfig struct {
	MinMinutes int `json:"minMinutes,omitempty"`
	MaxMinutes int `json:"maxMinutes,omitempty"`
}

type TagConfig struct {
	Enabled    bool           `json:"enabled"`
	MinMinutes int            `json:"minMinutes,omitempty"`
	MaxMinutes int            `json:"maxMinutes,omitempty"`
	Targets    FlexStringList `json:"targets,omitempty"`
}

// FlexStringList accepts a JSON array of strings and numbers, so that
// numeric account ids can be written without quotes.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, strconv.FormatFloat(val, 'f', -1, 64))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type MemoryConfig struct {
	DBPath       string `json:"dbPath"`
	HistoryLimit int    `json:"historyLimit"`
}

// CacheConfig selects the key/value backend for scheduler state.
type CacheConfig struct {
	Backend     string `json:"backend"` // "sqlite" | "postgres"
	PostgresURL string `json:"postgresUrl,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".herald"
	}
	return filepath.Join(home, ".herald")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Memory.DBPath = ExpandPath(cfg.Memory.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Agent.PersonaFile = ExpandPath(cfg.Agent.PersonaFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		errs = append(errs, "agent.name is required")
	}
	if cfg.Memory.HistoryLimit < 1 {
		errs = append(errs, "memory.historyLimit must be >= 1")
	}

	switch cfg.Cache.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Cache.PostgresURL == "" {
			errs = append(errs, "cache.postgresUrl is required for the postgres backend")
		}
	default:
		errs = append(errs, "cache.backend must be one of: sqlite, postgres")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	feed := cfg.Channels.Feed
	if feed.Enabled {
		if feed.Username == "" {
			errs = append(errs, "channels.feed.username is required")
		}
		if !feed.DryRun && feed.BearerToken == "" {
			errs = append(errs, "channels.feed.bearerToken is required unless dryRun is set")
		}
	}
	errs = append(errs, validateWindow("channels.feed.post", feed.Post.MinMinutes, feed.Post.MaxMinutes)...)
	errs = append(errs, validateWindow("channels.feed.tag", feed.Tag.MinMinutes, feed.Tag.MaxMinutes)...)

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required")
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required")
	}

	if cfg.General.DefaultProvider != "" {
		if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
			errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
		}
	}
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}
	for name, pc := range cfg.Providers {
		if pc.RateLimitPerMin < 0 {
			errs = append(errs, fmt.Sprintf("providers.%s: rateLimitPerMinute must be >= 0", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateWindow(path string, minMinutes, maxMinutes int) []string {
	var errs []string
	if minMinutes < 0 || maxMinutes < 0 {
		errs = append(errs, path+": minutes must be >= 0")
	}
	if minMinutes > 0 && maxMinutes > 0 && minMinutes > maxMinutes {
		errs = append(errs, path+": minMinutes must not exceed maxMinutes")
	}
	return errs
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
