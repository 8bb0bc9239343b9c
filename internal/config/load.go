package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
)

type Config struct {
	Bot       BotConfig       `koanf:"bot"`
	Database  DatabaseConfig  `koanf:"database"`
	Engine    EngineConfig    `koanf:"engine"`
	Detection DetectionConfig `koanf:"detection"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Appeals   AppealsConfig   `koanf:"appeals"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type BotConfig struct {
	Token    string `koanf:"token"`
	ClientID string `koanf:"client_id"`
	// RegisterCommands controls whether slash commands are (re)registered at startup.
	RegisterCommands bool `koanf:"register_commands"`
	// WarnCooldown suppresses repeated near-limit warnings for the same actor and category.
	WarnCooldown time.Duration `koanf:"warn_cooldown"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// EngineConfig sizes the per-guild pipeline.
type EngineConfig struct {
	Workers    int           `koanf:"workers"`
	QueueSize  int           `koanf:"queue_size"`
	BatchSize  int           `koanf:"batch_size"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// DetectionConfig is the policy applied to guilds that were never configured.
type DetectionConfig struct {
	Enabled         bool                   `koanf:"enabled"`
	Strict          bool                   `koanf:"strict"`
	StrictFactor    float64                `koanf:"strict_factor"`
	NearRatio       float64                `koanf:"near_ratio"`
	DefaultAction   string                 `koanf:"default_action"`
	TimeoutDuration time.Duration          `koanf:"timeout_duration"`
	Limits          map[string]LimitConfig `koanf:"limits"`

	// FlaggedTerms and MentionLimit drive the message classifier.
	FlaggedTerms []string `koanf:"flagged_terms"`
	MentionLimit int      `koanf:"mention_limit"`
}

type LimitConfig struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
	Action string        `koanf:"action"`
}

// DispatchConfig controls platform calls and their retries.
type DispatchConfig struct {
	APIBaseURL      string        `koanf:"api_base_url"`
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	GlobalRate      float64       `koanf:"global_rate"`
	GlobalBurst     int           `koanf:"global_burst"`
	HTTPPoolSize    int           `koanf:"http_pool_size"`
}

type AppealsConfig struct {
	Cooldown      time.Duration `koanf:"cooldown"`
	AbandonAfter  time.Duration `koanf:"abandon_after"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type LoggingConfig struct {
	Level         string `koanf:"level"`
	Dir           string `koanf:"dir"`
	MaxLogsToKeep int    `koanf:"max_logs_to_keep"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// envOverrides are applied after the file is read.
type envOverrides struct {
	Token        string `env:"DISCORD_TOKEN"`
	ClientID     string `env:"CLIENT_ID"`
	DatabasePath string `env:"DATABASE_PATH"`
	LogLevel     string `env:"LOG_LEVEL"`
}

// Load reads a TOML config file over DefaultConfig and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault falls back to defaults (plus environment) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultConfig()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return Load(path)
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Token != "" {
		c.Bot.Token = o.Token
	}
	if o.ClientID != "" {
		c.Bot.ClientID = o.ClientID
	}
	if o.DatabasePath != "" {
		c.Database.Path = o.DatabasePath
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	return nil
}

// Validate checks the process-wide settings and the default policy.
func (c *Config) Validate() error {
	if c.Engine.Workers <= 0 {
		return &models.ConfigError{Field: "engine.workers", Reason: "must be positive"}
	}
	if c.Engine.QueueSize <= 0 || c.Engine.BatchSize <= 0 {
		return &models.ConfigError{Field: "engine.queue_size", Reason: "queue and batch sizes must be positive"}
	}
	if c.Engine.GCInterval <= 0 {
		return &models.ConfigError{Field: "engine.gc_interval", Reason: "must be positive"}
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return &models.ConfigError{Field: "dispatch.max_attempts", Reason: "must be positive"}
	}
	if c.Dispatch.InitialInterval <= 0 {
		return &models.ConfigError{Field: "dispatch.initial_interval", Reason: "must be positive"}
	}
	if c.Appeals.SweepInterval <= 0 {
		return &models.ConfigError{Field: "appeals.sweep_interval", Reason: "must be positive"}
	}
	if _, err := c.Detection.categoryLimits(); err != nil {
		return err
	}
	p := c.Detection.Policy(1)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("detection defaults: %w", err)
	}
	return nil
}

func (d DetectionConfig) categoryLimits() (map[models.Category]CategoryLimit, error) {
	out := make(map[models.Category]CategoryLimit, len(d.Limits))
	for name, l := range d.Limits {
		c, ok := models.ParseCategory(name)
		if !ok {
			return nil, &models.ConfigError{Field: "detection.limits", Reason: fmt.Sprintf("unknown category %q", name)}
		}
		out[c] = CategoryLimit{Limit: l.Limit, Window: l.Window, Action: models.Action(l.Action)}
	}
	return out, nil
}

// Policy builds the default policy snapshot for a guild.
func (d DetectionConfig) Policy(guildID uint64) *GuildPolicy {
	limits, _ := d.categoryLimits()
	return &GuildPolicy{
		GuildID:         guildID,
		Enabled:         d.Enabled,
		Strict:          d.Strict,
		StrictFactor:    d.StrictFactor,
		NearRatio:       d.NearRatio,
		Categories:      limits,
		DefaultAction:   models.Action(d.DefaultAction),
		Whitelist:       NewWhitelist(nil, nil, nil),
		TimeoutDuration: d.TimeoutDuration,
	}
}

// PolicyDefaults returns the fallback used by PolicyStore for unconfigured guilds.
func (c *Config) PolicyDefaults() func(guildID uint64) *GuildPolicy {
	return func(guildID uint64) *GuildPolicy {
		p := c.Detection.Policy(guildID)
		p.AppealCooldown = c.Appeals.Cooldown
		p.AbandonAfter = c.Appeals.AbandonAfter
		return p
	}
}
