package config

import "time"

// Default thresholds per category. Destructive categories are tight; message
// flags tolerate bursts.
var defaultLimits = map[string]LimitConfig{
	"channel_delete":    {Limit: 3, Window: 60 * time.Second, Action: "ban"},
	"role_delete":       {Limit: 3, Window: 60 * time.Second, Action: "ban"},
	"member_ban":        {Limit: 3, Window: 60 * time.Second, Action: "ban"},
	"member_kick":       {Limit: 5, Window: 60 * time.Second, Action: "kick"},
	"webhook_create":    {Limit: 5, Window: 60 * time.Second, Action: "revoke_permissions"},
	"permission_change": {Limit: 5, Window: 60 * time.Second, Action: "revoke_permissions"},
	"message":           {Limit: 5, Window: 10 * time.Second, Action: "timeout"},
}

func DefaultConfig() *Config {
	limits := make(map[string]LimitConfig, len(defaultLimits))
	for k, v := range defaultLimits {
		limits[k] = v
	}

	return &Config{
		Bot: BotConfig{
			RegisterCommands: true,
			WarnCooldown:     time.Minute,
		},
		Database: DatabaseConfig{
			Path: "antinuke.db",
		},
		Engine: EngineConfig{
			Workers:    8,
			QueueSize:  256,
			BatchSize:  32,
			GCInterval: time.Minute,
		},
		Detection: DetectionConfig{
			Enabled:         true,
			StrictFactor:    0.5,
			NearRatio:       0.8,
			DefaultAction:   "timeout",
			TimeoutDuration: 10 * time.Minute,
			Limits:          limits,
			FlaggedTerms:    []string{"discord.gg/", "discord.com/invite/", "free nitro", "steamcommunity.com/gift"},
			MentionLimit:    5,
		},
		Dispatch: DispatchConfig{
			APIBaseURL:      "https://discord.com/api/v10",
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			RequestTimeout:  2 * time.Second,
			GlobalRate:      50,
			GlobalBurst:     10,
			HTTPPoolSize:    4,
		},
		Appeals: AppealsConfig{
			Cooldown:      24 * time.Hour,
			AbandonAfter:  72 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Dir:           "logs",
			MaxLogsToKeep: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}
