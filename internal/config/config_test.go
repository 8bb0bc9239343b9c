package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[bot]
token = "file-token"

[engine]
workers = 4

[detection]
strict = true
default_action = "kick"

[detection.limits.channel_delete]
limit = 2
window = "30s"
action = "ban"

[dispatch]
initial_interval = "250ms"

[appeals]
cooldown = "12h"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Bot.Token)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 256, cfg.Engine.QueueSize, "unset values keep defaults")
	assert.True(t, cfg.Detection.Strict)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.InitialInterval)
	assert.Equal(t, 12*time.Hour, cfg.Appeals.Cooldown)
	assert.Equal(t, config.LimitConfig{Limit: 2, Window: 30 * time.Second, Action: "ban"}, cfg.Detection.Limits["channel_delete"])
	assert.Contains(t, cfg.Detection.Limits, "role_delete", "default categories survive a partial override")

	p := cfg.PolicyDefaults()(42)
	assert.Equal(t, uint64(42), p.GuildID)
	assert.Equal(t, models.ActionKick, p.DefaultAction)
	assert.Equal(t, 12*time.Hour, p.AppealCooldown)
	assert.Equal(t, 72*time.Hour, p.AbandonAfter)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("DATABASE_PATH", "/tmp/other.db")

	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Bot.Token)
	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero limit", "[detection.limits.role_delete]\nlimit = 0\nwindow = \"10s\"\n"},
		{"unknown category", "[detection.limits.emoji_delete]\nlimit = 1\nwindow = \"10s\"\n"},
		{"inverse default action", "[detection]\ndefault_action = \"unban\"\n"},
		{"no workers", "[engine]\nworkers = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfiguration)
		})
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Dispatch.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.InitialInterval)
}
