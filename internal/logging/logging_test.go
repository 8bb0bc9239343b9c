package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
)

func TestManagerWritesSessionAndLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lm := NewManager(config.LoggingConfig{Level: "debug", Dir: dir, MaxLogsToKeep: 3}).WithoutConsole()

	main, db, err := lm.GetLoggers()
	require.NoError(t, err)
	main.Info("hello from main")
	db.Info("hello from db")
	require.NoError(t, main.Sync())
	require.NoError(t, db.Sync())

	for _, path := range []string{
		filepath.Join(lm.SessionDir(), "main.log"),
		filepath.Join(dir, "latest", "main.log"),
	} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello from main")
	}

	data, err := os.ReadFile(filepath.Join(dir, "latest", "database.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from db")
}

func TestManagerRejectsBadLevel(t *testing.T) {
	t.Parallel()

	lm := NewManager(config.LoggingConfig{Level: "loud", Dir: t.TempDir(), MaxLogsToKeep: 3}).WithoutConsole()
	_, _, err := lm.GetLoggers()
	assert.Error(t, err)
}

func TestRotateLogSessions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"2020-01-01_00-00-00", "2020-01-02_00-00-00", "2020-01-03_00-00-00", "latest"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}

	lm := &Manager{logDir: dir, maxLogsToKeep: 2}
	require.NoError(t, lm.rotateLogSessions())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	// One old session is kept so the new one brings the total to two.
	assert.Len(t, entries, 2)
}

func TestLogRotationBySize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "main.log")
	lr, err := NewLogRotation(path, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lr.Close() })

	_, err = lr.Write([]byte("0123456789\n"))
	require.NoError(t, err)
	_, err = lr.Write([]byte("abcdefghij\n"))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "main-*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij\n", string(data))
}
