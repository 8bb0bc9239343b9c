package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
)

const sessionLayout = "2006-01-02_15-04-05"

// Manager creates loggers that write to a timestamped session directory and to
// logs/latest, keeping only the newest MaxLogsToKeep sessions.
type Manager struct {
	currentSessionDir string
	logDir            string
	level             string
	maxLogsToKeep     int
	maxFileSize       int64
	console           bool
}

func NewManager(cfg config.LoggingConfig) *Manager {
	return &Manager{
		logDir:        cfg.Dir,
		level:         cfg.Level,
		maxLogsToKeep: cfg.MaxLogsToKeep,
		maxFileSize:   64 << 20,
		console:       true,
	}
}

// WithoutConsole stops the loggers from also writing to stderr.
func (lm *Manager) WithoutConsole() *Manager {
	lm.console = false
	return lm
}

// GetLoggers returns the main logger and a separate logger for database activity.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger("main.log", lm.console)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}
	dbLogger, err := lm.initLogger("database.log", false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}
	return mainLogger, dbLogger, nil
}

// SessionDir is the directory of the current session, empty before GetLoggers.
func (lm *Manager) SessionDir() string {
	return lm.currentSessionDir
}

func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.currentSessionDir = filepath.Join(lm.logDir, time.Now().Format(sessionLayout))
	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	latestDir := filepath.Join(lm.logDir, "latest")
	_ = os.RemoveAll(latestDir)
	if err := os.MkdirAll(latestDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create latest directory: %w", err)
	}
	return nil
}

func (lm *Manager) initLogger(name string, console bool) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	paths := []string{
		filepath.Join(lm.currentSessionDir, name),
		filepath.Join(lm.logDir, "latest", name),
	}

	cores := make([]zapcore.Core, 0, len(paths)+1)
	for _, path := range paths {
		rotator, err := NewLogRotation(path, lm.maxFileSize)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			zapLevel,
		))
	}
	if console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr),
			zapLevel,
		))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions removes the oldest session directories beyond maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	kept := sessions[:0]
	for _, s := range sessions {
		if filepath.Base(s) != "latest" {
			kept = append(kept, s)
		}
	}
	sessions = kept

	if lm.maxLogsToKeep <= 0 || len(sessions) < lm.maxLogsToKeep {
		return nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		iInfo, errI := os.Stat(sessions[i])
		jInfo, errJ := os.Stat(sessions[j])
		if errI != nil || errJ != nil {
			return sessions[i] < sessions[j]
		}
		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	// Leave room for the session about to be created.
	for i := range len(sessions) - lm.maxLogsToKeep + 1 {
		if err := os.RemoveAll(sessions[i]); err != nil {
			return err
		}
	}
	return nil
}
