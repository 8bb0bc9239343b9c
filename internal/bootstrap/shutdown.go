package bootstrap

import (
	"go.uber.org/zap"
)

// Shutdown stops accepting gateway events, flushes pending notifications, and
// closes storage. Components that were never built are skipped.
func Shutdown(c *Components, logger *zap.Logger) {
	logger.Info("Starting graceful shutdown...")

	if c.Session != nil {
		logger.Info("Closing Discord session...")
		if err := c.Session.Close(); err != nil {
			logger.Warn("Discord session close failed", zap.Error(err))
		}
	}

	if c.Notifier != nil {
		logger.Info("Flushing notifications...")
		c.Notifier.Wait()
	}

	if c.Database != nil {
		logger.Info("Closing database...")
		if err := c.Database.Close(); err != nil {
			logger.Error("Database close failed", zap.Error(err))
		}
	}

	logger.Info("Graceful shutdown complete")
}
