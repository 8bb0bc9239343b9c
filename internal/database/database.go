package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Database struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the SQLite database at dbPath and applies the schema.
func Open(ctx context.Context, dbPath string, logger *zap.Logger) (*Database, error) {
	// Per-connection pragmas go in the DSN so every pooled connection gets them.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	d := &Database{db: db, logger: logger.Named("database")}
	if err := d.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	d.logger.Info("Database ready", zap.String("path", dbPath))
	return d, nil
}

// Ping checks that the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guild_policies (
		guild_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		strict INTEGER NOT NULL DEFAULT 0,
		strict_factor REAL NOT NULL,
		near_ratio REAL NOT NULL,
		default_action TEXT NOT NULL,
		owner_id TEXT DEFAULT '',
		log_channel_id TEXT DEFAULT '',
		timeout_ms INTEGER NOT NULL,
		appeal_cooldown_ms INTEGER NOT NULL,
		abandon_after_ms INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS category_limits (
		guild_id TEXT NOT NULL,
		category TEXT NOT NULL,
		max_actions INTEGER NOT NULL,
		window_ms INTEGER NOT NULL,
		action TEXT NOT NULL,
		PRIMARY KEY (guild_id, category),
		FOREIGN KEY (guild_id) REFERENCES guild_policies(guild_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS whitelist (
		guild_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_id TEXT NOT NULL,
		PRIMARY KEY (guild_id, kind, target_id),
		FOREIGN KEY (guild_id) REFERENCES guild_policies(guild_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS violations (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		category TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		overridden INTEGER NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '{}',
		appeal_id TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_violations_guild_user ON violations(guild_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_violations_timestamp ON violations(timestamp);

	CREATE TABLE IF NOT EXISTS appeals (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		violation_id TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		statement TEXT NOT NULL DEFAULT '',
		submitted_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		investigator_id TEXT DEFAULT '',
		resolved_at INTEGER,
		resolver_id TEXT DEFAULT '',
		resolution_reason TEXT DEFAULT '',
		FOREIGN KEY (violation_id) REFERENCES violations(id)
	);

	CREATE INDEX IF NOT EXISTS idx_appeals_guild ON appeals(guild_id);
	CREATE INDEX IF NOT EXISTS idx_appeals_status ON appeals(status);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// withTx runs fn in a transaction, committing when it returns nil.
func (d *Database) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
