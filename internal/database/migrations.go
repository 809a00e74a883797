package database

import (
	"fmt"

	"github.com/artur/peaktube/internal/logging"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	log := logging.For("db")
	log.Info("Running migrations...")

	migrations := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_user_id INTEGER NOT NULL UNIQUE,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			language_code TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_telegram_id ON users(telegram_user_id)`,

		// Quota records, one per user. Timestamps are unix nanoseconds.
		`CREATE TABLE IF NOT EXISTS quota_records (
			user_id INTEGER PRIMARY KEY,
			plan TEXT NOT NULL DEFAULT 'free',
			downloads_today INTEGER NOT NULL DEFAULT 0,
			downloads_total INTEGER NOT NULL DEFAULT 0,
			last_reset_at INTEGER NOT NULL,
			ai_assist_used INTEGER NOT NULL DEFAULT 0,
			ai_assist_window_start INTEGER NOT NULL
		)`,

		// Fallback direct links
		`CREATE TABLE IF NOT EXISTS direct_links (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			source_url TEXT NOT NULL,
			direct_url TEXT NOT NULL,
			title TEXT,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_direct_links_expires_at ON direct_links(expires_at)`,

		// Delivery history
		`CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			resource_id TEXT NOT NULL,
			rendition TEXT NOT NULL,
			quality TEXT,
			kind TEXT NOT NULL,
			title TEXT,
			file_size_bytes INTEGER,
			executed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_user_id ON deliveries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_resource_id ON deliveries(resource_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Info("Migrations completed successfully")
	return nil
}
