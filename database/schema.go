// database/schema.go
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names the SQL flavour; its value is also the database/sql driver name.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// DialectFor maps a configured driver name to a Dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "", "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// lifecycleLockQuery opens every lifecycle transaction. On MySQL it takes
// the row lock on the single sanctions_fallback_lock row, serializing
// writers across processes. sqlite needs none: it only ever runs one writer.
func (d Dialect) lifecycleLockQuery() string {
	if d == MySQL {
		return `SELECT id FROM sanctions_fallback_lock WHERE id = 1 FOR UPDATE`
	}
	return ""
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sanctions_fallback_lock (
		id INT PRIMARY KEY
	) ENGINE=InnoDB`,
	`INSERT IGNORE INTO sanctions_fallback_lock (id) VALUES (1)`,
	`CREATE TABLE IF NOT EXISTS sanctions_fallback_metadata (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		file_checksum VARCHAR(255) NOT NULL,
		download_timestamp DATETIME(6) NOT NULL,
		import_timestamp DATETIME(6) NULL,
		import_state VARCHAR(255) NOT NULL DEFAULT 'New',
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT uq_fallback_metadata_state UNIQUE (import_state),
		CONSTRAINT ck_fallback_metadata_checksum CHECK (CHAR_LENGTH(file_checksum) > 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sanctions_fallback_data (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sanctions_fallback_metadata_id BIGINT NOT NULL,
		source VARCHAR(255) NOT NULL DEFAULT '',
		sdn_type VARCHAR(255) NOT NULL DEFAULT '',
		names TEXT NOT NULL,
		addresses TEXT NOT NULL,
		countries VARCHAR(255) NOT NULL DEFAULT '',
		INDEX idx_fallback_data_source (source),
		INDEX idx_fallback_data_sdn_type (sdn_type),
		CONSTRAINT fk_fallback_data_metadata FOREIGN KEY (sanctions_fallback_metadata_id)
			REFERENCES sanctions_fallback_metadata (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sanctions_check_failures (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		full_name VARCHAR(255) NOT NULL,
		username VARCHAR(255) NOT NULL,
		lms_user_id BIGINT NULL,
		city VARCHAR(32) NOT NULL DEFAULT '',
		country VARCHAR(2) NOT NULL,
		sanctions_type VARCHAR(255) NOT NULL,
		system_identifier VARCHAR(255) NOT NULL,
		metadata JSON NOT NULL,
		sdn_check_response JSON NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_check_failures_lms_user_id (lms_user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS sanctions_export_sources (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		source_name VARCHAR(255) NOT NULL,
		source_url VARCHAR(2048) NOT NULL DEFAULT '',
		last_checked_at DATETIME(6) NULL,
		last_success_at DATETIME(6) NULL,
		file_checksum VARCHAR(255) NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		last_result VARCHAR(64) NOT NULL DEFAULT '',
		last_error TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		CONSTRAINT uq_export_sources_name UNIQUE (source_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sanctions_fallback_metadata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_checksum TEXT NOT NULL CHECK (length(file_checksum) > 0),
		download_timestamp DATETIME NOT NULL,
		import_timestamp DATETIME NULL,
		import_state TEXT NOT NULL DEFAULT 'New' UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sanctions_fallback_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sanctions_fallback_metadata_id INTEGER NOT NULL
			REFERENCES sanctions_fallback_metadata (id) ON DELETE CASCADE,
		source TEXT NOT NULL DEFAULT '',
		sdn_type TEXT NOT NULL DEFAULT '',
		names TEXT NOT NULL DEFAULT '',
		addresses TEXT NOT NULL DEFAULT '',
		countries TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fallback_data_source ON sanctions_fallback_data (source)`,
	`CREATE INDEX IF NOT EXISTS idx_fallback_data_sdn_type ON sanctions_fallback_data (sdn_type)`,
	`CREATE TABLE IF NOT EXISTS sanctions_check_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL,
		username TEXT NOT NULL,
		lms_user_id INTEGER NULL,
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL,
		sanctions_type TEXT NOT NULL,
		system_identifier TEXT NOT NULL,
		metadata TEXT NOT NULL,
		sdn_check_response TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_check_failures_lms_user_id ON sanctions_check_failures (lms_user_id)`,
	`CREATE TABLE IF NOT EXISTS sanctions_export_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_name TEXT NOT NULL UNIQUE,
		source_url TEXT NOT NULL DEFAULT '',
		last_checked_at DATETIME NULL,
		last_success_at DATETIME NULL,
		file_checksum TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		last_result TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// EnsureSchema creates the fallback and audit tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts := mysqlSchema
	if dialect == SQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema for %s: %w", dialect, err)
		}
	}
	return nil
}
