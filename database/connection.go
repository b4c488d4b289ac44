// database/connection.go
package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // embedded driver for single-node deployments and tests

	"github.com/gewnthar/sanctions/config"
)

var DB *sql.DB

// InitDB initializes the database connection pool for the configured driver
// and stores it in DB.
func InitDB(cfg config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	zap.S().Infof("Database: connected using %s driver", cfg.Driver)
	return nil
}

// Open opens and pings a pool without touching the package-level DB.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch dialect {
	case MySQL:
		if dsn, err = mysqlDSN(cfg); err != nil {
			return nil, err
		}
	case SQLite:
		dsn = sqliteDSN(cfg.Path)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	switch dialect {
	case MySQL:
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
		db.SetConnMaxLifetime(5 * time.Minute)
	case SQLite:
		// sqlite allows a single writer; one connection keeps transactions serialized.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// mysqlDSN builds the DSN from the discrete fields, or normalizes cfg.DSN.
// Either way DATETIME columns are parsed into time.Time.
func mysqlDSN(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql DSN: %w", err)
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = cfg.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "sanctions.db"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// CloseDB closes the database connection pool.
// Typically called on application shutdown.
func CloseDB() {
	if DB != nil {
		DB.Close()
		zap.S().Info("Database: connection closed.")
	}
}
