// database/datasource_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/models"
)

// ExportSourceRun is the outcome of one check of an export source.
type ExportSourceRun struct {
	SourceName   string
	SourceURL    string
	CheckedAt    time.Time
	Succeeded    bool
	FileChecksum string // only stored on success
	SizeBytes    int64
	Result       string
	Err          error
}

// ExportSourceStore keeps one status row per export source.
type ExportSourceStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewExportSourceStore(db *sql.DB, dialect Dialect) *ExportSourceStore {
	return &ExportSourceStore{db: db, dialect: dialect}
}

// RecordRun inserts or updates the source's row. A failed run updates the
// check time and error but keeps the last successful checksum and time. An
// empty SourceURL keeps the stored one.
func (s *ExportSourceStore) RecordRun(ctx context.Context, run ExportSourceRun) error {
	checkedAt := run.CheckedAt.UTC()
	var lastSuccess sql.NullTime
	if run.Succeeded {
		lastSuccess = sql.NullTime{Time: checkedAt, Valid: true}
	}
	var errText string
	if run.Err != nil {
		errText = run.Err.Error()
		if len(errText) > 1024 {
			errText = errText[:1024]
		}
	}

	query := `
		INSERT INTO sanctions_export_sources (
			source_name, source_url, last_checked_at, last_success_at,
			file_checksum, size_bytes, last_result, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == MySQL {
		query += `
		ON DUPLICATE KEY UPDATE
			source_url = COALESCE(NULLIF(VALUES(source_url), ''), source_url),
			last_checked_at = VALUES(last_checked_at),
			last_success_at = COALESCE(VALUES(last_success_at), last_success_at),
			file_checksum = COALESCE(NULLIF(VALUES(file_checksum), ''), file_checksum),
			size_bytes = VALUES(size_bytes),
			last_result = VALUES(last_result),
			last_error = VALUES(last_error),
			updated_at = VALUES(updated_at)`
	} else {
		query += `
		ON CONFLICT (source_name) DO UPDATE SET
			source_url = COALESCE(NULLIF(excluded.source_url, ''), source_url),
			last_checked_at = excluded.last_checked_at,
			last_success_at = COALESCE(excluded.last_success_at, last_success_at),
			file_checksum = COALESCE(NULLIF(excluded.file_checksum, ''), file_checksum),
			size_bytes = excluded.size_bytes,
			last_result = excluded.last_result,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`
	}

	checksum := ""
	if run.Succeeded {
		checksum = run.FileChecksum
	}
	_, err := s.db.ExecContext(ctx, query,
		run.SourceName, run.SourceURL, checkedAt, lastSuccess,
		checksum, run.SizeBytes, run.Result, errText, checkedAt, checkedAt)
	if err != nil {
		zap.S().Errorf("Database: failed to record export source run for '%s': %v", run.SourceName, err)
		return fmt.Errorf("failed to record export source run for %s: %w", run.SourceName, err)
	}
	zap.S().Debugf("Database: recorded %s run for export source '%s'", run.Result, run.SourceName)
	return nil
}

// Get returns the status row for name, or nil when the source was never checked.
func (s *ExportSourceStore) Get(ctx context.Context, name string) (*models.ExportSourceStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_name, source_url, last_checked_at, last_success_at,
		       file_checksum, size_bytes, last_result, last_error, created_at, updated_at
		FROM sanctions_export_sources
		WHERE source_name = ?`, name)

	var v models.ExportSourceStatus
	var lastChecked, lastSuccess sql.NullTime
	err := row.Scan(&v.ID, &v.SourceName, &v.SourceURL, &lastChecked, &lastSuccess,
		&v.FileChecksum, &v.SizeBytes, &v.LastResult, &v.LastError, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load export source %s: %w", name, err)
	}
	if lastChecked.Valid {
		v.LastCheckedAt = &lastChecked.Time
	}
	if lastSuccess.Valid {
		v.LastSuccessAt = &lastSuccess.Time
	}
	return &v, nil
}
