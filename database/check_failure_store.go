// database/check_failure_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/models"
)

// CheckFailureStore persists SanctionsCheckFailure audit records.
type CheckFailureStore struct {
	db *sql.DB
}

func NewCheckFailureStore(db *sql.DB) *CheckFailureStore {
	return &CheckFailureStore{db: db}
}

// Record inserts a check failure and sets its ID and timestamps.
func (s *CheckFailureStore) Record(ctx context.Context, f *models.SanctionsCheckFailure) error {
	now := time.Now().UTC()
	metadata := jsonOrEmptyObject(f.Metadata)
	response := jsonOrEmptyObject(f.SDNCheckResponse)

	var lmsUserID sql.NullInt64
	if f.LmsUserID != nil {
		lmsUserID = sql.NullInt64{Int64: *f.LmsUserID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sanctions_check_failures (
			full_name, username, lms_user_id, city, country, sanctions_type,
			system_identifier, metadata, sdn_check_response, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FullName, f.Username, lmsUserID, f.City, f.Country, f.SanctionsType,
		f.SystemIdentifier, string(metadata), string(response), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert sanctions check failure for %s: %w", f.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sanctions check failure id: %w", err)
	}

	f.ID = id
	f.Metadata = metadata
	f.SDNCheckResponse = response
	f.CreatedAt = now
	f.UpdatedAt = now
	return nil
}

// DeleteAll removes every check failure and returns how many were deleted.
func (s *CheckFailureStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sanctions_check_failures`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sanctions check failures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count: %w", err)
	}
	zap.S().Infof("Database: deleted %d sanctions check failure records", n)
	return n, nil
}

// Count returns the number of stored check failures.
func (s *CheckFailureStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sanctions_check_failures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sanctions check failures: %w", err)
	}
	return n, nil
}

// List returns check failures newest first, at most limit of them.
func (s *CheckFailureStore) List(ctx context.Context, limit int) ([]models.SanctionsCheckFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, username, lms_user_id, city, country, sanctions_type,
		       system_identifier, metadata, sdn_check_response, created_at, updated_at
		FROM sanctions_check_failures
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sanctions check failures: %w", err)
	}
	defer rows.Close()

	var out []models.SanctionsCheckFailure
	for rows.Next() {
		var f models.SanctionsCheckFailure
		var lmsUserID sql.NullInt64
		var metadata, response string
		if err := rows.Scan(&f.ID, &f.FullName, &f.Username, &lmsUserID, &f.City, &f.Country,
			&f.SanctionsType, &f.SystemIdentifier, &metadata, &response, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sanctions check failure: %w", err)
		}
		if lmsUserID.Valid {
			id := lmsUserID.Int64
			f.LmsUserID = &id
		}
		f.Metadata = json.RawMessage(metadata)
		f.SDNCheckResponse = json.RawMessage(response)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sanctions check failures: %w", err)
	}
	return out, nil
}

func jsonOrEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
