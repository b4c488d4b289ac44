// models/meta.go
package models

import "time"

// ImportState is the lifecycle state of a fallback snapshot.
// At most one snapshot may hold each state at any time.
type ImportState string

const (
	ImportStateNew     ImportState = "New"
	ImportStateCurrent ImportState = "Current"
	ImportStateDiscard ImportState = "Discard"
)

// Valid reports whether s is one of the three lifecycle states.
func (s ImportState) Valid() bool {
	switch s {
	case ImportStateNew, ImportStateCurrent, ImportStateDiscard:
		return true
	}
	return false
}

// Snapshot records one downloaded version of the consolidated screening list.
// It does not keep history: only the New, Current and Discard versions exist.
type Snapshot struct {
	ID                int64       `db:"id" json:"id"`
	FileChecksum      string      `db:"file_checksum" json:"file_checksum"` // sha256 hex of the raw CSV
	DownloadTimestamp time.Time   `db:"download_timestamp" json:"download_timestamp"`
	ImportTimestamp   *time.Time  `db:"import_timestamp" json:"import_timestamp,omitempty"` // set once rows are loaded
	ImportState       ImportState `db:"import_state" json:"import_state"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// SnapshotStatus is what the admin status endpoint reports for one snapshot.
type SnapshotStatus struct {
	Snapshot
	RowCount int `json:"row_count"`
}

// ExportSourceStatus tracks when an export source was last checked and last
// imported successfully, one row per source.
type ExportSourceStatus struct {
	ID            int64      `db:"id" json:"id"`
	SourceName    string     `db:"source_name" json:"source_name"`
	SourceURL     string     `db:"source_url" json:"source_url,omitempty"`
	LastCheckedAt *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	LastSuccessAt *time.Time `db:"last_success_at" json:"last_success_at,omitempty"`
	FileChecksum  string     `db:"file_checksum" json:"file_checksum,omitempty"`
	SizeBytes     int64      `db:"size_bytes" json:"size_bytes"`
	LastResult    string     `db:"last_result" json:"last_result"` // "imported", "unchanged" or "failed"
	LastError     string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ExportSourceCSL names the consolidated screening list export.
const ExportSourceCSL = "consolidated_screening_list"
