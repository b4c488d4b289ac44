// database/snapshot_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/models"
)

var (
	// ErrFallbackDataEmpty means no snapshot has ever been promoted to Current.
	ErrFallbackDataEmpty = errors.New("sanctions fallback data is empty: run the fallback import job to populate it")

	// ErrLifecycleInvariant means a promotion would have left the snapshot
	// table without exactly one Current row. The promotion is rolled back.
	ErrLifecycleInvariant = errors.New("expected exactly one snapshot in the 'Current' import_state after swapping")
)

// rowInsertBatch bounds the rows per multi-row INSERT; 7 columns each keeps
// the statement well under the placeholder limits of both dialects.
const rowInsertBatch = 500

const snapshotColumns = `id, file_checksum, download_timestamp, import_timestamp, import_state, created_at, updated_at`

// SnapshotStore persists fallback snapshots and their rows and owns the
// New -> Current -> Discard lifecycle.
type SnapshotStore struct {
	db      *sql.DB
	dialect Dialect

	mu    sync.RWMutex
	hooks []func(models.Snapshot)
}

func NewSnapshotStore(db *sql.DB, dialect Dialect) *SnapshotStore {
	return &SnapshotStore{db: db, dialect: dialect}
}

// OnPromote registers fn to run after a transaction that promoted a New
// snapshot to Current has committed. fn receives the new Current snapshot.
func (s *SnapshotStore) OnPromote(fn func(models.Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *SnapshotStore) firePromoted(snap models.Snapshot) {
	s.mu.RLock()
	hooks := append([]func(models.Snapshot){}, s.hooks...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(snap)
	}
}

// SnapshotTx is a lifecycle transaction. Every SnapshotTx holds the
// lifecycle lock for its whole lifetime.
type SnapshotTx struct {
	tx       *sql.Tx
	promoted *models.Snapshot
}

// InTx runs fn inside one transaction. Any error returned by fn, or a failed
// commit, rolls back every change made through the SnapshotTx.
func (s *SnapshotStore) InTx(ctx context.Context, fn func(*SnapshotTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if lock := s.dialect.lifecycleLockQuery(); lock != "" {
		var id int
		if err := tx.QueryRowContext(ctx, lock).Scan(&id); err != nil {
			return fmt.Errorf("failed to take the snapshot lifecycle lock: %w", err)
		}
	}

	stx := &SnapshotTx{tx: tx}
	if err := fn(stx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	if stx.promoted != nil {
		s.firePromoted(*stx.promoted)
	}
	return nil
}

// InsertIfChanged inserts a New snapshot for checksum unless the Current
// snapshot already has that checksum. It returns nil when nothing changed.
func (s *SnapshotStore) InsertIfChanged(ctx context.Context, checksum string, now time.Time) (*models.Snapshot, error) {
	var inserted *models.Snapshot
	err := s.InTx(ctx, func(stx *SnapshotTx) error {
		var err error
		inserted, err = stx.InsertIfChanged(ctx, checksum, now)
		return err
	})
	return inserted, err
}

// PromotePipeline runs the lifecycle swap in its own transaction.
func (s *SnapshotStore) PromotePipeline(ctx context.Context, now time.Time) error {
	return s.InTx(ctx, func(stx *SnapshotTx) error {
		return stx.Promote(ctx, now)
	})
}

// InsertIfChanged is the transactional form of SnapshotStore.InsertIfChanged.
//
// When the Current checksum matches, only the New snapshot's download
// timestamp (if there is one) is refreshed. An unpromoted New snapshot with a
// different checksum is replaced, since its import never committed a
// promotion and the state column only admits one New row.
func (t *SnapshotTx) InsertIfChanged(ctx context.Context, checksum string, now time.Time) (*models.Snapshot, error) {
	if checksum == "" {
		return nil, errors.New("file checksum must not be empty")
	}
	now = now.UTC()

	current, err := t.snapshotByState(ctx, models.ImportStateCurrent)
	if err != nil {
		return nil, err
	}
	if current != nil && current.FileChecksum == checksum {
		_, err := t.tx.ExecContext(ctx,
			`UPDATE sanctions_fallback_metadata SET download_timestamp = ?, updated_at = ? WHERE import_state = ?`,
			now, now, models.ImportStateNew)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh download timestamp: %w", err)
		}
		zap.S().Infof("Database: checksum %s matches the Current snapshot %d; no new snapshot created", checksum, current.ID)
		return nil, nil
	}

	stale, err := t.snapshotByState(ctx, models.ImportStateNew)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		zap.S().Warnf("Database: replacing unpromoted New snapshot %d (checksum %s)", stale.ID, stale.FileChecksum)
		if err := t.deleteSnapshot(ctx, stale.ID); err != nil {
			return nil, err
		}
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO sanctions_fallback_metadata (
			file_checksum, download_timestamp, import_timestamp, import_state, created_at, updated_at
		) VALUES (?, ?, NULL, ?, ?, ?)`,
		checksum, now, models.ImportStateNew, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert New snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read New snapshot id: %w", err)
	}

	return &models.Snapshot{
		ID:                id,
		FileChecksum:      checksum,
		DownloadTimestamp: now,
		ImportState:       models.ImportStateNew,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// InsertRows bulk loads rows for snapshotID with multi-row INSERTs.
func (t *SnapshotTx) InsertRows(ctx context.Context, snapshotID int64, rows []models.FallbackRow) error {
	for start := 0; start < len(rows); start += rowInsertBatch {
		end := min(start+rowInsertBatch, len(rows))
		batch := rows[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO sanctions_fallback_data (
			sanctions_fallback_metadata_id, source, sdn_type, names, addresses, countries
		) VALUES `)
		args := make([]any, 0, len(batch)*6)
		for i, r := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?)")
			args = append(args, snapshotID, r.Source, r.SDNType, r.Names, r.Addresses, r.Countries)
		}

		if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert fallback rows %d-%d for snapshot %d: %w", start, end, snapshotID, err)
		}
	}
	return nil
}

// MarkImported stamps the import timestamp once a snapshot's rows are loaded.
func (t *SnapshotTx) MarkImported(ctx context.Context, snapshotID int64, now time.Time) error {
	now = now.UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE sanctions_fallback_metadata SET import_timestamp = ?, updated_at = ? WHERE id = ?`,
		now, now, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to stamp import timestamp on snapshot %d: %w", snapshotID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("snapshot %d not found", snapshotID)
	}
	return nil
}

// Promote swaps the lifecycle states, in this order:
//  1. delete the Discard snapshot and its rows
//  2. move Current to Discard
//  3. move New to Current
//
// Afterwards a non-empty table must hold exactly one Current snapshot,
// otherwise ErrLifecycleInvariant is returned and the caller's transaction
// rolls back. Promoting twice without a new import in between therefore fails.
func (t *SnapshotTx) Promote(ctx context.Context, now time.Time) error {
	now = now.UTC()

	discard, err := t.snapshotByState(ctx, models.ImportStateDiscard)
	if err != nil {
		return err
	}
	if discard != nil {
		if err := t.deleteSnapshot(ctx, discard.ID); err != nil {
			return err
		}
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE sanctions_fallback_metadata SET import_state = ?, updated_at = ? WHERE import_state = ?`,
		models.ImportStateDiscard, now, models.ImportStateCurrent); err != nil {
		return fmt.Errorf("failed to move Current snapshot to Discard: %w", err)
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE sanctions_fallback_metadata SET import_state = ?, updated_at = ? WHERE import_state = ?`,
		models.ImportStateCurrent, now, models.ImportStateNew)
	if err != nil {
		return fmt.Errorf("failed to move New snapshot to Current: %w", err)
	}
	movedNew, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read promoted row count: %w", err)
	}

	var total, currents int
	if err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN import_state = ? THEN 1 ELSE 0 END), 0)
		FROM sanctions_fallback_metadata`,
		models.ImportStateCurrent).Scan(&total, &currents); err != nil {
		return fmt.Errorf("failed to verify snapshot states: %w", err)
	}
	if total > 0 && currents != 1 {
		zap.S().Warn("Expected a row in the 'Current' import_state after swapping, but there are none.")
		return fmt.Errorf("%w: found %d of %d snapshots Current", ErrLifecycleInvariant, currents, total)
	}

	if movedNew > 0 {
		current, err := t.snapshotByState(ctx, models.ImportStateCurrent)
		if err != nil {
			return err
		}
		t.promoted = current
		zap.S().Infof("Database: snapshot %d promoted to Current", current.ID)
	}
	return nil
}

func (t *SnapshotTx) snapshotByState(ctx context.Context, state models.ImportState) (*models.Snapshot, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM sanctions_fallback_metadata WHERE import_state = ?`, state)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s snapshot: %w", state, err)
	}
	return snap, nil
}

// deleteSnapshot removes the rows explicitly as well as through the foreign
// key cascade so it behaves the same when sqlite foreign keys are off.
func (t *SnapshotTx) deleteSnapshot(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM sanctions_fallback_data WHERE sanctions_fallback_metadata_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rows of snapshot %d: %w", id, err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM sanctions_fallback_metadata WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete snapshot %d: %w", id, err)
	}
	return nil
}

// CurrentSnapshot returns the Current snapshot or ErrFallbackDataEmpty.
func (s *SnapshotStore) CurrentSnapshot(ctx context.Context) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM sanctions_fallback_metadata WHERE import_state = ?`,
		models.ImportStateCurrent)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFallbackDataEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Current snapshot: %w", err)
	}
	return snap, nil
}

// CurrentRows returns the Current snapshot's rows with exactly the given
// source and sdn_type.
func (s *SnapshotStore) CurrentRows(ctx context.Context, source, sdnType string) ([]models.FallbackRow, error) {
	_, rows, err := s.CurrentSnapshotRows(ctx, source, sdnType)
	return rows, err
}

// CurrentSnapshotRows reads the Current snapshot and its filtered rows in one
// transaction, so the rows always belong to the returned snapshot.
func (s *SnapshotStore) CurrentSnapshotRows(ctx context.Context, source, sdnType string) (*models.Snapshot, []models.FallbackRow, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	snap, err := scanSnapshot(tx.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM sanctions_fallback_metadata WHERE import_state = ?`,
		models.ImportStateCurrent))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrFallbackDataEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load Current snapshot: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sanctions_fallback_metadata_id, source, sdn_type, names, addresses, countries
		FROM sanctions_fallback_data
		WHERE sanctions_fallback_metadata_id = ? AND source = ? AND sdn_type = ?
		ORDER BY id`,
		snap.ID, source, sdnType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query fallback rows for %q/%q: %w", source, sdnType, err)
	}
	defer rows.Close()

	var out []models.FallbackRow
	for rows.Next() {
		var r models.FallbackRow
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.Source, &r.SDNType, &r.Names, &r.Addresses, &r.Countries); err != nil {
			return nil, nil, fmt.Errorf("failed to scan fallback row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating fallback rows: %w", err)
	}
	return snap, out, nil
}

// ListSnapshots returns every snapshot with its row count, oldest first.
func (s *SnapshotStore) ListSnapshots(ctx context.Context) ([]models.SnapshotStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.file_checksum, m.download_timestamp, m.import_timestamp, m.import_state,
		       m.created_at, m.updated_at, COUNT(d.id)
		FROM sanctions_fallback_metadata m
		LEFT JOIN sanctions_fallback_data d ON d.sanctions_fallback_metadata_id = m.id
		GROUP BY m.id, m.file_checksum, m.download_timestamp, m.import_timestamp, m.import_state,
		         m.created_at, m.updated_at
		ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sanctions_fallback_metadata: %w", err)
	}
	defer rows.Close()

	var out []models.SnapshotStatus
	for rows.Next() {
		var st models.SnapshotStatus
		var imported sql.NullTime
		if err := rows.Scan(&st.ID, &st.FileChecksum, &st.DownloadTimestamp, &imported, &st.ImportState,
			&st.CreatedAt, &st.UpdatedAt, &st.RowCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		if imported.Valid {
			t := imported.Time
			st.ImportTimestamp = &t
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}
	return out, nil
}

// CountRows returns the number of rows owned by a snapshot.
func (s *SnapshotStore) CountRows(ctx context.Context, snapshotID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sanctions_fallback_data WHERE sanctions_fallback_metadata_id = ?`,
		snapshotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows for snapshot %d: %w", snapshotID, err)
	}
	return n, nil
}

// Ping reports whether the underlying pool is reachable.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanSnapshot(row *sql.Row) (*models.Snapshot, error) {
	var snap models.Snapshot
	var imported sql.NullTime
	if err := row.Scan(&snap.ID, &snap.FileChecksum, &snap.DownloadTimestamp, &imported,
		&snap.ImportState, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
		return nil, err
	}
	if imported.Valid {
		t := imported.Time
		snap.ImportTimestamp = &t
	}
	return &snap, nil
}
