package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gewnthar/sanctions/config"
	"github.com/gewnthar/sanctions/models"
)

const (
	sdnSource = models.SourceSDNTreasury
	isnSource = "Nonproliferation Sanctions (ISN) - State Department"
)

// openTestDB opens a file backed sqlite database with the schema applied.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "sanctions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db, SQLite))
	return db
}

type SnapshotStoreSuite struct {
	suite.Suite
	// open returns an empty database with the schema applied; sqlite when nil.
	open    func(t *testing.T) *sql.DB
	dialect Dialect

	db    *sql.DB
	store *SnapshotStore
	ctx   context.Context
	now   time.Time
	seq   int
}

func TestSnapshotStoreSuite(t *testing.T) {
	suite.Run(t, &SnapshotStoreSuite{open: openTestDB, dialect: SQLite})
}

func (s *SnapshotStoreSuite) SetupTest() {
	s.db = s.open(s.T())
	s.store = NewSnapshotStore(s.db, s.dialect)
	s.ctx = context.Background()
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

// createSnapshot inserts a snapshot directly in the given state.
func (s *SnapshotStoreSuite) createSnapshot(state models.ImportState) models.Snapshot {
	s.seq++
	checksum := fmt.Sprintf("checksum-%d", s.seq)
	res, err := s.db.ExecContext(s.ctx, `
		INSERT INTO sanctions_fallback_metadata (file_checksum, download_timestamp, import_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, checksum, s.now, state, s.now, s.now)
	s.Require().NoError(err)
	id, err := res.LastInsertId()
	s.Require().NoError(err)
	return models.Snapshot{ID: id, FileChecksum: checksum, ImportState: state}
}

func (s *SnapshotStoreSuite) addRows(snapshotID int64, rows ...models.FallbackRow) {
	err := s.store.InTx(s.ctx, func(stx *SnapshotTx) error {
		return stx.InsertRows(s.ctx, snapshotID, rows)
	})
	s.Require().NoError(err)
}

func (s *SnapshotStoreSuite) states() map[string]models.ImportState {
	list, err := s.store.ListSnapshots(s.ctx)
	s.Require().NoError(err)
	out := make(map[string]models.ImportState, len(list))
	for _, st := range list {
		out[st.FileChecksum] = st.ImportState
	}
	return out
}

func (s *SnapshotStoreSuite) countAllRows() int {
	var n int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM sanctions_fallback_data`).Scan(&n))
	return n
}

func (s *SnapshotStoreSuite) TestStateIsUnique() {
	s.createSnapshot(models.ImportStateNew)
	_, err := s.db.ExecContext(s.ctx, `
		INSERT INTO sanctions_fallback_metadata (file_checksum, download_timestamp, import_state, created_at, updated_at)
		VALUES ('dup', ?, 'New', ?, ?)`, s.now, s.now, s.now)
	s.Require().Error(err)
}

func (s *SnapshotStoreSuite) TestEmptyChecksumRejected() {
	_, err := s.store.InsertIfChanged(s.ctx, "", s.now)
	s.Require().Error(err)
}

func (s *SnapshotStoreSuite) TestInsertIfChanged() {
	s.Run("empty store inserts New", func() {
		snap, err := s.store.InsertIfChanged(s.ctx, "abc", s.now)
		s.Require().NoError(err)
		s.Require().NotNil(snap)
		s.Equal(models.ImportStateNew, snap.ImportState)
		s.Equal("abc", snap.FileChecksum)
		s.Nil(snap.ImportTimestamp)
		s.Equal(map[string]models.ImportState{"abc": models.ImportStateNew}, s.states())
	})

	s.Run("same checksum as Current is a no-op that refreshes New", func() {
		s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))
		pending := s.createSnapshot(models.ImportStateNew)

		later := s.now.Add(15 * time.Minute)
		snap, err := s.store.InsertIfChanged(s.ctx, "abc", later)
		s.Require().NoError(err)
		s.Nil(snap)

		list, err := s.store.ListSnapshots(s.ctx)
		s.Require().NoError(err)
		s.Len(list, 2)
		for _, st := range list {
			if st.ID == pending.ID {
				s.True(st.DownloadTimestamp.Equal(later), "New download timestamp refreshed")
			} else {
				s.True(st.DownloadTimestamp.Equal(s.now), "Current untouched")
			}
		}
	})

	s.Run("different checksum replaces an unpromoted New", func() {
		snap, err := s.store.InsertIfChanged(s.ctx, "def", s.now)
		s.Require().NoError(err)
		s.Require().NotNil(snap)

		states := s.states()
		s.Len(states, 2)
		s.Equal(models.ImportStateCurrent, states["abc"])
		s.Equal(models.ImportStateNew, states["def"])
	})
}

func (s *SnapshotStoreSuite) TestPromoteNewRow() {
	s.createSnapshot(models.ImportStateNew)

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))

	list, err := s.store.ListSnapshots(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(models.ImportStateCurrent, list[0].ImportState)
}

func (s *SnapshotStoreSuite) TestPromoteCurrentRowToDiscard() {
	original := s.createSnapshot(models.ImportStateCurrent)
	s.createSnapshot(models.ImportStateNew)

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))

	s.Equal(models.ImportStateDiscard, s.states()[original.FileChecksum])
}

func (s *SnapshotStoreSuite) TestPromoteDeletesDiscardRow() {
	discard := s.createSnapshot(models.ImportStateDiscard)
	s.addRows(discard.ID, models.FallbackRow{Source: sdnSource, SDNType: "Individual", Names: "a"})

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))

	s.Empty(s.states())
	s.Zero(s.countAllRows(), "rows cascade with their snapshot")
}

func (s *SnapshotStoreSuite) TestPromoteEmptyStoreIsNoop() {
	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))
	s.Empty(s.states())
}

func (s *SnapshotStoreSuite) TestPromoteAllThreeStates() {
	newer := s.createSnapshot(models.ImportStateNew)
	current := s.createSnapshot(models.ImportStateCurrent)
	discard := s.createSnapshot(models.ImportStateDiscard)

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))

	states := s.states()
	s.Len(states, 2)
	s.Equal(models.ImportStateCurrent, states[newer.FileChecksum])
	s.Equal(models.ImportStateDiscard, states[current.FileChecksum])
	s.NotContains(states, discard.FileChecksum)
}

func (s *SnapshotStoreSuite) TestPromoteTwiceWithoutNewDataFails() {
	original := s.createSnapshot(models.ImportStateNew)

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))
	err := s.store.PromotePipeline(s.ctx, s.now)
	s.Require().ErrorIs(err, ErrLifecycleInvariant)

	states := s.states()
	s.Len(states, 1)
	s.Equal(models.ImportStateCurrent, states[original.FileChecksum])
}

// A Current and a Discard row with nothing New: the swap would leave no
// Current row, so the Discard deletion is rolled back along with it.
func (s *SnapshotStoreSuite) TestPromoteRollsBackOnInvariantViolation() {
	current := s.createSnapshot(models.ImportStateCurrent)
	discard := s.createSnapshot(models.ImportStateDiscard)
	s.addRows(discard.ID, models.FallbackRow{Source: sdnSource, SDNType: "Individual", Names: "kept"})

	err := s.store.PromotePipeline(s.ctx, s.now)
	s.Require().ErrorIs(err, ErrLifecycleInvariant)

	states := s.states()
	s.Len(states, 2)
	s.Equal(models.ImportStateCurrent, states[current.FileChecksum])
	s.Equal(models.ImportStateDiscard, states[discard.FileChecksum])
	s.Equal(1, s.countAllRows())
}

func (s *SnapshotStoreSuite) TestInTxRollsBackOnError() {
	boom := errors.New("boom")
	err := s.store.InTx(s.ctx, func(stx *SnapshotTx) error {
		snap, err := stx.InsertIfChanged(s.ctx, "abc", s.now)
		s.Require().NoError(err)
		s.Require().NoError(stx.InsertRows(s.ctx, snap.ID, []models.FallbackRow{{Names: "x"}}))
		return boom
	})
	s.Require().ErrorIs(err, boom)
	s.Empty(s.states())
	s.Zero(s.countAllRows())
}

func (s *SnapshotStoreSuite) TestOnPromoteFiresAfterCommit() {
	var fired []models.Snapshot
	s.store.OnPromote(func(snap models.Snapshot) { fired = append(fired, snap) })

	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))
	s.Empty(fired, "nothing promoted on an empty store")

	created := s.createSnapshot(models.ImportStateNew)
	s.Require().NoError(s.store.PromotePipeline(s.ctx, s.now))
	s.Require().Len(fired, 1)
	s.Equal(created.ID, fired[0].ID)
	s.Equal(models.ImportStateCurrent, fired[0].ImportState)

	s.Require().Error(s.store.PromotePipeline(s.ctx, s.now))
	s.Len(fired, 1, "rolled back promotions do not fire")
}

func (s *SnapshotStoreSuite) TestInsertRowsBatches() {
	snap := s.createSnapshot(models.ImportStateNew)
	rows := make([]models.FallbackRow, rowInsertBatch*2+7)
	for i := range rows {
		rows[i] = models.FallbackRow{Source: sdnSource, SDNType: "Individual", Names: fmt.Sprintf("name%d", i)}
	}
	s.addRows(snap.ID, rows...)

	n, err := s.store.CountRows(s.ctx, snap.ID)
	s.Require().NoError(err)
	s.Equal(len(rows), n)
}

func (s *SnapshotStoreSuite) TestMarkImported() {
	snap := s.createSnapshot(models.ImportStateNew)
	stamp := s.now.Add(time.Minute)
	s.Require().NoError(s.store.InTx(s.ctx, func(stx *SnapshotTx) error {
		return stx.MarkImported(s.ctx, snap.ID, stamp)
	}))

	list, err := s.store.ListSnapshots(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Require().NotNil(list[0].ImportTimestamp)
	s.True(list[0].ImportTimestamp.Equal(stamp))

	err = s.store.InTx(s.ctx, func(stx *SnapshotTx) error {
		return stx.MarkImported(s.ctx, snap.ID+100, stamp)
	})
	s.Require().Error(err)
}

func (s *SnapshotStoreSuite) TestCurrentRowsBeforePopulation() {
	_, err := s.store.CurrentRows(s.ctx, sdnSource, "Individual")
	s.Require().ErrorIs(err, ErrFallbackDataEmpty)

	_, err = s.store.CurrentSnapshot(s.ctx)
	s.Require().ErrorIs(err, ErrFallbackDataEmpty)

	s.createSnapshot(models.ImportStateNew)
	_, err = s.store.CurrentRows(s.ctx, sdnSource, "Individual")
	s.Require().ErrorIs(err, ErrFallbackDataEmpty, "a New snapshot is not active yet")
}

func (s *SnapshotStoreSuite) TestCurrentRowsFiltersBySourceAndType() {
	current := s.createSnapshot(models.ImportStateCurrent)
	discard := s.createSnapshot(models.ImportStateDiscard)

	s.addRows(current.ID,
		models.FallbackRow{Source: sdnSource, SDNType: "Individual", Names: "one"},
		models.FallbackRow{Source: sdnSource, SDNType: "Entity", Names: "two"},
		models.FallbackRow{Source: isnSource, SDNType: "", Names: "three"},
	)
	s.addRows(discard.ID, models.FallbackRow{Source: sdnSource, SDNType: "Individual", Names: "old"})

	rows, err := s.store.CurrentRows(s.ctx, sdnSource, "Individual")
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("one", rows[0].Names)
	s.Equal(current.ID, rows[0].SnapshotID)

	rows, err = s.store.CurrentRows(s.ctx, sdnSource, "Entity")
	s.Require().NoError(err)
	s.Len(rows, 1)

	rows, err = s.store.CurrentRows(s.ctx, isnSource, "")
	s.Require().NoError(err)
	s.Len(rows, 1)

	rows, err = s.store.CurrentRows(s.ctx, "Unknown list", "")
	s.Require().NoError(err)
	s.Empty(rows)

	snap, _, err := s.store.CurrentSnapshotRows(s.ctx, sdnSource, "Individual")
	s.Require().NoError(err)
	s.Equal(current.ID, snap.ID)
}

func TestDialectFor(t *testing.T) {
	for driver, want := range map[string]Dialect{"": MySQL, "mysql": MySQL, "mariadb": MySQL, "sqlite": SQLite, "sqlite3": SQLite} {
		got, err := DialectFor(driver)
		require.NoError(t, err)
		require.Equal(t, want, got, driver)
	}
	_, err := DialectFor("postgres")
	require.Error(t, err)
}
