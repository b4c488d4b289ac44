package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gewnthar/sanctions/config"
	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "sanctions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.EnsureSchema(context.Background(), db, database.SQLite))
	return db
}

func newTestStore(t *testing.T) *database.SnapshotStore {
	t.Helper()
	return database.NewSnapshotStore(newTestDB(t), database.SQLite)
}

// seedCurrent makes rows the Current snapshot's data, bypassing CSV parsing.
func seedCurrent(t *testing.T, store *database.SnapshotStore, checksum string, rows ...models.FallbackRow) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	err := store.InTx(ctx, func(stx *database.SnapshotTx) error {
		snap, err := stx.InsertIfChanged(ctx, checksum, now)
		if err != nil {
			return err
		}
		if err := stx.InsertRows(ctx, snap.ID, rows); err != nil {
			return err
		}
		if err := stx.MarkImported(ctx, snap.ID, now); err != nil {
			return err
		}
		return stx.Promote(ctx, now)
	})
	require.NoError(t, err)
}

func sdnIndividual(names, addresses, countries string) models.FallbackRow {
	return models.FallbackRow{
		Source:    models.SourceSDNTreasury,
		SDNType:   models.SDNTypeIndividual,
		Names:     names,
		Addresses: addresses,
		Countries: countries,
	}
}

// exportText renders entries in the export's CSV layout.
func exportText(t *testing.T, entries ...models.WatchlistEntry) string {
	t.Helper()
	b, err := csvutil.Marshal(entries)
	require.NoError(t, err)
	return string(b)
}

// observeLogs routes the global zap logger to an in-memory observer for the
// duration of the test.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}
