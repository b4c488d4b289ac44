// services/fallback_importer.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
	"github.com/gewnthar/sanctions/scraper"
	"github.com/gewnthar/sanctions/utils"
)

// FallbackImporter turns a raw watchlist export into the Current snapshot.
type FallbackImporter struct {
	store *database.SnapshotStore
	Now   func() time.Time
}

func NewFallbackImporter(store *database.SnapshotStore) *FallbackImporter {
	return &FallbackImporter{store: store, Now: time.Now}
}

// Checksum is the hex SHA-256 fingerprint of an export.
func Checksum(csvText string) string {
	sum := sha256.Sum256([]byte(csvText))
	return hex.EncodeToString(sum[:])
}

// Ingest imports csvText and promotes it to Current. It returns nil, nil
// when the Current snapshot already has the same content.
//
// Creating the New snapshot, loading its rows, stamping it and promoting it
// all happen in one transaction, so a failure at any step leaves the
// previous Current snapshot untouched and no New snapshot behind.
func (fi *FallbackImporter) Ingest(ctx context.Context, csvText string) (*models.Snapshot, error) {
	now := fi.Now().UTC()
	checksum := Checksum(csvText)

	var snap *models.Snapshot
	err := fi.store.InTx(ctx, func(stx *database.SnapshotTx) error {
		inserted, err := stx.InsertIfChanged(ctx, checksum, now)
		if err != nil {
			return err
		}
		if inserted == nil {
			return nil
		}

		entries, err := scraper.ParseWatchlistCsv(strings.NewReader(csvText))
		if err != nil {
			return err
		}
		rows := BuildFallbackRows(entries)

		if err := stx.InsertRows(ctx, inserted.ID, rows); err != nil {
			return err
		}
		if err := stx.MarkImported(ctx, inserted.ID, now); err != nil {
			return err
		}
		if err := stx.Promote(ctx, now); err != nil {
			return err
		}

		inserted.ImportTimestamp = &now
		inserted.ImportState = models.ImportStateCurrent
		snap = inserted
		zap.S().Infof("Service: imported %d fallback rows into snapshot %d (checksum %s)", len(rows), inserted.ID, checksum)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fallback import failed: %w", err)
	}
	if snap == nil {
		zap.S().Infof("Sanctions SDNFallback: IMPORT SKIPPED: export checksum %s is unchanged from the Current snapshot.", checksum)
	}
	return snap, nil
}

// BuildFallbackRows normalizes export entries into matchable rows.
func BuildFallbackRows(entries []models.WatchlistEntry) []models.FallbackRow {
	rows := make([]models.FallbackRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.FallbackRow{
			Source:    e.Source,
			SDNType:   e.Type,
			Names:     utils.NormalizeText(e.Name + " " + e.AltNames).String(),
			Addresses: utils.NormalizeText(e.Addresses).String(),
			Countries: strings.Join(utils.ExtractCountries(e.Addresses, e.IDs), " "),
		})
	}
	return rows
}
