// services/fallback_matcher.go
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/metrics"
	"github.com/gewnthar/sanctions/models"
	"github.com/gewnthar/sanctions/utils"
)

type candidateRow struct {
	countries string
	names     utils.TokenSet
	addresses utils.TokenSet
}

type cacheKey struct {
	snapshotID int64
	checksum   string
}

// FallbackMatcher answers screening queries from the Current snapshot.
//
// The Current snapshot's SDN Individual rows are tokenized once and cached
// until a promotion commits or the Current snapshot changes underneath.
type FallbackMatcher struct {
	store   *database.SnapshotStore
	metrics *metrics.Metrics

	mu    sync.RWMutex
	key   cacheKey
	rows  []candidateRow
	valid bool
}

// NewFallbackMatcher registers the matcher's cache invalidation with store.
func NewFallbackMatcher(store *database.SnapshotStore, m *metrics.Metrics) *FallbackMatcher {
	fm := &FallbackMatcher{store: store, metrics: m}
	store.OnPromote(func(snap models.Snapshot) {
		zap.S().Infof("Service: snapshot %d promoted; dropping cached fallback rows", snap.ID)
		fm.Invalidate()
	})
	return fm
}

// Invalidate drops the cached rows.
func (fm *FallbackMatcher) Invalidate() {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.valid = false
	fm.rows = nil
}

// Match counts the Current snapshot's SDN Individual rows whose countries
// contain country and whose name and address token sets contain every
// token of name and city. Empty name or city tokens match any row.
// It returns database.ErrFallbackDataEmpty before the first import.
func (fm *FallbackMatcher) Match(ctx context.Context, name, city, country string) (int, error) {
	start := time.Now()
	defer func() { fm.metrics.ObserveMatchLatency(time.Since(start)) }()

	rows, err := fm.candidates(ctx)
	if err != nil {
		return 0, err
	}

	queryName := utils.NormalizeText(name)
	queryCity := utils.NormalizeText(city)

	hits := 0
	for _, r := range rows {
		if !strings.Contains(r.countries, country) {
			continue
		}
		if queryName.SubsetOf(r.names) && queryCity.SubsetOf(r.addresses) {
			hits++
		}
	}
	return hits, nil
}

func (fm *FallbackMatcher) candidates(ctx context.Context) ([]candidateRow, error) {
	current, err := fm.store.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey{snapshotID: current.ID, checksum: current.FileChecksum}

	fm.mu.RLock()
	if fm.valid && fm.key == key {
		rows := fm.rows
		fm.mu.RUnlock()
		return rows, nil
	}
	fm.mu.RUnlock()

	snap, stored, err := fm.store.CurrentSnapshotRows(ctx, models.SourceSDNTreasury, models.SDNTypeIndividual)
	if err != nil {
		return nil, err
	}

	rows := make([]candidateRow, 0, len(stored))
	for _, r := range stored {
		rows = append(rows, candidateRow{
			countries: r.Countries,
			names:     utils.TokenSetFromFields(r.Names),
			addresses: utils.TokenSetFromFields(r.Addresses),
		})
	}

	fm.mu.Lock()
	fm.key = cacheKey{snapshotID: snap.ID, checksum: snap.FileChecksum}
	fm.rows = rows
	fm.valid = true
	fm.mu.Unlock()
	return rows, nil
}
