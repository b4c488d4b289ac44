// services/fallback_job.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/config"
	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/metrics"
	"github.com/gewnthar/sanctions/models"
	"github.com/gewnthar/sanctions/scraper"
)

// ErrImportInProgress is returned when a run starts while another run in
// this process is still going.
var ErrImportInProgress = errors.New("a fallback import is already running")

// ImportResult summarizes one run of the fallback job.
type ImportResult struct {
	SourceURL string           `json:"source_url,omitempty"`
	Bytes     int              `json:"bytes"`
	Changed   bool             `json:"changed"`
	Snapshot  *models.Snapshot `json:"snapshot,omitempty"`
	RowCount  int              `json:"row_count"`
}

// FallbackJob downloads the export, imports it and signals the heartbeat.
type FallbackJob struct {
	cfg        config.ExportConfig
	downloader *scraper.Downloader
	importer   *FallbackImporter
	store      *database.SnapshotStore
	heartbeat  *Heartbeat
	metrics    *metrics.Metrics
	sources    *database.ExportSourceStore

	running sync.Mutex
}

func NewFallbackJob(cfg config.ExportConfig, importer *FallbackImporter, store *database.SnapshotStore, hb *Heartbeat, m *metrics.Metrics) *FallbackJob {
	return &FallbackJob{
		cfg:        cfg,
		downloader: scraper.NewDownloader(cfg.DownloadTimeout),
		importer:   importer,
		store:      store,
		heartbeat:  hb,
		metrics:    m,
	}
}

// WithSourceStatus makes every run record its outcome in sources.
func (j *FallbackJob) WithSourceStatus(sources *database.ExportSourceStore) *FallbackJob {
	j.sources = sources
	return j
}

// Run performs a full download and import. The threshold overrides the
// configured size threshold when positive.
func (j *FallbackJob) Run(ctx context.Context, thresholdMB float64) (*ImportResult, error) {
	if thresholdMB <= 0 {
		thresholdMB = j.cfg.ThresholdMB
	}
	return j.run(ctx, func(ctx context.Context, res *ImportResult) (string, error) {
		csvURL, err := j.resolveURL(ctx)
		if err != nil {
			return "", err
		}
		res.SourceURL = csvURL
		data, err := j.downloader.DownloadExport(ctx, csvURL, j.cfg.LocalPath, thresholdMB)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// ImportText imports an export that was obtained some other way, such as a
// local file. No size threshold applies.
func (j *FallbackJob) ImportText(ctx context.Context, csvText string) (*ImportResult, error) {
	return j.run(ctx, func(context.Context, *ImportResult) (string, error) {
		return csvText, nil
	})
}

func (j *FallbackJob) run(ctx context.Context, fetch func(context.Context, *ImportResult) (string, error)) (*ImportResult, error) {
	if !j.running.TryLock() {
		return nil, ErrImportInProgress
	}
	defer j.running.Unlock()

	start := time.Now()
	res := &ImportResult{}

	csvText, err := fetch(ctx, res)
	if err != nil {
		err = fmt.Errorf("fallback job download failed: %w", err)
		j.finish(ctx, res, start, err)
		return nil, err
	}
	res.Bytes = len(csvText)

	snap, err := j.importer.Ingest(ctx, csvText)
	if err != nil {
		zap.S().Errorf("Sanctions SDNFallback: IMPORT FAILURE: %v", err)
		j.finish(ctx, res, start, err)
		return nil, err
	}

	if snap != nil {
		res.Changed = true
		res.Snapshot = snap
	} else if res.Snapshot, err = j.store.CurrentSnapshot(ctx); err != nil {
		j.finish(ctx, res, start, err)
		return nil, err
	}
	if res.RowCount, err = j.store.CountRows(ctx, res.Snapshot.ID); err != nil {
		j.finish(ctx, res, start, err)
		return nil, err
	}
	j.finish(ctx, res, start, nil)
	zap.S().Infof("Sanctions SDNFallback: IMPORT SUCCESS: snapshot %d is Current with %d rows (changed: %t)",
		res.Snapshot.ID, res.RowCount, res.Changed)

	if err := j.heartbeat.Ping(ctx); err != nil {
		// The import itself succeeded; a missed heartbeat only delays alerting.
		zap.S().Errorf("Service: heartbeat failed after import: %v", err)
	}
	return res, nil
}

// finish records the run's metrics and export source status.
func (j *FallbackJob) finish(ctx context.Context, res *ImportResult, start time.Time, runErr error) {
	result := "failed"
	switch {
	case runErr != nil:
	case res.Changed:
		result = "imported"
	default:
		result = "unchanged"
	}
	j.metrics.ObserveImport(result, time.Since(start))
	if runErr == nil {
		j.metrics.SetCurrentSnapshot(res.RowCount, time.Now())
	}

	if j.sources == nil {
		return
	}
	run := database.ExportSourceRun{
		SourceName: models.ExportSourceCSL,
		SourceURL:  res.SourceURL,
		CheckedAt:  time.Now(),
		Succeeded:  runErr == nil,
		SizeBytes:  int64(res.Bytes),
		Result:     result,
		Err:        runErr,
	}
	if res.Snapshot != nil {
		run.FileChecksum = res.Snapshot.FileChecksum
	}
	// A failed status write must not fail an import that already committed.
	if err := j.sources.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		zap.S().Warnf("Service: could not record export source status: %v", err)
	}
}

func (j *FallbackJob) resolveURL(ctx context.Context) (string, error) {
	if j.cfg.CsvURL != "" {
		return j.cfg.CsvURL, nil
	}
	if j.cfg.LandingPageURL == "" {
		return "", errors.New("neither export.csv_url nor export.landing_page_url is configured")
	}
	return scraper.FindExportURL(ctx, j.downloader.Client, j.cfg.LandingPageURL, j.cfg.LinkSelector)
}

// Schedule runs the job every interval until ctx is done. Failures are
// logged and retried on the next tick.
func (j *FallbackJob) Schedule(ctx context.Context, interval time.Duration) error {
	zap.S().Infof("Service: fallback import scheduled every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx, 0); err != nil {
			zap.S().Errorf("Service: scheduled fallback import failed: %v", err)
		}
		select {
		case <-ctx.Done():
			zap.S().Info("Service: fallback import scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
