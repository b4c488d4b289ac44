// handlers/admin_handler.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
	"github.com/gewnthar/sanctions/services"
)

// Refresher runs the fallback import job.
type Refresher interface {
	Run(ctx context.Context, thresholdMB float64) (*services.ImportResult, error)
}

// SnapshotLister reports the stored snapshots.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context) ([]models.SnapshotStatus, error)
}

// SourceStatusReader reports the last check of an export source.
type SourceStatusReader interface {
	Get(ctx context.Context, sourceName string) (*models.ExportSourceStatus, error)
}

// StatusResponse is returned by GET /api/admin/fallback/status.
type StatusResponse struct {
	Snapshots   []models.SnapshotStatus    `json:"snapshots"`
	Current     *models.SnapshotStatus     `json:"current,omitempty"`
	CurrentRows int                        `json:"current_rows"`
	Source      *models.ExportSourceStatus `json:"export_source,omitempty"`
}

// ForceRefreshFallbackHandler handles POST /api/admin/fallback/refresh. The
// optional threshold query parameter overrides the size threshold in MB.
func ForceRefreshFallbackHandler(job Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var threshold float64
		if v := r.URL.Query().Get("threshold"); v != "" {
			t, err := strconv.ParseFloat(v, 64)
			if err != nil || t < 0 {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid threshold '%s'", v))
				return
			}
			threshold = t
		}

		res, err := job.Run(r.Context(), threshold)
		if errors.Is(err, services.ErrImportInProgress) {
			respondWithError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh fallback data: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, res)
	}
}

// FallbackStatusHandler handles GET /api/admin/fallback/status. sources may
// be nil.
func FallbackStatusHandler(store SnapshotLister, sources SourceStatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListSnapshots(r.Context())
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list snapshots: %v", err))
			return
		}

		resp := StatusResponse{Snapshots: list}
		if resp.Snapshots == nil {
			resp.Snapshots = []models.SnapshotStatus{}
		}
		for i := range list {
			if list[i].ImportState == models.ImportStateCurrent {
				resp.Current = &list[i]
				resp.CurrentRows = list[i].RowCount
			}
		}
		if sources != nil {
			if resp.Source, err = sources.Get(r.Context(), models.ExportSourceCSL); err != nil {
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load export source status: %v", err))
				return
			}
		}
		if resp.Current == nil {
			respondWithJSON(w, http.StatusOK, struct {
				StatusResponse
				Warning string `json:"warning"`
			}{resp, database.ErrFallbackDataEmpty.Error()})
			return
		}
		respondWithJSON(w, http.StatusOK, resp)
	}
}
