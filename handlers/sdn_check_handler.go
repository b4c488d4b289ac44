// handlers/sdn_check_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
)

// Screener runs one SDN check.
type Screener interface {
	Check(ctx context.Context, req models.SDNCheckRequest) (*models.SDNCheckResponse, error)
}

// SDNCheckHandler handles POST /api/v1/sdn_check/.
//
// Body: {"lms_user_id": 1, "full_name": "...", "city": "...", "country": "US",
// "username": "...", "system_identifier": "...", "metadata": {...},
// "sdn_api_list": "ISN,SDN"}. Missing required fields are reported as
// {"missing_args": "lms_user_id, city"} with status 400.
func SDNCheckHandler(screener Screener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req models.SDNCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}

		if missing := req.MissingArgs(); len(missing) > 0 {
			respondWithJSON(w, http.StatusBadRequest, map[string]string{
				"missing_args": strings.Join(missing, ", "),
			})
			return
		}

		zap.S().Infow("Handler: received SDN check request",
			"lms_user_id", req.LmsUserID,
			"system_identifier", req.SystemIdentifier,
			"http_request_id", middleware.GetReqID(r.Context()))

		resp, err := screener.Check(r.Context(), req)
		if errors.Is(err, database.ErrFallbackDataEmpty) {
			respondWithError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("SDN check failed: %v", err))
			return
		}
		respondWithJSON(w, http.StatusOK, resp)
	}
}
