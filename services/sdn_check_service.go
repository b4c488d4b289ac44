// services/sdn_check_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gewnthar/sanctions/apiclient"
	"github.com/gewnthar/sanctions/metrics"
	"github.com/gewnthar/sanctions/models"
)

// PrimarySearcher is the remote screening API.
type PrimarySearcher interface {
	Search(ctx context.Context, lmsUserID int64, name, city, country string) (map[string]any, error)
}

// FallbackSearcher answers a query from local data.
type FallbackSearcher interface {
	Match(ctx context.Context, name, city, country string) (int, error)
}

// FailureRecorder persists positive hits.
type FailureRecorder interface {
	Record(ctx context.Context, f *models.SanctionsCheckFailure) error
}

// SDNCheckService screens a user against the primary API and falls back to
// the local snapshot when the API is unavailable.
type SDNCheckService struct {
	primary  PrimarySearcher
	fallback FallbackSearcher
	recorder FailureRecorder
	metrics  *metrics.Metrics

	// ForLists returns the primary searcher for a non-default list
	// selection. Nil means the request's list is ignored.
	ForLists func(lists string) PrimarySearcher
}

func NewSDNCheckService(primary PrimarySearcher, fallback FallbackSearcher, recorder FailureRecorder, m *metrics.Metrics) *SDNCheckService {
	svc := &SDNCheckService{primary: primary, fallback: fallback, recorder: recorder, metrics: m}
	if c, ok := primary.(*apiclient.SDNClient); ok {
		svc.ForLists = func(lists string) PrimarySearcher { return c.WithLists(lists) }
	}
	return svc
}

// Check returns the hit count for req. Only a failure of both the primary
// API and the fallback is returned as an error; failing to record a hit is
// logged and the hit count is still returned.
func (s *SDNCheckService) Check(ctx context.Context, req models.SDNCheckRequest) (*models.SDNCheckResponse, error) {
	requestID := uuid.NewString()
	log := zap.S().With("request_id", requestID, "lms_user_id", req.LmsUserID)

	primary := s.primary
	if req.SDNAPIList != "" && s.ForLists != nil {
		primary = s.ForLists(req.SDNAPIList)
	}

	out := &models.SDNCheckResponse{Source: models.CheckSourceAPI}
	log.Infof("SDNCheckService: calling the SDN Client for SDN check for user %d.", req.LmsUserID)
	resp, err := primary.Search(ctx, req.LmsUserID, req.FullName, req.City, req.Country)
	if err == nil {
		out.SDNResponse = resp
		out.HitCount = apiclient.HitCount(resp)
	} else {
		s.metrics.IncrementPrimaryFailure()
		log.Infof("SDNCheckService: SDN API call received an error: %v. Calling sanctions fallback for user %d.", err, req.LmsUserID)

		hits, ferr := s.fallback.Match(ctx, req.FullName, req.City, req.Country)
		if ferr != nil {
			s.metrics.IncrementCheck(models.CheckSourceFallback, "error")
			return nil, fmt.Errorf("SDN API unavailable (%v) and fallback check failed: %w", err, ferr)
		}
		out.Source = models.CheckSourceFallback
		out.HitCount = hits
		out.SDNResponse = map[string]any{"total": hits}
	}

	if out.HitCount == 0 {
		s.metrics.IncrementCheck(out.Source, "clear")
		log.Infof("SDNCheckService request received for lms user [%d]. It did not receive a hit.", req.LmsUserID)
		return out, nil
	}

	s.metrics.IncrementCheck(out.Source, "hit")
	log.Infof("SDNCheckService request received for lms user [%d]. It received %d hit(s).", req.LmsUserID, out.HitCount)
	s.recordHit(ctx, log, req, out, requestID)
	return out, nil
}

func (s *SDNCheckService) recordHit(ctx context.Context, log *zap.SugaredLogger, req models.SDNCheckRequest, out *models.SDNCheckResponse, requestID string) {
	if s.recorder == nil {
		return
	}
	respJSON, err := json.Marshal(out.SDNResponse)
	if err != nil {
		log.Errorf("SDNCheckService: could not encode sdn response for the failure record: %v", err)
		respJSON = []byte("{}")
	}
	lmsUserID := req.LmsUserID
	failure := &models.SanctionsCheckFailure{
		FullName:         req.FullName,
		Username:         req.Username,
		LmsUserID:        &lmsUserID,
		City:             req.City,
		Country:          req.Country,
		SanctionsType:    models.SanctionsTypeSDN,
		SystemIdentifier: req.SystemIdentifier,
		Metadata:         withRequestID(req.Metadata, requestID),
		SDNCheckResponse: respJSON,
	}
	if err := s.recorder.Record(ctx, failure); err != nil {
		log.Errorw("SDNCheckService: failed to record sanctions check failure",
			"error", err,
			"username", req.Username,
			"full_name", req.FullName,
			"city", req.City,
			"country", req.Country,
			"system_identifier", req.SystemIdentifier,
			"hit_count", out.HitCount,
			"source", out.Source,
		)
	}
}

// withRequestID adds request_id to a JSON object. Other metadata is kept
// as sent.
func withRequestID(metadata json.RawMessage, requestID string) json.RawMessage {
	obj := map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &obj); err != nil {
			return metadata
		}
	}
	if obj == nil {
		obj = map[string]any{}
	}
	obj["request_id"] = requestID
	b, err := json.Marshal(obj)
	if err != nil {
		return metadata
	}
	return b
}
