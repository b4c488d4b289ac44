// models/api_models.go
package models

import "encoding/json"

// SDNCheckRequest is the expected JSON body for POST /api/v1/sdn_check/.
type SDNCheckRequest struct {
	LmsUserID        int64           `json:"lms_user_id"`
	Username         string          `json:"username"`
	FullName         string          `json:"full_name"`
	City             string          `json:"city"`
	Country          string          `json:"country"` // ISO 3166-1 alpha-2
	SystemIdentifier string          `json:"system_identifier"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	SDNAPIList       string          `json:"sdn_api_list,omitempty"`
}

// MissingArgs lists the required fields that are empty, in request order.
func (r SDNCheckRequest) MissingArgs() []string {
	var missing []string
	if r.LmsUserID == 0 {
		missing = append(missing, "lms_user_id")
	}
	if r.FullName == "" {
		missing = append(missing, "full_name")
	}
	if r.City == "" {
		missing = append(missing, "city")
	}
	if r.Country == "" {
		missing = append(missing, "country")
	}
	return missing
}

// Where a hit count came from.
const (
	CheckSourceAPI      = "api"
	CheckSourceFallback = "fallback"
)

// SDNCheckResponse is returned by the screening endpoint.
type SDNCheckResponse struct {
	HitCount    int            `json:"hit_count"`
	SDNResponse map[string]any `json:"sdn_response"`
	Source      string         `json:"source"`
}
