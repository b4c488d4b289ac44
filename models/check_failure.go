// models/check_failure.go
package models

import (
	"encoding/json"
	"time"
)

// SanctionsCheckFailure is the audit record written for every positive hit.
type SanctionsCheckFailure struct {
	ID               int64           `db:"id" json:"id"`
	FullName         string          `db:"full_name" json:"full_name"`
	Username         string          `db:"username" json:"username"`
	LmsUserID        *int64          `db:"lms_user_id" json:"lms_user_id,omitempty"`
	City             string          `db:"city" json:"city"`
	Country          string          `db:"country" json:"country"`
	SanctionsType    string          `db:"sanctions_type" json:"sanctions_type"`       // "SDN" for now
	SystemIdentifier string          `db:"system_identifier" json:"system_identifier"` // calling service
	Metadata         json.RawMessage `db:"metadata" json:"metadata"`
	SDNCheckResponse json.RawMessage `db:"sdn_check_response" json:"sdn_check_response"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

func (f SanctionsCheckFailure) String() string {
	return "Sanctions check failure [" + f.Username + "]"
}
