package dto

import "github.com/tempora-hq/scheduler-api/internal/models"

// ConflictPreviewRequest checks candidate ranges against existing
// records sharing a scope, e.g. resource_id = "5".
type ConflictPreviewRequest struct {
	RecordType string             `json:"record_type" validate:"required"`
	ScopeField string             `json:"scope_field" validate:"required"`
	ScopeValue string             `json:"scope_value" validate:"required"`
	TimeField  string             `json:"time_field" validate:"required"`
	Ranges     []models.TimeRange `json:"ranges" validate:"required,min=1"`
}

// ConflictResult reports the outcome for one candidate range.
type ConflictResult struct {
	Index               int              `json:"index"`
	Range               models.TimeRange `json:"range"`
	Conflict            bool             `json:"conflict"`
	ConflictingRecordID *string          `json:"conflicting_record_id,omitempty"`
	ConflictingLabel    *string          `json:"conflicting_label,omitempty"`
}
