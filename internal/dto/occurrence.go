package dto

import (
	"time"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

// CancelOccurrenceRequest cancels one materialized occurrence.
type CancelOccurrenceRequest struct {
	RecordType string  `json:"record_type" validate:"required"`
	RecordID   string  `json:"record_id" validate:"required"`
	Reason     *string `json:"reason"`
}

// CancelOccurrenceResponse acknowledges the cancellation.
type CancelOccurrenceResponse struct {
	OK bool `json:"ok"`
}

// RescheduleOccurrenceRequest moves one occurrence to a new range.
// TimeField is only consulted for records outside any series, where
// the engine cannot derive the field name from a series definition.
type RescheduleOccurrenceRequest struct {
	RecordType string    `json:"record_type" validate:"required"`
	RecordID   string    `json:"record_id" validate:"required"`
	NewStart   time.Time `json:"new_start" validate:"required"`
	NewEnd     time.Time `json:"new_end" validate:"required"`
	TimeField  string    `json:"time_field"`
}

// RescheduleOccurrenceResponse returns the audit snapshot.
type RescheduleOccurrenceResponse struct {
	OK         bool              `json:"ok"`
	PriorRange *models.TimeRange `json:"prior_range,omitempty"`
}

// MembershipResponse reports series membership of a record.
type MembershipResponse struct {
	IsMember       bool                 `json:"is_member"`
	SeriesID       *string              `json:"series_id,omitempty"`
	GroupID        *string              `json:"group_id,omitempty"`
	OccurrenceDate *time.Time           `json:"occurrence_date,omitempty"`
	ExceptionType  models.ExceptionType `json:"exception_type,omitempty"`
}
