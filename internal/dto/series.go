package dto

import (
	"time"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

// CreateSeriesRequest describes a new recurring series.
type CreateSeriesRequest struct {
	GroupName   string          `json:"group_name" validate:"required"`
	Description *string         `json:"description"`
	Color       *string         `json:"color"`
	RecordType  string          `json:"record_type"`
	Template    models.FieldMap `json:"template"`
	Rule        string          `json:"rule"`
	Anchor      time.Time       `json:"anchor"`
	DurationMin int             `json:"duration_minutes"`
	Timezone    *string         `json:"timezone"`
	TimeField   string          `json:"time_field"`
	ScopeField  *string         `json:"scope_field"`
	ExpandNow   bool            `json:"expand_now"`
}

// CreateSeriesResponse returns the created identifiers.
type CreateSeriesResponse struct {
	GroupID  string `json:"group_id"`
	SeriesID string `json:"series_id"`
}

// ExpandRequest asks for asynchronous materialization up to a horizon.
type ExpandRequest struct {
	Until *time.Time `json:"until"`
}

// ExpandResponse acknowledges the queued expansion.
type ExpandResponse struct {
	Queued bool      `json:"queued"`
	Until  time.Time `json:"until"`
}

// SplitSeriesRequest describes an "edit this and future" split.
type SplitSeriesRequest struct {
	SplitDate      time.Time       `json:"split_date"`
	NewAnchor      time.Time       `json:"new_anchor"`
	NewDurationMin *int            `json:"new_duration_minutes"`
	TemplateDelta  models.FieldMap `json:"template_delta"`
}

// SplitSeriesResponse identifies both halves of the split.
type SplitSeriesResponse struct {
	OldSeriesID string `json:"old_series_id"`
	NewSeriesID string `json:"new_series_id"`
	GroupID     string `json:"group_id"`
}

// UpdateTemplateRequest merges a delta onto the current template.
type UpdateTemplateRequest struct {
	TemplateDelta  models.FieldMap `json:"template_delta" validate:"required"`
	SkipExceptions *bool           `json:"skip_exceptions"`
}

// UpdateTemplateResponse reports propagation reach.
type UpdateTemplateResponse struct {
	InstancesUpdated int `json:"instances_updated"`
}

// UpdateScheduleRequest replaces the anchor/duration/rule wholesale.
type UpdateScheduleRequest struct {
	NewAnchor      time.Time `json:"new_anchor"`
	NewDurationMin int       `json:"new_duration_minutes"`
	NewRule        string    `json:"new_rule"`
}

// UpdateScheduleResponse reports the reset and the new horizon.
type UpdateScheduleResponse struct {
	EntitiesDeleted int       `json:"entities_deleted"`
	ExpandUntil     time.Time `json:"expand_until"`
}

// DeleteResponse reports how many concrete records were removed.
type DeleteResponse struct {
	EntitiesDeleted int `json:"entities_deleted"`
}
