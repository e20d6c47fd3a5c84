package dto

import (
	"time"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

// CurrentVersionSnapshot captures the open series version of a group.
type CurrentVersionSnapshot struct {
	SeriesID    string              `json:"series_id"`
	Version     int                 `json:"version"`
	Rule        string              `json:"rule"`
	Anchor      time.Time           `json:"anchor"`
	DurationMin int                 `json:"duration_minutes"`
	Status      models.SeriesStatus `json:"status"`
	Template    models.FieldMap     `json:"template"`
}

// GroupSummary is the read-only aggregate view of a series group.
type GroupSummary struct {
	GroupID           string                  `json:"group_id"`
	Name              string                  `json:"name"`
	VersionCount      int                     `json:"version_count"`
	EarliestFrom      *time.Time              `json:"earliest_effective_from,omitempty"`
	Current           *CurrentVersionSnapshot `json:"current_version,omitempty"`
	ActiveInstances   int                     `json:"active_instances"`
	ExceptionCount    int                     `json:"exception_count"`
	Status            models.SeriesStatus     `json:"status"`
}
