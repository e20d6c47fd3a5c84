package models

import "time"

// SeriesStatus enumerates the lifecycle states of a series version.
type SeriesStatus string

const (
	SeriesStatusActive         SeriesStatus = "active"
	SeriesStatusPaused         SeriesStatus = "paused"
	SeriesStatusNeedsAttention SeriesStatus = "needs_attention"
	SeriesStatusEnded          SeriesStatus = "ended"
)

// SeriesGroup is the user-visible recurring schedule spanning all
// versions (splits) of one logical series.
type SeriesGroup struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Color       *string   `db:"color" json:"color,omitempty"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Series is one versioned recurrence definition within a group.
// Within a group at most one series has a NULL EffectiveUntil: the
// current version. Splitting closes the prior current version in the
// same transaction that opens the next one.
type Series struct {
	ID             string       `db:"id" json:"id"`
	GroupID        *string      `db:"group_id" json:"group_id,omitempty"`
	Version        int          `db:"version" json:"version"`
	EffectiveFrom  time.Time    `db:"effective_from" json:"effective_from"`
	EffectiveUntil *time.Time   `db:"effective_until" json:"effective_until,omitempty"`
	RecordType     string       `db:"record_type" json:"record_type"`
	Template       FieldMap     `db:"template" json:"template"`
	Rule           string       `db:"rule" json:"rule"`
	AnchorAt       time.Time    `db:"anchor_at" json:"anchor_at"`
	DurationSecs   int64        `db:"duration_secs" json:"duration_secs"`
	Timezone       *string      `db:"timezone" json:"timezone,omitempty"`
	TimeField      string       `db:"time_field" json:"time_field"`
	ScopeField     *string      `db:"scope_field" json:"scope_field,omitempty"`
	Status         SeriesStatus `db:"status" json:"status"`
	ExpandedUntil  *time.Time   `db:"expanded_until" json:"expanded_until,omitempty"`
	CreatedBy      string       `db:"created_by" json:"created_by"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// IsCurrent reports whether this version is the open head of its group.
func (s *Series) IsCurrent() bool {
	return s.EffectiveUntil == nil
}

// Duration returns the occurrence duration.
func (s *Series) Duration() time.Duration {
	return time.Duration(s.DurationSecs) * time.Second
}

// Location resolves the display timezone, falling back to UTC.
func (s *Series) Location() *time.Location {
	if s.Timezone == nil || *s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(*s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
