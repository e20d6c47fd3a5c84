package models

import "time"

// ExceptionType enumerates recorded deviations of one occurrence from
// its series template.
type ExceptionType string

const (
	ExceptionNone            ExceptionType = "none"
	ExceptionModified        ExceptionType = "modified"
	ExceptionRescheduled     ExceptionType = "rescheduled"
	ExceptionCancelled       ExceptionType = "cancelled"
	ExceptionConflictSkipped ExceptionType = "conflict_skipped"
)

// Instance links one occurrence of a series to the concrete record (if
// any) materialized for it. Instances are unique per
// (series_id, occurrence_date) and per (record_type, record_id) when a
// record is attached. Edits never delete instance rows; cancellation
// nulls the record reference and marks the exception instead.
type Instance struct {
	ID             string        `db:"id" json:"id"`
	SeriesID       string        `db:"series_id" json:"series_id"`
	OccurrenceDate time.Time     `db:"occurrence_date" json:"occurrence_date"`
	RecordType     string        `db:"record_type" json:"record_type"`
	RecordID       *string       `db:"record_id" json:"record_id,omitempty"`
	IsException    bool          `db:"is_exception" json:"is_exception"`
	ExceptionType  ExceptionType `db:"exception_type" json:"exception_type"`
	PriorStartAt   *time.Time    `db:"prior_start_at" json:"prior_start_at,omitempty"`
	PriorEndAt     *time.Time    `db:"prior_end_at" json:"prior_end_at,omitempty"`
	Reason         *string       `db:"reason" json:"reason,omitempty"`
	ExceptionBy    *string       `db:"exception_by" json:"exception_by,omitempty"`
	ExceptionAt    *time.Time    `db:"exception_at" json:"exception_at,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}
