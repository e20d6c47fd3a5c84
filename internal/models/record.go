package models

import "time"

// Record is a generic typed entity held by the embedded record store.
// The occurrence time range lives inside Fields under the owning
// series' time field as {"start": ..., "end": ...}.
type Record struct {
	ID         string    `db:"id" json:"id"`
	RecordType string    `db:"record_type" json:"record_type"`
	Fields     FieldMap  `db:"fields" json:"fields"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Label returns a human-readable identifier for conflict reporting.
func (r *Record) Label() string {
	for _, key := range []string{"title", "name", "label"} {
		if v, ok := r.Fields[key].(string); ok && v != "" {
			return v
		}
	}
	return r.ID
}

// RecordField describes one field of a record type as exposed by the
// field-metadata source.
type RecordField struct {
	RecordType string `db:"record_type" json:"record_type"`
	FieldName  string `db:"field_name" json:"field_name"`
	Editable   bool   `db:"editable" json:"editable"`
	Required   bool   `db:"required" json:"required"`
}

// Schema drift issue kinds.
const (
	DriftMissingRequired = "missing_required"
	DriftUnknownField    = "unknown_field"
)

// SchemaDriftIssue reports one advisory mismatch between a series
// template and the current field set of its record type.
type SchemaDriftIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}
