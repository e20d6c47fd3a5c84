package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole enumerates caller roles carried by access tokens.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleScheduler UserRole = "SCHEDULER"
	RoleViewer    UserRole = "VIEWER"
)

// JWTClaims carries the identity asserted by the external auth service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Pagination describes list paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// FieldMap is a JSONB-backed field/value map.
type FieldMap map[string]interface{}

// Value implements driver.Valuer for JSONB columns.
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns.
func (m *FieldMap) Scan(src interface{}) error {
	if src == nil {
		*m = FieldMap{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into FieldMap", src)
	}
}

// Merge returns a copy of m with delta applied on top; delta wins on key conflict.
func (m FieldMap) Merge(delta FieldMap) FieldMap {
	merged := make(FieldMap, len(m)+len(delta))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
// Touching endpoints do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Duration returns the span of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// TimeRangeFrom decodes a record field value of the shape
// {"start": ..., "end": ...} into a TimeRange. Returns false when the
// value is absent or not range-shaped.
func TimeRangeFrom(v interface{}) (*TimeRange, bool) {
	if v == nil {
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var rng TimeRange
	if err := json.Unmarshal(raw, &rng); err != nil {
		return nil, false
	}
	if rng.Start.IsZero() || rng.End.IsZero() {
		return nil, false
	}
	return &rng, true
}
