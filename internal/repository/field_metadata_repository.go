package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

// FieldMetadataRepository exposes the per-record-type field catalogue
// that backs the template allowlist and schema-drift checks.
type FieldMetadataRepository struct {
	db *sqlx.DB
}

// NewFieldMetadataRepository creates a new field metadata repository.
func NewFieldMetadataRepository(db *sqlx.DB) *FieldMetadataRepository {
	return &FieldMetadataRepository{db: db}
}

// ListFields returns every declared field of a record type.
func (r *FieldMetadataRepository) ListFields(ctx context.Context, recordType string) ([]models.RecordField, error) {
	const query = `SELECT record_type, field_name, editable, required FROM record_fields WHERE record_type = $1 ORDER BY field_name ASC`
	var fields []models.RecordField
	if err := r.db.SelectContext(ctx, &fields, query, recordType); err != nil {
		return nil, fmt.Errorf("list record fields: %w", err)
	}
	return fields, nil
}
