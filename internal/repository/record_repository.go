package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

const recordColumns = `id, record_type, fields, created_at, updated_at`

// PreDeleteHook runs before a record is removed through Delete. The
// instance tracker installs one so occurrences whose record vanishes
// outside the series manager are marked cancelled instead of dangling.
type PreDeleteHook func(ctx context.Context, recordType, recordID string) error

// RecordRepository is the embedded generic entity store: typed records
// addressed by (type, id) with a JSONB field bag and overlap-capable
// range queries on a named time field.
type RecordRepository struct {
	db        *sqlx.DB
	preDelete PreDeleteHook
}

// NewRecordRepository creates a new record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// SetPreDeleteHook installs the orphan-cleanup hook.
func (r *RecordRepository) SetPreDeleteHook(hook PreDeleteHook) {
	r.preDelete = hook
}

// Create inserts a record.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO records (id, record_type, fields, created_at, updated_at) VALUES (:id, :record_type, :fields, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// Get loads a record by type and id.
func (r *RecordRepository) Get(ctx context.Context, recordType, id string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE record_type = $1 AND id = $2`, recordColumns)
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, recordType, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetFields merges the given fields into a record's field bag.
func (r *RecordRepository) SetFields(ctx context.Context, recordType, id string, fields models.FieldMap) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET fields = fields || $1, updated_at = $2 WHERE record_type = $3 AND id = $4`,
		fields, time.Now().UTC(), recordType, id,
	)
	if err != nil {
		return fmt.Errorf("set record fields: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetTimeRange writes a record's time range under the named field.
func (r *RecordRepository) SetTimeRange(ctx context.Context, recordType, id, timeField string, rng models.TimeRange) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET fields = jsonb_set(fields, ARRAY[$1::text], jsonb_build_object('start', to_jsonb($2::timestamptz), 'end', to_jsonb($3::timestamptz))), updated_at = $4 WHERE record_type = $5 AND id = $6`,
		timeField, rng.Start, rng.End, time.Now().UTC(), recordType, id,
	)
	if err != nil {
		return fmt.Errorf("set record time range: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a record, running the pre-delete hook first so
// instance tracking stays consistent. Deleting an absent record is a
// no-op.
func (r *RecordRepository) Delete(ctx context.Context, recordType, id string) error {
	if r.preDelete != nil {
		if err := r.preDelete(ctx, recordType, id); err != nil {
			return fmt.Errorf("pre-delete hook: %w", err)
		}
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE record_type = $1 AND id = $2`, recordType, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// FindOverlapping returns records of a type within a scope whose time
// range intersects the candidate. Half-open semantics: ranges sharing
// only a boundary instant do not overlap.
func (r *RecordRepository) FindOverlapping(ctx context.Context, recordType, scopeField, scopeValue, timeField string, rng models.TimeRange) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records
WHERE record_type = $1
  AND fields->>$2 = $3
  AND (fields->$4->>'start')::timestamptz < $5
  AND (fields->$4->>'end')::timestamptz > $6
ORDER BY id ASC`, recordColumns)

	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, recordType, scopeField, scopeValue, timeField, rng.End, rng.Start); err != nil {
		return nil, fmt.Errorf("find overlapping records: %w", err)
	}
	return records, nil
}
