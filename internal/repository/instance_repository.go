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

const instanceColumns = `id, series_id, occurrence_date, record_type, record_id, is_exception, exception_type, prior_start_at, prior_end_at, reason, exception_by, exception_at, created_at, updated_at`

// InstanceRepository persists the junction between series occurrences
// and concrete records. Instance rows are never removed by ordinary
// edits; exceptions are recorded in place so the audit trail survives.
type InstanceRepository struct {
	db *sqlx.DB
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sqlx.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// CreateIfAbsent inserts an instance unless its (series, occurrence
// date) slot is already taken. Returns whether a row was inserted,
// which makes worker re-runs idempotent.
func (r *InstanceRepository) CreateIfAbsent(ctx context.Context, instance *models.Instance) (bool, error) {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now
	if instance.ExceptionType == "" {
		instance.ExceptionType = models.ExceptionNone
	}

	const query = `INSERT INTO series_instances (id, series_id, occurrence_date, record_type, record_id, is_exception, exception_type, prior_start_at, prior_end_at, reason, exception_by, exception_at, created_at, updated_at)
VALUES (:id, :series_id, :occurrence_date, :record_type, :record_id, :is_exception, :exception_type, :prior_start_at, :prior_end_at, :reason, :exception_by, :exception_at, :created_at, :updated_at)
ON CONFLICT (series_id, occurrence_date) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, instance)
	if err != nil {
		return false, fmt.Errorf("create instance: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// FindByRecord locates the instance tracking a concrete record.
func (r *InstanceRepository) FindByRecord(ctx context.Context, recordType, recordID string) (*models.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM series_instances WHERE record_type = $1 AND record_id = $2`, instanceColumns)
	var instance models.Instance
	if err := r.db.GetContext(ctx, &instance, query, recordType, recordID); err != nil {
		return nil, err
	}
	return &instance, nil
}

// ListMaterialized returns instances holding a record reference for a
// series, optionally including exception instances.
func (r *InstanceRepository) ListMaterialized(ctx context.Context, seriesID string, includeExceptions bool) ([]models.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM series_instances WHERE series_id = $1 AND record_id IS NOT NULL`, instanceColumns)
	if !includeExceptions {
		query += ` AND is_exception = FALSE`
	}
	query += ` ORDER BY occurrence_date ASC`

	var instances []models.Instance
	if err := r.db.SelectContext(ctx, &instances, query, seriesID); err != nil {
		return nil, fmt.Errorf("list materialized instances: %w", err)
	}
	return instances, nil
}

// ListByGroup returns every instance across all versions of a group.
func (r *InstanceRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM series_instances WHERE series_id IN (SELECT id FROM series WHERE group_id = $1) ORDER BY occurrence_date ASC`, instanceColumns)
	var instances []models.Instance
	if err := r.db.SelectContext(ctx, &instances, query, groupID); err != nil {
		return nil, fmt.Errorf("list instances by group: %w", err)
	}
	return instances, nil
}

// GroupCounts aggregates instance state for the group summary.
type GroupCounts struct {
	Materialized int `db:"materialized"`
	Exceptions   int `db:"exceptions"`
}

// CountByGroup returns materialized and exception counts for a group.
func (r *InstanceRepository) CountByGroup(ctx context.Context, groupID string) (*GroupCounts, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE record_id IS NOT NULL) AS materialized,
	COUNT(*) FILTER (WHERE is_exception) AS exceptions
FROM series_instances WHERE series_id IN (SELECT id FROM series WHERE group_id = $1)`
	var counts GroupCounts
	if err := r.db.GetContext(ctx, &counts, query, groupID); err != nil {
		return nil, fmt.Errorf("count instances by group: %w", err)
	}
	return &counts, nil
}

// CancelWithRecord nulls the record reference, records the cancelled
// exception and removes the concrete record in one transaction. The
// instance row stays behind for the audit trail.
func (r *InstanceRepository) CancelWithRecord(ctx context.Context, instanceID, recordID string, reason *string, actor string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel occurrence: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`UPDATE series_instances SET record_id = NULL, is_exception = TRUE, exception_type = $1, reason = $2, exception_by = $3, exception_at = $4, updated_at = $4 WHERE id = $5`,
		models.ExceptionCancelled, reason, actor, now, instanceID,
	)
	if err != nil {
		return fmt.Errorf("mark instance cancelled: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, recordID); err != nil {
		return fmt.Errorf("delete cancelled record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel occurrence: %w", err)
	}
	return nil
}

// RescheduleWithRecord captures the prior time range on the instance
// and applies the new range to the record, atomically.
func (r *InstanceRepository) RescheduleWithRecord(ctx context.Context, instanceID, recordID, timeField string, prior, next models.TimeRange, actor string) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reschedule occurrence: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`UPDATE series_instances SET is_exception = TRUE, exception_type = $1, prior_start_at = $2, prior_end_at = $3, exception_by = $4, exception_at = $5, updated_at = $5 WHERE id = $6`,
		models.ExceptionRescheduled, prior.Start, prior.End, actor, now, instanceID,
	)
	if err != nil {
		return fmt.Errorf("mark instance rescheduled: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE records SET fields = jsonb_set(fields, ARRAY[$1::text], jsonb_build_object('start', to_jsonb($2::timestamptz), 'end', to_jsonb($3::timestamptz))), updated_at = $4 WHERE id = $5`,
		timeField, next.Start, next.End, now, recordID,
	); err != nil {
		return fmt.Errorf("apply new time range: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule occurrence: %w", err)
	}
	return nil
}

// MarkOrphaned transitions the instance of a record that disappeared
// outside the scheduler to cancelled, keeping the row queryable.
func (r *InstanceRepository) MarkOrphaned(ctx context.Context, recordType, recordID, reason string) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE series_instances SET record_id = NULL, is_exception = TRUE, exception_type = $1, reason = $2, exception_at = $3, updated_at = $3 WHERE record_type = $4 AND record_id = $5`,
		models.ExceptionCancelled, reason, now, recordType, recordID,
	)
	if err != nil {
		return false, fmt.Errorf("mark instance orphaned: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}
