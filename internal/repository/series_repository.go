package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

const seriesColumns = `id, group_id, version, effective_from, effective_until, record_type, template, rule, anchor_at, duration_secs, timezone, time_field, scope_field, status, expanded_until, created_by, created_at, updated_at`

const insertSeriesQuery = `INSERT INTO series (id, group_id, version, effective_from, effective_until, record_type, template, rule, anchor_at, duration_secs, timezone, time_field, scope_field, status, expanded_until, created_by, created_at, updated_at)
VALUES (:id, :group_id, :version, :effective_from, :effective_until, :record_type, :template, :rule, :anchor_at, :duration_secs, :timezone, :time_field, :scope_field, :status, :expanded_until, :created_by, :created_at, :updated_at)`

const insertGroupQuery = `INSERT INTO series_groups (id, name, description, color, created_by, created_at, updated_at)
VALUES (:id, :name, :description, :color, :created_by, :created_at, :updated_at)`

// SeriesRepository persists series versions and owns every multi-step
// schedule mutation. Split, schedule replacement and the cascading
// deletes each run as one transaction: partial application is never
// observable.
type SeriesRepository struct {
	db *sqlx.DB
}

// NewSeriesRepository creates a new series repository.
func NewSeriesRepository(db *sqlx.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// GetByID loads a series version by id.
func (r *SeriesRepository) GetByID(ctx context.Context, id string) (*models.Series, error) {
	query := fmt.Sprintf(`SELECT %s FROM series WHERE id = $1`, seriesColumns)
	var series models.Series
	if err := r.db.GetContext(ctx, &series, query, id); err != nil {
		return nil, err
	}
	return &series, nil
}

// ListByGroup returns every version in a group ordered by version.
func (r *SeriesRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Series, error) {
	query := fmt.Sprintf(`SELECT %s FROM series WHERE group_id = $1 ORDER BY version ASC`, seriesColumns)
	var versions []models.Series
	if err := r.db.SelectContext(ctx, &versions, query, groupID); err != nil {
		return nil, fmt.Errorf("list series by group: %w", err)
	}
	return versions, nil
}

// CreateWithGroup inserts a new group together with its version-1
// series in a single transaction.
func (r *SeriesRepository) CreateWithGroup(ctx context.Context, group *models.SeriesGroup, series *models.Series) error {
	now := time.Now().UTC()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = now
	group.UpdatedAt = now

	if series.ID == "" {
		series.ID = uuid.NewString()
	}
	series.GroupID = &group.ID
	series.Version = 1
	series.CreatedAt = now
	series.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create series: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertGroupQuery, group); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if _, err = tx.NamedExecContext(ctx, insertSeriesQuery, series); err != nil {
		return fmt.Errorf("insert series: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create series: %w", err)
	}
	return nil
}

// SplitParams carries a fully prepared "edit this and future" split.
type SplitParams struct {
	OldSeries   *models.Series
	NewGroup    *models.SeriesGroup // set when the old series was standalone
	SplitDate   time.Time
	ClosedUntil time.Time // effective_until for the old version
	ClosedRule  string    // old rule with its termination rewritten
	NewSeries   *models.Series
}

// SplitResult reports the outcome of a split.
type SplitResult struct {
	GroupID        string
	NewSeriesID    string
	InstancesMoved int64
}

// Split closes the old series version, opens the next one and
// re-points future instances, all in one transaction. Instance rows
// are locked before re-pointing so a concurrent cancel or reschedule
// cannot be silently dropped.
func (r *SeriesRepository) Split(ctx context.Context, params SplitParams) (*SplitResult, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin split: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	groupID := ""
	if params.NewGroup != nil {
		params.NewGroup.ID = uuid.NewString()
		params.NewGroup.CreatedAt = now
		params.NewGroup.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, insertGroupQuery, params.NewGroup); err != nil {
			return nil, fmt.Errorf("insert group for standalone series: %w", err)
		}
		groupID = params.NewGroup.ID
		if _, err = tx.ExecContext(ctx, `UPDATE series SET group_id = $1, updated_at = $2 WHERE id = $3`, groupID, now, params.OldSeries.ID); err != nil {
			return nil, fmt.Errorf("attach series to group: %w", err)
		}
	} else {
		groupID = *params.OldSeries.GroupID
	}

	// Lock the group row so concurrent splits cannot race the version counter.
	if _, err = tx.ExecContext(ctx, `SELECT id FROM series_groups WHERE id = $1 FOR UPDATE`, groupID); err != nil {
		return nil, fmt.Errorf("lock group: %w", err)
	}

	var nextVersion int
	if err = tx.GetContext(ctx, &nextVersion, `SELECT COALESCE(MAX(version), 0) + 1 FROM series WHERE group_id = $1`, groupID); err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE series SET effective_until = $1, rule = $2, updated_at = $3 WHERE id = $4`,
		params.ClosedUntil, params.ClosedRule, now, params.OldSeries.ID,
	); err != nil {
		return nil, fmt.Errorf("close series version: %w", err)
	}

	params.NewSeries.ID = uuid.NewString()
	params.NewSeries.GroupID = &groupID
	params.NewSeries.Version = nextVersion
	params.NewSeries.EffectiveFrom = params.SplitDate
	params.NewSeries.EffectiveUntil = nil
	params.NewSeries.CreatedAt = now
	params.NewSeries.UpdatedAt = now
	if _, err = tx.NamedExecContext(ctx, insertSeriesQuery, params.NewSeries); err != nil {
		return nil, fmt.Errorf("insert series version: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`SELECT id FROM series_instances WHERE series_id = $1 AND occurrence_date >= $2 FOR UPDATE`,
		params.OldSeries.ID, params.SplitDate,
	); err != nil {
		return nil, fmt.Errorf("lock instances: %w", err)
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`UPDATE series_instances SET series_id = $1, updated_at = $2 WHERE series_id = $3 AND occurrence_date >= $4`,
		params.NewSeries.ID, now, params.OldSeries.ID, params.SplitDate,
	)
	if err != nil {
		return nil, fmt.Errorf("repoint instances: %w", err)
	}
	moved, _ := res.RowsAffected()

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit split: %w", err)
	}
	return &SplitResult{GroupID: groupID, NewSeriesID: params.NewSeries.ID, InstancesMoved: moved}, nil
}

// ReplaceSchedule deletes every non-exception instance and its record,
// resets the expansion high-water mark and applies the new
// rule/anchor/duration, atomically. Exception instances stay untouched.
func (r *SeriesRepository) ReplaceSchedule(ctx context.Context, seriesID, rule string, anchor time.Time, durationSecs int64) (int, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace schedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var recordIDs []string
	if err = tx.SelectContext(ctx, &recordIDs,
		`SELECT record_id FROM series_instances WHERE series_id = $1 AND is_exception = FALSE AND record_id IS NOT NULL FOR UPDATE`,
		seriesID,
	); err != nil {
		return 0, fmt.Errorf("collect replaceable records: %w", err)
	}

	if len(recordIDs) > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM records WHERE id = ANY($1)`, pq.Array(recordIDs)); err != nil {
			return 0, fmt.Errorf("delete records: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM series_instances WHERE series_id = $1 AND is_exception = FALSE`, seriesID); err != nil {
		return 0, fmt.Errorf("delete instances: %w", err)
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		`UPDATE series SET rule = $1, anchor_at = $2, duration_secs = $3, expanded_until = NULL, updated_at = $4 WHERE id = $5`,
		rule, anchor, durationSecs, now, seriesID,
	)
	if err != nil {
		return 0, fmt.Errorf("update schedule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		err = sql.ErrNoRows
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace schedule: %w", err)
	}
	return len(recordIDs), nil
}

// DeleteCascade removes a series with its instances and their records,
// and the owning group when this was its last series.
func (r *SeriesRepository) DeleteCascade(ctx context.Context, seriesID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete series: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deleted, err := deleteSeriesTx(ctx, tx, seriesID, true)
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete series: %w", err)
	}
	return deleted, nil
}

// DeleteGroupCascade removes every series in a group through the
// single-series deletion path, then the group itself, atomically.
func (r *SeriesRepository) DeleteGroupCascade(ctx context.Context, groupID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete group: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var seriesIDs []string
	if err = tx.SelectContext(ctx, &seriesIDs, `SELECT id FROM series WHERE group_id = $1 FOR UPDATE`, groupID); err != nil {
		return 0, fmt.Errorf("collect group series: %w", err)
	}
	if len(seriesIDs) == 0 {
		err = sql.ErrNoRows
		return 0, err
	}

	total := 0
	for _, id := range seriesIDs {
		var deleted int
		deleted, err = deleteSeriesTx(ctx, tx, id, false)
		if err != nil {
			return 0, err
		}
		total += deleted
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM series_groups WHERE id = $1`, groupID); err != nil {
		return 0, fmt.Errorf("delete group: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete group: %w", err)
	}
	return total, nil
}

// deleteSeriesTx removes one series, its instances and their records
// inside an open transaction. When dropEmptyGroup is set, the owning
// group is removed once its last series is gone.
func deleteSeriesTx(ctx context.Context, tx *sqlx.Tx, seriesID string, dropEmptyGroup bool) (int, error) {
	var groupID *string
	if err := tx.GetContext(ctx, &groupID, `SELECT group_id FROM series WHERE id = $1 FOR UPDATE`, seriesID); err != nil {
		return 0, err
	}

	var recordIDs []string
	if err := tx.SelectContext(ctx, &recordIDs,
		`SELECT record_id FROM series_instances WHERE series_id = $1 AND record_id IS NOT NULL`, seriesID,
	); err != nil {
		return 0, fmt.Errorf("collect series records: %w", err)
	}
	if len(recordIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ANY($1)`, pq.Array(recordIDs)); err != nil {
			return 0, fmt.Errorf("delete series records: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM series_instances WHERE series_id = $1`, seriesID); err != nil {
		return 0, fmt.Errorf("delete series instances: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM series WHERE id = $1`, seriesID); err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}

	if dropEmptyGroup && groupID != nil {
		var remaining int
		if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM series WHERE group_id = $1`, *groupID); err != nil {
			return 0, fmt.Errorf("count remaining series: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM series_groups WHERE id = $1`, *groupID); err != nil {
				return 0, fmt.Errorf("delete empty group: %w", err)
			}
		}
	}

	return len(recordIDs), nil
}

// UpdateTemplate persists a merged template on a series version.
func (r *SeriesRepository) UpdateTemplate(ctx context.Context, seriesID string, template models.FieldMap) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE series SET template = $1, updated_at = $2 WHERE id = $3`,
		template, time.Now().UTC(), seriesID,
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus transitions a series status.
func (r *SeriesRepository) SetStatus(ctx context.Context, seriesID string, status models.SeriesStatus) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE series SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), seriesID,
	); err != nil {
		return fmt.Errorf("set series status: %w", err)
	}
	return nil
}

// SetExpandedUntil advances the expansion high-water mark.
func (r *SeriesRepository) SetExpandedUntil(ctx context.Context, seriesID string, until time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE series SET expanded_until = $1, updated_at = $2 WHERE id = $3`,
		until, time.Now().UTC(), seriesID,
	); err != nil {
		return fmt.Errorf("set expanded until: %w", err)
	}
	return nil
}
