package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

// GroupRepository provides read access to series groups. Group
// creation and deletion always travel with series mutations and live
// in SeriesRepository so they stay transactional.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByID loads a series group.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.SeriesGroup, error) {
	const query = `SELECT id, name, description, color, created_by, created_at, updated_at FROM series_groups WHERE id = $1`
	var group models.SeriesGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// List returns groups ordered by name with pagination.
func (r *GroupRepository) List(ctx context.Context, page, pageSize int) ([]models.SeriesGroup, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT id, name, description, color, created_by, created_at, updated_at FROM series_groups ORDER BY name ASC LIMIT %d OFFSET %d`, pageSize, offset)
	var groups []models.SeriesGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM series_groups`); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}
