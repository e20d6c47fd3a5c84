package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/repository"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type groupReader interface {
	GetByID(ctx context.Context, id string) (*models.SeriesGroup, error)
	List(ctx context.Context, page, pageSize int) ([]models.SeriesGroup, int, error)
}

type groupSeriesLister interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Series, error)
}

type groupInstanceCounter interface {
	CountByGroup(ctx context.Context, groupID string) (*repository.GroupCounts, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string)
}

type cacheObserver interface {
	RecordCacheOperation(hit bool)
}

// SummaryService aggregates the read-only group view: version chain,
// current definition and instance counts. Summaries are cached with a
// short TTL; writers invalidate on mutation.
type SummaryService struct {
	groups    groupReader
	series    groupSeriesLister
	instances groupInstanceCounter
	cache     summaryCache
	metrics   cacheObserver
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSummaryService constructs the service. The metrics observer may
// be nil.
func NewSummaryService(groups groupReader, series groupSeriesLister, instances groupInstanceCounter, cache summaryCache, metrics cacheObserver, ttl time.Duration, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{
		groups:    groups,
		series:    series,
		instances: instances,
		cache:     cache,
		metrics:   metrics,
		ttl:       ttl,
		logger:    logger,
	}
}

func summaryCacheKey(groupID string) string {
	return fmt.Sprintf("summary:group:%s", groupID)
}

// Summarize builds the aggregate view of one group.
func (s *SummaryService) Summarize(ctx context.Context, groupID string) (*dto.GroupSummary, error) {
	key := summaryCacheKey(groupID)
	var cached dto.GroupSummary
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.observeCache(true)
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("summary cache read failed", zap.String("group_id", groupID), zap.Error(err))
	}
	s.observeCache(false)

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	versions, err := s.series.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series versions")
	}
	counts, err := s.instances.CountByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count instances")
	}

	summary := &dto.GroupSummary{
		GroupID:         group.ID,
		Name:            group.Name,
		VersionCount:    len(versions),
		ActiveInstances: counts.Materialized,
		ExceptionCount:  counts.Exceptions,
		Status:          models.SeriesStatusEnded,
	}

	needsAttention := false
	for i := range versions {
		v := &versions[i]
		if summary.EarliestFrom == nil || v.EffectiveFrom.Before(*summary.EarliestFrom) {
			from := v.EffectiveFrom
			summary.EarliestFrom = &from
		}
		if v.Status == models.SeriesStatusNeedsAttention {
			needsAttention = true
		}
		if v.IsCurrent() {
			summary.Current = &dto.CurrentVersionSnapshot{
				SeriesID:    v.ID,
				Version:     v.Version,
				Rule:        v.Rule,
				Anchor:      v.AnchorAt,
				DurationMin: int(v.DurationSecs / 60),
				Status:      v.Status,
				Template:    v.Template,
			}
		}
	}

	// Derived status precedence: active > needs_attention > ended. A
	// healthy open head wins even when closed history carries drift.
	switch {
	case summary.Current != nil && summary.Current.Status == models.SeriesStatusActive:
		summary.Status = models.SeriesStatusActive
	case needsAttention:
		summary.Status = models.SeriesStatusNeedsAttention
	case summary.Current != nil:
		summary.Status = summary.Current.Status
	}

	if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("group_id", groupID), zap.Error(err))
	}
	return summary, nil
}

func (s *SummaryService) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}

// Invalidate drops the cached summary after a mutation.
func (s *SummaryService) Invalidate(ctx context.Context, groupID string) {
	s.cache.Delete(ctx, summaryCacheKey(groupID))
}

// ListGroups pages through groups for discovery.
func (s *SummaryService) ListGroups(ctx context.Context, page, pageSize int) ([]models.SeriesGroup, *models.Pagination, error) {
	groups, total, err := s.groups.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return groups, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}
