package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/recurrence"
	"github.com/tempora-hq/scheduler-api/pkg/config"
	"github.com/tempora-hq/scheduler-api/pkg/jobs"
)

const jobTypeExpandSeries = "series.expand"

// ExpansionJob is the payload queued for asynchronous materialization.
type ExpansionJob struct {
	SeriesID string
	Until    time.Time
}

type expansionSeriesStore interface {
	GetByID(ctx context.Context, id string) (*models.Series, error)
	SetExpandedUntil(ctx context.Context, seriesID string, until time.Time) error
	SetStatus(ctx context.Context, seriesID string, status models.SeriesStatus) error
}

type instanceCreator interface {
	CreateIfAbsent(ctx context.Context, instance *models.Instance) (bool, error)
}

type expansionRecordStore interface {
	Create(ctx context.Context, record *models.Record) error
	Delete(ctx context.Context, recordType, id string) error
	FindOverlapping(ctx context.Context, recordType, scopeField, scopeValue, timeField string, rng models.TimeRange) ([]models.Record, error)
}

type driftChecker interface {
	CheckDrift(ctx context.Context, recordType string, template models.FieldMap) ([]models.SchemaDriftIssue, error)
}

type expansionObserver interface {
	ObserveExpansion(materialized, conflictSkipped int)
}

// ExpansionService materializes series occurrences asynchronously
// through a worker queue. Runs are idempotent: existing occurrence
// slots, including cancelled ones, are never recreated.
type ExpansionService struct {
	series         expansionSeriesStore
	instances      instanceCreator
	records        expansionRecordStore
	templates      driftChecker
	metrics        expansionObserver
	queue          *jobs.Queue
	maxOccurrences int
	logger         *zap.Logger
}

// NewExpansionService constructs the service and its backing queue.
// Start must be called before Enqueue.
func NewExpansionService(
	series expansionSeriesStore,
	instances instanceCreator,
	records expansionRecordStore,
	templates driftChecker,
	metrics expansionObserver,
	cfg config.ExpansionConfig,
	logger *zap.Logger,
) *ExpansionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExpansionService{
		series:         series,
		instances:      instances,
		records:        records,
		templates:      templates,
		metrics:        metrics,
		maxOccurrences: cfg.MaxOccurrences,
		logger:         logger,
	}
	s.queue = jobs.NewQueue("expansion", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ExpansionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ExpansionService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules an expansion of one series up to the given horizon.
func (s *ExpansionService) Enqueue(seriesID string, until time.Time) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeExpandSeries,
		Payload: ExpansionJob{SeriesID: seriesID, Until: until.UTC()},
	})
}

func (s *ExpansionService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ExpansionJob)
	if !ok {
		s.logger.Error("unexpected expansion payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.expand(ctx, payload.SeriesID, payload.Until)
}

func (s *ExpansionService) expand(ctx context.Context, seriesID string, until time.Time) error {
	series, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("expansion target no longer exists", zap.String("series_id", seriesID))
			return nil
		}
		return fmt.Errorf("load series %s: %w", seriesID, err)
	}
	if series.Status == models.SeriesStatusPaused || series.Status == models.SeriesStatusEnded {
		s.logger.Debug("skipping expansion of inactive series",
			zap.String("series_id", seriesID), zap.String("status", string(series.Status)))
		return nil
	}

	loc := series.Location()
	occurrences, err := recurrence.Expand(series.Rule, series.AnchorAt, series.Duration(), loc, until, s.maxOccurrences)
	if err != nil {
		// A rule that passed validation at write time but no longer
		// expands will not heal on retry.
		s.logger.Error("stored rule failed to expand",
			zap.String("series_id", seriesID), zap.Error(err))
		if statusErr := s.series.SetStatus(ctx, seriesID, models.SeriesStatusNeedsAttention); statusErr != nil {
			return fmt.Errorf("flag unexpandable series: %w", statusErr)
		}
		return nil
	}

	issues, err := s.templates.CheckDrift(ctx, series.RecordType, series.Template)
	if err != nil {
		return fmt.Errorf("check template drift: %w", err)
	}
	if len(issues) > 0 {
		s.logger.Warn("series template drifted from its record type",
			zap.String("series_id", seriesID), zap.Any("issues", issues))
		if err := s.series.SetStatus(ctx, seriesID, models.SeriesStatusNeedsAttention); err != nil {
			return fmt.Errorf("flag drifted series: %w", err)
		}
	}

	scopeValue := ""
	if series.ScopeField != nil {
		if v, ok := series.Template[*series.ScopeField]; ok {
			scopeValue = fmt.Sprint(v)
		}
	}

	materialized, skipped := 0, 0
	for _, occ := range occurrences {
		occDate := startOfDay(occ.Start, loc)
		if occDate.Before(series.EffectiveFrom) {
			continue
		}
		if series.EffectiveUntil != nil && occDate.After(*series.EffectiveUntil) {
			break
		}
		// Already-covered window: every slot up to the high-water mark
		// exists or was skipped on purpose.
		if series.ExpandedUntil != nil && !occ.Start.After(*series.ExpandedUntil) {
			continue
		}

		if scopeValue != "" {
			overlapping, err := s.records.FindOverlapping(ctx, series.RecordType, *series.ScopeField, scopeValue, series.TimeField, occ)
			if err != nil {
				return fmt.Errorf("conflict check: %w", err)
			}
			if len(overlapping) > 0 {
				if err := s.createConflictSkip(ctx, series, occDate, overlapping[0].Label()); err != nil {
					return err
				}
				skipped++
				continue
			}
		}

		created, err := s.materialize(ctx, series, occ, occDate)
		if err != nil {
			return err
		}
		if created {
			materialized++
		}
	}

	if err := s.series.SetExpandedUntil(ctx, seriesID, until); err != nil {
		return fmt.Errorf("advance expansion mark: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveExpansion(materialized, skipped)
	}
	s.logger.Info("series expanded",
		zap.String("series_id", seriesID),
		zap.Time("until", until),
		zap.Int("materialized", materialized),
		zap.Int("conflict_skipped", skipped))
	return nil
}

// materialize creates the record and claims the occurrence slot. When
// the slot turns out to be taken the fresh record is rolled back, which
// keeps re-runs and races with cancellation idempotent.
func (s *ExpansionService) materialize(ctx context.Context, series *models.Series, occ models.TimeRange, occDate time.Time) (bool, error) {
	fields := series.Template.Merge(models.FieldMap{
		series.TimeField: map[string]interface{}{
			"start": occ.Start.UTC().Format(time.RFC3339),
			"end":   occ.End.UTC().Format(time.RFC3339),
		},
	})
	record := &models.Record{RecordType: series.RecordType, Fields: fields}
	if err := s.records.Create(ctx, record); err != nil {
		return false, fmt.Errorf("create occurrence record: %w", err)
	}

	instance := &models.Instance{
		SeriesID:       series.ID,
		OccurrenceDate: occDate,
		RecordType:     series.RecordType,
		RecordID:       &record.ID,
	}
	created, err := s.instances.CreateIfAbsent(ctx, instance)
	if err != nil {
		if delErr := s.records.Delete(ctx, series.RecordType, record.ID); delErr != nil {
			s.logger.Error("failed to roll back occurrence record",
				zap.String("record_id", record.ID), zap.Error(delErr))
		}
		return false, fmt.Errorf("claim occurrence slot: %w", err)
	}
	if !created {
		if err := s.records.Delete(ctx, series.RecordType, record.ID); err != nil {
			return false, fmt.Errorf("roll back duplicate occurrence record: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *ExpansionService) createConflictSkip(ctx context.Context, series *models.Series, occDate time.Time, conflictLabel string) error {
	reason := fmt.Sprintf("conflicts with %s", conflictLabel)
	instance := &models.Instance{
		SeriesID:       series.ID,
		OccurrenceDate: occDate,
		RecordType:     series.RecordType,
		IsException:    true,
		ExceptionType:  models.ExceptionConflictSkipped,
		Reason:         &reason,
	}
	if _, err := s.instances.CreateIfAbsent(ctx, instance); err != nil {
		return fmt.Errorf("record conflict skip: %w", err)
	}
	return nil
}
