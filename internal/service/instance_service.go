package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type instanceTracker interface {
	FindByRecord(ctx context.Context, recordType, recordID string) (*models.Instance, error)
	CancelWithRecord(ctx context.Context, instanceID, recordID string, reason *string, actor string) error
	RescheduleWithRecord(ctx context.Context, instanceID, recordID, timeField string, prior, next models.TimeRange, actor string) error
	MarkOrphaned(ctx context.Context, recordType, recordID, reason string) (bool, error)
}

type recordStore interface {
	Get(ctx context.Context, recordType, id string) (*models.Record, error)
	Delete(ctx context.Context, recordType, id string) error
	SetTimeRange(ctx context.Context, recordType, id, timeField string, rng models.TimeRange) error
}

type seriesReader interface {
	GetByID(ctx context.Context, id string) (*models.Series, error)
}

// InstanceService implements per-occurrence operations: cancellation,
// rescheduling, membership lookup and the orphan-cleanup hook fired
// when records disappear outside the series manager.
type InstanceService struct {
	instances instanceTracker
	records   recordStore
	series    seriesReader
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewInstanceService constructs the service.
func NewInstanceService(instances instanceTracker, records recordStore, series seriesReader, logger *zap.Logger) *InstanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstanceService{
		instances: instances,
		records:   records,
		series:    series,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Cancel removes one occurrence's record while keeping its instance row
// as a cancelled exception. For records outside any series the record
// is simply deleted. Cancelling twice is a no-op.
func (s *InstanceService) Cancel(ctx context.Context, req dto.CancelOccurrenceRequest, actor string) (*dto.CancelOccurrenceResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel request")
	}

	instance, err := s.instances.FindByRecord(ctx, req.RecordType, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Standalone record, or an already-cancelled occurrence whose
			// reference was nulled. Either way deleting the record (a
			// no-op when absent) leaves the desired state.
			if err := s.records.Delete(ctx, req.RecordType, req.RecordID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
			}
			return &dto.CancelOccurrenceResponse{OK: true}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve occurrence")
	}

	if err := s.instances.CancelWithRecord(ctx, instance.ID, req.RecordID, req.Reason, actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel occurrence")
	}
	return &dto.CancelOccurrenceResponse{OK: true}, nil
}

// Reschedule moves one occurrence to a new time range, capturing the
// previous range on the instance for the audit trail. Records outside
// any series are moved directly with no exception bookkeeping.
func (s *InstanceService) Reschedule(ctx context.Context, req dto.RescheduleOccurrenceRequest, actor string) (*dto.RescheduleOccurrenceResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule request")
	}
	next := models.TimeRange{Start: req.NewStart.UTC(), End: req.NewEnd.UTC()}
	if !next.Start.Before(next.End) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new_start must be before new_end")
	}

	instance, err := s.instances.FindByRecord(ctx, req.RecordType, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.rescheduleStandalone(ctx, req, next)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve occurrence")
	}

	series, err := s.series.GetByID(ctx, instance.SeriesID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series")
	}

	record, err := s.records.Get(ctx, req.RecordType, req.RecordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}

	prior, ok := models.TimeRangeFrom(record.Fields[series.TimeField])
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record has no readable time range")
	}

	if err := s.instances.RescheduleWithRecord(ctx, instance.ID, req.RecordID, series.TimeField, *prior, next, actor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule occurrence")
	}
	return &dto.RescheduleOccurrenceResponse{OK: true, PriorRange: prior}, nil
}

func (s *InstanceService) rescheduleStandalone(ctx context.Context, req dto.RescheduleOccurrenceRequest, next models.TimeRange) (*dto.RescheduleOccurrenceResponse, error) {
	timeField := req.TimeField
	if timeField == "" {
		timeField = defaultTimeField
	}
	if err := s.records.SetTimeRange(ctx, req.RecordType, req.RecordID, timeField, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move record")
	}
	return &dto.RescheduleOccurrenceResponse{OK: true}, nil
}

// Membership reports whether a record belongs to a series, and where.
func (s *InstanceService) Membership(ctx context.Context, recordType, recordID string) (*dto.MembershipResponse, error) {
	if recordType == "" {
		return nil, missingField("record_type")
	}
	if recordID == "" {
		return nil, missingField("record_id")
	}

	instance, err := s.instances.FindByRecord(ctx, recordType, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.MembershipResponse{IsMember: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve membership")
	}

	resp := &dto.MembershipResponse{
		IsMember:       true,
		SeriesID:       &instance.SeriesID,
		OccurrenceDate: &instance.OccurrenceDate,
		ExceptionType:  instance.ExceptionType,
	}
	if series, err := s.series.GetByID(ctx, instance.SeriesID); err == nil {
		resp.GroupID = series.GroupID
	}
	return resp, nil
}

// HandleRecordDeleted is installed as the record store's pre-delete
// hook. It converts the occurrence of an externally deleted record into
// a cancelled exception so the instance never dangles silently.
func (s *InstanceService) HandleRecordDeleted(ctx context.Context, recordType, recordID string) error {
	marked, err := s.instances.MarkOrphaned(ctx, recordType, recordID, "record deleted outside the series manager")
	if err != nil {
		s.logger.Error("orphan cleanup failed, instance may dangle",
			zap.String("record_type", recordType),
			zap.String("record_id", recordID),
			zap.Error(err))
		return err
	}
	if marked {
		s.logger.Warn("record deleted outside the series manager, occurrence marked cancelled",
			zap.String("record_type", recordType),
			zap.String("record_id", recordID))
	}
	return nil
}
