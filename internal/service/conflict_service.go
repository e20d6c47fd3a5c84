package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type overlapFinder interface {
	FindOverlapping(ctx context.Context, recordType, scopeField, scopeValue, timeField string, rng models.TimeRange) ([]models.Record, error)
}

// ConflictService answers "would these ranges double-book the scope"
// questions before anything is persisted.
type ConflictService struct {
	records  overlapFinder
	validate *validator.Validate
	logger   *zap.Logger
}

// NewConflictService constructs the service.
func NewConflictService(records overlapFinder, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{
		records:  records,
		validate: validator.New(),
		logger:   logger,
	}
}

// Preview checks each candidate range against existing records sharing
// the scope value. Half-open semantics: a range starting exactly where
// another ends is not a conflict.
func (s *ConflictService) Preview(ctx context.Context, req dto.ConflictPreviewRequest) ([]dto.ConflictResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict preview request")
	}

	results := make([]dto.ConflictResult, 0, len(req.Ranges))
	for i, candidate := range req.Ranges {
		if !candidate.Start.Before(candidate.End) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "range start must be before range end")
		}

		overlapping, err := s.records.FindOverlapping(ctx, req.RecordType, req.ScopeField, req.ScopeValue, req.TimeField, candidate)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "conflict lookup failed")
		}

		result := dto.ConflictResult{Index: i, Range: candidate}
		for j := range overlapping {
			record := overlapping[j]
			rng, ok := models.TimeRangeFrom(record.Fields[req.TimeField])
			if !ok || !rng.Overlaps(candidate) {
				continue
			}
			label := record.Label()
			result.Conflict = true
			result.ConflictingRecordID = &record.ID
			result.ConflictingLabel = &label
			break
		}
		results = append(results, result)
	}
	return results, nil
}
