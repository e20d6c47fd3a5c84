package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type overlapFinderStub struct {
	records []models.Record
	err     error
	calls   []models.TimeRange
}

func (s *overlapFinderStub) FindOverlapping(ctx context.Context, recordType, scopeField, scopeValue, timeField string, rng models.TimeRange) ([]models.Record, error) {
	s.calls = append(s.calls, rng)
	if s.err != nil {
		return nil, s.err
	}
	var hits []models.Record
	for _, record := range s.records {
		if existing, ok := models.TimeRangeFrom(record.Fields[timeField]); ok && existing.Overlaps(rng) {
			hits = append(hits, record)
		}
	}
	return hits, nil
}

func rangeField(start, end time.Time) map[string]interface{} {
	return map[string]interface{}{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	}
}

func TestConflictPreviewFlagsOverlap(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	finder := &overlapFinderStub{records: []models.Record{
		{
			ID:         "rec-1",
			RecordType: "appointment",
			Fields: models.FieldMap{
				"title":       "Existing visit",
				"resource_id": "5",
				"time":        rangeField(base, base.Add(time.Hour)),
			},
		},
	}}
	svc := NewConflictService(finder, nil)

	results, err := svc.Preview(context.Background(), dto.ConflictPreviewRequest{
		RecordType: "appointment",
		ScopeField: "resource_id",
		ScopeValue: "5",
		TimeField:  "time",
		Ranges: []models.TimeRange{
			{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)},
			{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Conflict)
	require.NotNil(t, results[0].ConflictingRecordID)
	assert.Equal(t, "rec-1", *results[0].ConflictingRecordID)
	require.NotNil(t, results[0].ConflictingLabel)
	assert.Equal(t, "Existing visit", *results[0].ConflictingLabel)

	// Back-to-back is not a conflict under half-open semantics.
	assert.False(t, results[1].Conflict)
	assert.Nil(t, results[1].ConflictingRecordID)
}

func TestConflictPreviewRejectsInvertedRange(t *testing.T) {
	svc := NewConflictService(&overlapFinderStub{}, nil)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	_, err := svc.Preview(context.Background(), dto.ConflictPreviewRequest{
		RecordType: "appointment",
		ScopeField: "resource_id",
		ScopeValue: "5",
		TimeField:  "time",
		Ranges:     []models.TimeRange{{Start: base, End: base}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestConflictPreviewRequiresScope(t *testing.T) {
	svc := NewConflictService(&overlapFinderStub{}, nil)

	_, err := svc.Preview(context.Background(), dto.ConflictPreviewRequest{
		RecordType: "appointment",
		TimeField:  "time",
		Ranges:     []models.TimeRange{{Start: time.Now(), End: time.Now().Add(time.Hour)}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
