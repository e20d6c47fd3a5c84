package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type instanceTrackerStub struct {
	instances map[string]*models.Instance // keyed by recordType/recordID

	cancelled    []string
	rescheduled  []string
	priorCapture *models.TimeRange
	orphaned     []string
	orphanErr    error
}

func trackerKey(recordType, recordID string) string {
	return recordType + "/" + recordID
}

func (s *instanceTrackerStub) FindByRecord(ctx context.Context, recordType, recordID string) (*models.Instance, error) {
	if instance, ok := s.instances[trackerKey(recordType, recordID)]; ok {
		copied := *instance
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *instanceTrackerStub) CancelWithRecord(ctx context.Context, instanceID, recordID string, reason *string, actor string) error {
	s.cancelled = append(s.cancelled, instanceID)
	for key, instance := range s.instances {
		if instance.ID == instanceID {
			delete(s.instances, key)
		}
	}
	return nil
}

func (s *instanceTrackerStub) RescheduleWithRecord(ctx context.Context, instanceID, recordID, timeField string, prior, next models.TimeRange, actor string) error {
	s.rescheduled = append(s.rescheduled, instanceID)
	s.priorCapture = &prior
	return nil
}

func (s *instanceTrackerStub) MarkOrphaned(ctx context.Context, recordType, recordID, reason string) (bool, error) {
	if s.orphanErr != nil {
		return false, s.orphanErr
	}
	key := trackerKey(recordType, recordID)
	if _, ok := s.instances[key]; ok {
		delete(s.instances, key)
		s.orphaned = append(s.orphaned, key)
		return true, nil
	}
	return false, nil
}

type recordStoreStub struct {
	records map[string]*models.Record

	deleted    []string
	timeRanges map[string]models.TimeRange
}

func (s *recordStoreStub) Get(ctx context.Context, recordType, id string) (*models.Record, error) {
	if record, ok := s.records[trackerKey(recordType, id)]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *recordStoreStub) Delete(ctx context.Context, recordType, id string) error {
	s.deleted = append(s.deleted, trackerKey(recordType, id))
	delete(s.records, trackerKey(recordType, id))
	return nil
}

func (s *recordStoreStub) SetTimeRange(ctx context.Context, recordType, id, timeField string, rng models.TimeRange) error {
	if _, ok := s.records[trackerKey(recordType, id)]; !ok {
		return sql.ErrNoRows
	}
	if s.timeRanges == nil {
		s.timeRanges = make(map[string]models.TimeRange)
	}
	s.timeRanges[trackerKey(recordType, id)] = rng
	return nil
}

type seriesReaderStub struct {
	series map[string]*models.Series
}

func (s *seriesReaderStub) GetByID(ctx context.Context, id string) (*models.Series, error) {
	if found, ok := s.series[id]; ok {
		copied := *found
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func memberFixture() (*instanceTrackerStub, *recordStoreStub, *seriesReaderStub) {
	recordID := "rec-1"
	start := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	tracker := &instanceTrackerStub{instances: map[string]*models.Instance{
		"appointment/rec-1": {
			ID:             "inst-1",
			SeriesID:       "series-1",
			OccurrenceDate: time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC),
			RecordType:     "appointment",
			RecordID:       &recordID,
			ExceptionType:  models.ExceptionNone,
		},
	}}
	records := &recordStoreStub{records: map[string]*models.Record{
		"appointment/rec-1": {
			ID:         "rec-1",
			RecordType: "appointment",
			Fields: models.FieldMap{
				"title": "Therapy",
				"time": map[string]interface{}{
					"start": start.Format(time.RFC3339),
					"end":   start.Add(time.Hour).Format(time.RFC3339),
				},
			},
		},
	}}
	series := &seriesReaderStub{series: map[string]*models.Series{
		"series-1": currentWeeklySeries(),
	}}
	return tracker, records, series
}

func TestCancelMemberOccurrence(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	result, err := svc.Cancel(context.Background(), dto.CancelOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
	}, "user-1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"inst-1"}, tracker.cancelled)
}

func TestCancelIsIdempotent(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	_, err := svc.Cancel(context.Background(), dto.CancelOccurrenceRequest{RecordType: "appointment", RecordID: "rec-1"}, "user-1")
	require.NoError(t, err)

	// Second cancel finds no instance and degrades to a record delete,
	// which is itself a no-op on an absent record.
	result, err := svc.Cancel(context.Background(), dto.CancelOccurrenceRequest{RecordType: "appointment", RecordID: "rec-1"}, "user-1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Len(t, tracker.cancelled, 1)
}

func TestCancelStandaloneRecordDeletesIt(t *testing.T) {
	records := &recordStoreStub{records: map[string]*models.Record{
		"appointment/solo": {ID: "solo", RecordType: "appointment", Fields: models.FieldMap{}},
	}}
	svc := NewInstanceService(&instanceTrackerStub{}, records, &seriesReaderStub{}, nil)

	result, err := svc.Cancel(context.Background(), dto.CancelOccurrenceRequest{RecordType: "appointment", RecordID: "solo"}, "user-1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, []string{"appointment/solo"}, records.deleted)
}

func TestRescheduleMemberCapturesPriorRange(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	newStart := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	result, err := svc.Reschedule(context.Background(), dto.RescheduleOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
		NewStart:   newStart,
		NewEnd:     newStart.Add(time.Hour),
	}, "user-1")
	require.NoError(t, err)
	assert.True(t, result.OK)

	require.NotNil(t, result.PriorRange)
	assert.Equal(t, time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), result.PriorRange.Start.UTC())
	assert.Equal(t, []string{"inst-1"}, tracker.rescheduled)
}

func TestRescheduleRejectsInvertedRange(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	when := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	_, err := svc.Reschedule(context.Background(), dto.RescheduleOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "rec-1",
		NewStart:   when,
		NewEnd:     when,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRescheduleStandaloneRecordMovesDirectly(t *testing.T) {
	records := &recordStoreStub{records: map[string]*models.Record{
		"appointment/solo": {ID: "solo", RecordType: "appointment", Fields: models.FieldMap{}},
	}}
	svc := NewInstanceService(&instanceTrackerStub{}, records, &seriesReaderStub{}, nil)

	newStart := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	result, err := svc.Reschedule(context.Background(), dto.RescheduleOccurrenceRequest{
		RecordType: "appointment",
		RecordID:   "solo",
		NewStart:   newStart,
		NewEnd:     newStart.Add(time.Hour),
	}, "user-1")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Nil(t, result.PriorRange)
	assert.Equal(t, newStart, records.timeRanges["appointment/solo"].Start)
}

func TestMembershipForMemberAndOutsider(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	member, err := svc.Membership(context.Background(), "appointment", "rec-1")
	require.NoError(t, err)
	assert.True(t, member.IsMember)
	require.NotNil(t, member.SeriesID)
	assert.Equal(t, "series-1", *member.SeriesID)
	require.NotNil(t, member.GroupID)
	assert.Equal(t, "group-1", *member.GroupID)

	outsider, err := svc.Membership(context.Background(), "appointment", "nope")
	require.NoError(t, err)
	assert.False(t, outsider.IsMember)
	assert.Nil(t, outsider.SeriesID)
}

func TestHandleRecordDeletedMarksOrphan(t *testing.T) {
	tracker, records, series := memberFixture()
	svc := NewInstanceService(tracker, records, series, nil)

	require.NoError(t, svc.HandleRecordDeleted(context.Background(), "appointment", "rec-1"))
	assert.Equal(t, []string{"appointment/rec-1"}, tracker.orphaned)

	// Unknown records are a no-op for the hook.
	require.NoError(t, svc.HandleRecordDeleted(context.Background(), "appointment", "unknown"))
}
