package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/repository"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type seriesStoreStub struct {
	series map[string]*models.Series

	createdGroup  *models.SeriesGroup
	createdSeries *models.Series
	splitParams   *repository.SplitParams
	replacedRule  string
	deleted       []string
	template      models.FieldMap
	replaceCount  int
}

func (s *seriesStoreStub) GetByID(ctx context.Context, id string) (*models.Series, error) {
	if found, ok := s.series[id]; ok {
		copied := *found
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *seriesStoreStub) CreateWithGroup(ctx context.Context, group *models.SeriesGroup, series *models.Series) error {
	group.ID = "group-1"
	series.ID = "series-1"
	s.createdGroup = group
	s.createdSeries = series
	return nil
}

func (s *seriesStoreStub) Split(ctx context.Context, params repository.SplitParams) (*repository.SplitResult, error) {
	s.splitParams = &params
	groupID := "group-1"
	if params.OldSeries.GroupID != nil {
		groupID = *params.OldSeries.GroupID
	}
	return &repository.SplitResult{GroupID: groupID, NewSeriesID: "series-2", InstancesMoved: 3}, nil
}

func (s *seriesStoreStub) ReplaceSchedule(ctx context.Context, seriesID, rule string, anchor time.Time, durationSecs int64) (int, error) {
	if _, ok := s.series[seriesID]; !ok {
		return 0, sql.ErrNoRows
	}
	s.replacedRule = rule
	s.replaceCount = 7
	return s.replaceCount, nil
}

func (s *seriesStoreStub) DeleteCascade(ctx context.Context, seriesID string) (int, error) {
	if _, ok := s.series[seriesID]; !ok {
		return 0, sql.ErrNoRows
	}
	s.deleted = append(s.deleted, seriesID)
	return 4, nil
}

func (s *seriesStoreStub) DeleteGroupCascade(ctx context.Context, groupID string) (int, error) {
	s.deleted = append(s.deleted, groupID)
	return 9, nil
}

func (s *seriesStoreStub) UpdateTemplate(ctx context.Context, seriesID string, template models.FieldMap) error {
	if _, ok := s.series[seriesID]; !ok {
		return sql.ErrNoRows
	}
	s.template = template
	return nil
}

type materializedListerStub struct {
	instances         []models.Instance
	includeExceptions *bool
}

func (s *materializedListerStub) ListMaterialized(ctx context.Context, seriesID string, includeExceptions bool) ([]models.Instance, error) {
	s.includeExceptions = &includeExceptions
	return s.instances, nil
}

type fieldSetterStub struct {
	calls map[string]models.FieldMap
}

func (s *fieldSetterStub) SetFields(ctx context.Context, recordType, id string, fields models.FieldMap) error {
	if s.calls == nil {
		s.calls = make(map[string]models.FieldMap)
	}
	s.calls[id] = fields
	return nil
}

type templateCheckerStub struct {
	err error
}

func (s *templateCheckerStub) ValidateTemplate(ctx context.Context, recordType, timeField string, template models.FieldMap) error {
	return s.err
}

type enqueueStub struct {
	seriesIDs []string
	untils    []time.Time
	err       error
}

func (s *enqueueStub) Enqueue(seriesID string, until time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.seriesIDs = append(s.seriesIDs, seriesID)
	s.untils = append(s.untils, until)
	return nil
}

func newSeriesServiceForTest(store *seriesStoreStub, lister *materializedListerStub, setter *fieldSetterStub, queue *enqueueStub) *SeriesService {
	return NewSeriesService(store, lister, setter, &templateCheckerStub{}, queue, 90*24*time.Hour, nil)
}

func currentWeeklySeries() *models.Series {
	groupID := "group-1"
	return &models.Series{
		ID:            "series-1",
		GroupID:       &groupID,
		Version:       1,
		EffectiveFrom: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
		RecordType:    "appointment",
		Template:      models.FieldMap{"title": "Therapy", "resource_id": "5"},
		Rule:          "FREQ=WEEKLY;BYDAY=MO,WE,FR",
		AnchorAt:      time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		DurationSecs:  3600,
		TimeField:     "time",
		Status:        models.SeriesStatusActive,
	}
}

func TestCreateSeriesRejectsMissingDuration(t *testing.T) {
	svc := newSeriesServiceForTest(&seriesStoreStub{}, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	_, err := svc.Create(context.Background(), dto.CreateSeriesRequest{
		GroupName:  "Weekly therapy",
		RecordType: "appointment",
		Rule:       "FREQ=WEEKLY",
		Anchor:     time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
	}, "user-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMissingField.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "duration_minutes")
}

func TestCreateSeriesRejectsSubHourlyRule(t *testing.T) {
	svc := newSeriesServiceForTest(&seriesStoreStub{}, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	_, err := svc.Create(context.Background(), dto.CreateSeriesRequest{
		GroupName:   "Too frequent",
		RecordType:  "appointment",
		Rule:        "FREQ=MINUTELY",
		Anchor:      time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		DurationMin: 30,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedFrequency.Code, appErrors.FromError(err).Code)
}

func TestCreateSeriesQueuesInitialExpansion(t *testing.T) {
	store := &seriesStoreStub{}
	queue := &enqueueStub{}
	svc := newSeriesServiceForTest(store, &materializedListerStub{}, &fieldSetterStub{}, queue)

	result, err := svc.Create(context.Background(), dto.CreateSeriesRequest{
		GroupName:   "Weekly therapy",
		RecordType:  "appointment",
		Template:    models.FieldMap{"title": "Therapy"},
		Rule:        "FREQ=WEEKLY;BYDAY=MO,WE,FR",
		Anchor:      time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		DurationMin: 60,
		ExpandNow:   true,
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "group-1", result.GroupID)
	assert.Equal(t, "series-1", result.SeriesID)

	require.NotNil(t, store.createdSeries)
	assert.Equal(t, int64(3600), store.createdSeries.DurationSecs)
	assert.Equal(t, "time", store.createdSeries.TimeField)
	assert.Equal(t, models.SeriesStatusActive, store.createdSeries.Status)
	assert.Equal(t, "user-1", store.createdSeries.CreatedBy)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), store.createdSeries.EffectiveFrom)

	require.Len(t, queue.seriesIDs, 1)
	assert.Equal(t, "series-1", queue.seriesIDs[0])
}

func TestSplitClosesOldVersionBeforeSplitDate(t *testing.T) {
	store := &seriesStoreStub{series: map[string]*models.Series{"series-1": currentWeeklySeries()}}
	svc := newSeriesServiceForTest(store, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	result, err := svc.Split(context.Background(), "series-1", dto.SplitSeriesRequest{
		SplitDate:     time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		NewAnchor:     time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
		TemplateDelta: models.FieldMap{"title": "Extended therapy"},
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "series-1", result.OldSeriesID)
	assert.Equal(t, "series-2", result.NewSeriesID)

	params := store.splitParams
	require.NotNil(t, params)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), params.SplitDate)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), params.ClosedUntil)
	assert.Contains(t, params.ClosedRule, "UNTIL=20250131T235959Z")
	assert.False(t, strings.Contains(params.ClosedRule, "COUNT"))

	assert.Equal(t, "Extended therapy", params.NewSeries.Template["title"])
	assert.Equal(t, "5", params.NewSeries.Template["resource_id"])
	assert.Equal(t, int64(3600), params.NewSeries.DurationSecs)
}

func TestSplitRejectsClosedVersion(t *testing.T) {
	closed := currentWeeklySeries()
	until := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	closed.EffectiveUntil = &until
	store := &seriesStoreStub{series: map[string]*models.Series{"series-1": closed}}
	svc := newSeriesServiceForTest(store, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	_, err := svc.Split(context.Background(), "series-1", dto.SplitSeriesRequest{
		SplitDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		NewAnchor: time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC),
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpdateTemplatePropagatesDeltaToRecords(t *testing.T) {
	store := &seriesStoreStub{series: map[string]*models.Series{"series-1": currentWeeklySeries()}}
	recordID1, recordID2 := "rec-1", "rec-2"
	lister := &materializedListerStub{instances: []models.Instance{
		{ID: "inst-1", RecordType: "appointment", RecordID: &recordID1},
		{ID: "inst-2", RecordType: "appointment", RecordID: &recordID2},
	}}
	setter := &fieldSetterStub{}
	svc := newSeriesServiceForTest(store, lister, setter, &enqueueStub{})

	result, err := svc.UpdateTemplate(context.Background(), "series-1", dto.UpdateTemplateRequest{
		TemplateDelta: models.FieldMap{
			"title": "Renamed",
			"time":  map[string]interface{}{"start": "x"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.InstancesUpdated)

	// Exceptions excluded by default.
	require.NotNil(t, lister.includeExceptions)
	assert.False(t, *lister.includeExceptions)

	// Merged template persisted, but the time field never reaches records.
	assert.Equal(t, "Renamed", store.template["title"])
	require.Contains(t, setter.calls, "rec-1")
	assert.Equal(t, models.FieldMap{"title": "Renamed"}, setter.calls["rec-1"])
}

func TestUpdateScheduleReplacesAndQueuesExpansion(t *testing.T) {
	store := &seriesStoreStub{series: map[string]*models.Series{"series-1": currentWeeklySeries()}}
	queue := &enqueueStub{}
	svc := newSeriesServiceForTest(store, &materializedListerStub{}, &fieldSetterStub{}, queue)

	result, err := svc.UpdateSchedule(context.Background(), "series-1", dto.UpdateScheduleRequest{
		NewAnchor:      time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC),
		NewDurationMin: 45,
		NewRule:        "FREQ=DAILY;INTERVAL=2",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result.EntitiesDeleted)
	assert.Equal(t, "FREQ=DAILY;INTERVAL=2", store.replacedRule)
	require.Len(t, queue.seriesIDs, 1)
	assert.Equal(t, "series-1", queue.seriesIDs[0])
	assert.Equal(t, queue.untils[0], result.ExpandUntil)
}

func TestUpdateScheduleUnknownSeries(t *testing.T) {
	svc := newSeriesServiceForTest(&seriesStoreStub{}, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	_, err := svc.UpdateSchedule(context.Background(), "missing", dto.UpdateScheduleRequest{
		NewAnchor:      time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC),
		NewDurationMin: 45,
		NewRule:        "FREQ=DAILY",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteSeriesNotFound(t *testing.T) {
	svc := newSeriesServiceForTest(&seriesStoreStub{}, &materializedListerStub{}, &fieldSetterStub{}, &enqueueStub{})

	_, err := svc.DeleteSeries(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
