package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/recurrence"
	"github.com/tempora-hq/scheduler-api/internal/repository"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

const defaultTimeField = "time"

type seriesStore interface {
	GetByID(ctx context.Context, id string) (*models.Series, error)
	CreateWithGroup(ctx context.Context, group *models.SeriesGroup, series *models.Series) error
	Split(ctx context.Context, params repository.SplitParams) (*repository.SplitResult, error)
	ReplaceSchedule(ctx context.Context, seriesID, rule string, anchor time.Time, durationSecs int64) (int, error)
	DeleteCascade(ctx context.Context, seriesID string) (int, error)
	DeleteGroupCascade(ctx context.Context, groupID string) (int, error)
	UpdateTemplate(ctx context.Context, seriesID string, template models.FieldMap) error
}

type materializedLister interface {
	ListMaterialized(ctx context.Context, seriesID string, includeExceptions bool) ([]models.Instance, error)
}

type recordFieldSetter interface {
	SetFields(ctx context.Context, recordType, id string, fields models.FieldMap) error
}

type templateChecker interface {
	ValidateTemplate(ctx context.Context, recordType, timeField string, template models.FieldMap) error
}

type expansionScheduler interface {
	Enqueue(seriesID string, until time.Time) error
}

// SeriesService implements the write side of recurring schedules:
// creation, "this and future" splits, template propagation, wholesale
// schedule replacement and cascading deletes.
type SeriesService struct {
	series    seriesStore
	instances materializedLister
	records   recordFieldSetter
	templates templateChecker
	expansion expansionScheduler
	horizon   time.Duration
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewSeriesService constructs the service.
func NewSeriesService(
	series seriesStore,
	instances materializedLister,
	records recordFieldSetter,
	templates templateChecker,
	expansion expansionScheduler,
	horizon time.Duration,
	logger *zap.Logger,
) *SeriesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesService{
		series:    series,
		instances: instances,
		records:   records,
		templates: templates,
		expansion: expansion,
		horizon:   horizon,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Create validates and persists a new group with its version-1 series.
// Materialization is asynchronous and only queued when requested.
func (s *SeriesService) Create(ctx context.Context, req dto.CreateSeriesRequest, actor string) (*dto.CreateSeriesResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid series request")
	}
	if req.RecordType == "" {
		return nil, missingField("record_type")
	}
	if req.Rule == "" {
		return nil, missingField("rule")
	}
	if req.Anchor.IsZero() {
		return nil, missingField("anchor")
	}
	if req.DurationMin <= 0 {
		return nil, missingField("duration_minutes")
	}
	if err := recurrence.Validate(req.Rule); err != nil {
		return nil, err
	}

	timeField := req.TimeField
	if timeField == "" {
		timeField = defaultTimeField
	}
	loc := time.UTC
	if req.Timezone != nil && *req.Timezone != "" {
		parsed, err := time.LoadLocation(*req.Timezone)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown timezone %q", *req.Timezone))
		}
		loc = parsed
	}

	if err := s.templates.ValidateTemplate(ctx, req.RecordType, timeField, req.Template); err != nil {
		return nil, err
	}

	group := &models.SeriesGroup{
		Name:        req.GroupName,
		Description: req.Description,
		Color:       req.Color,
		CreatedBy:   actor,
	}
	series := &models.Series{
		EffectiveFrom: startOfDay(req.Anchor, loc),
		RecordType:    req.RecordType,
		Template:      req.Template,
		Rule:          req.Rule,
		AnchorAt:      req.Anchor,
		DurationSecs:  int64(req.DurationMin) * 60,
		Timezone:      req.Timezone,
		TimeField:     timeField,
		ScopeField:    req.ScopeField,
		Status:        models.SeriesStatusActive,
		CreatedBy:     actor,
	}

	if err := s.series.CreateWithGroup(ctx, group, series); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create series")
	}

	if req.ExpandNow {
		until := time.Now().UTC().Add(s.horizon)
		if err := s.expansion.Enqueue(series.ID, until); err != nil {
			s.logger.Warn("failed to queue initial expansion",
				zap.String("series_id", series.ID), zap.Error(err))
		}
	}

	return &dto.CreateSeriesResponse{GroupID: group.ID, SeriesID: series.ID}, nil
}

// Expand queues asynchronous materialization up to the requested
// horizon, defaulting to the configured one.
func (s *SeriesService) Expand(ctx context.Context, seriesID string, req dto.ExpandRequest) (*dto.ExpandResponse, error) {
	if _, err := s.loadSeries(ctx, seriesID); err != nil {
		return nil, err
	}

	until := time.Now().UTC().Add(s.horizon)
	if req.Until != nil {
		until = req.Until.UTC()
	}
	if err := s.expansion.Enqueue(seriesID, until); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue expansion")
	}
	return &dto.ExpandResponse{Queued: true, Until: until}, nil
}

// Split performs an "edit this and future" cut: the current version is
// closed the day before the split date and a successor version opens on
// it, carrying the merged template. Future instances move to the new
// version; past ones stay where they were.
func (s *SeriesService) Split(ctx context.Context, seriesID string, req dto.SplitSeriesRequest, actor string) (*dto.SplitSeriesResponse, error) {
	series, err := s.loadSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if !series.IsCurrent() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only the current series version can be split")
	}
	if req.SplitDate.IsZero() {
		return nil, missingField("split_date")
	}
	if req.NewAnchor.IsZero() {
		return nil, missingField("new_anchor")
	}

	loc := series.Location()
	splitDay := startOfDay(req.SplitDate, loc)
	if !splitDay.After(startOfDay(series.EffectiveFrom, loc)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "split date must fall after the series effective start")
	}

	merged := series.Template.Merge(req.TemplateDelta)
	if err := s.templates.ValidateTemplate(ctx, series.RecordType, series.TimeField, merged); err != nil {
		return nil, err
	}

	durationSecs := series.DurationSecs
	if req.NewDurationMin != nil {
		if *req.NewDurationMin <= 0 {
			return nil, missingField("new_duration_minutes")
		}
		durationSecs = int64(*req.NewDurationMin) * 60
	}

	newSeries := &models.Series{
		RecordType:   series.RecordType,
		Template:     merged,
		Rule:         series.Rule,
		AnchorAt:     req.NewAnchor,
		DurationSecs: durationSecs,
		Timezone:     series.Timezone,
		TimeField:    series.TimeField,
		ScopeField:   series.ScopeField,
		Status:       models.SeriesStatusActive,
		CreatedBy:    actor,
	}

	var newGroup *models.SeriesGroup
	if series.GroupID == nil {
		newGroup = &models.SeriesGroup{
			Name:      fmt.Sprintf("%s schedule", series.RecordType),
			CreatedBy: actor,
		}
	}

	params := repository.SplitParams{
		OldSeries:   series,
		NewGroup:    newGroup,
		SplitDate:   splitDay,
		ClosedUntil: splitDay.AddDate(0, 0, -1),
		ClosedRule:  recurrence.RewriteUntil(series.Rule, splitDay.Add(-time.Second)),
		NewSeries:   newSeries,
	}
	result, err := s.series.Split(ctx, params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to split series")
	}

	return &dto.SplitSeriesResponse{
		OldSeriesID: series.ID,
		NewSeriesID: result.NewSeriesID,
		GroupID:     result.GroupID,
	}, nil
}

// UpdateTemplate merges a delta onto the series template and pushes the
// changed fields to materialized occurrences. Exception occurrences are
// skipped unless the caller opts in. The series' own time field is
// never pushed; schedule changes go through UpdateSchedule or Split.
func (s *SeriesService) UpdateTemplate(ctx context.Context, seriesID string, req dto.UpdateTemplateRequest) (*dto.UpdateTemplateResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template update")
	}

	series, err := s.loadSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	merged := series.Template.Merge(req.TemplateDelta)
	if err := s.templates.ValidateTemplate(ctx, series.RecordType, series.TimeField, merged); err != nil {
		return nil, err
	}

	if err := s.series.UpdateTemplate(ctx, seriesID, merged); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}

	delta := make(models.FieldMap, len(req.TemplateDelta))
	for k, v := range req.TemplateDelta {
		if k == series.TimeField {
			continue
		}
		delta[k] = v
	}

	skipExceptions := true
	if req.SkipExceptions != nil {
		skipExceptions = *req.SkipExceptions
	}

	updated := 0
	if len(delta) > 0 {
		instances, err := s.instances.ListMaterialized(ctx, seriesID, !skipExceptions)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list occurrences")
		}
		for _, instance := range instances {
			if instance.RecordID == nil {
				continue
			}
			if err := s.records.SetFields(ctx, instance.RecordType, *instance.RecordID, delta); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					continue
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to propagate template")
			}
			updated++
		}
	}

	return &dto.UpdateTemplateResponse{InstancesUpdated: updated}, nil
}

// UpdateSchedule replaces rule, anchor and duration wholesale. Every
// non-exception occurrence and its record is dropped atomically and a
// fresh expansion is queued from now to the configured horizon.
func (s *SeriesService) UpdateSchedule(ctx context.Context, seriesID string, req dto.UpdateScheduleRequest) (*dto.UpdateScheduleResponse, error) {
	if req.NewRule == "" {
		return nil, missingField("new_rule")
	}
	if req.NewAnchor.IsZero() {
		return nil, missingField("new_anchor")
	}
	if req.NewDurationMin <= 0 {
		return nil, missingField("new_duration_minutes")
	}
	if err := recurrence.Validate(req.NewRule); err != nil {
		return nil, err
	}

	deleted, err := s.series.ReplaceSchedule(ctx, seriesID, req.NewRule, req.NewAnchor, int64(req.NewDurationMin)*60)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace schedule")
	}

	until := time.Now().UTC().Add(s.horizon)
	if err := s.expansion.Enqueue(seriesID, until); err != nil {
		// The replacement is committed; the caller can still re-expand
		// explicitly via the expand endpoint.
		s.logger.Error("failed to queue re-expansion after schedule replacement",
			zap.String("series_id", seriesID), zap.Error(err))
	}

	return &dto.UpdateScheduleResponse{EntitiesDeleted: deleted, ExpandUntil: until}, nil
}

// DeleteSeries removes a series version with its instances and records.
func (s *SeriesService) DeleteSeries(ctx context.Context, seriesID string) (*dto.DeleteResponse, error) {
	deleted, err := s.series.DeleteCascade(ctx, seriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete series")
	}
	return &dto.DeleteResponse{EntitiesDeleted: deleted}, nil
}

// DeleteGroup removes every version in a group, their instances and
// records, and the group itself.
func (s *SeriesService) DeleteGroup(ctx context.Context, groupID string) (*dto.DeleteResponse, error) {
	deleted, err := s.series.DeleteGroupCascade(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return &dto.DeleteResponse{EntitiesDeleted: deleted}, nil
}

func (s *SeriesService) loadSeries(ctx context.Context, seriesID string) (*models.Series, error) {
	series, err := s.series.GetByID(ctx, seriesID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "series not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load series")
	}
	return series, nil
}

func missingField(name string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrMissingField, fmt.Sprintf("missing required field %q", name))
}

// startOfDay normalises a timestamp to midnight of its calendar day in
// the given location, expressed in UTC for storage.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
