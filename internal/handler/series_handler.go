package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
	"github.com/tempora-hq/scheduler-api/pkg/response"
)

type seriesService interface {
	Create(ctx context.Context, req dto.CreateSeriesRequest, actor string) (*dto.CreateSeriesResponse, error)
	Expand(ctx context.Context, seriesID string, req dto.ExpandRequest) (*dto.ExpandResponse, error)
	Split(ctx context.Context, seriesID string, req dto.SplitSeriesRequest, actor string) (*dto.SplitSeriesResponse, error)
	UpdateTemplate(ctx context.Context, seriesID string, req dto.UpdateTemplateRequest) (*dto.UpdateTemplateResponse, error)
	UpdateSchedule(ctx context.Context, seriesID string, req dto.UpdateScheduleRequest) (*dto.UpdateScheduleResponse, error)
	DeleteSeries(ctx context.Context, seriesID string) (*dto.DeleteResponse, error)
}

// SeriesHandler exposes series lifecycle endpoints.
type SeriesHandler struct {
	service seriesService
}

// NewSeriesHandler builds a new handler.
func NewSeriesHandler(service seriesService) *SeriesHandler {
	return &SeriesHandler{service: service}
}

// Create godoc
// @Summary Create a recurring series
// @Tags Series
// @Accept json
// @Produce json
// @Param payload body dto.CreateSeriesRequest true "Series definition"
// @Success 201 {object} response.Envelope
// @Router /series [post]
func (h *SeriesHandler) Create(c *gin.Context) {
	var req dto.CreateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid series payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Expand godoc
// @Summary Queue series materialization
// @Tags Series
// @Accept json
// @Produce json
// @Param id path string true "Series ID"
// @Param payload body dto.ExpandRequest false "Expansion horizon"
// @Success 202 {object} response.Envelope
// @Router /series/{id}/expand [post]
func (h *SeriesHandler) Expand(c *gin.Context) {
	var req dto.ExpandRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expand payload"))
			return
		}
	}
	result, err := h.service.Expand(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// Split godoc
// @Summary Split a series at a date
// @Tags Series
// @Accept json
// @Produce json
// @Param id path string true "Series ID"
// @Param payload body dto.SplitSeriesRequest true "Split parameters"
// @Success 200 {object} response.Envelope
// @Router /series/{id}/split [post]
func (h *SeriesHandler) Split(c *gin.Context) {
	var req dto.SplitSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid split payload"))
		return
	}
	result, err := h.service.Split(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateTemplate godoc
// @Summary Merge a delta into the series template
// @Tags Series
// @Accept json
// @Produce json
// @Param id path string true "Series ID"
// @Param payload body dto.UpdateTemplateRequest true "Template delta"
// @Success 200 {object} response.Envelope
// @Router /series/{id}/template [patch]
func (h *SeriesHandler) UpdateTemplate(c *gin.Context) {
	var req dto.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	result, err := h.service.UpdateTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateSchedule godoc
// @Summary Replace the series schedule
// @Tags Series
// @Accept json
// @Produce json
// @Param id path string true "Series ID"
// @Param payload body dto.UpdateScheduleRequest true "New schedule"
// @Success 200 {object} response.Envelope
// @Router /series/{id}/schedule [put]
func (h *SeriesHandler) UpdateSchedule(c *gin.Context) {
	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}
	result, err := h.service.UpdateSchedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete a series version with its occurrences
// @Tags Series
// @Produce json
// @Param id path string true "Series ID"
// @Success 200 {object} response.Envelope
// @Router /series/{id} [delete]
func (h *SeriesHandler) Delete(c *gin.Context) {
	result, err := h.service.DeleteSeries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
