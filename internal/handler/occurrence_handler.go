package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
	"github.com/tempora-hq/scheduler-api/pkg/response"
)

type occurrenceService interface {
	Cancel(ctx context.Context, req dto.CancelOccurrenceRequest, actor string) (*dto.CancelOccurrenceResponse, error)
	Reschedule(ctx context.Context, req dto.RescheduleOccurrenceRequest, actor string) (*dto.RescheduleOccurrenceResponse, error)
	Membership(ctx context.Context, recordType, recordID string) (*dto.MembershipResponse, error)
}

// OccurrenceHandler exposes per-occurrence operations.
type OccurrenceHandler struct {
	service occurrenceService
}

// NewOccurrenceHandler builds a new handler.
func NewOccurrenceHandler(service occurrenceService) *OccurrenceHandler {
	return &OccurrenceHandler{service: service}
}

// Cancel godoc
// @Summary Cancel one occurrence
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param payload body dto.CancelOccurrenceRequest true "Occurrence reference"
// @Success 200 {object} response.Envelope
// @Router /occurrences/cancel [post]
func (h *OccurrenceHandler) Cancel(c *gin.Context) {
	var req dto.CancelOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancel payload"))
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reschedule godoc
// @Summary Move one occurrence to a new time range
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param payload body dto.RescheduleOccurrenceRequest true "New time range"
// @Success 200 {object} response.Envelope
// @Router /occurrences/reschedule [post]
func (h *OccurrenceHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	result, err := h.service.Reschedule(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Membership godoc
// @Summary Report series membership of a record
// @Tags Occurrences
// @Produce json
// @Param record_type query string true "Record type"
// @Param record_id query string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /occurrences/membership [get]
func (h *OccurrenceHandler) Membership(c *gin.Context) {
	result, err := h.service.Membership(c.Request.Context(), c.Query("record_type"), c.Query("record_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
