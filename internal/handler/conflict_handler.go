package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
	"github.com/tempora-hq/scheduler-api/pkg/response"
)

type conflictService interface {
	Preview(ctx context.Context, req dto.ConflictPreviewRequest) ([]dto.ConflictResult, error)
}

// ConflictHandler exposes conflict preview.
type ConflictHandler struct {
	service conflictService
}

// NewConflictHandler builds a new handler.
func NewConflictHandler(service conflictService) *ConflictHandler {
	return &ConflictHandler{service: service}
}

// Preview godoc
// @Summary Preview double-booking conflicts for candidate ranges
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.ConflictPreviewRequest true "Candidate ranges"
// @Success 200 {object} response.Envelope
// @Router /conflicts/preview [post]
func (h *ConflictHandler) Preview(c *gin.Context) {
	var req dto.ConflictPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict payload"))
		return
	}
	results, err := h.service.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
