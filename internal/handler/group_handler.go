package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tempora-hq/scheduler-api/internal/dto"
	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/service"
	"github.com/tempora-hq/scheduler-api/pkg/response"
)

type groupSummaryService interface {
	Summarize(ctx context.Context, groupID string) (*dto.GroupSummary, error)
	Invalidate(ctx context.Context, groupID string)
	ListGroups(ctx context.Context, page, pageSize int) ([]models.SeriesGroup, *models.Pagination, error)
}

type groupDeleter interface {
	DeleteGroup(ctx context.Context, groupID string) (*dto.DeleteResponse, error)
}

type groupExporter interface {
	ExportGroup(ctx context.Context, groupID, format string) (*service.ExportFile, error)
}

// GroupHandler exposes group-level read, delete and export endpoints.
type GroupHandler struct {
	summaries groupSummaryService
	series    groupDeleter
	exports   groupExporter
}

// NewGroupHandler builds a new handler. The exporter may be nil when
// export is disabled.
func NewGroupHandler(summaries groupSummaryService, series groupDeleter, exports groupExporter) *GroupHandler {
	return &GroupHandler{summaries: summaries, series: series, exports: exports}
}

// List godoc
// @Summary List series groups
// @Tags Groups
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	groups, pagination, err := h.summaries.ListGroups(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// Summary godoc
// @Summary Aggregate view of one group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/summary [get]
func (h *GroupHandler) Summary(c *gin.Context) {
	summary, err := h.summaries.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Delete godoc
// @Summary Delete a group with every version and occurrence
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	groupID := c.Param("id")
	result, err := h.series.DeleteGroup(c.Request.Context(), groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.summaries.Invalidate(c.Request.Context(), groupID)
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export a group's occurrence history
// @Tags Groups
// @Produce text/csv,application/pdf
// @Param id path string true "Group ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /groups/{id}/export [get]
func (h *GroupHandler) Export(c *gin.Context) {
	if h.exports == nil {
		c.Status(http.StatusNotFound)
		return
	}
	file, err := h.exports.ExportGroup(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
