package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
	"github.com/tempora-hq/scheduler-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type groupInstanceLister interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Instance, error)
}

type exportGroupReader interface {
	GetByID(ctx context.Context, id string) (*models.SeriesGroup, error)
}

// ExportFile is a rendered schedule ready to stream to the client.
type ExportFile struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a group's occurrence history as CSV or PDF.
type ExportService struct {
	groups    exportGroupReader
	instances groupInstanceLister
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(groups exportGroupReader, instances groupInstanceLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		groups:    groups,
		instances: instances,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

var exportHeaders = []string{"Occurrence Date", "Record ID", "Status", "Reason"}

// ExportGroup renders every instance across all versions of a group.
func (s *ExportService) ExportGroup(ctx context.Context, groupID, format string) (*ExportFile, error) {
	format = strings.ToLower(format)
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	instances, err := s.instances.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instances")
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(instances))}
	for i := range instances {
		dataset.Rows = append(dataset.Rows, exportRow(&instances[i]))
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("schedule_%s_%s.csv", group.ID, stamp),
		}, nil
	default:
		content, err := s.pdf.Render(dataset, group.Name)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("schedule_%s_%s.pdf", group.ID, stamp),
		}, nil
	}
}

func exportRow(instance *models.Instance) map[string]string {
	status := "scheduled"
	if instance.IsException {
		status = string(instance.ExceptionType)
	}
	recordID := ""
	if instance.RecordID != nil {
		recordID = *instance.RecordID
	}
	reason := ""
	if instance.Reason != nil {
		reason = *instance.Reason
	}
	return map[string]string{
		"Occurrence Date": instance.OccurrenceDate.Format("2006-01-02"),
		"Record ID":       recordID,
		"Status":          status,
		"Reason":          reason,
	}
}
