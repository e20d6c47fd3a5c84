package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tempora-hq/scheduler-api/internal/models"
	appErrors "github.com/tempora-hq/scheduler-api/pkg/errors"
)

type fieldMetadataSource interface {
	ListFields(ctx context.Context, recordType string) ([]models.RecordField, error)
}

// Fields a template may never touch regardless of editable flags.
var templateDenyList = map[string]struct{}{
	"id":         {},
	"created_at": {},
	"updated_at": {},
}

// TemplateService gates series templates against the editable-field
// allowlist of the target record type and reports schema drift.
type TemplateService struct {
	meta   fieldMetadataSource
	logger *zap.Logger
}

// NewTemplateService constructs the service.
func NewTemplateService(meta fieldMetadataSource, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{meta: meta, logger: logger}
}

// ValidateTemplate rejects any template key outside the editable-field
// set of the record type. The series' own time-range field is always
// skipped: expansion supplies it, not the template.
func (s *TemplateService) ValidateTemplate(ctx context.Context, recordType, timeField string, template models.FieldMap) error {
	declared, err := s.meta.ListFields(ctx, recordType)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field metadata")
	}

	allowed := make(map[string]struct{}, len(declared))
	for _, f := range declared {
		if !f.Editable {
			continue
		}
		if _, denied := templateDenyList[f.FieldName]; denied {
			continue
		}
		allowed[f.FieldName] = struct{}{}
	}

	keys := make([]string, 0, len(template))
	for k := range template {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if key == timeField {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return appErrors.Clone(appErrors.ErrDisallowedField,
				fmt.Sprintf("field %q is not editable on %s (allowed: %s)", key, recordType, joinAllowed(allowed)))
		}
	}
	return nil
}

// CheckDrift compares a stored template with the record type's current
// field set. Drift is advisory data, not an error: it surfaces through
// the series needs_attention status rather than blocking edits.
func (s *TemplateService) CheckDrift(ctx context.Context, recordType string, template models.FieldMap) ([]models.SchemaDriftIssue, error) {
	declared, err := s.meta.ListFields(ctx, recordType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field metadata")
	}

	known := make(map[string]models.RecordField, len(declared))
	for _, f := range declared {
		known[f.FieldName] = f
	}

	var issues []models.SchemaDriftIssue
	for _, f := range declared {
		if !f.Required {
			continue
		}
		if _, ok := template[f.FieldName]; !ok {
			issues = append(issues, models.SchemaDriftIssue{Field: f.FieldName, Issue: models.DriftMissingRequired})
		}
	}

	keys := make([]string, 0, len(template))
	for k := range template {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := known[key]; !ok {
			issues = append(issues, models.SchemaDriftIssue{Field: key, Issue: models.DriftUnknownField})
		}
	}
	return issues, nil
}

func joinAllowed(allowed map[string]struct{}) string {
	names := make([]string, 0, len(allowed))
	for name := range allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
