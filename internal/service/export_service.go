package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-key-api/internal/models"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
	"github.com/noah-isme/campus-key-api/pkg/export"
)

// ExportFormat selects the rendering backend for status reports.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportService renders the current key inventory as a downloadable report.
type ExportService struct {
	keys   keyLister
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

type keyLister interface {
	List(ctx context.Context, filter models.KeyFilter) ([]models.Key, int, error)
}

// NewExportService constructs ExportService.
func NewExportService(keys keyLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		keys:   keys,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var exportHeaders = []string{"Key Number", "Name", "Location", "Block", "Status", "Holder", "Taken At"}

// Render produces a key status report in the requested format.
func (s *ExportService) Render(ctx context.Context, filter models.KeyFilter, format ExportFormat) ([]byte, string, error) {
	filter.Page = 1
	filter.PageSize = 200
	keys, _, err := s.keys.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load keys for export")
	}

	dataset := export.Dataset{Headers: exportHeaders}
	for _, key := range keys {
		holder := ""
		if h := key.Holder(); h != nil {
			holder = h.Name
		}
		takenAt := ""
		if key.TakenAt != nil {
			takenAt = key.TakenAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Key Number": key.KeyNumber,
			"Name":       key.Name,
			"Location":   key.Location,
			"Block":      key.Block,
			"Status":     string(key.Status),
			"Holder":     holder,
			"Taken At":   takenAt,
		})
	}

	switch format {
	case ExportCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return payload, "text/csv", nil
	case ExportPDF:
		payload, err := s.pdf.Render(dataset, "Key Status Report")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
