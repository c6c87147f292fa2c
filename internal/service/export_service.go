package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/facetrack/facetrack-api/internal/models"
	appErrors "github.com/facetrack/facetrack-api/pkg/errors"
	"github.com/facetrack/facetrack-api/pkg/export"
)

type exportAttendanceSource interface {
	List(ctx context.Context, scope models.Scope, from, to *time.Time) ([]models.AttendanceRecordDetail, error)
}

type exportStatsSource interface {
	Overview(ctx context.Context, scope models.Scope) (*models.Overview, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
}

// ExportFormat selects the report file type.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult points at a generated report file.
type ExportResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
}

// ExportService renders attendance data into downloadable reports. Reports
// are generated synchronously from the same snapshot reads the statistics
// endpoints use.
type ExportService struct {
	attendance exportAttendanceSource
	stats      exportStatsSource
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	storage    exportStorage
	logger     *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(attendance exportAttendanceSource, stats exportStatsSource, storage exportStorage, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		attendance: attendance,
		stats:      stats,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		storage:    storage,
		logger:     logger,
	}
}

// AttendanceReport exports the raw attendance log, optionally bounded by a
// date range.
func (s *ExportService) AttendanceReport(ctx context.Context, scope models.Scope, format ExportFormat, from, to *time.Time) (*ExportResult, error) {
	records, err := s.attendance.List(ctx, scope, from, to)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Student", "Code", "Session", "Class", "Arrival", "Late"},
		Rows:    make([][]string, 0, len(records)),
	}
	for _, record := range records {
		code := ""
		if record.StudentCode != nil {
			code = *record.StudentCode
		}
		dataset.Rows = append(dataset.Rows, []string{
			record.Date.Format("2006-01-02"),
			record.StudentName,
			code,
			record.SessionName,
			record.ClassName,
			record.ArrivalTime.String(),
			strconv.FormatBool(record.IsLate),
		})
	}
	return s.render(dataset, "attendance-log", "Attendance Log", format)
}

// StatisticsReport exports the per-student statistics table.
func (s *ExportService) StatisticsReport(ctx context.Context, scope models.Scope, format ExportFormat) (*ExportResult, error) {
	overview, err := s.stats.Overview(ctx, scope)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Attended", "Eligible", "Late", "On Time", "Attendance %"},
		Rows:    make([][]string, 0, len(overview.StudentStats)),
	}
	for _, stat := range overview.StudentStats {
		dataset.Rows = append(dataset.Rows, []string{
			stat.StudentName,
			strconv.Itoa(stat.SessionsAttended),
			strconv.Itoa(stat.EligibleSessions),
			strconv.Itoa(stat.TimesLate),
			strconv.Itoa(stat.TimesOnTime),
			fmt.Sprintf("%.1f", stat.AttendancePercentage),
		})
	}
	return s.render(dataset, "attendance-statistics", "Attendance Statistics", format)
}

func (s *ExportService) render(dataset export.Dataset, stem, title string, format ExportFormat) (*ExportResult, error) {
	var (
		content     []byte
		contentType string
		err         error
	)
	switch format {
	case FormatCSV:
		content, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case FormatPDF:
		content, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "report rendering failed")
	}

	filename := fmt.Sprintf("%s-%s.%s", stem, time.Now().Format("20060102-150405"), format)
	if s.storage != nil {
		if _, err := s.storage.Save(filename, content); err != nil {
			s.logger.Warn("export archive failed", zap.String("filename", filename), zap.Error(err))
		}
	}
	return &ExportResult{
		Filename:    filename,
		ContentType: contentType,
		Size:        len(content),
		Content:     content,
	}, nil
}
