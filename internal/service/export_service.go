package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/pkg/clock"
	"github.com/noah-isme/sma-teacher-attendance/pkg/export"
	"github.com/noah-isme/sma-teacher-attendance/pkg/storage"
)

type attendanceExportSource interface {
	Export(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(now time.Time, ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, opts export.PDFOptions) ([]byte, error)
}

// Attendance report columns, in output order.
var attendanceReportHeaders = []string{
	"Date", "Teacher", "Department", "Subject", "Status", "Time In", "Time Out", "Total Hours", "Late (min)", "Early (min)", "Notes",
}

var attendanceReportWidths = []float64{1.1, 1.8, 1.4, 1.4, 1.1, 0.8, 0.8, 1, 0.8, 0.8, 2}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// RenderedReport is an export held in memory, ready to stream to a client.
type RenderedReport struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders attendance reports and persists them for async download.
type ExportService struct {
	source  attendanceExportSource
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	clock   clock.Clock
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. storage and signer are only
// needed for asynchronous jobs.
func NewExportService(source attendanceExportSource, store fileStorage, signer *storage.SignedURLSigner, clk clock.Clock, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewReal(time.UTC)
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		source:  source,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
	}
}

// Render builds the attendance report described by params.
func (s *ExportService) Render(ctx context.Context, params models.ReportJobParams) (*RenderedReport, error) {
	records, err := s.source.Export(ctx, params.Filter())
	if err != nil {
		return nil, err
	}
	dataset := buildAttendanceDataset(records)

	var (
		payload     []byte
		contentType string
	)
	switch params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, export.PDFOptions{
			Title:    "Teacher Attendance Report",
			Subtitle: reportSubtitle(params),
			Widths:   attendanceReportWidths,
		})
		contentType = "application/pdf"
	default:
		err = fmt.Errorf("unsupported format %s", params.Format)
	}
	if err != nil {
		return nil, err
	}

	return &RenderedReport{
		Filename:    fmt.Sprintf("attendance-%s.%s", clock.Date(s.clock.Now()), params.Format),
		ContentType: contentType,
		Data:        payload,
		Rows:        len(records),
	}, nil
}

// Generate renders the job's report, stores it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if s.storage == nil || s.signer == nil {
		return nil, fmt.Errorf("report storage not configured")
	}
	report, err := s.Render(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(job.ID+"/"+report.Filename, report.Data)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("report generated", zap.String("job_id", job.ID), zap.Int("rows", report.Rows), zap.String("path", relPath))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(s.clock.Now(), ttl)
}

func buildAttendanceDataset(records []models.AttendanceRecordView) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Date":        r.Date,
			"Teacher":     r.TeacherName,
			"Department":  r.TeacherDepartment,
			"Subject":     r.TeacherSubject,
			"Status":      string(r.Status),
			"Time In":     deref(r.TimeIn),
			"Time Out":    deref(r.TimeOut),
			"Total Hours": formatWorkedHours(r.TotalMinutes),
			"Late (min)":  strconv.Itoa(r.LateMinutes),
			"Early (min)": strconv.Itoa(r.EarlyMinutes),
			"Notes":       deref(r.Notes),
		})
	}
	return export.Dataset{Headers: attendanceReportHeaders, Rows: rows}
}

// formatWorkedHours renders minutes as "Xh Ym"; unknown totals render empty.
func formatWorkedHours(total *int) string {
	if total == nil {
		return ""
	}
	minutes := *total
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%dh %dm", sign, minutes/60, minutes%60)
}

func reportSubtitle(params models.ReportJobParams) string {
	var parts []string
	switch {
	case params.StartDate != "" && params.EndDate != "":
		parts = append(parts, params.StartDate+" to "+params.EndDate)
	case params.StartDate != "":
		parts = append(parts, "from "+params.StartDate)
	case params.EndDate != "":
		parts = append(parts, "until "+params.EndDate)
	}
	if params.Department != "" {
		parts = append(parts, "Department: "+params.Department)
	}
	if params.Status != nil {
		parts = append(parts, "Status: "+string(*params.Status))
	}
	return strings.Join(parts, " | ")
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
