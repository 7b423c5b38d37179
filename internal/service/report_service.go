package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-teacher-attendance/internal/dto"
	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/repository"
	"github.com/noah-isme/sma-teacher-attendance/pkg/clock"
	appErrors "github.com/noah-isme/sma-teacher-attendance/pkg/errors"
	"github.com/noah-isme/sma-teacher-attendance/pkg/jobs"
)

type attendanceReportRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, int, error)
	Stats(ctx context.Context, filter models.AttendanceFilter) (*models.AttendanceStats, error)
}

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

const cleanupBatchSize = 100

// ReportService serves attendance listings, aggregates, exports and async report jobs.
type ReportService struct {
	records   attendanceReportRepository
	repo      reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	clock     clock.Clock
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service. repo and queue may be nil
// when asynchronous reports are disabled.
func NewReportService(records attendanceReportRepository, repo reportJobStore, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, clk clock.Clock, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.NewReal(time.UTC)
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	registerAttendanceValidations(validate)
	return &ReportService{
		records:   records,
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		clock:     clk,
		logger:    logger,
		cfg:       cfg,
	}
}

// List returns a page of records ordered by date descending then teacher name.
func (s *ReportService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordView, *models.Pagination, error) {
	if err := validateReportFilter(filter); err != nil {
		return nil, nil, err
	}
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Stats aggregates the filtered records. The attendance percentage counts
// PRESENT days over all days, and the average worked time is spread over all
// days too, so absent, leave and unfinished days pull it down.
func (s *ReportService) Stats(ctx context.Context, filter models.AttendanceFilter) (*models.AttendanceStats, error) {
	if err := validateReportFilter(filter); err != nil {
		return nil, err
	}
	stats, err := s.records.Stats(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	finalizeStats(stats)
	return stats, nil
}

// Export renders a report synchronously.
func (s *ReportService) Export(ctx context.Context, filter models.AttendanceFilter, format models.ReportFormat) (*RenderedReport, error) {
	if err := validateReportFilter(filter); err != nil {
		return nil, err
	}
	if !isValidFormat(format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	report, err := s.exporter.Render(ctx, models.ReportJobParams{
		StartDate:  filter.StartDate,
		EndDate:    filter.EndDate,
		TeacherID:  filter.TeacherID,
		Department: filter.Department,
		Status:     filter.Status,
		Format:     format,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return report, nil
}

// CreateJob validates request, persists job, and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.GenerateReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	if s.repo == nil || s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report generation is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if err := validateDateRange(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      models.ReportTypeAttendance,
		Params:    req.Params(),
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := s.clock.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.logger.Info("report job queued", zap.String("job_id", job.ID), zap.String("format", string(job.Params.Format)), zap.String("created_by", actorID))
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report generation is disabled")
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report generation is disabled")
	}
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not available")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs (e.g. after process restart).
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	if s.repo == nil || s.queue == nil {
		return
	}
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered queued report jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 || s.repo == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes the files of finished jobs older than the result TTL
// and marks those jobs EXPIRED.
func (s *ReportService) CleanupExpired(ctx context.Context) int {
	cutoff := s.clock.Now().Add(-s.cfg.ResultTTL)
	expired := models.ReportStatusExpired
	purged := 0
	for {
		batch, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatchSize)
		if err != nil {
			s.logger.Warn("cleanup list failed", zap.Error(err))
			return purged
		}
		for _, job := range batch {
			if job.ResultURL != nil {
				if _, relPath, _, err := s.exporter.ParseToken(extractToken(*job.ResultURL), true); err == nil {
					if err := s.exporter.Delete(relPath); err != nil {
						s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
					}
				}
			}
			if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &expired}); err != nil {
				s.logger.Warn("cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
				return purged
			}
			purged++
		}
		if len(batch) < cleanupBatchSize {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
	if purged > 0 {
		s.logger.Info("expired report exports purged", zap.Int("count", purged))
	}
	return purged
}

func validateReportFilter(filter models.AttendanceFilter) error {
	if filter.StartDate != "" && !isISODate(filter.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be formatted as YYYY-MM-DD")
	}
	if filter.EndDate != "" && !isISODate(filter.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must be formatted as YYYY-MM-DD")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	return validateDateRange(filter.StartDate, filter.EndDate)
}

// validateDateRange relies on YYYY-MM-DD sorting lexicographically.
func validateDateRange(start, end string) error {
	if start != "" && end != "" && start > end {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must not be after end_date")
	}
	return nil
}

func finalizeStats(stats *models.AttendanceStats) {
	if stats.TotalDays > 0 {
		pct := float64(stats.PresentDays) / float64(stats.TotalDays) * 100
		stats.AttendancePercentage = math.Round(pct*100) / 100
	}
	if stats.TotalDays > 0 {
		stats.AverageWorkedMinutes = int(math.Round(float64(stats.TotalWorkedMinutes) / float64(stats.TotalDays)))
	}
}

func isValidFormat(f models.ReportFormat) bool {
	return f == models.ReportFormatCSV || f == models.ReportFormatPDF
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	clock    clock.Clock
	logger   *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, clk clock.Clock, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.NewReal(time.UTC)
	}
	return &ReportWorker{repo: repo, exporter: exporter, metrics: metrics, clock: clk, logger: logger}
}

// Handle processes a queue job. A returned error makes the queue retry it;
// a failed attempt puts the job back to QUEUED with the error recorded.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		queued := models.ReportStatusQueued
		reset := 0
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to mark job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}
	finished := models.ReportStatusFinished
	progress = 100
	now := w.clock.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordReportJob(string(finished))
	return nil
}

// HandleFailure marks a job FAILED once the queue has given up on it.
func (w *ReportWorker) HandleFailure(ctx context.Context, job jobs.Job, cause error) {
	failed := models.ReportStatusFailed
	progress := 100
	now := w.clock.Now().UTC()
	msg := cause.Error()
	// ctx is the queue's and may already be cancelled during shutdown.
	if err := w.repo.Update(context.WithoutCancel(ctx), job.ID, repository.UpdateReportJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.RecordReportJob(string(failed))
}
