package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-teacher-attendance/api/swagger"
	"github.com/noah-isme/sma-teacher-attendance/internal/handler"
	"github.com/noah-isme/sma-teacher-attendance/internal/middleware"
	"github.com/noah-isme/sma-teacher-attendance/internal/models"
	"github.com/noah-isme/sma-teacher-attendance/internal/repository"
	"github.com/noah-isme/sma-teacher-attendance/internal/service"
	"github.com/noah-isme/sma-teacher-attendance/pkg/cache"
	"github.com/noah-isme/sma-teacher-attendance/pkg/clock"
	"github.com/noah-isme/sma-teacher-attendance/pkg/config"
	"github.com/noah-isme/sma-teacher-attendance/pkg/database"
	"github.com/noah-isme/sma-teacher-attendance/pkg/export"
	"github.com/noah-isme/sma-teacher-attendance/pkg/jobs"
	"github.com/noah-isme/sma-teacher-attendance/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-teacher-attendance/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-teacher-attendance/pkg/middleware/requestid"
	"github.com/noah-isme/sma-teacher-attendance/pkg/storage"
)

// @title Teacher Attendance API
// @version 1.0.0
// @description Daily check-in/check-out, attendance marking and reports for school staff
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis, cfg.Cache)
	if err != nil {
		// Postgres remains the source of truth; run without the cache.
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient)
	defer cacheRepo.Close() //nolint:errcheck

	clk := clock.NewReal(cfg.Attendance.Location())
	validate := validator.New()

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && cacheRepo.Enabled())

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, teacherRepo, validate, logr, service.AuthConfig{
		TokenSecret:    cfg.JWT.Secret,
		TokenExpiry:    cfg.JWT.Expiration,
		RememberExpiry: cfg.JWT.RememberExpiration,
		Issuer:         cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	policySvc := service.NewPolicyService(policyRepo, userRepo, cacheSvc, cfg.Attendance, validate, logr).WithClock(clk)
	if _, err := policySvc.Current(ctx); err != nil {
		logr.Warn("attendance policy not loaded at startup, using configured timezone", zap.Error(err))
	}
	teacherSvc := service.NewTeacherService(teacherRepo, userRepo, validate, logr).
		WithStatsInvalidation(cacheSvc, func() string { return clock.Date(clk.Now()) })
	attendanceSvc := service.NewAttendanceService(attendanceRepo, teacherRepo, policySvc, userRepo, cacheSvc, metricsSvc, clk, validate, logr,
		service.AttendanceServiceConfig{StatsTTL: cfg.Cache.StatsTTL})

	reportSvc, queue, err := buildReports(cfg, attendanceRepo, reportRepo, metricsSvc, clk, validate, logr)
	if err != nil {
		return err
	}
	if queue != nil {
		queue.Start(ctx)
		defer queue.Stop()
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, cfg.Metrics.Path))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"postgres": db,
		"redis":    handler.PingFunc(cacheRepo.Ping),
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		tokens:     authSvc,
		audit:      userRepo,
		auth:       handler.NewAuthHandler(authSvc),
		users:      handler.NewUserHandler(userSvc),
		teachers:   handler.NewTeacherHandler(teacherSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		settings:   handler.NewSettingsHandler(policySvc),
		reports:    handler.NewReportHandler(reportSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildReports wires the export pipeline. The queue is nil when asynchronous
// reports are disabled; synchronous exports keep working either way.
func buildReports(
	cfg *config.Config,
	attendanceRepo *repository.AttendanceRepository,
	reportRepo *repository.ReportRepository,
	metricsSvc *service.MetricsService,
	clk clock.Clock,
	validate *validator.Validate,
	logr *zap.Logger,
) (*service.ReportService, *jobs.Queue, error) {
	reportCfg := service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	}

	if !cfg.Reports.Enabled {
		exporter := service.NewExportService(attendanceRepo, nil, nil, clk, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, export.NewCSVExporter(), export.NewPDFExporter())
		return service.NewReportService(attendanceRepo, nil, nil, exporter, validate, clk, logr, reportCfg), nil, nil
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL, clk.Now)
	exporter := service.NewExportService(attendanceRepo, store, signer, clk, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	worker := service.NewReportWorker(reportRepo, exporter, metricsSvc, clk, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnFailure:  worker.HandleFailure,
		Logger:     logr,
	})

	return service.NewReportService(attendanceRepo, reportRepo, queue, exporter, validate, clk, logr, reportCfg), queue, nil
}

type routeDeps struct {
	tokens     middleware.TokenValidator
	audit      middleware.AuditWriter
	auth       *handler.AuthHandler
	users      *handler.UserHandler
	teachers   *handler.TeacherHandler
	attendance *handler.AttendanceHandler
	settings   *handler.SettingsHandler
	reports    *handler.ReportHandler
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	authed := middleware.JWT(d.tokens)
	admin := middleware.RequireRoles(models.RoleAdmin)
	teacher := middleware.RequireRoles(models.RoleTeacher)

	auth := api.Group("/auth")
	auth.POST("/login", d.auth.Login)
	auth.GET("/me", authed, d.auth.Me)
	auth.POST("/change-pin", authed, d.auth.ChangePin)

	users := api.Group("/users", authed, admin)
	users.GET("", d.users.List)
	users.GET("/:id", d.users.Get)
	users.POST("", d.users.Create)
	users.PUT("/:id", d.users.Update)
	users.PUT("/:id/pin", d.users.ResetPin)

	teachers := api.Group("/teachers", authed)
	teachers.GET("", d.teachers.List)
	teachers.GET("/:id", d.teachers.Get)
	teachers.POST("", admin, d.teachers.Create)
	teachers.PUT("/:id", admin, d.teachers.Update)
	teachers.DELETE("/:id", admin, d.teachers.Delete)

	attendance := api.Group("/attendance", authed, middleware.WithResponseMeta())
	attendance.GET("/today", d.attendance.Today)
	attendance.GET("/date/:date", d.attendance.ByDate)
	attendance.GET("/teachers/:id/days/:date", d.attendance.Day)
	attendance.GET("/stats/today", d.attendance.TodayStats)
	attendance.POST("/check-in", teacher, d.attendance.CheckIn)
	attendance.POST("/check-out", teacher, d.attendance.CheckOut)
	attendance.POST("/mark", admin, d.attendance.Mark)
	attendance.PUT("/:recordId", admin, d.attendance.Edit)

	settings := api.Group("/settings", authed)
	settings.GET("", d.settings.Get)
	settings.PUT("", admin, d.settings.Update)

	reports := api.Group("/reports", authed, admin)
	reports.GET("", d.reports.List)
	reports.GET("/stats", d.reports.Stats)
	reports.POST("/generate", d.reports.GenerateReport)
	reports.GET("/status/:id", d.reports.ReportStatus)
	exports := reports.Group("/export", middleware.Audit(d.audit, models.AuditActionReportExport, "reports"))
	exports.GET("/csv", d.reports.ExportCSV)
	exports.GET("/pdf", d.reports.ExportPDF)

	api.GET("/export/:token", middleware.Audit(d.audit, models.AuditActionReportExport, "reports"), d.reports.DownloadReport)
}
