package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/unihall/attendance-api/api/swagger"
	"github.com/unihall/attendance-api/internal/audit"
	"github.com/unihall/attendance-api/internal/handler"
	"github.com/unihall/attendance-api/internal/middleware"
	"github.com/unihall/attendance-api/internal/models"
	"github.com/unihall/attendance-api/internal/repository"
	"github.com/unihall/attendance-api/internal/service"
	"github.com/unihall/attendance-api/pkg/cache"
	"github.com/unihall/attendance-api/pkg/config"
	"github.com/unihall/attendance-api/pkg/database"
	"github.com/unihall/attendance-api/pkg/export"
	"github.com/unihall/attendance-api/pkg/logger"
	corsmiddleware "github.com/unihall/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unihall/attendance-api/pkg/middleware/requestid"
	"github.com/unihall/attendance-api/pkg/qr"
	"github.com/unihall/attendance-api/pkg/storage"
)

// @title University Attendance API
// @version 1.0.0
// @description Geofenced token-based attendance tracking for university courses.
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	auditor := audit.NewEmitter(userRepo, logr)

	// Export tooling.
	qrRenderer := qr.NewRenderer(cfg.Token.QRSize)
	csvExporter := export.NewCSVExporter()
	xlsxExporter := export.NewXLSXExporter()
	pdfExporter := export.NewPDFExporter()

	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.JWT.Secret, cfg.Exports.SignedURLTTL)

	// Services.
	authSvc := service.NewAuthService(userRepo, studentRepo, lecturerRepo, auditor, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "attendance-api",
		Audience:           []string{"attendance-clients"},
	})
	userSvc := service.NewUserService(userRepo, auditor, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	lecturerSvc := service.NewLecturerService(lecturerRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, lecturerRepo, studentRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, validate, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr, cacheRepo != nil)

	tokenSvc := service.NewTokenService(tokenRepo, courseRepo, lecturerRepo, qrRenderer, auditor, validate, logr, service.TokenServiceConfig{
		TTL:    cfg.Token.TTL,
		Length: cfg.Token.Length,
	})
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, lecturerRepo, auditor, validate, logr, service.SessionServiceConfig{
		MaxDuration: cfg.Session.MaxDuration,
	})
	checkinSvc := service.NewCheckinService(tokenSvc, sessionRepo, studentRepo, enrollmentRepo, courseRepo, lecturerRepo, auditor, validate, logr, service.CheckinServiceConfig{
		RadiusMeters:       cfg.Checkin.RadiusMeters,
		OnMissingAnchor:    cfg.Checkin.OnMissingAnchor,
		SessionMaxDuration: cfg.Session.MaxDuration,
	})

	var reportCache service.CacheRepository
	if cacheRepo != nil {
		reportCache = cacheRepo
	}
	reportSvc := service.NewReportService(sessionRepo, courseRepo, studentRepo, lecturerRepo, reportCache, csvExporter, xlsxExporter, pdfExporter, logr, service.ReportServiceConfig{
		CacheTTL: cfg.Reports.CacheTTL,
	})

	exportJobSvc := service.NewExportJobService(exportStore, exportSigner, logr, service.ExportJobServiceConfig{
		Workers:   cfg.Exports.Workers,
		Retention: cfg.Exports.Retention,
	})

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exportJobSvc.Start(rootCtx)
	defer exportJobSvc.Stop()

	startMaintenance(rootCtx, logr, tokenSvc, exportJobSvc)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, courseSvc)
	lecturerHandler := handler.NewLecturerHandler(lecturerSvc, courseSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	tokenHandler := handler.NewTokenHandler(tokenSvc, metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, metricsSvc)
	checkinHandler := handler.NewCheckinHandler(checkinSvc, metricsSvc)
	reportHandler := handler.NewReportHandler(reportSvc, exportJobSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authSvc, cacheSvc, auditor, routeHandlers{
		auth:        authHandler,
		users:       userHandler,
		students:    studentHandler,
		lecturers:   lecturerHandler,
		courses:     courseHandler,
		enrollments: enrollmentHandler,
		tokens:      tokenHandler,
		sessions:    sessionHandler,
		checkins:    checkinHandler,
		reports:     reportHandler,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

type routeHandlers struct {
	auth        *handler.AuthHandler
	users       *handler.UserHandler
	students    *handler.StudentHandler
	lecturers   *handler.LecturerHandler
	courses     *handler.CourseHandler
	enrollments *handler.EnrollmentHandler
	tokens      *handler.TokenHandler
	sessions    *handler.SessionHandler
	checkins    *handler.CheckinHandler
	reports     *handler.ReportHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, cacheSvc *service.CacheService, auditor audit.Recorder, h routeHandlers) {
	api := r.Group(cfg.APIPrefix)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleLecturer)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	auth := api.Group("/auth")
	{
		auth.POST("/login/student", h.auth.LoginStudent)
		auth.POST("/login/staff", h.auth.LoginStaff)
		auth.POST("/refresh", h.auth.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), h.auth.Logout)
	}

	// Archived export downloads carry their own signed token.
	api.GET("/exports/:token", h.reports.DownloadExport)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		users := protected.Group("/users", adminOnly)
		{
			users.GET("", h.users.List)
			users.GET("/:id", h.users.Get)
			users.POST("", middleware.Audit(auditor, "users", "CREATE"), h.users.Create)
			users.PUT("/:id", middleware.Audit(auditor, "users", "UPDATE"), h.users.Update)
			users.DELETE("/:id", middleware.Audit(auditor, "users", "DELETE"), h.users.Delete)
		}

		lecturerOnly := middleware.RequireRoles(models.RoleLecturer)

		// Own-profile routes live under /me so the :id routes below
		// stay free of static siblings.
		me := protected.Group("/me")
		{
			me.GET("/student", studentOnly, h.students.Me)
			me.GET("/student/courses", studentOnly, h.students.MyCourses)
			me.GET("/lecturer", lecturerOnly, h.lecturers.Me)
			me.GET("/lecturer/courses", lecturerOnly, h.lecturers.MyCourses)
			me.PUT("/lecturer/location", lecturerOnly, h.lecturers.UpdateLocation)
		}

		students := protected.Group("/students")
		{
			students.GET("", staff, h.students.List)
			students.GET("/:id", staff, h.students.Get)
			students.POST("", adminOnly, h.students.Create)
			students.PUT("/:id", adminOnly, h.students.Update)
		}

		lecturers := protected.Group("/lecturers")
		{
			lecturers.GET("", staff, h.lecturers.List)
			lecturers.GET("/:id", staff, h.lecturers.Get)
			lecturers.POST("", adminOnly, h.lecturers.Create)
			lecturers.PUT("/:id", adminOnly, h.lecturers.Update)
		}

		courses := protected.Group("/courses")
		{
			courses.GET("", middleware.CacheResponse(cacheSvc, cfg.Reports.CacheTTL), h.courses.List)
			courses.GET("/:id", h.courses.Get)
			courses.POST("", adminOnly, h.courses.Create)
			courses.PUT("/:id", adminOnly, h.courses.Update)
			courses.POST("/:id/archive", adminOnly, h.courses.Archive)
			courses.DELETE("/:id", adminOnly, h.courses.Delete)

			courses.GET("/:id/enrollments", staff, h.enrollments.ListByCourse)
			courses.DELETE("/:id/enrollments/:studentId", adminOnly, h.enrollments.Unenroll)

			courses.GET("/:id/tokens", staff, h.tokens.ListByCourse)
			courses.GET("/:id/sessions/open", h.sessions.FindOpen)
		}

		protected.POST("/enrollments", adminOnly, h.enrollments.Enroll)

		tokens := protected.Group("/tokens")
		{
			tokens.POST("", staff, h.tokens.Issue)
			tokens.GET("/:token", h.tokens.Resolve)
			tokens.GET("/:token/anchor", h.tokens.Anchor)
			tokens.DELETE("/:id", staff, h.tokens.Deactivate)
		}

		sessions := protected.Group("/sessions")
		{
			sessions.POST("/start", staff, h.sessions.Start)
			sessions.POST("/end", staff, h.sessions.End)
			sessions.GET("/:id", h.sessions.Get)
			sessions.PUT("/:id/anchor", staff, h.sessions.UpdateAnchor)
			sessions.POST("/presence", staff, h.sessions.AddPresence)
			sessions.DELETE("/presence", staff, h.sessions.RemovePresence)

			sessions.GET("/:id/roster", staff, h.reports.Roster)
			sessions.GET("/:id/roster/export", staff, h.reports.Export)
		}

		checkin := protected.Group("/checkin", studentOnly)
		{
			checkin.POST("", h.checkins.Checkin)
			checkin.POST("/token", h.checkins.CheckinTokenOnly)
		}

		reports := protected.Group("/reports")
		{
			reports.GET("/me/history", studentOnly, h.reports.MyHistory)
			reports.GET("/me/teaching", lecturerOnly, h.reports.TeachingHistory)
			reports.POST("/sessions/:id/archive", staff, h.reports.ArchiveExport)
		}
	}
}

// startMaintenance runs periodic sweeps for expired tokens and stale
// export archives.
func startMaintenance(ctx context.Context, logr *zap.Logger, tokens *service.TokenService, exports *service.ExportJobService) {
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := tokens.SweepExpired(ctx); err != nil {
					logr.Sugar().Warnw("token sweep failed", "error", err)
				}
				if _, err := exports.Cleanup(); err != nil {
					logr.Sugar().Warnw("export cleanup failed", "error", err)
				}
			}
		}
	}()
}
