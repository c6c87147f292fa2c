package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/facetrack/facetrack-api/api/swagger"
	"github.com/facetrack/facetrack-api/internal/aichat"
	"github.com/facetrack/facetrack-api/internal/facegate"
	"github.com/facetrack/facetrack-api/internal/handler"
	"github.com/facetrack/facetrack-api/internal/middleware"
	"github.com/facetrack/facetrack-api/internal/repository"
	"github.com/facetrack/facetrack-api/internal/service"
	"github.com/facetrack/facetrack-api/pkg/cache"
	"github.com/facetrack/facetrack-api/pkg/config"
	"github.com/facetrack/facetrack-api/pkg/database"
	"github.com/facetrack/facetrack-api/pkg/logger"
	corsmiddleware "github.com/facetrack/facetrack-api/pkg/middleware/cors"
	reqidmiddleware "github.com/facetrack/facetrack-api/pkg/middleware/requestid"
	"github.com/facetrack/facetrack-api/pkg/storage"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// @title FaceTrack API
// @version 1.0.0
// @description Classroom attendance tracking backed by an external face recognition gateway
// @BasePath /api/v1
// @schemes http

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
		logr.Fatal("postgres connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The service degrades without Redis: statistics are recomputed on
		// every read and assistant conversations lose their history.
		logr.Warn("redis unavailable, running without cache", zap.Error(err))
		redisClient = nil
	}

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("export storage init failed", zap.Error(err))
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	aiQueryRepo := repository.NewAIQueryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	gateway := facegate.NewClient(cfg.FaceGate, logr)
	chatClient := aichat.NewClient(cfg.Assistant)

	var statsCacheTTL time.Duration
	if cfg.Stats.CacheEnabled {
		statsCacheTTL = cfg.Stats.CacheTTL
	}
	statsService := service.NewStatsService(studentRepo, sessionRepo, attendanceRepo, classRepo, cacheRepo, statsCacheTTL, logr)
	authService := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, sessionRepo, studentRepo, classRepo, statsService, validate, logr)
	metricsService := service.NewMetricsService()
	captureService := service.NewCaptureService(gateway, studentRepo, sessionRepo, attendanceService, metricsService, logr)
	studentService := service.NewStudentService(studentRepo, gateway, statsService, validate, logr)
	classService := service.NewClassService(classRepo, studentRepo, statsService, validate, logr)
	sessionService := service.NewSessionService(sessionRepo, classRepo, statsService, validate, logr)
	assistantService := service.NewAssistantService(chatClient, statsService, aiQueryRepo, cacheRepo, cfg.Assistant, logr)
	exportService := service.NewExportService(attendanceService, statsService, exportStorage, logr)

	authHandler := handler.NewAuthHandler(authService)
	studentHandler := handler.NewStudentHandler(studentService, statsService)
	classHandler := handler.NewClassHandler(classService)
	sessionHandler := handler.NewSessionHandler(sessionService, statsService)
	attendanceHandler := handler.NewAttendanceHandler(captureService, attendanceService, metricsService)
	statsHandler := handler.NewStatsHandler(statsService)
	assistantHandler := handler.NewAssistantHandler(assistantService)
	exportHandler := handler.NewExportHandler(exportService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	protected.GET("/students", studentHandler.List)
	protected.POST("/students", studentHandler.Create)
	protected.GET("/students/:id", studentHandler.Get)
	protected.DELETE("/students/:id", studentHandler.Deactivate)
	protected.DELETE("/students/:id/permanent", middleware.AdminOnly(), studentHandler.DeletePermanently)
	protected.GET("/students/:id/stats", studentHandler.Stats)

	protected.GET("/classes", classHandler.List)
	protected.POST("/classes", classHandler.Create)
	protected.GET("/classes/:id", classHandler.Get)
	protected.GET("/classes/:id/students", classHandler.Roster)
	protected.POST("/classes/:id/students/:studentId", classHandler.AssignStudent)
	protected.DELETE("/classes/:id/students/:studentId", classHandler.RemoveStudent)
	protected.DELETE("/classes/students/:studentId", classHandler.RemoveStudentEverywhere)

	protected.GET("/sessions", sessionHandler.List)
	protected.POST("/sessions", sessionHandler.Create)
	protected.GET("/sessions/upcoming", sessionHandler.Upcoming)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.GET("/sessions/:id/stats", sessionHandler.Stats)

	protected.POST("/attendance/capture", attendanceHandler.Capture)
	protected.GET("/attendance/records", attendanceHandler.List)
	protected.POST("/attendance/records", attendanceHandler.Record)

	protected.GET("/stats/overview", statsHandler.Overview)
	protected.GET("/stats/aggregate", statsHandler.Aggregate)

	protected.POST("/assistant/ask", assistantHandler.Ask)

	protected.GET("/exports/attendance", exportHandler.Attendance)
	protected.GET("/exports/statistics", exportHandler.Statistics)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("redis close failed", zap.Error(err))
	}
}
