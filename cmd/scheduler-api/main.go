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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tempora-hq/scheduler-api/api/swagger"
	"github.com/tempora-hq/scheduler-api/internal/handler"
	"github.com/tempora-hq/scheduler-api/internal/middleware"
	"github.com/tempora-hq/scheduler-api/internal/models"
	"github.com/tempora-hq/scheduler-api/internal/repository"
	"github.com/tempora-hq/scheduler-api/internal/service"
	"github.com/tempora-hq/scheduler-api/pkg/cache"
	"github.com/tempora-hq/scheduler-api/pkg/config"
	"github.com/tempora-hq/scheduler-api/pkg/database"
	"github.com/tempora-hq/scheduler-api/pkg/logger"
	corsmiddleware "github.com/tempora-hq/scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tempora-hq/scheduler-api/pkg/middleware/requestid"
)

// @title Scheduler API
// @version 1.0.0
// @description Recurring schedule engine: series, occurrences and conflicts
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, summaries will not be cached", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	groupRepo := repository.NewGroupRepository(db)
	seriesRepo := repository.NewSeriesRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	fieldRepo := repository.NewFieldMetadataRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsService := service.NewMetricsService()
	tokenService := service.NewTokenService(cfg.JWT)
	templateService := service.NewTemplateService(fieldRepo, logr)
	conflictService := service.NewConflictService(recordRepo, logr)
	expansionService := service.NewExpansionService(seriesRepo, instanceRepo, recordRepo, templateService, metricsService, cfg.Expansion, logr)
	seriesService := service.NewSeriesService(seriesRepo, instanceRepo, recordRepo, templateService, expansionService, cfg.Expansion.Horizon, logr)
	instanceService := service.NewInstanceService(instanceRepo, recordRepo, seriesRepo, logr)
	summaryService := service.NewSummaryService(groupRepo, seriesRepo, instanceRepo, cacheRepo, metricsService, cfg.Summary.CacheTTL, logr)

	// Records deleted outside the series manager must not leave
	// dangling occurrences behind.
	recordRepo.SetPreDeleteHook(instanceService.HandleRecordDeleted)

	var exportService *service.ExportService
	if cfg.Export.Enabled {
		exportService = service.NewExportService(groupRepo, instanceRepo, logr)
	}

	expansionService.Start(ctx)
	defer expansionService.Stop()

	// Handlers.
	seriesHandler := handler.NewSeriesHandler(seriesService)
	occurrenceHandler := handler.NewOccurrenceHandler(instanceService)
	conflictHandler := handler.NewConflictHandler(conflictService)
	var exporter interface {
		ExportGroup(ctx context.Context, groupID, format string) (*service.ExportFile, error)
	}
	if exportService != nil {
		exporter = exportService
	}
	groupHandler := handler.NewGroupHandler(summaryService, seriesService, exporter)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenService))

	write := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)
	admin := middleware.RequireRoles(models.RoleAdmin)

	api.POST("/conflicts/preview", conflictHandler.Preview)

	api.POST("/series", write, seriesHandler.Create)
	api.POST("/series/:id/expand", write, seriesHandler.Expand)
	api.POST("/series/:id/split", write, seriesHandler.Split)
	api.PATCH("/series/:id/template", write, seriesHandler.UpdateTemplate)
	api.PUT("/series/:id/schedule", write, seriesHandler.UpdateSchedule)
	api.DELETE("/series/:id", admin, seriesHandler.Delete)

	api.GET("/groups", groupHandler.List)
	api.GET("/groups/:id/summary", groupHandler.Summary)
	api.GET("/groups/:id/export", groupHandler.Export)
	api.DELETE("/groups/:id", admin, groupHandler.Delete)

	api.POST("/occurrences/cancel", write, occurrenceHandler.Cancel)
	api.POST("/occurrences/reschedule", write, occurrenceHandler.Reschedule)
	api.GET("/occurrences/membership", occurrenceHandler.Membership)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
