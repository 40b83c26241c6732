package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/Oliskey-School/School-app--sub008/api/swagger"
	"github.com/Oliskey-School/School-app--sub008/internal/handler"
	internalmiddleware "github.com/Oliskey-School/School-app--sub008/internal/middleware"
	"github.com/Oliskey-School/School-app--sub008/internal/models"
	"github.com/Oliskey-School/School-app--sub008/internal/repository"
	"github.com/Oliskey-School/School-app--sub008/internal/service"
	"github.com/Oliskey-School/School-app--sub008/internal/timetable"
	"github.com/Oliskey-School/School-app--sub008/pkg/cache"
	"github.com/Oliskey-School/School-app--sub008/pkg/config"
	"github.com/Oliskey-School/School-app--sub008/pkg/database"
	"github.com/Oliskey-School/School-app--sub008/pkg/jobs"
	"github.com/Oliskey-School/School-app--sub008/pkg/logger"
	corsmiddleware "github.com/Oliskey-School/School-app--sub008/pkg/middleware/cors"
	reqidmiddleware "github.com/Oliskey-School/School-app--sub008/pkg/middleware/requestid"
)

// @title School Timetable API
// @version 1.0.0
// @description Timetable generation, validation and publishing for school classes.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer db.Close()
	} else {
		logr.Warn("database disabled; timetables cannot be saved")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable; continuing without result cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metricsSvc,
		"timetable:",
		cfg.Timetable.ResultCacheTTL,
		logr,
		redisClient != nil,
	)

	solver := timetable.NewSolver(solverConfig(cfg.Timetable), logr.Named("solver"))
	svcCfg := service.TimetableServiceConfig{
		ProposalTTL:      cfg.Timetable.ProposalTTL,
		ResultCacheTTL:   cfg.Timetable.ResultCacheTTL,
		JobTTL:           cfg.Timetable.JobTTL,
		Workers:          cfg.Timetable.Workers,
		RespectPublished: cfg.Timetable.RespectPublished,
	}
	validate := validator.New()

	var timetableSvc *service.TimetableService
	if db != nil {
		timetableSvc = service.NewTimetableService(
			repository.NewTimetableRepository(db),
			repository.NewTimetableSlotRepository(db),
			repository.NewRosterRepository(db),
			db,
			solver, cacheSvc, metricsSvc, validate, logr, svcCfg,
		)
	} else {
		timetableSvc = service.NewTimetableService(nil, nil, nil, nil, solver, cacheSvc, metricsSvc, validate, logr, svcCfg)
	}

	worker := service.NewTimetableWorker(timetableSvc, logr)
	queue := jobs.NewQueue("timetable", worker.Handle, jobs.QueueConfig{
		Workers:       1,
		BufferSize:    cfg.Queue.Buffer,
		MaxRetries:    cfg.Queue.MaxRetries,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: time.Minute,
		OnGiveUp:      worker.GiveUp,
		Logger:        logr,
	})
	timetableSvc.AttachQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	timetableSvc.StartSweeper(ctx, cfg.Timetable.SweepInterval)
	if err := timetableSvc.FlushResults(ctx); err != nil {
		logr.Warn("stale solver results left in cache", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readiness(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(service.NewTokenService(cfg.JWT.Secret)))
	api.GET("/metrics/summary", internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), metricsHandler.Summary)
	if cfg.Timetable.Enabled {
		handler.NewTimetableHandler(timetableSvc).RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func solverConfig(cfg config.TimetableConfig) timetable.Config {
	return timetable.Config{
		MaxNodes:     cfg.MaxNodes,
		Timeout:      cfg.Timeout,
		MaxSolutions: cfg.MaxSolutions,
		Weights: timetable.Weights{
			Cluster:    cfg.Weights.Cluster,
			Spread:     cfg.Weights.Spread,
			TimeOfDay:  cfg.Weights.TimeOfDay,
			Repetition: cfg.Weights.Repetition,
			Preferred:  cfg.Weights.Preferred,
		},
	}
}

func readiness(db *sqlx.DB, client *redis.Client) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
