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
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/volunteer-hours-api/api/swagger"
	"github.com/noah-isme/volunteer-hours-api/internal/handler"
	"github.com/noah-isme/volunteer-hours-api/internal/middleware"
	"github.com/noah-isme/volunteer-hours-api/internal/repository"
	"github.com/noah-isme/volunteer-hours-api/internal/service"
	"github.com/noah-isme/volunteer-hours-api/pkg/cache"
	"github.com/noah-isme/volunteer-hours-api/pkg/config"
	"github.com/noah-isme/volunteer-hours-api/pkg/database"
	"github.com/noah-isme/volunteer-hours-api/pkg/logger"
	"github.com/noah-isme/volunteer-hours-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/volunteer-hours-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/volunteer-hours-api/pkg/middleware/requestid"
	"github.com/noah-isme/volunteer-hours-api/pkg/qrtoken"
	"github.com/noah-isme/volunteer-hours-api/pkg/ratelimit"
)

// @title Volunteer Hours API
// @version 1.0.0
// @description Volunteer activity enrollment, QR session check-in and hour tracking.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()
	tx := database.NewTransactor(db)

	activityRepo := repository.NewActivityRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "volunteer")
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.HoursTTL, logr, cfg.Cache.Enabled && cacheRepo != nil)

	publisher, err := newPublisher(cfg.Notifications, logr)
	if err != nil {
		return err
	}
	defer publisher.Close() //nolint:errcheck

	notifier := service.NewNotificationService(publisher, service.NotificationConfig{
		Enabled:    cfg.Notifications.Enabled,
		Topic:      cfg.Notifications.Topic,
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, metrics, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	signer, err := qrtoken.NewSigner(cfg.CheckIn.TokenSecret)
	if err != nil {
		return fmt.Errorf("check-in signer: %w", err)
	}
	identity, err := service.NewIdentityService(service.IdentityConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Leeway:   cfg.JWT.Leeway,
	})
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	activitySvc := service.NewActivityService(tx, activityRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(tx, activityRepo, enrollmentRepo, notifier, metrics, validate, logr)
	sessionSvc := service.NewSessionService(tx, sessionRepo, activityRepo, validate, logr)
	hoursSvc := service.NewHoursService(attendanceRepo, cacheSvc, cfg.Cache.HoursTTL, logr)
	checkInSvc := service.NewCheckInService(sessionRepo, activityRepo, enrollmentRepo, attendanceRepo, signer, hoursSvc, notifier, metrics, service.CheckInConfig{
		TokenTTL:    cfg.CheckIn.TokenTTL,
		WindowGrace: cfg.CheckIn.WindowGrace,
		Location:    location,
	}, validate, logr)
	exportSvc := service.NewExportService(checkInSvc, location, logr)

	limiter := newLimiter(ctx, cfg.RateLimit, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	checks := []handler.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Routes{
		Activities:  handler.NewActivityHandler(activitySvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Sessions:    handler.NewSessionHandler(sessionSvc),
		CheckIns:    handler.NewCheckInHandler(checkInSvc, exportSvc),
		Hours:       handler.NewHoursHandler(hoursSvc),
		Verifier:    identity,
		RateLimiter: middleware.NewRateLimiter(limiter, cfg.RateLimit, metrics, logr),
		Audit:       auditRepo,
		Logger:      logr,
	}.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
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

type closingPublisher interface {
	Publish(ctx context.Context, msg messaging.Message) error
	Close() error
}

func newPublisher(cfg config.NotificationConfig, logr *zap.Logger) (closingPublisher, error) {
	if cfg.Backend == config.NotifyBackendKafka {
		producer, err := messaging.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return producer, nil
	}
	return messaging.NewLogPublisher(logr), nil
}

func newLimiter(ctx context.Context, cfg config.RateLimitConfig, client *redis.Client) ratelimit.Limiter {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == config.RateLimitBackendRedis && client != nil {
		return ratelimit.NewRedisLimiter(client, "ratelimit", nil)
	}
	memory := ratelimit.NewMemoryLimiter(nil)
	go memory.Run(ctx, cfg.SweepInterval)
	return memory
}
