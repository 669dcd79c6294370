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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/civitasfix/civitasfix-api/api/swagger"
	"github.com/civitasfix/civitasfix-api/internal/handler"
	"github.com/civitasfix/civitasfix-api/internal/middleware"
	"github.com/civitasfix/civitasfix-api/internal/repository"
	"github.com/civitasfix/civitasfix-api/internal/service"
	"github.com/civitasfix/civitasfix-api/pkg/cache"
	"github.com/civitasfix/civitasfix-api/pkg/config"
	"github.com/civitasfix/civitasfix-api/pkg/database"
	"github.com/civitasfix/civitasfix-api/pkg/jobs"
	"github.com/civitasfix/civitasfix-api/pkg/logger"
	"github.com/civitasfix/civitasfix-api/pkg/mailer"
	corsmiddleware "github.com/civitasfix/civitasfix-api/pkg/middleware/cors"
	reqidmiddleware "github.com/civitasfix/civitasfix-api/pkg/middleware/requestid"
	"github.com/civitasfix/civitasfix-api/pkg/storage"
)

// @title CivitasFix API
// @version 1.0.0
// @description Campus facility damage reporting and repair tracking
// @BasePath /api
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		logr.Info("database schema ensured")
	}

	var redisClient redis.UniversalClient
	if cfg.Stats.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		} else {
			redisClient = client
			defer client.Close()
		}
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		return err
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	repairRepo := repository.NewRepairRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cfg.Stats.CacheEnabled && redisClient != nil)

	mailDispatcher := service.NewMailDispatcher(mailer.New(cfg.Mail, logr), metrics, logr)
	mailQueue := jobs.NewQueue("mail", mailDispatcher.Handle, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	mailDispatcher.Attach(mailQueue)
	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, metrics, logr)
	authSvc := service.NewAuthService(userRepo, notificationSvc, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, statsRepo, validate, logr)
	reportSvc := service.NewReportService(service.ReportServiceParams{
		Reports:       reportRepo,
		Repairs:       repairRepo,
		Notifications: notificationSvc,
		Mail:          mailDispatcher,
		Audit:         userRepo,
		Cache:         cacheSvc,
		Storage:       store,
		Metrics:       metrics,
		Validator:     validate,
		Logger:        logr,
		Uploads: service.UploadPolicy{
			PublicPath:   cfg.Uploads.PublicPath,
			MaxSizeBytes: cfg.Uploads.MaxSizeBytes,
			AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		},
	})
	statsSvc := service.NewStatsService(statsRepo, cacheSvc, logr)
	exportSvc := service.NewExportService(reportRepo, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Uploads.MaxSizeBytes + 1<<20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.Static(cfg.Uploads.PublicPath, store.Dir())
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Reports:       handler.NewReportHandler(reportSvc, exportSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Stats:         handler.NewStatsHandler(statsSvc),
		Metrics:       handler.NewMetricsHandler(metrics, userRepo),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("prefix", cfg.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
