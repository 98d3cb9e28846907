package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/loopio/feedback-tracker/internal/api/http"
	"github.com/loopio/feedback-tracker/internal/api/http/handlers"
	"github.com/loopio/feedback-tracker/internal/auth"
	"github.com/loopio/feedback-tracker/internal/config"
	"github.com/loopio/feedback-tracker/internal/events"
	"github.com/loopio/feedback-tracker/internal/mail"
	"github.com/loopio/feedback-tracker/internal/notify"
	"github.com/loopio/feedback-tracker/internal/observability"
	"github.com/loopio/feedback-tracker/internal/persistence"
	"github.com/loopio/feedback-tracker/internal/realtime"
	"github.com/loopio/feedback-tracker/internal/repository"
	"github.com/loopio/feedback-tracker/internal/service"
	"github.com/loopio/feedback-tracker/internal/storage"
	"github.com/loopio/feedback-tracker/internal/worker"
)

// emitter is satisfied by both the local hub and the redis relay.
type emitter interface {
	notify.Pusher
	worker.Broadcaster
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	avatars, err := newAvatarStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init avatar storage", zap.Error(err))
	}
	legacy := storage.NewLegacyFiles(cfg.Storage.LegacyUploadDir)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, logger)
	var emit emitter = hub
	if cfg.Realtime.RedisRelay {
		relay := realtime.NewRedisRelay(redis.Client, cfg.Realtime.RedisChannel, hub, logger, metrics)
		emit = relay
		go worker.RunRelay(ctx, relay, logger)
	}

	notifier := notify.NewDispatcher(notificationRepo, emit, logger, metrics, cfg.Dispatch)

	bus := events.NewInMemoryDispatcher(logger)
	var forwarder worker.Forwarder
	if cfg.Broker.RabbitURL != "" {
		amqpForwarder, err := events.NewAMQPForwarder(cfg.Broker.RabbitURL, cfg.Broker.Exchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable; ticket events stay in process", zap.Error(err))
		} else {
			defer amqpForwarder.Close() //nolint:errcheck
			forwarder = amqpForwarder
		}
	}
	worker.StartNotificationWorker(bus, emit, forwarder, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		PasswordResetRepo: resetRepo,
		Avatars:           avatars,
		Mailer:            mail.New(cfg.Mail, logger),
		Notifier:          notifier,
		Logger:            logger,
	})
	feedbackService := service.NewFeedbackService(*cfg, service.FeedbackDependencies{
		FeedbackRepo: feedbackRepo,
		UserRepo:     userRepo,
		Notifier:     notifier,
		Bus:          bus,
		LegacyFiles:  legacy,
		Logger:       logger,
	})
	notificationService := service.NewNotificationService(notificationRepo, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Storage.MaxUploadBytes) + 1024*1024,
	})
	// A nil *LimiterStore must not reach the limiter as a non-nil interface.
	var limiterStore fiber.Storage
	if store := redis.LimiterStore(cfg.App.Name + ":ratelimit:"); store != nil && redis.Ping(ctx) == nil {
		limiterStore = store
	} else {
		logger.Warn("rate limit counters kept in process memory")
	}
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		RequestTimeout:  cfg.App.RequestTimeout(),
		AllowedOrigins:  cfg.App.CORSAllowedOrigins,
		RateLimitMax:    cfg.App.RateLimitMax,
		RateLimitWindow: cfg.App.RateLimitWindow(),
		LimiterStorage:  limiterStore,
	})

	maxUpload := cfg.Storage.MaxUploadBytes
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, metrics, hub),
		Auth:           handlers.NewAuthHandler(authService, maxUpload),
		Feedback:       handlers.NewFeedbackHandler(feedbackService, maxUpload),
		FeedbackQuery:  handlers.NewFeedbackQueryHandler(feedbackService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: authMiddleware,
	})

	ws := realtime.NewServer(cfg.Realtime.Addr, hub, authService.TokenManager(), logger)
	go func() {
		if err := ws.ListenAndServe(); err != nil {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = ws.Shutdown(shutdownCtx)
	_ = app.ShutdownWithContext(shutdownCtx)
}

// newAvatarStore prefers MinIO and falls back to local disk.
func newAvatarStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.AvatarStore, error) {
	m, err := persistence.NewMinio(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return storage.NewMinioAvatarStore(m), nil
	}
	return storage.NewLocalAvatarStore(cfg.AvatarDir)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
