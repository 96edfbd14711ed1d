package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/northbeam/portal-api/api"
	"github.com/northbeam/portal-api/config"
	"github.com/northbeam/portal-api/database"
	"github.com/northbeam/portal-api/handlers"
	"github.com/northbeam/portal-api/router"
	"github.com/northbeam/portal-api/services"
	"github.com/northbeam/portal-api/services/assistant"
	"github.com/northbeam/portal-api/services/cron"
	"github.com/northbeam/portal-api/services/storage"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/auth"
	"github.com/northbeam/portal-api/utils/cache"
	"github.com/northbeam/portal-api/utils/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func SetupAndRunServer() error {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	env, err := config.Get()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(env.GO_ENV)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// The assistant is the one hard dependency; everything else degrades.
	assistantClient, err := assistant.NewClient(assistant.Config{
		APIKey:      env.OPENAI_API_KEY,
		AssistantID: env.OPENAI_ASSISTANT_ID,
		BaseURL:     env.OPENAI_BASE_URL,
		Model:       env.OPENAI_MODEL,
	})
	if err != nil {
		return err
	}
	if env.OPENAI_ASSISTANT_ID == "" {
		return errors.New("OPENAI_ASSISTANT_ID environment variable is not set")
	}

	deps := router.Deps{
		Logger: logger,
		Security: middleware.SecurityConfig{
			AllowedOrigins: env.ALLOWED_ORIGINS,
		},
	}

	// Audit database
	var auditStore *services.AuditStore
	var store *database.GORMStore
	if env.DatabaseConfigured() {
		store, err = database.StartGORM(env, logger)
		if err != nil {
			logger.Error("Check whether the Postgres is running or not", zap.Error(err))
			return err
		}
		defer store.Close()

		if err := store.Init(); err != nil {
			logger.Error("Failed to initialize database tables", zap.Error(err))
			return err
		}
		auditStore = services.NewAuditStore(store.DB(), logger)
		deps.Health.Database = handlers.PingFunc(store.HealthCheck)
	} else {
		logger.Warn("Database not configured; intake audit trail is disabled")
	}

	// Redis backs the terminal-forward ledger and the session throttle
	var ledger services.TerminalLedger
	if env.REDIS_URL != "" {
		redisCache, err := cache.NewRedisCache(env.REDIS_URL)
		if err != nil {
			logger.Warn("Failed to connect to Redis; duplicate summaries will not be suppressed", zap.Error(err))
		} else {
			defer redisCache.Close()
			ledger = services.NewRedisTerminalLedger(redisCache, services.DefaultTerminalTTL)
			deps.Throttle = middleware.NewSessionThrottle(redisCache, middleware.ThrottleConfig{
				Limit:  int64(env.INTAKE_ACTIONS_PER_HOUR),
				Window: time.Hour,
			})
			deps.Health.Redis = redisCache
		}
	}

	// Webhook forwarder and its email copy
	var notifier services.SummaryNotifier
	emailService := services.NewEmailService(services.EmailConfig{
		Host:     env.SMTP_HOST,
		Port:     env.SMTP_PORT,
		Username: env.SMTP_USERNAME,
		Password: env.SMTP_PASSWORD,
		From:     env.SMTP_FROM,
		NotifyTo: env.INTAKE_NOTIFY_EMAIL,
	}, logger)
	if emailService.IsConfigured() {
		notifier = emailService
	}

	var deliveries services.DeliveryStore
	if auditStore != nil {
		deliveries = auditStore
	}
	if env.INTAKE_WEBHOOK_URL == "" {
		logger.Warn("INTAKE_WEBHOOK_URL not set; session summaries will only be logged")
	}
	webhookService := services.NewWebhookService(services.WebhookConfig{URL: env.INTAKE_WEBHOOK_URL}, ledger, deliveries, notifier, logger)

	opts := []services.IntakeChatOption{
		services.WithForwarder(webhookService),
		services.WithLogger(logger),
	}
	if auditStore != nil {
		opts = append(opts, services.WithRecorder(auditStore))
	}
	if env.SpacesConfigured() {
		archiver, err := storage.NewSpacesArchiver(storage.SpacesConfig{
			AccessKey: env.SPACES_ACCESS_KEY,
			SecretKey: env.SPACES_SECRET_KEY,
			Bucket:    env.SPACES_BUCKET,
			Region:    env.SPACES_REGION,
			Endpoint:  env.SPACES_ENDPOINT,
		})
		if err != nil {
			logger.Warn("Attachment archive disabled", zap.Error(err))
		} else {
			opts = append(opts, services.WithArchiver(archiver))
		}
	}
	deps.Orchestrator = services.NewIntakeChatService(assistantClient, services.DefaultIntakeChatConfig(), opts...)
	deps.ResumeParser = services.NewResumeService(services.NewPDFExtractor(logger), assistantClient, logger)

	if env.JWT_SECRET != "" {
		deps.JWTManager = auth.NewJWTManager(auth.JWTConfig{
			Secret: env.JWT_SECRET,
			Expiry: 2 * time.Hour,
			Issuer: env.JWT_ISSUER,
		})
	}

	// Cron jobs run only against the audit database
	var cronManager *cron.CronManager
	if env.CRON_ENABLED && auditStore != nil {
		cronManager = cron.NewCronManager(store.DB(), auditStore, cron.Config{RetentionDays: env.AUDIT_RETENTION_DAYS}, logger)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			logger.Warn("Failed to start cron jobs", zap.Error(err))
			cronManager = nil
		}
	}
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
	}()

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", env.PORT), env.BODY_LIMIT_MB, logger)
	router.SetupRoutes(server.GetEngine(), deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Run)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
