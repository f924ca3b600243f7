package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jomigata/wiz-coco-sub004/cmd/mainconfig"
	"github.com/jomigata/wiz-coco-sub004/internal/api/router"
	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	appconfig "github.com/jomigata/wiz-coco-sub004/internal/config"
	"github.com/jomigata/wiz-coco-sub004/internal/counselor"
	"github.com/jomigata/wiz-coco-sub004/internal/http/handlers"
	"github.com/jomigata/wiz-coco-sub004/internal/ingest"
	"github.com/jomigata/wiz-coco-sub004/internal/notify"
	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/reports"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/internal/session"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wiz-coco safety pipeline API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres (optional: in-memory stores without it)
	var dbPool *pgxpool.Pool
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		dbPool = pool
		defer dbPool.Close()
		sqlDB = stdlib.OpenDBFromPool(dbPool)
		defer sqlDB.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, counselor cache disabled", "error", err)
			redisClient = nil
		}
	}

	reg := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(reg)

	// Stores
	var signalStore risk.Store = risk.NewInMemoryStore()
	var notificationStore notify.Store = notify.NewInMemoryStore()
	var sessionStore session.Store = session.NewInMemoryStore()
	var reportStore reports.Store = reports.NewInMemoryStore()
	if dbPool != nil {
		signalStore = risk.NewPostgresStore(dbPool)
		notificationStore = notify.NewPostgresStore(dbPool)
		sessionStore = session.NewPostgresStore(dbPool)
		reportStore = reports.NewPostgresStore(dbPool)
	}

	var resolver counselor.Resolver
	if sqlDB != nil {
		resolver = counselor.NewDirectoryResolver(sqlDB)
	} else {
		resolver = counselor.NewStaticResolver(nil)
	}
	if redisClient != nil {
		resolver = counselor.NewCachedResolver(resolver, redisClient, cfg.CounselorCacheTTL, logger)
	}

	awsCfg, awsErr := mainconfig.LoadAWSConfig(ctx, cfg)
	if awsErr != nil {
		logger.Warn("failed to load AWS config, SES/SQS disabled", "error", awsErr)
	}

	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "ses":
		if awsErr == nil {
			emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.SESFromName,
			}, logger)
		}
	case "sendgrid":
		emailSender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if emailSender == nil || isNilSender(emailSender) {
		emailSender = notify.NewStubEmailSender(logger)
		logger.Warn("email notifications stubbed", "provider", cfg.EmailProvider)
	}

	var contacts notify.ContactLookup
	if raw := strings.TrimSpace(cfg.CounselorContactsJSON); raw != "" {
		m := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			logger.Warn("failed to parse COUNSELOR_CONTACTS_JSON", "error", err)
		} else {
			contacts = notify.StaticContacts(m)
		}
	}

	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Store:        notificationStore,
		Resolver:     resolver,
		Email:        emailSender,
		Contacts:     contacts,
		MinSeverity:  risk.ParseSeverity(cfg.NotifyMinSeverity),
		SupervisorID: cfg.SupervisorRecipientID,
		Metrics:      pipelineMetrics,
		Logger:       logger,
	})
	manager := session.NewManager(session.ManagerConfig{
		Store:       sessionStore,
		Resolver:    resolver,
		Notifier:    dispatcher,
		MinSeverity: risk.ParseSeverity(cfg.EscalateMinSeverity),
		Metrics:     pipelineMetrics,
		Logger:      logger,
	})
	ruleSet, err := risk.RuleSetByVersion(cfg.RuleSetVersion)
	if err != nil {
		logger.Warn("unknown rule set version, falling back to default",
			"error", err, "version", cfg.RuleSetVersion)
		ruleSet = risk.DefaultRuleSet()
	}
	logger.Info("risk rule set loaded", "version", ruleSet.Version())

	chatService := chat.NewService(chat.ServiceConfig{
		Extractor:  risk.NewExtractor(ruleSet),
		Classifier: risk.NewClassifier(),
		Signals:    signalStore,
		Dispatcher: dispatcher,
		Manager:    manager,
		Sessions:   sessionStore,
		Metrics:    pipelineMetrics,
		Logger:     logger,
	})

	var aggregator *reports.Aggregator
	if sqlDB != nil {
		collaborators := reports.NewSQLCollaborators(sqlDB)
		aggregator = reports.NewAggregator(reports.AggregatorConfig{
			Signals:     signalStore,
			Assessments: collaborators,
			Counseling:  collaborators,
			Goals:       collaborators,
			Store:       reportStore,
			Timeout:     cfg.ReportTimeout,
			Metrics:     pipelineMetrics,
			Logger:      logger,
		})
	} else {
		logger.Warn("report aggregation disabled without a database")
	}

	// Async ingest path for diary entries and assessment answers.
	var queue ingest.Queue
	if cfg.UseMemoryQueue || awsErr != nil || cfg.IngestQueueURL == "" {
		queue = ingest.NewMemoryQueue(cfg.IngestBuffer)
		logger.Info("ingest queue running in memory")
	} else {
		queue = ingest.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.IngestQueueURL)
		logger.Info("ingest queue backed by SQS", "queue_url", cfg.IngestQueueURL)
	}
	worker := ingest.NewWorker(chatService, queue, pipelineMetrics, logger,
		ingest.WithWorkerCount(cfg.IngestWorkerCount),
	)
	worker.Start(ctx)

	routerCfg := &router.Config{
		Logger:               logger,
		RiskSignalsHandler:   handlers.NewRiskSignalsHandler(chatService, signalStore, logger),
		ChatHandler:          handlers.NewChatHandler(chatService, logger),
		NotificationsHandler: handlers.NewNotificationsHandler(notificationStore, logger),
		MetricsHandler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
	}
	if aggregator != nil {
		routerCfg.ReportsHandler = handlers.NewReportsHandler(aggregator, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("ingest workers stopped")
	case <-shutdownCtx.Done():
		logger.Error("ingest worker shutdown timed out")
	}

	logger.Info("server stopped")
}

// isNilSender reports whether the interface wraps a nil provider pointer
// (providers return typed nils when unconfigured).
func isNilSender(s notify.EmailSender) bool {
	switch v := s.(type) {
	case *notify.SendGridSender:
		return v == nil
	case *notify.SESSender:
		return v == nil
	default:
		return false
	}
}
