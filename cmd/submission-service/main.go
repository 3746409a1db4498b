// cmd/submission-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"submission-workflow/internal/api"
	"submission-workflow/internal/cache"
	"submission-workflow/internal/common/auth"
	"submission-workflow/internal/common/aws"
	"submission-workflow/internal/common/camunda"
	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/database"
	commonhttp "submission-workflow/internal/common/http"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/messaging"
	"submission-workflow/internal/common/observability"
	"submission-workflow/internal/common/payments"
	"submission-workflow/internal/common/renderer"
	"submission-workflow/internal/common/signing"
	"submission-workflow/internal/common/storage"
	"submission-workflow/internal/core"
	"submission-workflow/internal/core/documents"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/core/finance"
	"submission-workflow/internal/core/lifecycle"
	"submission-workflow/internal/core/payment"
	"submission-workflow/internal/core/quote"
	"submission-workflow/internal/events"
	"submission-workflow/internal/notification"
	"submission-workflow/internal/search"
	"submission-workflow/internal/store"
	"submission-workflow/internal/store/memory"
	"submission-workflow/internal/store/postgres"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting submission service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("storeDriver", cfg.Database.Driver),
	)

	obs := observability.New(cfg.App.Name, cfg.Tracing, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []api.ReadinessCheck

	// --- Store ---
	var st store.Store
	switch cfg.Database.Driver {
	case config.DriverMemory:
		zapLog.Warn("using in-memory store; data is lost on restart")
		st = memory.New()
	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		pgStore := postgres.New(pg)
		if cfg.Database.Postgres.AutoMigrate {
			if err := pgStore.Migrate(ctx); err != nil {
				zapLog.Fatal("schema migration failed", zap.Error(err))
			}
		}
		st = pgStore
		zapLog.Info("PostgreSQL connected successfully")
	}
	checks = append(checks, api.ReadinessCheck{Name: "store", Check: st.Ping})

	// --- Redis ---
	rdb := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return database.PingRedis(ctx, rdb)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	checks = append(checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
		return database.PingRedis(ctx, rdb)
	}})
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch ---
	var index *search.SubmissionIndex
	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		index = search.NewSubmissionIndex(esClient, cfg.Database.Elasticsearch.SubmissionIndex, log)
		err = retryWithBackoff(func() error {
			return index.EnsureIndex(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch index setup")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		checks = append(checks, api.ReadinessCheck{Name: "elasticsearch", Check: func(ctx context.Context) error {
			return database.PingElasticsearch(ctx, esClient)
		}})
		zapLog.Info("Elasticsearch connected successfully")
	} else {
		zapLog.Warn("elasticsearch not configured; listings read from the store")
	}

	// --- MinIO ---
	objects, err := storage.NewMinioStorage(cfg.Storage.Minio, log)
	if err != nil {
		zapLog.Fatal("minio client failed", zap.Error(err))
	}
	err = retryWithBackoff(func() error {
		return objects.EnsureBucket(ctx)
	}, 10, 2*time.Second, zapLog, "MinIO bucket setup")
	if err != nil {
		zapLog.Fatal("minio failed after retries", zap.Error(err))
	}
	checks = append(checks, api.ReadinessCheck{Name: "minio", Check: objects.EnsureBucket})

	// --- Event sinks ---
	var sinks events.Multi

	var rabbit *messaging.Connection
	if cfg.Messaging.RabbitMQ.URL != "" {
		err = retryWithBackoff(func() error {
			var err error
			rabbit, err = messaging.Dial(cfg.Messaging.RabbitMQ.URL, log)
			return err
		}, 10, 2*time.Second, zapLog, "RabbitMQ connection")
		if err != nil {
			zapLog.Fatal("rabbitmq failed after retries", zap.Error(err))
		}
		defer rabbit.Close()
		sinks = append(sinks, events.NewQueuePublisher(messaging.NewPublisher(rabbit.Channel), cfg.Messaging.RabbitMQ.NotificationQueue))
		checks = append(checks, api.ReadinessCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if rabbit.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	} else {
		zapLog.Warn("rabbitmq not configured; client notifications are off")
	}

	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		sinks = append(sinks, events.NewWorkflowPublisher(zeebe))
		checks = append(checks, api.ReadinessCheck{Name: "zeebe", Check: zeebe.HealthCheck})
		zapLog.Info("Zeebe client connected successfully")
	}

	hooks := &core.Hooks{
		Publisher: sinks,
		Logger:    log,
		Async:     true,
		Timeout:   10 * time.Second,
	}
	if index != nil {
		hooks.Indexer = index
	}

	// --- Collaborators ---
	renderClient := renderer.NewClient(commonhttp.NewServiceClient(cfg.Integrations.Renderer))
	signingClient := signing.NewClient(commonhttp.NewServiceClient(cfg.Integrations.ESign.ServiceEndpoint))
	captureClient := payments.NewClient(commonhttp.NewServiceClient(cfg.Integrations.Payments))

	financeCache := cache.NewFinanceCache(rdb, time.Duration(cfg.Finance.CacheTTL)*time.Second, log)
	deduper := cache.NewWebhookDeduper(rdb, time.Duration(cfg.Finance.DedupeTTL)*time.Second)

	// --- Core services ---
	quotes := quote.NewEngine(st, hooks, log)
	var searcher lifecycle.Searcher
	if index != nil {
		searcher = index
	}
	submissions := lifecycle.NewService(st, quotes, searcher, hooks, log)
	docs := documents.NewService(st, renderClient, renderer.NewPDFValidator(), objects, hooks, log)
	signatures := esign.NewGate(st, signingClient, deduper, hooks, log)
	plans := finance.NewPlanService(st, hooks, log)
	paymentGate := payment.NewGate(st, captureClient, quotes, hooks, log)

	notifier := buildNotifier(ctx, cfg, st, log, zapLog)

	if rabbit != nil && cfg.Messaging.RabbitMQ.ConsumerEnabled {
		consumer := messaging.NewConsumer(rabbit.Channel, cfg.Messaging.RabbitMQ.NotificationQueue, notifier.HandleMessage, log)
		if err := consumer.Start(ctx); err != nil {
			zapLog.Fatal("notification consumer failed", zap.Error(err))
		}
	}

	// --- Workers ---
	var workers *camunda.WorkerManager
	if zeebe != nil {
		workers = camunda.NewWorkerManager(zeebe.GetClient(), obs, log)
		startWorkers(workers, cfg, workerServices{
			submissions: submissions,
			documents:   docs,
			signatures:  signatures,
			calculator:  financeCache,
			notifier:    notifier,
		}, log)
		zapLog.Info("workers started", zap.Strings("taskTypes", workers.TaskTypes()))
	}

	// --- HTTP ---
	var authenticator api.Authenticator = api.DevAuthenticator{}
	if cfg.Auth.Enabled {
		authenticator = auth.NewKeycloakClient(cfg.Auth.Keycloak)
	} else {
		zapLog.Warn("authentication disabled; accepting role:id[:agencyId] tokens")
	}

	server := api.NewServer(api.Services{
		Submissions:  submissions,
		Quotes:       quotes,
		Documents:    docs,
		Signatures:   signatures,
		FinancePlans: plans,
		Calculator:   financeCache,
		Payments:     paymentGate,
	}, api.Options{
		Auth:          authenticator,
		WebhookSecret: cfg.Integrations.ESign.WebhookSecret,
		Checks:        checks,
		Version:       cfg.App.Version,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutting down submission service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if workers != nil {
		workers.Stop()
	}
	zapLog.Info("Submission service stopped")
}

func buildNotifier(ctx context.Context, cfg *config.Config, st store.Store, log logger.Logger, zapLog *zap.Logger) *notification.Notifier {
	var (
		email notification.EmailSender
		sms   notification.SMSSender
	)
	awsCfg := cfg.Integrations.AWS
	if awsCfg.SES.Enabled {
		client, err := aws.NewSESClient(ctx, awsCfg.Region, awsCfg.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		email = client
	}
	if awsCfg.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, awsCfg.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		sms = client
	}
	return notification.NewNotifier(notification.Config{
		EmailEnabled: awsCfg.SES.Enabled,
		SMSEnabled:   awsCfg.SNS.Enabled,
	}, st, email, sms, log)
}
