// Package main is the entrypoint for the pagewatch API server.
//
// The API accepts change events over HTTP and runs the notification
// pipeline for each one, either inline or by enqueuing a job for the
// notify worker depending on deployment configuration.
//
// Startup:
//  1. Load configuration (environment + optional dotenv).
//  2. Initialize structured logger.
//  3. Connect the pgx pool and build the repositories.
//  4. Initialize the mail transport (SES or stub) behind a circuit breaker.
//  5. Build the recipient policy, watermark updater, and engine.
//  6. Optionally initialize the SQS job publisher for deferred dispatch.
//  7. Serve the chi router.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"pagewatch/internal/config"
	"pagewatch/internal/db"
	"pagewatch/internal/external"
	"pagewatch/internal/httpapi"
	"pagewatch/internal/i18n"
	"pagewatch/internal/notify"
	"pagewatch/internal/queue"
	"pagewatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("pagewatch API initializing",
		"environment", cfg.Environment,
		"impersonal", cfg.Notify.Impersonal,
		"defer_dispatch", cfg.Notify.DeferDispatch,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	users := db.NewUserRepository(pool)
	watches := db.NewWatchRepository(pool)
	access := db.NewAccessRepository(pool)

	transport := buildTransport(ctx, cfg, typedLogger, logger)

	metrics, sqsClient := buildAWS(ctx, cfg, typedLogger, logger)

	gateway := notify.NewGateway(transport, metrics, typedLogger)
	localizer := i18n.NewEnglish()
	hooks := &notify.Hooks{}

	engine := notify.NewEngine(notify.EngineDeps{
		Policy:   notify.NewPolicy(users, access, hooks, cfg.Notify, typedLogger),
		Updater:  notify.NewWatermarkUpdater(watches, &notify.AsyncExecutor{}, typedLogger),
		Resolver: notify.NewNamespaceTalkResolver(cfg.Notify.TalkNamespace, users),
		Composer: notify.ComposerDeps{
			Users:     users,
			Localizer: localizer,
			Gateway:   gateway,
			Hooks:     hooks,
			Notify:    cfg.Notify,
			Mail:      cfg.Mail,
			Logger:    typedLogger,
		},
		Hooks:   hooks,
		Metrics: metrics,
		Logger:  typedLogger,
	})

	var publisher httpapi.NotifyJobPublisher
	if cfg.Notify.DeferDispatch && cfg.AWS.NotifyQueueURL != "" && sqsClient != nil {
		publisher = queue.NewJobPublisher(sqsClient, cfg.AWS.NotifyQueueURL, types.RealClock{}, typedLogger)
	}

	server := httpapi.NewServer(engine, publisher, cfg.Notify, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("pagewatch API listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// buildTransport selects the configured mail transport and wraps it with
// the circuit breaker.
func buildTransport(ctx context.Context, cfg *config.Config, typedLogger types.Logger, logger *slog.Logger) external.MailTransport {
	var inner external.MailTransport

	switch cfg.Mail.Provider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		inner = external.NewSESTransport(awsCfg, external.SESTransportConfig{
			ConfigSetName: cfg.AWS.SESConfigSet,
			Logger:        typedLogger,
		})
	default:
		logger.Warn("using stub mail transport", "provider", cfg.Mail.Provider)
		inner = external.NewStubMailTransport(typedLogger)
	}

	return external.NewBreakerTransport(inner, external.BreakerSettings{
		MaxFailures:  uint32(cfg.Mail.BreakerMaxFailures),
		OpenInterval: cfg.Mail.BreakerOpenInterval,
	}, typedLogger)
}

// buildAWS initializes the CloudWatch metrics sink and the SQS client.
// Local deployments without AWS credentials fall back to no-op metrics and
// inline dispatch.
func buildAWS(ctx context.Context, cfg *config.Config, typedLogger types.Logger, logger *slog.Logger) (notify.Metrics, *sqs.Client) {
	if cfg.Environment == "local" {
		return notify.NoopMetrics{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("AWS SDK config unavailable, metrics disabled", "error", err)
		return notify.NoopMetrics{}, nil
	}

	metrics := notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, typedLogger)
	return metrics, sqs.NewFromConfig(awsCfg)
}

// logLevel maps the configured level string onto slog levels.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
