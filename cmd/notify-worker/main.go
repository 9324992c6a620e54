// Package main is the entrypoint for the notify worker Lambda function.
//
// The worker consumes NotifyJob messages from the notification SQS queue
// and replays each one through the notification engine. Jobs carry the
// change event plus an optionally pre-resolved watcher set; the engine
// re-runs recipient policy per candidate at processing time so stale
// permissions never leak a notification.
//
// Cold start:
//  1. Load configuration and initialize the structured logger.
//  2. Load AWS SDK configuration; build SES, CloudWatch clients.
//  3. Connect the pgx pool and build the repositories.
//  4. Build the engine with a synchronous watermark executor (the Lambda
//     sandbox may freeze as soon as the handler returns).
//  5. Register the SQS handler and call lambda.Start.
//
// Each invocation receives a batch of SQS messages; failures are reported
// per message via partial batch responses so SQS retries only those.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"pagewatch/internal/config"
	"pagewatch/internal/db"
	"pagewatch/internal/external"
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

// Handler holds the dependencies for the worker Lambda handler.
type Handler struct {
	engine *notify.Engine
	clock  types.Clock
	logger types.Logger
}

// Handle processes an SQS event containing one or more notification jobs.
// Each message is processed independently; failures are returned in
// batchItemFailures so SQS retries only the affected messages.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage decodes one NotifyJob and runs the pipeline for it.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	encoding := ""
	if attr, ok := record.MessageAttributes["content_encoding"]; ok && attr.StringValue != nil {
		encoding = *attr.StringValue
	}

	job, err := queue.DecodeNotifyJob(record.Body, encoding)
	if err != nil {
		h.logger.Error("failed to decode notification job",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent decode failure - do not retry (return nil to ACK).
		return nil
	}

	logger := h.logger.With(
		"job_id", job.JobID,
		"trace_id", job.TraceID,
		"document", job.Event.Document.String(),
		"revision", job.Event.RevisionID,
	)

	if lag := queue.QueueLag(job, h.clock.Now()); lag > 0 {
		logger.Info("processing notification job", "queue_lag_ms", lag.Milliseconds())
	} else {
		logger.Info("processing notification job")
	}

	ctx = types.WithTraceID(ctx, job.TraceID)

	if err := h.engine.NotifyOnChange(ctx, &job.Event, job.Watchers, job.Roster); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConfigInvalidPageStatus {
			// Malformed job content will never succeed; ACK instead of retrying.
			logger.Error("job carries unrecognized page status, dropping", "error", err.Error())
			return nil
		}
		return fmt.Errorf("processMessage: %w", err)
	}

	logger.Info("notification job processed")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	typedLogger := &slogAdapter{logger: logger}

	logger.Info("notify worker initializing (cold start)",
		"environment", cfg.Environment,
		"impersonal", cfg.Notify.Impersonal,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	users := db.NewUserRepository(pool)
	watches := db.NewWatchRepository(pool)
	access := db.NewAccessRepository(pool)

	var transport external.MailTransport
	var metrics notify.Metrics = notify.NoopMetrics{}

	if cfg.Mail.Provider == "ses" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		transport = external.NewSESTransport(awsCfg, external.SESTransportConfig{
			ConfigSetName: cfg.AWS.SESConfigSet,
			Logger:        typedLogger,
		})
		metrics = notify.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, typedLogger)
	} else {
		logger.Warn("using stub mail transport", "provider", cfg.Mail.Provider)
		transport = external.NewStubMailTransport(typedLogger)
	}

	transport = external.NewBreakerTransport(transport, external.BreakerSettings{
		MaxFailures:  uint32(cfg.Mail.BreakerMaxFailures),
		OpenInterval: cfg.Mail.BreakerOpenInterval,
	}, typedLogger)

	hooks := &notify.Hooks{}
	gateway := notify.NewGateway(transport, metrics, typedLogger)

	engine := notify.NewEngine(notify.EngineDeps{
		Policy:   notify.NewPolicy(users, access, hooks, cfg.Notify, typedLogger),
		Updater:  notify.NewWatermarkUpdater(watches, notify.SyncExecutor{}, typedLogger),
		Resolver: notify.NewNamespaceTalkResolver(cfg.Notify.TalkNamespace, users),
		Composer: notify.ComposerDeps{
			Users:     users,
			Localizer: i18n.NewEnglish(),
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

	handler := &Handler{
		engine: engine,
		clock:  types.RealClock{},
		logger: typedLogger,
	}

	logger.Info("notify worker initialized",
		"notify_queue", cfg.AWS.NotifyQueueURL,
		"metric_namespace", cfg.AWS.MetricNamespace,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Enables local integration testing without the RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/notify-worker/main.go
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("no input received on stdin")
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}

		start := time.Now()
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
			"duration", time.Since(start).String(),
		)
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}
