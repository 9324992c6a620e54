// Package queue provides the SQS-based producer for deferred notification
// jobs, plus the decoder the worker uses to read them back.
package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"pagewatch/internal/types"
)

// compressThreshold is the serialized-job size above which the body is
// zstd-compressed. SQS caps messages at 256KiB; a job carrying a large
// pre-resolved watcher set can approach that.
const compressThreshold = 200 * 1024

// attrContentEncoding marks compressed message bodies so the worker knows
// to decompress before unmarshaling.
const attrContentEncoding = "content_encoding"

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// JobPublisher enqueues NotifyJob messages for the notification worker.
// Used when the deployment defers dispatch instead of running the pipeline
// inline with the triggering request.
type JobPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
	clock    types.Clock
}

// NewJobPublisher creates a JobPublisher targeting the given queue URL.
func NewJobPublisher(client SQSSender, queueURL string, clock types.Clock, logger types.Logger) *JobPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		clock:    clock,
	}
}

// Publish serializes the job and sends it to the notification queue. The
// job id and enqueue timestamp are assigned here; a trace id is generated
// when the caller did not carry one.
func (p *JobPublisher) Publish(ctx context.Context, job *types.NotifyJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.TraceID == "" {
		if traceID := types.GetTraceID(ctx); traceID != "" {
			job.TraceID = traceID
		} else {
			job.TraceID = uuid.New().String()
		}
	}
	job.EnqueuedAt = p.clock.Now()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal NotifyJob: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		"job_id": {
			DataType:    aws.String("String"),
			StringValue: aws.String(job.JobID),
		},
	}

	payload := string(body)
	if len(body) > compressThreshold {
		compressed, err := compress(body)
		if err != nil {
			return fmt.Errorf("queue: failed to compress NotifyJob: %w", err)
		}
		payload = base64.StdEncoding.EncodeToString(compressed)
		attrs[attrContentEncoding] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String("zstd"),
		}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(payload),
		MessageAttributes: attrs,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(
			types.ErrCodeQueuePublishFailed,
			fmt.Sprintf("failed to enqueue notification job for %s", job.Event.Document.String()),
			err,
		)
	}

	p.logger.Info("notification job enqueued",
		"queue_url", p.queueURL,
		"job_id", job.JobID,
		"trace_id", job.TraceID,
		"document", job.Event.Document.String(),
		"watcher_count", len(job.Watchers),
		"body_bytes", len(payload),
	)

	return nil
}

// DecodeNotifyJob reverses Publish: base64 + zstd when the encoding
// attribute says so, plain JSON otherwise. encoding is the value of the
// content_encoding message attribute, empty when absent.
func DecodeNotifyJob(body string, encoding string) (*types.NotifyJob, error) {
	raw := []byte(body)

	if encoding == "zstd" {
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("queue: invalid base64 in compressed job: %w", err)
		}
		raw, err = decompress(compressed)
		if err != nil {
			return nil, fmt.Errorf("queue: failed to decompress job: %w", err)
		}
	}

	var job types.NotifyJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("queue: failed to unmarshal NotifyJob: %w", err)
	}
	return &job, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// QueueLag reports how long the job waited between enqueue and processing.
func QueueLag(job *types.NotifyJob, now time.Time) time.Duration {
	if job.EnqueuedAt.IsZero() {
		return 0
	}
	return now.Sub(job.EnqueuedAt)
}
