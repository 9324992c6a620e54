package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pagewatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names emitted by the pipeline.
const (
	metricRecipientDecision = "RecipientDecision"
	metricDispatchAttempt   = "DispatchAttempt"
	metricPipelineLatency   = "PipelineLatency"

	dimKind     = "RecipientKind"
	dimAccepted = "Accepted"
	dimMode     = "Mode"
	dimResult   = "Result"
)

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics implements Metrics by publishing to AWS CloudWatch.
//
// Metrics emitted:
//   - RecipientDecision: Dims {RecipientKind, Accepted} -- per policy evaluation
//   - DispatchAttempt: Dims {Mode, Result} -- per dispatch outcome
//   - PipelineLatency: No dims -- full NotifyOnChange duration
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRecipient emits one RecipientDecision datum per policy evaluation.
func (m *CloudWatchMetrics) RecordRecipient(ctx context.Context, kind types.RecipientKind, accepted bool) {
	acceptedVal := "false"
	if accepted {
		acceptedVal = "true"
	}

	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricRecipientDecision),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(dimKind), Value: aws.String(string(kind))},
			{Name: aws.String(dimAccepted), Value: aws.String(acceptedVal)},
		},
	})
}

// RecordDispatch emits one DispatchAttempt datum per transport outcome.
func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, mode types.DispatchMode, result MetricResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricDispatchAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(dimMode), Value: aws.String(string(mode))},
			{Name: aws.String(dimResult), Value: aws.String(string(result))},
		},
	})
}

// RecordPipelineLatency emits the full pipeline duration in milliseconds.
func (m *CloudWatchMetrics) RecordPipelineLatency(ctx context.Context, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricPipelineLatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}
