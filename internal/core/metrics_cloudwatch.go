package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"litmus/internal/types"
)

// cloudWatchPutTimeout bounds each PutMetricData call; metric publication
// must not hold a Lambda invocation open.
const cloudWatchPutTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements MetricsCollector for Lambda mode.
//
// Metrics emitted:
//   - APIRequest: Dims {Endpoint, Status}, count
//   - APILatency: Dims {Endpoint}, milliseconds
//   - WebhookEvent: Dims {EventType, Outcome}, count
//
// Failures are logged and otherwise ignored.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a collector publishing to namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.DefaultMetricPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	endpointDim := method + " " + endpoint
	m.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPIRequest),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimEndpoint), Value: aws.String(endpointDim)},
				{Name: aws.String(types.DimStatus), Value: aws.String(status)},
			},
		},
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimEndpoint), Value: aws.String(endpointDim)},
			},
		},
	}, "endpoint", endpointDim)
}

func (m *CloudWatchMetrics) RecordWebhookEvent(eventType, outcome string) {
	m.put([]cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricWebhookEvent),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimEventType), Value: aws.String(eventType)},
				{Name: aws.String(types.DimOutcome), Value: aws.String(outcome)},
			},
		},
	}, "event_type", eventType)
}

func (m *CloudWatchMetrics) put(data []cwtypes.MetricDatum, logKey, logValue string) {
	ctx, cancel := context.WithTimeout(context.Background(), cloudWatchPutTimeout)
	defer cancel()

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to publish metrics", "error", err, logKey, logValue)
	}
}
