// Package main is the entrypoint for the Billing Events Worker Lambda function.
//
// The worker consumes invoice lifecycle messages published by the webhook
// endpoint to the billing-events SQS queue. Each message is logged with its
// customer and subscription identifiers and counted in CloudWatch under the
// BillingEvent metric, dimensioned by event type.
//
// Handler flow:
//
//	For each SQS message in the batch:
//	  1. Unmarshal BillingEvent from the message body.
//	  2. Log the event (warn level for failed payments).
//	  3. Publish the BillingEvent metric.
//
// Malformed messages are acknowledged. Metric failures are reported as
// partial batch failures so SQS redelivers only those messages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/kelseyhightower/envconfig"

	"litmus/internal/config"
	"litmus/internal/core"
	"litmus/internal/types"
)

const (
	eventPaymentFailed = "invoice.payment_failed"
	putMetricTimeout   = 2 * time.Second
)

// workerConfig is the subset of environment the worker reads.
type workerConfig struct {
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Litmus"`
	EndpointURL     string `envconfig:"AWS_ENDPOINT_URL"`
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// loadWorkerConfig resolves _SSM_PARAM pointers outside local environments and
// then reads the worker settings.
func loadWorkerConfig(provider config.SecretProvider) (workerConfig, error) {
	var cfg workerConfig
	if err := config.ResolveSecrets(provider); err != nil {
		return cfg, err
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read worker configuration: %w", err)
	}
	return cfg, nil
}

// secretProvider returns the SSM provider for deployed environments and nil
// for local runs.
func secretProvider() config.SecretProvider {
	env := os.Getenv("APP_ENV")
	if env == "" || env == "local" {
		return nil
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return config.NewSSMProvider(region)
}

// Handler holds the dependencies for the billing events worker.
type Handler struct {
	cw        core.CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewHandler creates a Handler. An empty namespace falls back to the default
// metric prefix.
func NewHandler(cw core.CloudWatchClient, namespace string, logger *slog.Logger) *Handler {
	if namespace == "" {
		namespace = types.DefaultMetricPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cw: cw, namespace: namespace, logger: logger}
}

// Handle processes an SQS event containing one or more billing events.
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

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var evt types.BillingEvent
	if err := json.Unmarshal([]byte(record.Body), &evt); err != nil || evt.EventType == "" {
		// Permanent parse failure: acknowledge so it is not redelivered.
		h.logger.Error("discarding malformed billing event",
			"message_id", record.MessageId,
			"error", errString(err),
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", evt.EventID,
		"event_type", evt.EventType,
		"customer_id", evt.CustomerID,
		"subscription_id", evt.SubscriptionID,
		"request_id", evt.RequestID,
	)

	if evt.EventType == eventPaymentFailed {
		logger.Warn("invoice payment failed",
			"email", evt.Email,
			"amount_cents", evt.AmountCents,
			"currency", evt.Currency,
		)
	} else {
		logger.Info("billing event received",
			"amount_cents", evt.AmountCents,
			"currency", evt.Currency,
			"occurred_at", evt.OccurredAt,
		)
	}

	return h.putMetric(ctx, evt.EventType)
}

func (h *Handler) putMetric(ctx context.Context, eventType string) error {
	ctx, cancel := context.WithTimeout(ctx, putMetricTimeout)
	defer cancel()

	_, err := h.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(h.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricBillingEvent),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(types.DimEventType), Value: aws.String(eventType)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put %s metric: %w", types.MetricBillingEvent, err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return "missing event_type"
	}
	return err.Error()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	cfg, err := loadWorkerConfig(secretProvider())
	if err != nil {
		slog.Error("failed to load worker configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("Billing Events Worker initializing (cold start)")

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	handler := NewHandler(cwClient, cfg.MetricNamespace, logger)

	logger.Info("Billing Events Worker initialized", "metric_namespace", cfg.MetricNamespace)

	lambda.Start(handler.Handle)
}
