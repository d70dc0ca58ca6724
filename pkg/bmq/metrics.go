package bmq

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/architeacher/go-blazingmq"
)

type (
	// Metrics records client side measurements.
	Metrics interface {
		RecordOperation(ctx context.Context, op, result string, duration time.Duration)
		RecordPost(ctx context.Context, queueURI, result string, payloadSize int)
		RecordAck(ctx context.Context, queueURI, status string, latency time.Duration)
		RecordMessage(ctx context.Context, queueURI string, payloadSize int)
		RecordSessionEvent(ctx context.Context, eventType string)
	}

	OTELMetrics struct {
		meter metric.Meter

		operationTotal    metric.Int64Counter
		operationDuration metric.Float64Histogram
		postTotal         metric.Int64Counter
		postBytes         metric.Int64Histogram
		ackTotal          metric.Int64Counter
		ackLatency        metric.Float64Histogram
		messageTotal      metric.Int64Counter
		messageBytes      metric.Int64Histogram
		sessionEventTotal metric.Int64Counter
	}
)

// NewOTELMetrics creates instruments on a meter from provider.
func NewOTELMetrics(provider metric.MeterProvider) (*OTELMetrics, error) {
	om := &OTELMetrics{
		meter: provider.Meter(instrumentationName),
	}

	if err := om.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

func (om *OTELMetrics) initializeMetrics() error {
	var err error

	om.operationTotal, err = om.meter.Int64Counter(
		"bmq_operations_total",
		metric.WithDescription("Total number of blocking session operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_operations_total counter: %w", err)
	}

	om.operationDuration, err = om.meter.Float64Histogram(
		"bmq_operation_duration_seconds",
		metric.WithDescription("Blocking session operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_operation_duration_seconds histogram: %w", err)
	}

	om.postTotal, err = om.meter.Int64Counter(
		"bmq_posts_total",
		metric.WithDescription("Total number of posted messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_posts_total counter: %w", err)
	}

	om.postBytes, err = om.meter.Int64Histogram(
		"bmq_post_payload_bytes",
		metric.WithDescription("Posted payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_post_payload_bytes histogram: %w", err)
	}

	om.ackTotal, err = om.meter.Int64Counter(
		"bmq_acks_total",
		metric.WithDescription("Total number of acknowledgements received"),
		metric.WithUnit("{ack}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_acks_total counter: %w", err)
	}

	om.ackLatency, err = om.meter.Float64Histogram(
		"bmq_ack_latency_seconds",
		metric.WithDescription("Time from post to acknowledgement in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_ack_latency_seconds histogram: %w", err)
	}

	om.messageTotal, err = om.meter.Int64Counter(
		"bmq_messages_received_total",
		metric.WithDescription("Total number of messages delivered to readers"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_messages_received_total counter: %w", err)
	}

	om.messageBytes, err = om.meter.Int64Histogram(
		"bmq_message_payload_bytes",
		metric.WithDescription("Received payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_message_payload_bytes histogram: %w", err)
	}

	om.sessionEventTotal, err = om.meter.Int64Counter(
		"bmq_session_events_total",
		metric.WithDescription("Total number of session events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create bmq_session_events_total counter: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordOperation(ctx context.Context, op, result string, duration time.Duration) {
	attrs := metric.WithAttributes(OperationAttr(op), ResultAttr(result))

	om.operationTotal.Add(ctx, 1, attrs)
	om.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (om *OTELMetrics) RecordPost(ctx context.Context, queueURI, result string, payloadSize int) {
	attrs := metric.WithAttributes(QueueAttr(queueURI), ResultAttr(result))

	om.postTotal.Add(ctx, 1, attrs)
	om.postBytes.Record(ctx, int64(payloadSize), attrs)
}

func (om *OTELMetrics) RecordAck(ctx context.Context, queueURI, status string, latency time.Duration) {
	attrs := metric.WithAttributes(QueueAttr(queueURI), ResultAttr(status))

	om.ackTotal.Add(ctx, 1, attrs)
	om.ackLatency.Record(ctx, latency.Seconds(), attrs)
}

func (om *OTELMetrics) RecordMessage(ctx context.Context, queueURI string, payloadSize int) {
	attrs := metric.WithAttributes(QueueAttr(queueURI))

	om.messageTotal.Add(ctx, 1, attrs)
	om.messageBytes.Record(ctx, int64(payloadSize), attrs)
}

func (om *OTELMetrics) RecordSessionEvent(ctx context.Context, eventType string) {
	om.sessionEventTotal.Add(ctx, 1, metric.WithAttributes(EventTypeAttr(eventType)))
}
