package bmq

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

type sessionOptions struct {
	logger         logging.Logger
	metrics        Metrics
	tracerProvider trace.TracerProvider
	reconnect      config.BackoffConfig
	circuitBreaker config.CircuitBreakerConfig
}

// SessionOption configures the ambient collaborators of a session.
type SessionOption func(*sessionOptions)

// WithLogger returns a SessionOption which sets the logger used by the session and its driver.
func WithLogger(l logging.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = l
	}
}

// WithMetrics returns a SessionOption which sets the metrics recorder.
func WithMetrics(m Metrics) SessionOption {
	return func(o *sessionOptions) {
		o.metrics = m
	}
}

// WithTracerProvider returns a SessionOption which sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) SessionOption {
	return func(o *sessionOptions) {
		o.tracerProvider = tp
	}
}

// WithReconnect returns a SessionOption which sets the driver reconnect backoff.
func WithReconnect(cfg config.BackoffConfig) SessionOption {
	return func(o *sessionOptions) {
		o.reconnect = cfg
	}
}

// WithCircuitBreaker returns a SessionOption which sets the breaker guarding driver reconnects.
func WithCircuitBreaker(cfg config.CircuitBreakerConfig) SessionOption {
	return func(o *sessionOptions) {
		o.circuitBreaker = cfg
	}
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		logger:         logging.Nop(),
		metrics:        &NoOpMetrics{},
		reconnect:      config.DefaultBackoffConfig(),
		circuitBreaker: config.DefaultCircuitBreakerConfig(),
	}
}

// QueueOption adjusts queue options passed to ConfigureQueue.
type QueueOption func(*bmqt.QueueOptions)

func WithMaxUnconfirmedMessages(n int64) QueueOption {
	return func(o *bmqt.QueueOptions) {
		o.MaxUnconfirmedMessages = n
	}
}

func WithMaxUnconfirmedBytes(n int64) QueueOption {
	return func(o *bmqt.QueueOptions) {
		o.MaxUnconfirmedBytes = n
	}
}

func WithConsumerPriority(p int32) QueueOption {
	return func(o *bmqt.QueueOptions) {
		o.ConsumerPriority = p
	}
}

func WithSuspendsOnBadHostHealth(v bool) QueueOption {
	return func(o *bmqt.QueueOptions) {
		o.SuspendsOnBadHostHealth = v
	}
}
