package config

import (
	"time"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

// Compile time variables are set by -ldflags.
var (
	ClientVersion string
	CommitSHA     string
)

const (
	DefaultBrokerURI = "tcp://localhost:30114"
	DefaultTimeout   = 300 * time.Second
)

type (
	ClientConfig struct {
		AppConfig      AppConfig            `json:"app_config"`
		Broker         BrokerConfig         `json:"broker"`
		Logging        LoggingConfig        `json:"logging"`
		Reconnect      BackoffConfig        `json:"reconnect"`
		CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	}

	AppConfig struct {
		ClientName    string `envconfig:"BMQ_CLIENT_NAME" default:"go-blazingmq" json:"client_name"`
		ClientVersion string `envconfig:"BMQ_CLIENT_VERSION" default:"0.0.0" json:"client_version"`
		CommitSHA     string `envconfig:"BMQ_COMMIT_SHA" default:"unknown" json:"commit_sha"`
	}

	BrokerConfig struct {
		URI         string               `envconfig:"BMQ_BROKER_URI" default:"tcp://localhost:30114" json:"uri"`
		Timeout     time.Duration        `envconfig:"BMQ_TIMEOUT" default:"300s" json:"timeout"`
		Compression bmqt.CompressionType `envconfig:"BMQ_COMPRESSION" default:"none" json:"compression"`
	}

	LoggingConfig struct {
		Level string `envconfig:"BMQ_LOG_LEVEL" default:"info" json:"level"`
	}

	BackoffConfig struct {
		// BaseDelay is the amount of time to backoff after the first failure.
		BaseDelay time.Duration `envconfig:"BMQ_RECONNECT_BASE_DELAY" default:"1s" json:"base_delay"`
		// Multiplier is the factor with which to multiply backoffs after a
		// failed retry. Should ideally be greater than 1.
		Multiplier float64 `envconfig:"BMQ_RECONNECT_MULTIPLIER" default:"1.6" json:"multiplier"`
		// Jitter is the factor with which backoffs are randomized.
		Jitter float64 `envconfig:"BMQ_RECONNECT_JITTER" default:"0.2" json:"jitter"`
		// MaxDelay is the upper bound of backoff delay.
		MaxDelay time.Duration `envconfig:"BMQ_RECONNECT_MAX_DELAY" default:"30s" json:"max_delay"`
		// MaxAttempts bounds reconnect attempts; zero retries forever.
		MaxAttempts int `envconfig:"BMQ_RECONNECT_MAX_ATTEMPTS" default:"0" json:"max_attempts"`
	}

	CircuitBreakerConfig struct {
		MaxRequests      uint32        `envconfig:"BMQ_BREAKER_MAX_REQUESTS" default:"1" json:"max_requests"`
		Interval         time.Duration `envconfig:"BMQ_BREAKER_INTERVAL" default:"60s" json:"interval"`
		Timeout          time.Duration `envconfig:"BMQ_BREAKER_TIMEOUT" default:"30s" json:"timeout"`
		FailureThreshold uint32        `envconfig:"BMQ_BREAKER_FAILURE_THRESHOLD" default:"5" json:"failure_threshold"`
	}
)

// DefaultBackoffConfig mirrors the envconfig defaults for callers that skip Init.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  time.Second,
		Multiplier: 1.6,
		Jitter:     0.2,
		MaxDelay:   30 * time.Second,
	}
}

// DefaultCircuitBreakerConfig mirrors the envconfig defaults for callers that skip Init.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
