package bmq

import (
	"fmt"
	"os"

	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

// Config is the environment driven client configuration.
type Config = config.ClientConfig

// LoadConfig reads BMQ_* environment variables.
func LoadConfig() (*Config, error) {
	return config.Init()
}

// NewSessionBuilderFromConfig returns a builder preset from cfg, logging JSON to stderr
// at the configured level. Further options are applied after the preset ones.
func NewSessionBuilderFromConfig(cfg *Config, opts ...SessionOption) (*SessionBuilder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("unable to create logger: %w", err)
	}

	b := NewSessionBuilder().
		BrokerURI(cfg.Broker.URI).
		Timeout(cfg.Broker.Timeout).
		Compression(cfg.Broker.Compression).
		Options(
			WithLogger(logger),
			WithReconnect(cfg.Reconnect),
			WithCircuitBreaker(cfg.CircuitBreaker),
		).
		Options(opts...)

	return b, nil
}
