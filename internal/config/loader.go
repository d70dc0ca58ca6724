package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kelseyhightower/envconfig"
)

// Init config from environment variables.
func Init() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client configuration: %w", err)
	}

	if len(ClientVersion) != 0 {
		cfg.AppConfig.ClientVersion = ClientVersion
	}

	if len(CommitSHA) != 0 {
		cfg.AppConfig.CommitSHA = CommitSHA
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the client cannot honor.
func (c *ClientConfig) Validate() error {
	switch {
	case c.Broker.URI == "":
		return fmt.Errorf("broker uri is required")
	case c.Broker.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", c.Broker.Timeout)
	case !c.Broker.Compression.Valid():
		return fmt.Errorf("unsupported compression %s", c.Broker.Compression)
	case c.Reconnect.Multiplier < 1:
		return fmt.Errorf("reconnect multiplier must be at least 1, got %v", c.Reconnect.Multiplier)
	case c.Reconnect.MaxDelay < c.Reconnect.BaseDelay:
		return fmt.Errorf("reconnect max delay %s is below base delay %s", c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}

	return nil
}

// DumpConfig writes the configuration as indented JSON.
func DumpConfig(w io.Writer, cfg *ClientConfig) error {
	configJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = fmt.Fprintf(w, "%s\n", configJSON)

	return err
}
