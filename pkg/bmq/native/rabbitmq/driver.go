// Package rabbitmq is the native driver for amqp://, amqps:// and tcp:// broker
// URIs. Each queue URI bmq://<domain>/<queue> maps to a durable RabbitMQ queue bound
// to a direct exchange per domain; posts use publisher confirms for acks.
package rabbitmq

import (
	"fmt"
	"net/url"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

var schemes = []string{"amqp", "amqps", "tcp"}

func init() {
	bridge.Register(driver{dial: dialAMQP}, schemes...)
}

type driver struct {
	dial dialer
}

func (d driver) Open(cfg bridge.NativeConfig, cb bridge.Callbacks) (bridge.Native, error) {
	uri, err := brokerURL(cfg.URI)
	if err != nil {
		return nil, err
	}

	return newSession(cfg, cb, uri, d.dial), nil
}

// brokerURL turns a broker URI into an AMQP URL. tcp://host:port is plain AMQP
// with the broker's default credentials.
func brokerURL(u *url.URL) (string, error) {
	target := *u
	if target.Scheme == "tcp" {
		target.Scheme = "amqp"
	}

	parsed, err := amqp.ParseURI(target.String())
	if err != nil {
		return "", fmt.Errorf("parse broker uri: %w", err)
	}

	return parsed.String(), nil
}
