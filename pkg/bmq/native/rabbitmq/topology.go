package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

const exchangePrefix = "bmq."

// topology maps a queue URI onto RabbitMQ objects: one direct exchange per domain
// and one durable queue per queue URI, bound by the queue name.
type topology struct {
	exchange   string
	queue      string
	routingKey string
}

func topologyFor(uri string) (topology, error) {
	u, err := bmqt.ParseURI(uri)
	if err != nil {
		return topology{}, err
	}

	return topology{
		exchange:   exchangePrefix + u.Domain,
		queue:      u.Domain + "." + u.Queue,
		routingKey: u.Queue,
	}, nil
}

func (t topology) declare(ch amqpChannel) error {
	if err := ch.ExchangeDeclare(t.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(t.queue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.QueueBind(t.queue, t.routingKey, t.exchange, false, nil)
}
