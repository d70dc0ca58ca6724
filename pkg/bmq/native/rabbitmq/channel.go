package rabbitmq

import (
	"context"
	"errors"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout = 30 * time.Second
	heartbeat          = 10 * time.Second
	connectionName     = "go-blazingmq"
)

// connection is the part of *amqp.Connection the driver uses. It exists so tests
// can stand in for a broker.
type connection interface {
	io.Closer

	channel() (amqpChannel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
}

// amqpChannel is the part of *amqp.Channel the driver uses.
//
//nolint:interfacebloat // mirrors the AMQP channel operations the driver needs
type amqpChannel interface {
	io.Closer

	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) channel() (amqpChannel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

// dialer opens a connection to uri within ctx.
type dialer func(ctx context.Context, uri string) (connection, error)

func dialAMQP(ctx context.Context, uri string) (connection, error) {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	conn, err := amqp.DialConfig(uri, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
		Properties: amqp.Table{
			"connection_name": connectionName,
		},
	})
	if err != nil {
		return nil, err
	}

	return amqpConnection{Connection: conn}, nil
}

func isClosedErr(err error) bool {
	return errors.Is(err, amqp.ErrClosed)
}
