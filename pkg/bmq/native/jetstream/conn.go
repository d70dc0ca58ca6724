package jetstream

import (
	"github.com/nats-io/nats.go"
)

// jetStream is the part of nats.JetStreamContext the driver uses.
type jetStream interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	PublishMsgAsync(m *nats.Msg, opts ...nats.PubOpt) (nats.PubAckFuture, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// conn is the part of *nats.Conn the driver uses.
type conn interface {
	jetStream() (jetStream, error)
	IsConnected() bool
	Close()
}

type natsConn struct {
	*nats.Conn
}

func (c natsConn) jetStream() (jetStream, error) {
	return c.JetStream(nats.PublishAsyncMaxPending(maxPendingPublishes))
}

// connector dials the server at url.
type connector func(url string, opts ...nats.Option) (conn, error)

func connectNATS(url string, opts ...nats.Option) (conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	return natsConn{Conn: nc}, nil
}
