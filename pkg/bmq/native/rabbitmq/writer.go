package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

const (
	publishTimeout = 5 * time.Second
	confirmBuffer  = 256
)

type pendingPublish struct {
	tag    uint64
	guid   bmqt.MessageGUID
	handle uint64
}

// writer publishes in confirm mode. Delivery tags count successful publishes on the
// channel, so the pending list is ordered and confirmations pop it from the front.
type writer struct {
	id    bridge.QueueID
	ch    amqpChannel
	topo  topology
	onAck func(bridge.Ack)

	mu      sync.Mutex
	nextTag uint64
	pending []pendingPublish
	closed  bool
	done    chan struct{}
}

func newWriter(id bridge.QueueID, ch amqpChannel, topo topology, onAck func(bridge.Ack)) (*writer, error) {
	if err := ch.Confirm(false); err != nil {
		return nil, err
	}

	w := &writer{
		id:    id,
		ch:    ch,
		topo:  topo,
		onAck: onAck,
		done:  make(chan struct{}),
	}

	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	go w.pump(confirms)

	return w, nil
}

func (w *writer) publish(msg *bridge.PutMessage, pub amqp.Publishing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return amqp.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := w.ch.PublishWithContext(ctx, w.topo.exchange, w.topo.routingKey, false, false, pub); err != nil {
		return err
	}

	w.nextTag++
	w.pending = append(w.pending, pendingPublish{tag: w.nextTag, guid: msg.GUID, handle: msg.AckHandle})

	return nil
}

func (w *writer) pump(confirms <-chan amqp.Confirmation) {
	defer close(w.done)

	for c := range confirms {
		status := bmqt.AckSuccess
		if !c.Ack {
			status = bmqt.AckStorageFailure
		}

		for _, p := range w.settle(c.DeliveryTag) {
			w.ack(p, status)
		}
	}

	// The channel is gone; nothing outstanding will ever be confirmed.
	w.mu.Lock()
	w.closed = true
	rest := w.pending
	w.pending = nil
	w.mu.Unlock()

	for _, p := range rest {
		w.ack(p, bmqt.AckNotConnected)
	}
}

func (w *writer) settle(tag uint64) []pendingPublish {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for n < len(w.pending) && w.pending[n].tag <= tag {
		n++
	}

	settled := w.pending[:n:n]
	w.pending = w.pending[n:]

	return settled
}

func (w *writer) ack(p pendingPublish, status bmqt.AckResult) {
	w.onAck(bridge.Ack{
		QueueID: w.id,
		GUID:    p.guid,
		Status:  status.Ordinal(),
		Handle:  p.handle,
	})
}
