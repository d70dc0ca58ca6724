package rabbitmq

import (
	"fmt"
	"math"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

const priorityArg = "x-priority"

// reader consumes one queue on its own channel. The prefetch count carries
// MaxUnconfirmedMessages and the consumer priority maps to x-priority. A reader
// with no capacity holds no consumer at all.
type reader struct {
	id         bridge.QueueID
	ch         amqpChannel
	topo       topology
	onMessages func([]bridge.Message)
	logger     logging.Logger

	mu       sync.Mutex
	unacked  map[bmqt.MessageGUID]amqp.Delivery
	tag      string
	gen      int
	consumer sync.WaitGroup
}

func newReader(id bridge.QueueID, ch amqpChannel, topo topology, onMessages func([]bridge.Message), logger logging.Logger) *reader {
	return &reader{
		id:         id,
		ch:         ch,
		topo:       topo,
		onMessages: onMessages,
		logger:     logger,
		unacked:    make(map[bmqt.MessageGUID]amqp.Delivery),
	}
}

func (r *reader) apply(opts bmqt.QueueOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tag != "" {
		if err := r.ch.Cancel(r.tag, false); err != nil {
			return err
		}

		r.tag = ""
	}

	if opts.MaxUnconfirmedMessages == 0 || opts.MaxUnconfirmedBytes == 0 {
		return nil
	}

	prefetch := int(min(opts.MaxUnconfirmedMessages, math.MaxUint16))
	if err := r.ch.Qos(prefetch, 0, false); err != nil {
		return err
	}

	r.gen++
	tag := fmt.Sprintf("bmq-%d-%d", r.id, r.gen)

	deliveries, err := r.ch.Consume(r.topo.queue, tag, false, false, false, false, amqp.Table{
		priorityArg: opts.ConsumerPriority,
	})
	if err != nil {
		return err
	}

	r.tag = tag
	r.consumer.Add(1)

	go r.loop(deliveries)

	return nil
}

func (r *reader) loop(deliveries <-chan amqp.Delivery) {
	defer r.consumer.Done()

	for d := range deliveries {
		msg, err := decodeDelivery(r.id, d)
		if err != nil {
			r.logger.Error().Err(err).Str("queue", r.topo.queue).Msg("dropping undecodable delivery")

			_ = d.Nack(false, false)

			continue
		}

		r.mu.Lock()
		r.unacked[msg.GUID] = d
		r.mu.Unlock()

		r.onMessages([]bridge.Message{msg})
	}
}

func (r *reader) confirm(guid bmqt.MessageGUID) bool {
	r.mu.Lock()
	d, ok := r.unacked[guid]
	delete(r.unacked, guid)
	r.mu.Unlock()

	if !ok {
		return false
	}

	if err := d.Ack(false); err != nil {
		r.logger.Warn().Err(err).Str("guid", guid.String()).Msg("failed to ack delivery")

		return false
	}

	return true
}

// wait blocks until every consumer loop has returned. Loops end when their
// delivery channel closes, which happens on cancel or channel close.
func (r *reader) wait() {
	r.consumer.Wait()
}
