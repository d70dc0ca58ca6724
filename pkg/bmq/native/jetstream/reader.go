package jetstream

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

const redeliveryDelay = 200 * time.Millisecond

// inbound is a delivered message with its settlement functions.
type inbound struct {
	header nats.Header
	data   []byte
	ack    func() error
	nak    func(delay time.Duration) error
}

type unconfirmed struct {
	ack  func() error
	size int64
}

// reader enforces MaxUnconfirmedMessages and MaxUnconfirmedBytes on the client:
// deliveries beyond capacity are returned to the server with a delay.
type reader struct {
	id         bridge.QueueID
	js         jetStream
	names      names
	onMessages func([]bridge.Message)
	logger     logging.Logger

	mu      sync.Mutex
	opts    bmqt.QueueOptions
	sub     *nats.Subscription
	pending map[bmqt.MessageGUID]unconfirmed
	bytes   int64
}

func newReader(id bridge.QueueID, js jetStream, n names, onMessages func([]bridge.Message), logger logging.Logger) *reader {
	return &reader{
		id:         id,
		js:         js,
		names:      n,
		onMessages: onMessages,
		logger:     logger,
		pending:    make(map[bmqt.MessageGUID]unconfirmed),
	}
}

func (r *reader) apply(opts bmqt.QueueOptions) error {
	r.mu.Lock()
	r.opts = opts
	sub := r.sub
	r.mu.Unlock()

	paused := opts.MaxUnconfirmedMessages == 0 || opts.MaxUnconfirmedBytes == 0

	switch {
	case paused && sub != nil:
		r.unsubscribe()
	case !paused && sub == nil:
		return r.subscribe()
	}

	return nil
}

func (r *reader) subscribe() error {
	sub, err := r.js.QueueSubscribe(r.names.subject, r.names.durable, r.onNATSMsg,
		nats.Bind(r.names.stream, r.names.durable),
		nats.ManualAck(),
	)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	return nil
}

func (r *reader) unsubscribe() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn().Err(err).Str("subject", r.names.subject).Msg("failed to unsubscribe")
		}
	}
}

func (r *reader) onNATSMsg(m *nats.Msg) {
	r.handle(inbound{
		header: m.Header,
		data:   m.Data,
		ack:    func() error { return m.Ack() },
		nak:    func(d time.Duration) error { return m.NakWithDelay(d) },
	})
}

func (r *reader) handle(in inbound) {
	msg, err := decodeMsg(r.id, in.header, in.data)
	if err != nil {
		r.logger.Error().Err(err).Str("subject", r.names.subject).Msg("dropping undecodable message")

		// Poison messages are acked and dropped.
		_ = in.ack()

		return
	}

	size := int64(len(msg.Payload))

	r.mu.Lock()
	if _, dup := r.pending[msg.GUID]; !dup && !r.hasCapacityLocked(size) {
		r.mu.Unlock()

		_ = in.nak(redeliveryDelay)

		return
	}

	if old, dup := r.pending[msg.GUID]; dup {
		r.bytes -= old.size
	}

	r.pending[msg.GUID] = unconfirmed{ack: in.ack, size: size}
	r.bytes += size
	r.mu.Unlock()

	r.onMessages([]bridge.Message{msg})
}

func (r *reader) hasCapacityLocked(size int64) bool {
	if int64(len(r.pending)) >= r.opts.MaxUnconfirmedMessages {
		return false
	}

	return r.bytes == 0 || r.bytes+size <= r.opts.MaxUnconfirmedBytes
}

func (r *reader) confirm(guid bmqt.MessageGUID) bool {
	r.mu.Lock()
	u, ok := r.pending[guid]
	if ok {
		delete(r.pending, guid)
		r.bytes -= u.size
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if err := u.ack(); err != nil {
		r.logger.Warn().Err(err).Str("guid", guid.String()).Msg("failed to ack message")

		return false
	}

	return true
}

func (r *reader) unconfirmedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}
