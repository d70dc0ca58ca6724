package jetstream

import (
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

const (
	maxPendingPublishes = 4096
	closeGrace          = 5 * time.Second
)

var errWriterClosed = errors.New("writer closed")

type pendingAck struct {
	future   nats.PubAckFuture
	guid     bmqt.MessageGUID
	handle   uint64
	deadline time.Time
}

// writer publishes asynchronously and settles acks in post order on its own
// goroutine.
type writer struct {
	id         bridge.QueueID
	js         jetStream
	subject    string
	ackTimeout time.Duration
	onAck      func(bridge.Ack)

	mu      sync.Mutex
	closed  bool
	pending chan pendingAck
	abort   chan struct{}
	done    chan struct{}
}

// newWriter tracks at most backlog unsettled publishes; an ack not received within
// ackTimeout of its post settles as Timeout.
func newWriter(
	id bridge.QueueID,
	js jetStream,
	subject string,
	backlog int,
	ackTimeout time.Duration,
	onAck func(bridge.Ack),
) *writer {
	w := &writer{
		id:         id,
		js:         js,
		subject:    subject,
		ackTimeout: ackTimeout,
		onAck:      onAck,
		pending:    make(chan pendingAck, backlog),
		abort:      make(chan struct{}),
		done:       make(chan struct{}),
	}

	go w.pump()

	return w
}

func (w *writer) publish(put *bridge.PutMessage, msg *nats.Msg) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWriterClosed
	}

	// Only publish sends on pending and it holds mu, so free room stays free.
	if len(w.pending) == cap(w.pending) {
		return nats.ErrTooManyStalledMsgs
	}

	future, err := w.js.PublishMsgAsync(msg)
	if err != nil {
		return err
	}

	p := pendingAck{
		future:   future,
		guid:     put.GUID,
		handle:   put.AckHandle,
		deadline: time.Now().Add(w.ackTimeout),
	}

	select {
	case w.pending <- p:
		return nil
	default:
		return nats.ErrTooManyStalledMsgs
	}
}

func (w *writer) pump() {
	defer close(w.done)

	for p := range w.pending {
		w.ack(p, w.await(p))
	}
}

func (w *writer) await(p pendingAck) bmqt.AckResult {
	timer := time.NewTimer(time.Until(p.deadline))
	defer timer.Stop()

	select {
	case <-p.future.Ok():
		return bmqt.AckSuccess
	case err := <-p.future.Err():
		return ackStatusFor(err)
	case <-timer.C:
		return bmqt.AckTimeout
	case <-w.abort:
		return bmqt.AckNotConnected
	}
}

// close stops accepting posts and waits up to grace for outstanding acks. Posts
// still unsettled after that are reported NotConnected.
func (w *writer) close(grace time.Duration) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done

		return
	}

	w.closed = true
	close(w.pending)
	w.mu.Unlock()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-w.done:
	case <-timer.C:
		close(w.abort)
		<-w.done
	}
}

func (w *writer) ack(p pendingAck, status bmqt.AckResult) {
	w.onAck(bridge.Ack{
		QueueID: w.id,
		GUID:    p.guid,
		Status:  status.Ordinal(),
		Handle:  p.handle,
	})
}

func ackStatusFor(err error) bmqt.AckResult {
	switch {
	case errors.Is(err, nats.ErrTimeout):
		return bmqt.AckTimeout
	case errors.Is(err, nats.ErrNoResponders), errors.Is(err, nats.ErrNoStreamResponse):
		return bmqt.AckStorageFailure
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrConnectionReconnecting):
		return bmqt.AckNotConnected
	default:
		return bmqt.AckUnknown
	}
}
