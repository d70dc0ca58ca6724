// Package memory is an in-process broker and the native driver for mem:// URIs.
// It keeps queues, readers and writers in memory and reproduces the session and
// queue semantics of a real broker closely enough to test applications against.
package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

const Scheme = "mem"

var ErrBrokerNotFound = errors.New("no in-process broker with that name")

var (
	brokers   sync.Map // name -> *Broker
	brokerSeq atomic.Int64
)

func init() {
	bridge.Register(bridge.DriverFunc(open), Scheme)
}

// Broker is an in-process message broker. All state is guarded by mu.
type Broker struct {
	opts options

	mu       sync.Mutex
	queues   map[string]*queue
	sessions map[*session]struct{}
	healthy  bool
	closed   bool
}

// NewBroker creates a broker and registers it under mem://<name>.
func NewBroker(opts ...Option) *Broker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.name == "" {
		o.name = fmt.Sprintf("broker-%d", brokerSeq.Add(1))
	}

	b := &Broker{
		opts:     o,
		queues:   make(map[string]*queue),
		sessions: make(map[*session]struct{}),
		healthy:  true,
	}

	brokers.Store(o.name, b)

	return b
}

// URI is the broker URI sessions connect with.
func (b *Broker) URI() string {
	return Scheme + "://" + b.opts.name
}

// Close disconnects every session and unregisters the broker.
func (b *Broker) Close() {
	brokers.CompareAndDelete(b.opts.name, b)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for s := range b.sessions {
		s.disconnectLocked()
	}
}

// SetHostHealth flips the broker host health. Readers that asked to be suspended on
// bad host health stop receiving messages until health is restored.
func (b *Broker) SetHostHealth(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.healthy == healthy {
		return
	}

	b.healthy = healthy

	hostEvent := bmqt.SessionEventHostUnhealthy
	queueEvent := bmqt.SessionEventQueueSuspended

	if healthy {
		hostEvent = bmqt.SessionEventHostHealthRestored
		queueEvent = bmqt.SessionEventQueueResumed
	}

	for s := range b.sessions {
		if s.started && !s.stopped {
			s.emitLocked(bridge.SessionEvent{Type: int32(hostEvent)})
		}
	}

	for _, q := range b.queues {
		for _, c := range q.consumers {
			if !c.opts.SuspendsOnBadHostHealth || c.suspended == !healthy {
				continue
			}

			c.suspended = !healthy
			c.session.emitLocked(bridge.SessionEvent{Type: int32(queueEvent), QueueID: c.id})
		}

		q.dispatchLocked()
	}
}

// QueueDepth is the number of messages on uri that are not yet confirmed.
func (b *Broker) QueueDepth(uri string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[uri]
	if !ok {
		return 0
	}

	return q.depth()
}

// Sessions is the number of sessions attached to the broker.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.sessions)
}

func (b *Broker) queueLocked(uri string) *queue {
	q, ok := b.queues[uri]
	if !ok {
		q = newQueue(uri, b.opts.maxQueueDepth)
		b.queues[uri] = q
	}

	return q
}

func lookupBroker(name string) (*Broker, bool) {
	v, ok := brokers.Load(name)
	if !ok {
		return nil, false
	}

	return v.(*Broker), true
}
