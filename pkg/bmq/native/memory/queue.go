package memory

import (
	"slices"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

type storedMessage struct {
	seq         uint64
	guid        bmqt.MessageGUID
	payload     []byte
	compression bmqt.CompressionType
	properties  bmqt.MessageProperties
	size        int64
}

type consumer struct {
	session   *session
	id        bridge.QueueID
	opts      bmqt.QueueOptions
	suspended bool

	unconfirmedMessages int64
	unconfirmedBytes    int64
}

func (c *consumer) active() bool {
	return !c.suspended && c.opts.MaxUnconfirmedMessages > 0 && c.opts.MaxUnconfirmedBytes > 0
}

// hasCapacity admits one message past the byte limit when nothing is outstanding so
// oversized messages are not stuck forever.
func (c *consumer) hasCapacity(size int64) bool {
	if c.unconfirmedMessages >= c.opts.MaxUnconfirmedMessages {
		return false
	}

	return c.unconfirmedBytes == 0 || c.unconfirmedBytes+size <= c.opts.MaxUnconfirmedBytes
}

type delivery struct {
	msg      *storedMessage
	consumer *consumer
}

// queue holds messages in arrival order. Messages go to the highest priority active
// readers, round-robin among equals, within each reader's unconfirmed limits.
type queue struct {
	uri       string
	maxDepth  int
	seq       uint64
	pending   []*storedMessage
	inflight  map[bmqt.MessageGUID]*delivery
	consumers []*consumer
	cursor    int
}

func newQueue(uri string, maxDepth int) *queue {
	return &queue{
		uri:      uri,
		maxDepth: maxDepth,
		inflight: make(map[bmqt.MessageGUID]*delivery),
	}
}

func (q *queue) depth() int {
	return len(q.pending) + len(q.inflight)
}

func (q *queue) full() bool {
	return q.maxDepth > 0 && q.depth() >= q.maxDepth
}

func (q *queue) enqueueLocked(msg *storedMessage) {
	q.seq++
	msg.seq = q.seq
	q.pending = append(q.pending, msg)
}

func (q *queue) dispatchLocked() {
	for len(q.pending) > 0 {
		msg := q.pending[0]

		c := q.nextConsumer(msg.size)
		if c == nil {
			return
		}

		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.inflight[msg.guid] = &delivery{msg: msg, consumer: c}

		c.unconfirmedMessages++
		c.unconfirmedBytes += msg.size
		c.session.deliverLocked(c.id, msg)
	}
}

func (q *queue) nextConsumer(size int64) *consumer {
	var (
		top   int32
		found bool
	)

	for _, c := range q.consumers {
		if !c.active() {
			continue
		}

		if !found || c.opts.ConsumerPriority > top {
			top = c.opts.ConsumerPriority
			found = true
		}
	}

	if !found {
		return nil
	}

	n := len(q.consumers)
	for i := range n {
		idx := (q.cursor + i) % n
		c := q.consumers[idx]

		if c.active() && c.opts.ConsumerPriority == top && c.hasCapacity(size) {
			q.cursor = idx + 1

			return c
		}
	}

	return nil
}

func (q *queue) confirmLocked(c *consumer, guid bmqt.MessageGUID) bool {
	d, ok := q.inflight[guid]
	if !ok || d.consumer != c {
		return false
	}

	delete(q.inflight, guid)

	c.unconfirmedMessages--
	c.unconfirmedBytes -= d.msg.size

	q.dispatchLocked()

	return true
}

// removeConsumerLocked detaches c and puts its unconfirmed messages back at the
// head of the queue in their original order.
func (q *queue) removeConsumerLocked(c *consumer) {
	q.consumers = slices.DeleteFunc(q.consumers, func(x *consumer) bool { return x == c })
	if q.cursor > len(q.consumers) {
		q.cursor = 0
	}

	var redeliver []*storedMessage

	for guid, d := range q.inflight {
		if d.consumer == c {
			redeliver = append(redeliver, d.msg)
			delete(q.inflight, guid)
		}
	}

	slices.SortFunc(redeliver, func(a, b *storedMessage) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})

	q.pending = append(redeliver, q.pending...)

	q.dispatchLocked()
}
