package bridge

import (
	"slices"
	"sync"
	"time"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

// AckFunc receives the broker verdict for one post.
type AckFunc func(*bmqt.AckEvent)

type ackContext struct {
	handle   uint64
	queueURI string
	guid     bmqt.MessageGUID
	onAck    AckFunc
	postedAt time.Time
}

// ArenaStats counts ack contexts over the life of a session.
type ArenaStats struct {
	Created   uint64
	Reclaimed uint64
	Live      int
}

// ackArena owns per-post callback contexts. Only the handle crosses the native
// boundary; take removes the entry so each context is reclaimed exactly once.
type ackArena struct {
	mu        sync.Mutex
	next      uint64
	entries   map[uint64]*ackContext
	created   uint64
	reclaimed uint64
}

func newAckArena() *ackArena {
	return &ackArena{entries: make(map[uint64]*ackContext)}
}

func (a *ackArena) insert(queueURI string, guid bmqt.MessageGUID, onAck AckFunc) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next++
	a.entries[a.next] = &ackContext{
		handle:   a.next,
		queueURI: queueURI,
		guid:     guid,
		onAck:    onAck,
		postedAt: time.Now(),
	}
	a.created++

	return a.next
}

func (a *ackArena) take(handle uint64) (*ackContext, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[handle]
	if !ok {
		return nil, false
	}

	delete(a.entries, handle)
	a.reclaimed++

	return entry, true
}

// drain removes every live context in post order.
func (a *ackArena) drain() []*ackContext {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*ackContext, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry)
	}

	clear(a.entries)
	a.reclaimed += uint64(len(out))

	slices.SortFunc(out, func(x, y *ackContext) int {
		switch {
		case x.handle < y.handle:
			return -1
		case x.handle > y.handle:
			return 1
		default:
			return 0
		}
	})

	return out
}

func (a *ackArena) stats() ArenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return ArenaStats{Created: a.created, Reclaimed: a.reclaimed, Live: len(a.entries)}
}
