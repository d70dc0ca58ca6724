package bridge

import (
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

// QueueRef identifies one successful open of a queue. A ref from an earlier open
// of the same URI does not match a later one.
type QueueRef struct {
	URI        string
	Mode       bmqt.QueueMode
	Generation uint64
}

type queueEntry struct {
	id        QueueID
	ref       QueueRef
	flags     bmqt.QueueFlags
	options   bmqt.QueueOptions
	committed bool
}

// queueRegistry maps URIs and correlation ids to queues. An id is reserved while its
// open is in flight so early deliveries can be routed; the URI becomes visible to
// posts only once the open succeeds. Callers hold Session.mu.
type queueRegistry struct {
	nextID     uint64
	generation uint64
	byURI      map[string]*queueEntry
	byID       map[QueueID]*queueEntry
}

func newQueueRegistry() *queueRegistry {
	return &queueRegistry{
		byURI: make(map[string]*queueEntry),
		byID:  make(map[QueueID]*queueEntry),
	}
}

func (r *queueRegistry) reserve(uri string, mode bmqt.QueueMode, opts bmqt.QueueOptions) *queueEntry {
	r.nextID++

	entry := &queueEntry{
		id:      QueueID(r.nextID),
		ref:     QueueRef{URI: uri, Mode: mode},
		flags:   mode.Flags(),
		options: opts,
	}

	r.byID[entry.id] = entry

	return entry
}

func (r *queueRegistry) commit(entry *queueEntry) QueueRef {
	r.generation++

	entry.ref.Generation = r.generation
	entry.committed = true
	r.byURI[entry.ref.URI] = entry

	return entry.ref
}

func (r *queueRegistry) abandon(entry *queueEntry) {
	if !entry.committed {
		delete(r.byID, entry.id)
	}
}

func (r *queueRegistry) resolve(ref QueueRef) (*queueEntry, bool) {
	entry, ok := r.byURI[ref.URI]
	if !ok || entry.ref.Generation != ref.Generation {
		return nil, false
	}

	return entry, true
}

func (r *queueRegistry) lookupURI(uri string) (*queueEntry, bool) {
	entry, ok := r.byURI[uri]

	return entry, ok
}

func (r *queueRegistry) uriOf(id QueueID) (string, bool) {
	entry, ok := r.byID[id]
	if !ok {
		return "", false
	}

	return entry.ref.URI, true
}

func (r *queueRegistry) remove(entry *queueEntry) {
	delete(r.byURI, entry.ref.URI)
	delete(r.byID, entry.id)
}

func (r *queueRegistry) clear() {
	clear(r.byURI)
	clear(r.byID)
}

func (r *queueRegistry) len() int { return len(r.byURI) }
