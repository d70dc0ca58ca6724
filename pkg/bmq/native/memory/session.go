package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/architeacher/go-blazingmq/internal/compression"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

type attachment struct {
	id       bridge.QueueID
	uri      string
	flags    bmqt.QueueFlags
	queue    *queue
	consumer *consumer
}

// session is the native side of one client session. Fields below the marker are
// guarded by broker.mu; callbacks run on the session's own dispatcher.
type session struct {
	broker *Broker
	cb     bridge.Callbacks
	codec  compression.Codec
	logger logging.Logger
	events *dispatcher

	stopCh   chan struct{}
	stopOnce sync.Once

	started      bool
	stopped      bool
	disconnected bool
	pending      map[string]bridge.QueueID
	open         map[string]bridge.QueueID
	attachments  map[bridge.QueueID]*attachment
}

func open(cfg bridge.NativeConfig, cb bridge.Callbacks) (bridge.Native, error) {
	name := cfg.URI.Host
	if name == "" {
		name = cfg.URI.Opaque
	}

	b, ok := lookupBroker(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBrokerNotFound, name)
	}

	codec, err := compression.New(cfg.Compression)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = b.opts.logger
	}

	s := &session{
		broker:      b,
		cb:          cb,
		codec:       codec,
		logger:      logger,
		events:      newDispatcher(),
		stopCh:      make(chan struct{}),
		pending:     make(map[string]bridge.QueueID),
		open:        make(map[string]bridge.QueueID),
		attachments: make(map[bridge.QueueID]*attachment),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.events.stop()

		return nil, fmt.Errorf("broker %q is closed", name)
	}

	b.sessions[s] = struct{}{}

	return s, nil
}

func (s *session) Start(ctx context.Context) int32 {
	if code := s.delay(ctx); code != 0 {
		return code
	}

	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.opts.refuseSessions || s.disconnected || s.stopped {
		return bmqt.GenericNotConnected.Ordinal()
	}

	if s.started {
		return 0
	}

	s.started = true
	s.emitLocked(bridge.SessionEvent{Type: int32(bmqt.SessionEventConnected)})

	if !b.healthy {
		s.emitLocked(bridge.SessionEvent{Type: int32(bmqt.SessionEventHostUnhealthy)})
	}

	s.logger.Debug().Str("broker", b.opts.name).Msg("in-process session connected")

	return 0
}

func (s *session) Stop() {
	s.shutdown()
}

func (s *session) OpenQueueSync(ctx context.Context, id bridge.QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32 {
	if _, err := bmqt.ParseURI(uri); err != nil {
		return bmqt.OpenQueueInvalidURI.Ordinal()
	}

	if !flags.Valid() {
		return bmqt.OpenQueueInvalidFlags.Ordinal()
	}

	if !opts.Valid() {
		return bmqt.OpenQueueInvalidArgument.Ordinal()
	}

	b := s.broker

	b.mu.Lock()

	if code := s.checkLocked(); code != 0 {
		b.mu.Unlock()

		return code
	}

	if _, ok := s.open[uri]; ok {
		b.mu.Unlock()

		return bmqt.OpenQueueAlreadyOpened.Ordinal()
	}

	if _, ok := s.pending[uri]; ok {
		b.mu.Unlock()

		return bmqt.OpenQueueAlreadyInProgress.Ordinal()
	}

	if s.idInUseLocked(id) {
		b.mu.Unlock()

		return bmqt.OpenQueueCorrelationIDNotUnique.Ordinal()
	}

	s.pending[uri] = id
	b.mu.Unlock()

	req := &openRequest{}

	if b.opts.operationDelay == 0 {
		return s.completeOpen(req, id, uri, flags, opts)
	}

	// The handshake keeps running after the caller gives up so a second open of the
	// same URI sees it in progress. An abandoned handshake never attaches.
	done := make(chan int32, 1)

	go func() {
		t := time.NewTimer(b.opts.operationDelay)
		defer t.Stop()

		select {
		case <-t.C:
			done <- s.completeOpen(req, id, uri, flags, opts)
		case <-s.stopCh:
			b.mu.Lock()
			delete(s.pending, uri)
			b.mu.Unlock()

			done <- bmqt.OpenQueueCanceled.Ordinal()
		}
	}()

	select {
	case code := <-done:
		return code
	case <-ctx.Done():
		b.mu.Lock()
		defer b.mu.Unlock()

		if req.finished {
			return req.code
		}

		req.abandoned = true

		return bridge.ContextResult(ctx)
	}
}

type openRequest struct {
	abandoned bool
	finished  bool
	code      int32
}

func (s *session) completeOpen(req *openRequest, id bridge.QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32 {
	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(s.pending, uri)

	req.finished = true
	req.code = s.attachLocked(req, id, uri, flags, opts)

	return req.code
}

func (s *session) attachLocked(req *openRequest, id bridge.QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32 {
	if req.abandoned {
		return bmqt.OpenQueueCanceled.Ordinal()
	}

	if code := s.checkLocked(); code != 0 {
		return code
	}

	b := s.broker
	q := b.queueLocked(uri)
	att := &attachment{id: id, uri: uri, flags: flags, queue: q}

	if flags.Has(bmqt.QueueFlagRead) {
		att.consumer = &consumer{
			session:   s,
			id:        id,
			opts:      opts,
			suspended: opts.SuspendsOnBadHostHealth && !b.healthy,
		}
		q.consumers = append(q.consumers, att.consumer)

		if att.consumer.suspended {
			s.emitLocked(bridge.SessionEvent{Type: int32(bmqt.SessionEventQueueSuspended), QueueID: id})
		}
	}

	s.open[uri] = id
	s.attachments[id] = att

	q.dispatchLocked()

	return 0
}

func (s *session) ConfigureQueueSync(ctx context.Context, id bridge.QueueID, opts bmqt.QueueOptions) int32 {
	if !opts.Valid() {
		return bmqt.ConfigureQueueInvalidArgument.Ordinal()
	}

	if code := s.delay(ctx); code != 0 {
		return code
	}

	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if code := s.checkLocked(); code != 0 {
		return code
	}

	att, ok := s.attachments[id]
	if !ok {
		return bmqt.ConfigureQueueInvalidQueue.Ordinal()
	}

	if c := att.consumer; c != nil {
		c.opts = opts

		suspended := opts.SuspendsOnBadHostHealth && !b.healthy
		if suspended != c.suspended {
			c.suspended = suspended

			ev := bmqt.SessionEventQueueResumed
			if suspended {
				ev = bmqt.SessionEventQueueSuspended
			}

			s.emitLocked(bridge.SessionEvent{Type: int32(ev), QueueID: id})
		}

		att.queue.dispatchLocked()
	}

	return 0
}

func (s *session) CloseQueueSync(ctx context.Context, id bridge.QueueID) int32 {
	if code := s.delay(ctx); code != 0 {
		return code
	}

	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if code := s.checkLocked(); code != 0 {
		return code
	}

	att, ok := s.attachments[id]
	if !ok {
		return bmqt.CloseQueueUnknownQueue.Ordinal()
	}

	s.detachLocked(att)

	return 0
}

func (s *session) Post(id bridge.QueueID, msg *bridge.PutMessage) int32 {
	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if code := s.checkLocked(); code != 0 {
		return code
	}

	att, ok := s.attachments[id]
	if !ok || !att.flags.Has(bmqt.QueueFlagWrite) {
		return bmqt.PostInvalidArgument.Ordinal()
	}

	q := att.queue
	if q.full() {
		s.ackLocked(id, msg, bmqt.AckLimitMessages)

		return 0
	}

	payload, err := s.codec.Encode(bytes.Clone(msg.Payload))
	if err != nil {
		s.logger.Error().Err(err).Str("queue", att.uri).Msg("failed to encode payload")

		return bmqt.PostUnknown.Ordinal()
	}

	q.enqueueLocked(&storedMessage{
		guid:        msg.GUID,
		payload:     payload,
		compression: s.codec.Type(),
		properties:  msg.Properties.Clone(),
		size:        int64(len(msg.Payload)),
	})

	s.ackLocked(id, msg, bmqt.AckSuccess)
	q.dispatchLocked()

	return 0
}

func (s *session) Confirm(id bridge.QueueID, guid bmqt.MessageGUID) int32 {
	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if code := s.checkLocked(); code != 0 {
		return code
	}

	att, ok := s.attachments[id]
	if !ok || att.consumer == nil {
		return bmqt.GenericInvalidArgument.Ordinal()
	}

	if !att.queue.confirmLocked(att.consumer, guid) {
		return bmqt.GenericInvalidArgument.Ordinal()
	}

	return 0
}

// Close releases the session. Callbacks in progress finish before it returns.
func (s *session) Close() error {
	s.shutdown()

	b := s.broker

	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()

	s.events.wait()

	return nil
}

func (s *session) shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		b := s.broker

		b.mu.Lock()
		s.stopped = true
		s.detachAllLocked()
		b.mu.Unlock()

		s.events.stop()
	})
}

// disconnectLocked is called when the broker goes away under a started session.
func (s *session) disconnectLocked() {
	if s.disconnected || s.stopped {
		return
	}

	s.disconnected = true
	s.detachAllLocked()

	if s.started {
		s.emitLocked(bridge.SessionEvent{
			Type:    int32(bmqt.SessionEventDisconnected),
			Status:  bmqt.GenericNotConnected.Ordinal(),
			Details: "broker closed",
		})
	}
}

func (s *session) detachAllLocked() {
	for _, att := range s.attachments {
		s.detachLocked(att)
	}
}

func (s *session) detachLocked(att *attachment) {
	delete(s.attachments, att.id)
	delete(s.open, att.uri)

	if att.consumer != nil {
		att.queue.removeConsumerLocked(att.consumer)
	}
}

func (s *session) checkLocked() int32 {
	if !s.started || s.stopped || s.disconnected || s.broker.closed {
		return bmqt.GenericNotConnected.Ordinal()
	}

	return 0
}

func (s *session) idInUseLocked(id bridge.QueueID) bool {
	if _, ok := s.attachments[id]; ok {
		return true
	}

	for _, pid := range s.pending {
		if pid == id {
			return true
		}
	}

	return false
}

func (s *session) delay(ctx context.Context) int32 {
	d := s.broker.opts.operationDelay
	if d == 0 {
		return 0
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return 0
	case <-ctx.Done():
		return bridge.ContextResult(ctx)
	case <-s.stopCh:
		return bmqt.GenericCanceled.Ordinal()
	}
}

func (s *session) emitLocked(ev bridge.SessionEvent) {
	cb := s.cb.OnSessionEvent
	if cb == nil {
		return
	}

	s.events.push(func() { cb(ev) })
}

func (s *session) ackLocked(id bridge.QueueID, msg *bridge.PutMessage, status bmqt.AckResult) {
	cb := s.cb.OnAck
	if cb == nil {
		return
	}

	ack := bridge.Ack{
		QueueID: id,
		GUID:    msg.GUID,
		Status:  status.Ordinal(),
		Handle:  msg.AckHandle,
	}

	s.events.push(func() { cb(ack) })
}

func (s *session) deliverLocked(id bridge.QueueID, msg *storedMessage) {
	cb := s.cb.OnMessages
	if cb == nil {
		return
	}

	payload, err := compression.Decode(msg.compression, msg.payload)
	if err != nil {
		s.logger.Error().Err(err).Str("guid", msg.guid.String()).Msg("failed to decode stored payload")

		return
	}

	delivered := bridge.Message{
		QueueID:    id,
		GUID:       msg.guid,
		Payload:    bytes.Clone(payload),
		Properties: msg.properties.Clone(),
	}

	s.events.push(func() { cb([]bridge.Message{delivered}) })
}
