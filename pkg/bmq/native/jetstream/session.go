package jetstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"github.com/architeacher/go-blazingmq/internal/compression"
	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/internal/shared/backoff"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

const (
	clientName   = "go-blazingmq"
	ackWait      = 5 * time.Minute
	dedupeWindow = 2 * time.Minute
	eventBacklog = 64
)

type attachment struct {
	id    bridge.QueueID
	uri   string
	names names
	flags bmqt.QueueFlags
	opts  bmqt.QueueOptions

	writer *writer
	reader *reader
}

func (a *attachment) close(grace time.Duration) {
	if a.reader != nil {
		a.reader.unsubscribe()
	}

	if a.writer != nil {
		a.writer.close(grace)
	}
}

type openResult struct {
	att *attachment
	err error
}

// session is a bridge.Native over one NATS connection. The NATS client reconnects
// on its own with the configured backoff; connection handlers become session events.
type session struct {
	url      string
	connect  connector
	cb       bridge.Callbacks
	codec    compression.Codec
	logger   logging.Logger
	timeout  time.Duration
	strategy backoff.Exponential
	breaker  *gobreaker.CircuitBreaker

	evMu       sync.RWMutex
	evClosed   bool
	events     chan bridge.SessionEvent
	eventsDone chan struct{}

	stopOnce sync.Once

	mu           sync.Mutex
	nc           conn
	js           jetStream
	started      bool
	stopped      bool
	disconnected bool
	attachments  map[bridge.QueueID]*attachment
	uris         map[string]bridge.QueueID
	pending      map[string]bridge.QueueID
	streams      map[string]struct{}
}

func newSession(cfg bridge.NativeConfig, cb bridge.Callbacks, connect connector) *session {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	// Validated by the bridge before any driver is asked to open.
	codec, _ := compression.New(cfg.Compression)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	s := &session{
		url:         cfg.URI.String(),
		connect:     connect,
		cb:          cb,
		codec:       codec,
		logger:      logger,
		timeout:     timeout,
		strategy:    backoff.NewExponentialStrategy(cfg.Reconnect),
		breaker:     newBreaker(cfg.CircuitBreaker, logger),
		events:      make(chan bridge.SessionEvent, eventBacklog),
		eventsDone:  make(chan struct{}),
		attachments: make(map[bridge.QueueID]*attachment),
		uris:        make(map[string]bridge.QueueID),
		pending:     make(map[string]bridge.QueueID),
		streams:     make(map[string]struct{}),
	}

	go s.dispatchEvents()

	return s
}

func newBreaker(cfg config.CircuitBreakerConfig, logger logging.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bmq-nats-connect",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

func (s *session) options(timeout time.Duration) []nats.Option {
	return []nats.Option{
		nats.Name(clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(s.strategy.Attempts()),
		nats.CustomReconnectDelay(s.strategy.Backoff),
		nats.DisconnectErrHandler(s.onDisconnect),
		nats.ReconnectHandler(s.onReconnect),
		nats.ClosedHandler(s.onClosed),
		nats.ErrorHandler(s.onAsyncError),
	}
}

type connectResult struct {
	nc  conn
	err error
}

func (s *session) Start(ctx context.Context) int32 {
	if ctx.Err() != nil {
		return bridge.ContextResult(ctx)
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	if timeout <= 0 {
		return bridge.ContextResult(ctx)
	}

	done := make(chan connectResult, 1)

	go func() {
		res, err := s.breaker.Execute(func() (any, error) {
			return s.connect(s.url, s.options(timeout)...)
		})
		if err != nil {
			done <- connectResult{err: err}

			return
		}

		done <- connectResult{nc: res.(conn)}
	}()

	var r connectResult

	select {
	case r = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.nc != nil {
				late.nc.Close()
			}
		}()

		return bridge.ContextResult(ctx)
	}

	if r.err != nil {
		s.logger.Error().Err(r.err).Msg("failed to connect to NATS")

		if errors.Is(r.err, gobreaker.ErrOpenState) {
			return bmqt.GenericRefused.Ordinal()
		}

		return bmqt.GenericNotConnected.Ordinal()
	}

	js, err := r.nc.jetStream()
	if err != nil {
		r.nc.Close()
		s.logger.Error().Err(err).Msg("JetStream unavailable")

		return bmqt.GenericNotSupported.Ordinal()
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		r.nc.Close()

		return bmqt.GenericCanceled.Ordinal()
	}

	s.nc = r.nc
	s.js = js
	s.started = true
	s.mu.Unlock()

	s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventConnected)})
	s.logger.Info().Msg("connected to NATS")

	return 0
}

func (s *session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		nc := s.nc
		atts := make([]*attachment, 0, len(s.attachments))
		for _, att := range s.attachments {
			atts = append(atts, att)
		}
		clear(s.attachments)
		clear(s.uris)
		s.mu.Unlock()

		for _, att := range atts {
			att.close(0)
		}

		if nc != nil {
			nc.Close()
		}

		s.evMu.Lock()
		s.evClosed = true
		close(s.events)
		s.evMu.Unlock()

		<-s.eventsDone
	})
}

func (s *session) Close() error {
	s.Stop()

	return nil
}

func (s *session) OpenQueueSync(ctx context.Context, id bridge.QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32 {
	n, err := namesFor(uri)
	if err != nil {
		return bmqt.OpenQueueInvalidURI.Ordinal()
	}

	if !flags.Valid() {
		return bmqt.OpenQueueInvalidFlags.Ordinal()
	}

	s.mu.Lock()

	js, code := s.jsLocked()
	if code != 0 {
		s.mu.Unlock()

		return code
	}

	if _, ok := s.uris[uri]; ok {
		s.mu.Unlock()

		return bmqt.OpenQueueAlreadyOpened.Ordinal()
	}

	if _, ok := s.pending[uri]; ok {
		s.mu.Unlock()

		return bmqt.OpenQueueAlreadyInProgress.Ordinal()
	}

	if _, ok := s.attachments[id]; ok {
		s.mu.Unlock()

		return bmqt.OpenQueueCorrelationIDNotUnique.Ordinal()
	}

	s.pending[uri] = id
	s.mu.Unlock()

	done := make(chan openResult, 1)

	go func() {
		att, err := s.attach(js, id, uri, n, flags, opts)
		done <- openResult{att: att, err: err}
	}()

	select {
	case r := <-done:
		return s.finishOpen(r, uri)
	case <-ctx.Done():
		go func() {
			if r := <-done; r.att != nil {
				r.att.close(0)
			}

			s.mu.Lock()
			delete(s.pending, uri)
			s.mu.Unlock()
		}()

		return bridge.ContextResult(ctx)
	}
}

func (s *session) finishOpen(r openResult, uri string) int32 {
	s.mu.Lock()
	delete(s.pending, uri)

	if r.err != nil {
		s.mu.Unlock()

		s.logger.Error().Err(r.err).Str("queue", uri).Msg("failed to open queue")

		return resultFor(r.err)
	}

	if s.stopped {
		s.mu.Unlock()
		r.att.close(0)

		return bmqt.OpenQueueCanceled.Ordinal()
	}

	s.attachments[r.att.id] = r.att
	s.uris[uri] = r.att.id
	s.mu.Unlock()

	return 0
}

func (s *session) attach(js jetStream, id bridge.QueueID, uri string, n names, flags bmqt.QueueFlags, opts bmqt.QueueOptions) (*attachment, error) {
	if err := s.ensureStream(js, n); err != nil {
		return nil, err
	}

	att := &attachment{id: id, uri: uri, names: n, flags: flags, opts: opts}

	if flags.Has(bmqt.QueueFlagRead) {
		_, err := js.AddConsumer(n.stream, &nats.ConsumerConfig{
			Durable:        n.durable,
			DeliverSubject: n.deliver,
			DeliverGroup:   n.durable,
			DeliverPolicy:  nats.DeliverAllPolicy,
			AckPolicy:      nats.AckExplicitPolicy,
			AckWait:        ackWait,
			FilterSubject:  n.subject,
		})
		if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
			return nil, err
		}

		att.reader = newReader(id, js, n, s.onMessages, s.logger)

		if err := att.reader.apply(opts); err != nil {
			return nil, err
		}
	}

	if flags.Has(bmqt.QueueFlagWrite) {
		att.writer = newWriter(id, js, n.subject, maxPendingPublishes, s.timeout, s.onAck)
	}

	return att, nil
}

func (s *session) ensureStream(js jetStream, n names) error {
	s.mu.Lock()
	_, ok := s.streams[n.stream]
	s.mu.Unlock()

	if ok {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:       n.stream,
		Subjects:   []string{n.subjects},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		Duplicates: dedupeWindow,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}

	s.mu.Lock()
	s.streams[n.stream] = struct{}{}
	s.mu.Unlock()

	return nil
}

func (s *session) ConfigureQueueSync(ctx context.Context, id bridge.QueueID, opts bmqt.QueueOptions) int32 {
	s.mu.Lock()

	if _, code := s.jsLocked(); code != 0 {
		s.mu.Unlock()

		return code
	}

	att, ok := s.attachments[id]
	if !ok {
		s.mu.Unlock()

		return bmqt.ConfigureQueueInvalidQueue.Ordinal()
	}

	att.opts = opts
	s.mu.Unlock()

	if att.reader == nil {
		return 0
	}

	done := make(chan error, 1)

	go func() { done <- att.reader.apply(opts) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error().Err(err).Str("queue", att.uri).Msg("failed to configure queue")

			return resultFor(err)
		}

		return 0
	case <-ctx.Done():
		return bridge.ContextResult(ctx)
	}
}

func (s *session) CloseQueueSync(ctx context.Context, id bridge.QueueID) int32 {
	s.mu.Lock()

	if _, code := s.jsLocked(); code != 0 {
		s.mu.Unlock()

		return code
	}

	att, ok := s.attachments[id]
	if !ok {
		s.mu.Unlock()

		return bmqt.CloseQueueUnknownQueue.Ordinal()
	}

	delete(s.attachments, id)
	delete(s.uris, att.uri)
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		defer close(done)

		att.close(closeGrace)
	}()

	select {
	case <-done:
		return 0
	case <-ctx.Done():
		return bridge.ContextResult(ctx)
	}
}

func (s *session) Post(id bridge.QueueID, put *bridge.PutMessage) int32 {
	s.mu.Lock()

	if _, code := s.jsLocked(); code != 0 {
		s.mu.Unlock()

		return code
	}

	att, ok := s.attachments[id]
	s.mu.Unlock()

	if !ok || att.writer == nil {
		return bmqt.PostInvalidArgument.Ordinal()
	}

	msg, err := newMsg(att.names.subject, put, s.codec)
	if err != nil {
		s.logger.Error().Err(err).Str("queue", att.uri).Msg("failed to encode message")

		return bmqt.PostInvalidArgument.Ordinal()
	}

	if err := att.writer.publish(put, msg); err != nil {
		s.logger.Warn().Err(err).Str("queue", att.uri).Msg("publish failed")

		if errors.Is(err, nats.ErrTooManyStalledMsgs) {
			return bmqt.PostBandwidthLimit.Ordinal()
		}

		return resultFor(err)
	}

	return 0
}

func (s *session) Confirm(id bridge.QueueID, guid bmqt.MessageGUID) int32 {
	s.mu.Lock()
	att, ok := s.attachments[id]
	s.mu.Unlock()

	if !ok || att.reader == nil {
		return bmqt.GenericInvalidArgument.Ordinal()
	}

	if !att.reader.confirm(guid) {
		return bmqt.GenericInvalidArgument.Ordinal()
	}

	return 0
}

func (s *session) jsLocked() (jetStream, int32) {
	if !s.started || s.stopped || s.disconnected || s.js == nil {
		return nil, bmqt.GenericNotConnected.Ordinal()
	}

	return s.js, 0
}

func (s *session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}

func (s *session) onDisconnect(_ *nats.Conn, err error) {
	if s.isStopped() {
		return
	}

	details := "connection closed"
	if err != nil {
		details = err.Error()
	}

	s.logger.Warn().Str("reason", details).Msg("lost connection to NATS")
	s.emit(bridge.SessionEvent{
		Type:    int32(bmqt.SessionEventConnectionLost),
		Status:  bmqt.GenericNotConnected.Ordinal(),
		Details: details,
	})
}

// onReconnect runs once the client is back. Subscriptions are restored by the
// client and consumers are durable on the server, so state is restored as well.
func (s *session) onReconnect(_ *nats.Conn) {
	if s.isStopped() {
		return
	}

	s.logger.Info().Msg("reconnected to NATS")
	s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventReconnected)})
	s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventStateRestored)})
}

func (s *session) onClosed(_ *nats.Conn) {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.mu.Unlock()

		return
	}

	s.disconnected = true
	s.mu.Unlock()

	s.emit(bridge.SessionEvent{
		Type:    int32(bmqt.SessionEventDisconnected),
		Status:  bmqt.GenericNotConnected.Ordinal(),
		Details: "reconnect attempts exhausted",
	})
}

func (s *session) onAsyncError(_ *nats.Conn, sub *nats.Subscription, err error) {
	ev := s.logger.Error().Err(err)
	if sub != nil {
		ev = ev.Str("subject", sub.Subject)
	}

	ev.Msg("asynchronous NATS error")

	s.emit(bridge.SessionEvent{
		Type:    int32(bmqt.SessionEventError),
		Status:  bmqt.GenericUnknown.Ordinal(),
		Details: err.Error(),
	})
}

func (s *session) emit(ev bridge.SessionEvent) {
	s.evMu.RLock()
	defer s.evMu.RUnlock()

	if s.evClosed {
		return
	}

	s.events <- ev
}

func (s *session) dispatchEvents() {
	defer close(s.eventsDone)

	for ev := range s.events {
		if s.cb.OnSessionEvent != nil {
			s.cb.OnSessionEvent(ev)
		}
	}
}

func (s *session) onAck(ack bridge.Ack) {
	if s.cb.OnAck != nil {
		s.cb.OnAck(ack)
	}
}

func (s *session) onMessages(msgs []bridge.Message) {
	if s.cb.OnMessages != nil {
		s.cb.OnMessages(msgs)
	}
}

// resultFor maps a NATS failure onto the generic result set, which every
// operation specific set includes.
func resultFor(err error) int32 {
	var apiErr *nats.APIError

	switch {
	case errors.Is(err, errWriterClosed),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting):
		return bmqt.GenericNotConnected.Ordinal()
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return bmqt.GenericTimeout.Ordinal()
	case errors.Is(err, nats.ErrJetStreamNotEnabled):
		return bmqt.GenericNotSupported.Ordinal()
	case errors.As(err, &apiErr):
		if apiErr.Code == 403 {
			return bmqt.GenericRefused.Ordinal()
		}

		return bmqt.GenericInvalidArgument.Ordinal()
	}

	return bmqt.GenericUnknown.Ordinal()
}
