package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/architeacher/go-blazingmq/internal/compression"
	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/internal/shared/backoff"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

type attachment struct {
	id    bridge.QueueID
	uri   string
	topo  topology
	flags bmqt.QueueFlags
	opts  bmqt.QueueOptions

	ch     amqpChannel
	writer *writer
	reader *reader
}

func (a *attachment) close() {
	_ = a.ch.Close()

	if a.reader != nil {
		a.reader.wait()
	}

	if a.writer != nil {
		<-a.writer.done
	}
}

type openResult struct {
	att *attachment
	err error
}

// session is a bridge.Native over one AMQP connection. A supervisor goroutine
// watches the connection and reconnects with backoff, restoring every open queue.
type session struct {
	uri      string
	dial     dialer
	cb       bridge.Callbacks
	codec    compression.Codec
	logger   logging.Logger
	timeout  time.Duration
	strategy backoff.Exponential
	breaker  *gobreaker.CircuitBreaker

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu           sync.Mutex
	conn         connection
	started      bool
	stopped      bool
	disconnected bool
	attachments  map[bridge.QueueID]*attachment
	uris         map[string]bridge.QueueID
	pending      map[string]bridge.QueueID
}

func newSession(cfg bridge.NativeConfig, cb bridge.Callbacks, uri string, dial dialer) *session {
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

	ctx, cancel := context.WithCancel(context.Background())

	return &session{
		uri:         uri,
		dial:        dial,
		cb:          cb,
		codec:       codec,
		logger:      logger,
		timeout:     timeout,
		strategy:    backoff.NewExponentialStrategy(cfg.Reconnect),
		breaker:     newBreaker(cfg.CircuitBreaker, logger),
		ctx:         ctx,
		cancel:      cancel,
		attachments: make(map[bridge.QueueID]*attachment),
		uris:        make(map[string]bridge.QueueID),
		pending:     make(map[string]bridge.QueueID),
	}
}

func newBreaker(cfg config.CircuitBreakerConfig, logger logging.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bmq-rabbitmq-connect",
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

func (s *session) Start(ctx context.Context) int32 {
	conn, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return bridge.ContextResult(ctx)
		}

		s.logger.Error().Err(err).Msg("failed to connect to RabbitMQ")

		if errors.Is(err, gobreaker.ErrOpenState) {
			return bmqt.GenericRefused.Ordinal()
		}

		return bmqt.GenericNotConnected.Ordinal()
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()

		return bmqt.GenericCanceled.Ordinal()
	}

	s.conn = conn
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)

	go s.supervise(conn)

	s.logger.Info().Msg("connected to RabbitMQ")

	return 0
}

func (s *session) connect(ctx context.Context) (connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.breaker.Execute(func() (any, error) {
		return s.dial(dialCtx, s.uri)
	})
	if err != nil {
		return nil, err
	}

	return res.(connection), nil
}

func (s *session) supervise(conn connection) {
	defer s.wg.Done()

	s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventConnected)})

	for {
		closed := conn.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error

		select {
		case <-s.ctx.Done():
			return
		case reason = <-closed:
		}

		if s.ctx.Err() != nil {
			return
		}

		details := "connection closed"
		if reason != nil {
			details = reason.Error()
		}

		s.logger.Warn().Str("reason", details).Msg("lost connection to RabbitMQ")
		s.emit(bridge.SessionEvent{
			Type:    int32(bmqt.SessionEventConnectionLost),
			Status:  bmqt.GenericNotConnected.Ordinal(),
			Details: details,
		})

		conn = s.reconnect()
		if conn == nil {
			if s.ctx.Err() != nil {
				return
			}

			s.mu.Lock()
			s.disconnected = true
			s.mu.Unlock()

			s.emit(bridge.SessionEvent{
				Type:    int32(bmqt.SessionEventDisconnected),
				Status:  bmqt.GenericNotConnected.Ordinal(),
				Details: "reconnect attempts exhausted",
			})

			return
		}

		s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventReconnected)})
		s.restore(conn)
		s.emit(bridge.SessionEvent{Type: int32(bmqt.SessionEventStateRestored)})
	}
}

func (s *session) reconnect() connection {
	for attempt := 0; !s.strategy.Exhausted(attempt); attempt++ {
		if !backoff.Wait(s.ctx, s.strategy, attempt) {
			return nil
		}

		conn, err := s.connect(s.ctx)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")

			continue
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			_ = conn.Close()

			return nil
		}

		s.conn = conn
		s.mu.Unlock()

		s.logger.Info().Int("attempt", attempt+1).Msg("reconnected to RabbitMQ")

		return conn
	}

	return nil
}

// restore reopens every queue on conn. A queue that cannot be restored stays
// registered and reports an Error event; its posts fail until it is reopened.
func (s *session) restore(conn connection) {
	s.mu.Lock()
	atts := make([]*attachment, 0, len(s.attachments))
	for _, att := range s.attachments {
		atts = append(atts, att)
	}
	s.mu.Unlock()

	for _, old := range atts {
		old.close()

		fresh, err := s.attach(conn, old.id, old.uri, old.topo, old.flags, old.opts)
		if err != nil {
			s.logger.Error().Err(err).Str("queue", old.uri).Msg("failed to restore queue")
			s.emit(bridge.SessionEvent{
				Type:    int32(bmqt.SessionEventError),
				Status:  resultFor(err),
				QueueID: old.id,
				Details: err.Error(),
			})

			continue
		}

		s.mu.Lock()
		if cur, ok := s.attachments[old.id]; ok && cur == old {
			s.attachments[old.id] = fresh
			fresh = nil
		}
		s.mu.Unlock()

		if fresh != nil {
			fresh.close()
		}
	}
}

func (s *session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.stopped = true
		conn := s.conn
		atts := make([]*attachment, 0, len(s.attachments))
		for _, att := range s.attachments {
			atts = append(atts, att)
		}
		clear(s.attachments)
		clear(s.uris)
		s.mu.Unlock()

		for _, att := range atts {
			att.close()
		}

		if conn != nil {
			_ = conn.Close()
		}

		s.wg.Wait()
	})
}

func (s *session) Close() error {
	s.Stop()

	return nil
}

func (s *session) OpenQueueSync(ctx context.Context, id bridge.QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32 {
	topo, err := topologyFor(uri)
	if err != nil {
		return bmqt.OpenQueueInvalidURI.Ordinal()
	}

	if !flags.Valid() {
		return bmqt.OpenQueueInvalidFlags.Ordinal()
	}

	s.mu.Lock()

	conn, code := s.connLocked()
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
		att, err := s.attach(conn, id, uri, topo, flags, opts)
		done <- openResult{att: att, err: err}
	}()

	select {
	case r := <-done:
		return s.finishOpen(r, uri)
	case <-ctx.Done():
		go func() {
			r := <-done
			if r.att != nil {
				r.att.close()
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
		r.att.close()

		return bmqt.OpenQueueCanceled.Ordinal()
	}

	s.attachments[r.att.id] = r.att
	s.uris[uri] = r.att.id
	s.mu.Unlock()

	return 0
}

func (s *session) attach(conn connection, id bridge.QueueID, uri string, topo topology, flags bmqt.QueueFlags, opts bmqt.QueueOptions) (*attachment, error) {
	ch, err := conn.channel()
	if err != nil {
		return nil, err
	}

	if err := topo.declare(ch); err != nil {
		_ = ch.Close()

		return nil, err
	}

	att := &attachment{id: id, uri: uri, topo: topo, flags: flags, opts: opts, ch: ch}

	if flags.Has(bmqt.QueueFlagWrite) {
		w, err := newWriter(id, ch, topo, s.onAck)
		if err != nil {
			_ = ch.Close()

			return nil, err
		}

		att.writer = w
	}

	if flags.Has(bmqt.QueueFlagRead) {
		att.reader = newReader(id, ch, topo, s.onMessages, s.logger)

		if err := att.reader.apply(opts); err != nil {
			att.close()

			return nil, err
		}
	}

	return att, nil
}

func (s *session) ConfigureQueueSync(ctx context.Context, id bridge.QueueID, opts bmqt.QueueOptions) int32 {
	s.mu.Lock()

	if _, code := s.connLocked(); code != 0 {
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

func (s *session) CloseQueueSync(_ context.Context, id bridge.QueueID) int32 {
	s.mu.Lock()

	if _, code := s.connLocked(); code != 0 {
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

	att.close()

	return 0
}

func (s *session) Post(id bridge.QueueID, msg *bridge.PutMessage) int32 {
	s.mu.Lock()

	if _, code := s.connLocked(); code != 0 {
		s.mu.Unlock()

		return code
	}

	att, ok := s.attachments[id]
	s.mu.Unlock()

	if !ok || att.writer == nil {
		return bmqt.PostInvalidArgument.Ordinal()
	}

	pub, err := newPublishing(msg, s.codec)
	if err != nil {
		s.logger.Error().Err(err).Str("queue", att.uri).Msg("failed to encode message")

		return bmqt.PostInvalidArgument.Ordinal()
	}

	if err := att.writer.publish(msg, pub); err != nil {
		s.logger.Warn().Err(err).Str("queue", att.uri).Msg("publish failed")

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

func (s *session) connLocked() (connection, int32) {
	if !s.started || s.stopped || s.disconnected || s.conn == nil || s.conn.IsClosed() {
		return nil, bmqt.GenericNotConnected.Ordinal()
	}

	return s.conn, 0
}

func (s *session) emit(ev bridge.SessionEvent) {
	if s.cb.OnSessionEvent != nil {
		s.cb.OnSessionEvent(ev)
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

// resultFor maps an AMQP failure onto the generic result set, which every
// operation specific set includes.
func resultFor(err error) int32 {
	var amqpErr *amqp.Error

	switch {
	case isClosedErr(err):
		return bmqt.GenericNotConnected.Ordinal()
	case errors.Is(err, context.DeadlineExceeded):
		return bmqt.GenericTimeout.Ordinal()
	case errors.As(err, &amqpErr):
		switch amqpErr.Code {
		case amqp.AccessRefused:
			return bmqt.GenericRefused.Ordinal()
		case amqp.NotFound, amqp.PreconditionFailed:
			return bmqt.GenericInvalidArgument.Ordinal()
		case amqp.ConnectionForced, amqp.ChannelError:
			return bmqt.GenericNotConnected.Ordinal()
		}
	}

	return bmqt.GenericUnknown.Ordinal()
}
