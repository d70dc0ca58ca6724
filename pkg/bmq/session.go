package bmq

import (
	"context"
	"errors"
	"net/url"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

// SessionBuilder collects session configuration. The zero configuration connects to
// DefaultBrokerURI with DefaultTimeout, no compression and a NoOpEventHandler.
type SessionBuilder struct {
	brokerURI   string
	timeout     time.Duration
	compression bmqt.CompressionType
	handler     EventHandler
	options     sessionOptions
}

func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{
		brokerURI:   DefaultBrokerURI,
		timeout:     DefaultTimeout,
		compression: bmqt.CompressionNone,
		handler:     NoOpEventHandler{},
		options:     defaultSessionOptions(),
	}
}

func (b *SessionBuilder) BrokerURI(uri string) *SessionBuilder {
	b.brokerURI = uri

	return b
}

// Timeout bounds start, stop and every queue operation that sets no timeout of its own.
func (b *SessionBuilder) Timeout(d time.Duration) *SessionBuilder {
	b.timeout = d

	return b
}

func (b *SessionBuilder) Compression(c bmqt.CompressionType) *SessionBuilder {
	b.compression = c

	return b
}

func (b *SessionBuilder) EventHandler(h EventHandler) *SessionBuilder {
	if h == nil {
		h = NoOpEventHandler{}
	}

	b.handler = h

	return b
}

func (b *SessionBuilder) Options(opts ...SessionOption) *SessionBuilder {
	for _, opt := range opts {
		opt(&b.options)
	}

	return b
}

// Build constructs the native session and starts it. Either a started session or
// an error is returned; a session that failed to start is released before returning.
func (b *SessionBuilder) Build(ctx context.Context) (*Session, error) {
	const op = "build"

	if bridge.IsCallbackContext(ctx) {
		return nil, reentrantError(op)
	}

	opts := b.options

	tp := opts.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	tracer := tp.Tracer(instrumentationName)
	logger := opts.logger

	ctx, span := tracer.Start(ctx, "bmq.session.start", trace.WithAttributes(BrokerAttr(redact(b.brokerURI))))
	defer span.End()

	started := time.Now()

	if b.timeout <= 0 {
		err := newSessionCreateError(op, bmqt.GenericInvalidArgument, errors.New("timeout must be positive"))
		endSpan(span, err)

		return nil, err
	}

	inner, err := bridge.New(bridge.Config{
		URI:         b.brokerURI,
		Timeout:     b.timeout,
		Compression: b.compression,
		Handler: observedHandler{
			next:    b.handler,
			metrics: opts.metrics,
			logger:  logger,
		},
		Logger:         logger,
		Reconnect:      opts.reconnect,
		CircuitBreaker: opts.circuitBreaker,
	})
	if err != nil {
		buildErr := constructionError(op, err)
		endSpan(span, buildErr)

		logger.Error().Err(buildErr).Str("broker", redact(b.brokerURI)).Msg("failed to create session")

		return nil, buildErr
	}

	startCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := inner.Start(startCtx)
	opts.metrics.RecordOperation(ctx, "start", res.String(), time.Since(started))

	if err != nil || !res.IsSuccess() {
		_ = inner.Close()

		var startErr *Error

		var fault *bridge.Fault
		if errors.As(err, &fault) {
			startErr = newBoundaryFault(op, fault)
		} else {
			startErr = newSessionCreateError(op, res, err)
		}

		endSpan(span, startErr)

		logger.Error().
			Err(startErr).
			Str("broker", redact(b.brokerURI)).
			Str("result", res.String()).
			Msg("failed to start session")

		return nil, startErr
	}

	s := &Session{
		inner:     inner,
		brokerURI: b.brokerURI,
		timeout:   b.timeout,
		logger:    logger,
		metrics:   opts.metrics,
		tracer:    tracer,
	}

	// Sessions dropped without Close are stopped before the native handle goes away.
	s.cleanup = runtime.AddCleanup(s, func(inner *bridge.Session) { _ = inner.Close() }, inner)

	logger.Info().
		Str("broker", redact(b.brokerURI)).
		Str("compression", b.compression.String()).
		Msg("session started")

	return s, nil
}

// Session is a started connection to a broker.
type Session struct {
	inner     *bridge.Session
	brokerURI string
	timeout   time.Duration
	logger    logging.Logger
	metrics   Metrics
	tracer    trace.Tracer
	cleanup   runtime.Cleanup
}

// OpenQueue starts describing a queue to open. No broker interaction happens until
// QueueBuilder.Connect.
func (s *Session) OpenQueue(uri string, mode bmqt.QueueMode) *QueueBuilder {
	return &QueueBuilder{
		session: s,
		uri:     uri,
		mode:    mode,
	}
}

// ConfigureQueue applies opts on top of the queue's current options.
func (s *Session) ConfigureQueue(ctx context.Context, q *Queue, opts ...QueueOption) error {
	const op = "configure_queue"

	if bridge.IsCallbackContext(ctx) {
		return reentrantError(op)
	}

	if err := s.own(op, q); err != nil {
		return err
	}

	current, ok := s.inner.QueueOptions(q.ref)
	if !ok {
		return invalidArgument(op, ErrQueueNotOpen)
	}

	for _, opt := range opts {
		opt(&current)
	}

	ctx, span := s.startSpan(ctx, "bmq.queue.configure", q)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	res, err := s.inner.ConfigureQueue(ctx, q.ref, current)
	s.metrics.RecordOperation(ctx, op, res.String(), time.Since(started))

	opErr := translate(op, res, err)
	endSpan(span, opErr)

	if opErr != nil {
		s.logger.Error().Err(opErr).Str("queue", q.URI()).Msg("failed to configure queue")
	}

	return opErr
}

// CloseQueue closes q. On success q becomes invalid.
func (s *Session) CloseQueue(ctx context.Context, q *Queue) error {
	const op = "close_queue"

	if bridge.IsCallbackContext(ctx) {
		return reentrantError(op)
	}

	if err := s.own(op, q); err != nil {
		return err
	}

	ctx, span := s.startSpan(ctx, "bmq.queue.close", q)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	res, err := s.inner.CloseQueue(ctx, q.ref)
	s.metrics.RecordOperation(ctx, op, res.String(), time.Since(started))

	opErr := translate(op, res, err)
	endSpan(span, opErr)

	if opErr != nil {
		s.logger.Error().Err(opErr).Str("queue", q.URI()).Msg("failed to close queue")

		return opErr
	}

	s.logger.Info().Str("queue", q.URI()).Msg("queue closed")

	return nil
}

// Post sends payload to q. It returns once the native layer accepted the message;
// onAck, which may be nil, later receives the broker verdict exactly once.
//
// onAck runs on a callback goroutine and must not call Close or Stop: stopping waits
// for running callbacks, so that call never returns. Post and Confirm are safe there;
// to end the session from onAck, call Close on a new goroutine.
func (s *Session) Post(q *Queue, payload []byte, properties bmqt.MessageProperties, onAck func(*bmqt.AckEvent)) error {
	const op = "post"

	if err := s.own(op, q); err != nil {
		return err
	}

	if len(payload) == 0 {
		return invalidArgument(op, ErrEmptyPayload)
	}

	if err := properties.Validate(); err != nil {
		return invalidArgument(op, err)
	}

	if !q.Mode().CanWrite() {
		return invalidArgument(op, ErrQueueNotWritable)
	}

	metrics := s.metrics
	postedAt := time.Now()

	ack := func(event *bmqt.AckEvent) {
		metrics.RecordAck(context.Background(), event.QueueURI, event.Status.String(), time.Since(postedAt))

		if onAck != nil {
			onAck(event)
		}
	}

	guid, res, err := s.inner.Post(q.ref, payload, properties.Clone(), ack)
	s.metrics.RecordPost(context.Background(), q.URI(), res.String(), len(payload))

	if opErr := translate(op, res, err); opErr != nil {
		return opErr
	}

	s.logger.Debug().Str("queue", q.URI()).Str("guid", guid.String()).Msg("message posted")

	return nil
}

// Confirm tells the broker that msg has been processed. It may be called from inside
// OnMessageEvent.
func (s *Session) Confirm(msg bmqt.Message) error {
	res, err := s.inner.Confirm(msg.QueueURI, msg.GUID)

	return translate("confirm", res, err)
}

// Stop stops and releases the session. It is rejected from inside a handler callback.
func (s *Session) Stop(ctx context.Context) error {
	if bridge.IsCallbackContext(ctx) {
		return reentrantError("stop")
	}

	return s.Close()
}

// Close stops the session and releases the native handle. Queues become invalid and
// outstanding ack callbacks receive Canceled. Close is idempotent and must not be
// called from inside a handler or ack callback; use Stop with the callback context in
// a handler, and a new goroutine in an ack callback.
func (s *Session) Close() error {
	s.cleanup.Stop()

	_, span := s.tracer.Start(context.Background(), "bmq.session.stop", trace.WithAttributes(BrokerAttr(redact(s.brokerURI))))
	defer span.End()

	wasStarted := s.inner.Started()
	started := time.Now()

	err := s.inner.Close()

	if wasStarted {
		s.metrics.RecordOperation(context.Background(), "stop", bmqt.GenericSuccess.String(), time.Since(started))
		s.logger.Info().Str("broker", redact(s.brokerURI)).Msg("session stopped")
	}

	if err != nil {
		var fault *bridge.Fault
		if errors.As(err, &fault) {
			closeErr := newBoundaryFault("close", fault)
			endSpan(span, closeErr)

			return closeErr
		}

		closeErr := newSessionError("close", bmqt.GenericUnknown, err)
		endSpan(span, closeErr)

		return closeErr
	}

	return nil
}

// IsStarted reports whether the session still accepts operations.
func (s *Session) IsStarted() bool {
	return s.inner.Started()
}

// AckStats reports how many ack contexts were created and reclaimed.
func (s *Session) AckStats() bridge.ArenaStats {
	return s.inner.ArenaStats()
}

func (s *Session) own(op string, q *Queue) error {
	switch {
	case q == nil:
		return invalidArgument(op, ErrQueueNotOpen)
	case q.session != s:
		return invalidArgument(op, ErrForeignQueue)
	case !s.inner.Started():
		return newSessionError(op, bmqt.GenericNotConnected, ErrSessionClosed)
	case !s.inner.IsOpen(q.ref):
		return invalidArgument(op, ErrQueueNotOpen)
	}

	return nil
}

func (s *Session) startSpan(ctx context.Context, name string, q *Queue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		QueueAttr(q.URI()),
		QueueModeAttr(q.Mode().String()),
	))
}

func constructionError(op string, err error) *Error {
	var fault *bridge.Fault
	if errors.As(err, &fault) {
		return newBoundaryFault(op, fault)
	}

	return newSessionCreateError(op, nil, err)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")

		return
	}

	if code, ok := CodeOf(err); ok {
		span.SetAttributes(attribute.String(resultKey, code.String()))
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.Redacted()
}
