package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

var (
	ErrQueueNotWritable = errors.New("queue is not open for writing")
	ErrQueueNotReadable = errors.New("queue is not open for reading")
)

type state int

const (
	stateNew state = iota
	stateStarted
	stateStopping
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateStarted:
		return "started"
	case stateStopping:
		return "stopping"
	case stateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config configures a bridge Session.
type Config struct {
	URI            string
	Timeout        time.Duration
	Compression    bmqt.CompressionType
	Handler        Handler
	Logger         logging.Logger
	Reconnect      config.BackoffConfig
	CircuitBreaker config.CircuitBreakerConfig
}

// Session owns one Native. Blocking native operations are serialized through a
// single slot; state and the queue registry are guarded by mu.
type Session struct {
	native  Native
	handler *handlerContext
	logger  logging.Logger
	arena   *ackArena
	gate    *callbackGate

	ops      chan struct{}
	stopping chan struct{}

	mu     sync.RWMutex
	state  state
	queues *queueRegistry

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New constructs the native session for cfg.URI without starting it.
func New(cfg Config) (*Session, error) {
	if !cfg.Compression.Valid() {
		return nil, &Fault{Op: "new", Value: fmt.Errorf("%w: %d", ErrUnsupportedCodec, int(cfg.Compression))}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	driver, u, err := lookupDriver(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeConstruction, err)
	}

	s := &Session{
		handler:  newHandlerContext(cfg.Handler, logger),
		logger:   logger,
		arena:    newAckArena(),
		gate:     newCallbackGate(),
		ops:      make(chan struct{}, 1),
		stopping: make(chan struct{}),
		queues:   newQueueRegistry(),
	}

	nc := NativeConfig{
		URI:            u,
		Timeout:        cfg.Timeout,
		Compression:    cfg.Compression,
		Logger:         logger,
		Reconnect:      cfg.Reconnect,
		CircuitBreaker: cfg.CircuitBreaker,
	}

	cb := Callbacks{
		OnSessionEvent: s.onSessionEvent,
		OnMessages:     s.onMessages,
		OnAck:          s.onAck,
	}

	var native Native

	if fault := guard("new", func() { native, err = driver.Open(nc, cb) }); fault != nil {
		return nil, fault
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeConstruction, err)
	}

	if native == nil {
		return nil, &Fault{Op: "new", Value: "driver returned a nil native session"}
	}

	s.native = native

	return s, nil
}

// Start connects the native session. Only a new session can be started.
func (s *Session) Start(ctx context.Context) (bmqt.GenericResult, error) {
	if res := s.acquire(ctx); !res.IsSuccess() {
		return res, nil
	}
	defer s.release()

	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()

	switch st {
	case stateStarted:
		return bmqt.GenericSuccess, nil
	case stateStopping, stateStopped:
		return bmqt.GenericNotConnected, ErrSessionStopped
	}

	var code int32
	if fault := guard("start", func() { code = s.native.Start(ctx) }); fault != nil {
		return bmqt.GenericUnknown, fault
	}

	res := bmqt.GenericResultFromOrdinal(code)
	if res.IsSuccess() {
		s.mu.Lock()
		if s.state == stateNew {
			s.state = stateStarted
		}
		s.mu.Unlock()
	}

	s.logger.Debug().Str("result", res.String()).Msg("native session start")

	return res, nil
}

// OpenQueue performs the open handshake and commits the queue on success.
func (s *Session) OpenQueue(ctx context.Context, uri string, mode bmqt.QueueMode, opts bmqt.QueueOptions) (QueueRef, bmqt.OpenQueueResult, error) {
	if _, err := bmqt.ParseURI(uri); err != nil {
		return QueueRef{}, bmqt.OpenQueueInvalidURI, err
	}

	flags := mode.Flags()
	if !flags.Valid() {
		return QueueRef{}, bmqt.OpenQueueInvalidFlags, nil
	}

	if !opts.Valid() {
		return QueueRef{}, bmqt.OpenQueueInvalidArgument, nil
	}

	if res := s.acquire(ctx); !res.IsSuccess() {
		return QueueRef{}, bmqt.OpenQueueResult(res), nil
	}
	defer s.release()

	s.mu.Lock()
	if s.state != stateStarted {
		s.mu.Unlock()

		return QueueRef{}, bmqt.OpenQueueNotConnected, nil
	}

	if _, ok := s.queues.lookupURI(uri); ok {
		s.mu.Unlock()

		return QueueRef{}, bmqt.OpenQueueAlreadyOpened, nil
	}

	entry := s.queues.reserve(uri, mode, opts)
	s.mu.Unlock()

	var code int32

	fault := guard("open_queue", func() {
		code = s.native.OpenQueueSync(ctx, entry.id, uri, flags, opts)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if fault != nil {
		s.queues.abandon(entry)

		return QueueRef{}, bmqt.OpenQueueUnknown, fault
	}

	res := bmqt.OpenQueueResultFromOrdinal(code)
	if !res.IsSuccess() {
		s.queues.abandon(entry)

		return QueueRef{}, res, nil
	}

	if s.state != stateStarted {
		s.queues.abandon(entry)

		return QueueRef{}, bmqt.OpenQueueCanceled, nil
	}

	ref := s.queues.commit(entry)

	s.logger.Debug().
		Str("queue", uri).
		Str("flags", flags.String()).
		Uint64("correlation_id", uint64(entry.id)).
		Msg("queue opened")

	return ref, res, nil
}

// ConfigureQueue applies new options to an open queue.
func (s *Session) ConfigureQueue(ctx context.Context, ref QueueRef, opts bmqt.QueueOptions) (bmqt.ConfigureQueueResult, error) {
	if !opts.Valid() {
		return bmqt.ConfigureQueueInvalidArgument, nil
	}

	if res := s.acquire(ctx); !res.IsSuccess() {
		return bmqt.ConfigureQueueResult(res), nil
	}
	defer s.release()

	entry, res, err := s.resolveStarted(ref)
	if !res.IsSuccess() {
		return bmqt.ConfigureQueueResult(res), err
	}

	var code int32
	if fault := guard("configure_queue", func() { code = s.native.ConfigureQueueSync(ctx, entry.id, opts) }); fault != nil {
		return bmqt.ConfigureQueueUnknown, fault
	}

	result := bmqt.ConfigureQueueResultFromOrdinal(code)
	if result.IsSuccess() {
		s.mu.Lock()
		entry.options = opts
		s.mu.Unlock()
	}

	return result, nil
}

// CloseQueue closes an open queue and removes it from the registry on success.
func (s *Session) CloseQueue(ctx context.Context, ref QueueRef) (bmqt.CloseQueueResult, error) {
	if res := s.acquire(ctx); !res.IsSuccess() {
		return bmqt.CloseQueueResult(res), nil
	}
	defer s.release()

	entry, res, err := s.resolveStarted(ref)
	if !res.IsSuccess() {
		return bmqt.CloseQueueResult(res), err
	}

	var code int32
	if fault := guard("close_queue", func() { code = s.native.CloseQueueSync(ctx, entry.id) }); fault != nil {
		return bmqt.CloseQueueUnknown, fault
	}

	result := bmqt.CloseQueueResultFromOrdinal(code)
	if result.IsSuccess() {
		s.mu.Lock()
		s.queues.remove(entry)
		s.mu.Unlock()

		s.logger.Debug().Str("queue", ref.URI).Msg("queue closed")
	}

	return result, nil
}

// Post hands a message to the native layer. onAck, when not nil, is invoked exactly
// once if the post is accepted: with the broker verdict, or with Canceled if the
// session stops first.
func (s *Session) Post(ref QueueRef, payload []byte, props bmqt.MessageProperties, onAck AckFunc) (bmqt.MessageGUID, bmqt.PostResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateStarted {
		return uuid.Nil, bmqt.PostNotConnected, nil
	}

	entry, ok := s.queues.resolve(ref)
	if !ok {
		return uuid.Nil, bmqt.PostInvalidArgument, ErrUnknownQueue
	}

	if !entry.flags.Has(bmqt.QueueFlagWrite) {
		return uuid.Nil, bmqt.PostInvalidArgument, ErrQueueNotWritable
	}

	guid := uuid.New()
	handle := s.arena.insert(ref.URI, guid, onAck)

	msg := &PutMessage{
		GUID:       guid,
		Payload:    payload,
		Properties: props,
		AckHandle:  handle,
	}

	var code int32
	if fault := guard("post", func() { code = s.native.Post(entry.id, msg) }); fault != nil {
		s.arena.take(handle)

		return guid, bmqt.PostUnknown, fault
	}

	res := bmqt.PostResultFromOrdinal(code)
	if !res.IsSuccess() {
		s.arena.take(handle)
	}

	return guid, res, nil
}

// Confirm tells the broker a delivered message has been processed.
func (s *Session) Confirm(queueURI string, guid bmqt.MessageGUID) (bmqt.GenericResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateStarted {
		return bmqt.GenericNotConnected, nil
	}

	entry, ok := s.queues.lookupURI(queueURI)
	if !ok {
		return bmqt.GenericInvalidArgument, ErrUnknownQueue
	}

	if !entry.flags.Has(bmqt.QueueFlagRead) {
		return bmqt.GenericInvalidArgument, ErrQueueNotReadable
	}

	var code int32
	if fault := guard("confirm", func() { code = s.native.Confirm(entry.id, guid) }); fault != nil {
		return bmqt.GenericUnknown, fault
	}

	return bmqt.GenericResultFromOrdinal(code), nil
}

// Stop closes the callback gate, waits for in-flight callbacks, stops the native
// session and cancels outstanding acks. It runs at most once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasStarted := s.state == stateStarted
		s.state = stateStopping
		s.mu.Unlock()

		close(s.stopping)
		s.gate.close()

		if wasStarted {
			if fault := guard("stop", s.native.Stop); fault != nil {
				s.logger.Error().Err(fault).Msg("native stop failed")
			}
		}

		// Wait for a blocking operation that was already running.
		s.ops <- struct{}{}

		canceled := s.arena.drain()
		for _, entry := range canceled {
			s.handler.onPostAck(entry.onAck, &bmqt.AckEvent{
				Status:   bmqt.AckCanceled,
				GUID:     entry.guid,
				QueueURI: entry.queueURI,
			})
		}

		s.mu.Lock()
		s.queues.clear()
		s.state = stateStopped
		s.mu.Unlock()

		s.logger.Debug().Int("canceled_acks", len(canceled)).Msg("native session stopped")
	})
}

// Close stops the session if needed and releases the native resource once.
// It must not be called from inside a Handler callback.
func (s *Session) Close() error {
	s.Stop()

	s.closeOnce.Do(func() {
		if fault := guard("close", func() { s.closeErr = s.native.Close() }); fault != nil {
			s.closeErr = fault
		}
	})

	return s.closeErr
}

func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state == stateStarted
}

func (s *Session) OpenQueues() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queues.len()
}

// QueueOptions returns the options last applied to an open queue.
func (s *Session) QueueOptions(ref QueueRef) (bmqt.QueueOptions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.queues.resolve(ref)
	if !ok {
		return bmqt.QueueOptions{}, false
	}

	return entry.options, true
}

// IsOpen reports whether ref still names an open queue.
func (s *Session) IsOpen(ref QueueRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.queues.resolve(ref)

	return ok
}

func (s *Session) ArenaStats() ArenaStats { return s.arena.stats() }

func (s *Session) acquire(ctx context.Context) bmqt.GenericResult {
	select {
	case <-s.stopping:
		return bmqt.GenericNotConnected
	default:
	}

	select {
	case s.ops <- struct{}{}:
		return bmqt.GenericSuccess
	case <-s.stopping:
		return bmqt.GenericNotConnected
	case <-ctx.Done():
		return contextResult(ctx)
	}
}

func (s *Session) release() { <-s.ops }

func (s *Session) resolveStarted(ref QueueRef) (*queueEntry, bmqt.GenericResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != stateStarted {
		return nil, bmqt.GenericNotConnected, nil
	}

	entry, ok := s.queues.resolve(ref)
	if !ok {
		return nil, bmqt.GenericInvalidArgument, ErrUnknownQueue
	}

	return entry, bmqt.GenericSuccess, nil
}

func (s *Session) onSessionEvent(ev SessionEvent) {
	if !s.gate.enter() {
		return
	}
	defer s.gate.leave()

	event := &bmqt.SessionEvent{
		Type:    bmqt.SessionEventTypeFromOrdinal(ev.Type),
		Status:  bmqt.GenericResultFromOrdinal(ev.Status),
		Details: ev.Details,
	}

	if ev.QueueID != 0 {
		s.mu.RLock()
		event.QueueURI, _ = s.queues.uriOf(ev.QueueID)
		s.mu.RUnlock()
	}

	s.handler.onSessionEvent(event)
}

func (s *Session) onMessages(msgs []Message) {
	if !s.gate.enter() {
		return
	}
	defer s.gate.leave()

	event := &bmqt.MessageEvent{Messages: make([]bmqt.Message, 0, len(msgs))}

	s.mu.RLock()
	for _, msg := range msgs {
		uri, ok := s.queues.uriOf(msg.QueueID)
		if !ok {
			s.logger.Debug().
				Uint64("correlation_id", uint64(msg.QueueID)).
				Str("guid", msg.GUID.String()).
				Msg("dropping message for unknown queue")

			continue
		}

		event.Messages = append(event.Messages, bmqt.Message{
			GUID:       msg.GUID,
			QueueURI:   uri,
			Payload:    msg.Payload,
			Properties: msg.Properties,
		})
	}
	s.mu.RUnlock()

	if len(event.Messages) == 0 {
		return
	}

	s.handler.onMessageEvent(event)
}

func (s *Session) onAck(ack Ack) {
	if !s.gate.enter() {
		return
	}
	defer s.gate.leave()

	entry, ok := s.arena.take(ack.Handle)
	if !ok {
		s.logger.Warn().
			Uint64("handle", ack.Handle).
			Str("guid", ack.GUID.String()).
			Msg("ack for unknown correlation handle")

		return
	}

	event := &bmqt.AckEvent{
		Status:   bmqt.AckResultFromOrdinal(ack.Status),
		GUID:     entry.guid,
		QueueURI: entry.queueURI,
	}

	s.handler.onPostAck(entry.onAck, event)
	s.handler.onAckEvent(event)
}

func contextResult(ctx context.Context) bmqt.GenericResult {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return bmqt.GenericTimeout
	}

	return bmqt.GenericCanceled
}

// ContextResult maps a finished context to the Timeout or Canceled ordinal. Drivers
// use it for synchronous operations that end early.
func ContextResult(ctx context.Context) int32 {
	return contextResult(ctx).Ordinal()
}
