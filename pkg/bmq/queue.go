package bmq

import (
	"context"
	"time"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

// QueueBuilder describes a queue to open on a session. Unset options take the
// bmqt defaults when Connect runs.
type QueueBuilder struct {
	session *Session
	uri     string
	mode    bmqt.QueueMode
	patch   bmqt.QueueOptionsPatch
	timeout time.Duration
}

func (b *QueueBuilder) MaxUnconfirmedMessages(n int64) *QueueBuilder {
	b.patch.MaxUnconfirmedMessages = &n

	return b
}

func (b *QueueBuilder) MaxUnconfirmedBytes(n int64) *QueueBuilder {
	b.patch.MaxUnconfirmedBytes = &n

	return b
}

// ConsumerPriority favors this reader over readers with a lower priority.
func (b *QueueBuilder) ConsumerPriority(p int32) *QueueBuilder {
	b.patch.ConsumerPriority = &p

	return b
}

func (b *QueueBuilder) SuspendsOnBadHostHealth(v bool) *QueueBuilder {
	b.patch.SuspendsOnBadHostHealth = &v

	return b
}

// Timeout bounds the open handshake. Zero uses the session timeout.
func (b *QueueBuilder) Timeout(d time.Duration) *QueueBuilder {
	b.timeout = d

	return b
}

// Connect performs the open handshake. On any non-success result no Queue is returned.
func (b *QueueBuilder) Connect(ctx context.Context) (*Queue, error) {
	const op = "open_queue"

	if bridge.IsCallbackContext(ctx) {
		return nil, reentrantError(op)
	}

	s := b.session
	if s == nil {
		return nil, newSessionError(op, bmqt.OpenQueueNotConnected, ErrSessionClosed)
	}

	timeout := b.timeout
	if timeout <= 0 {
		timeout = s.timeout
	}

	opts := b.patch.Apply(bmqt.DefaultQueueOptions())

	ctx, span := s.tracer.Start(ctx, "bmq.queue.open")
	defer span.End()

	span.SetAttributes(QueueAttr(b.uri), QueueModeAttr(b.mode.String()))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	ref, res, err := s.inner.OpenQueue(ctx, b.uri, b.mode, opts)
	s.metrics.RecordOperation(ctx, op, res.String(), time.Since(started))

	if opErr := translate(op, res, err); opErr != nil {
		endSpan(span, opErr)

		s.logger.Error().
			Err(opErr).
			Str("queue", b.uri).
			Str("mode", b.mode.String()).
			Msg("failed to open queue")

		return nil, opErr
	}

	endSpan(span, nil)

	s.logger.Info().
		Str("queue", b.uri).
		Str("mode", b.mode.String()).
		Msg("queue opened")

	return &Queue{session: s, ref: ref}, nil
}

// Queue is a handle to a queue opened on a session. It is invalid after a successful
// CloseQueue or once the session stops.
type Queue struct {
	session *Session
	ref     bridge.QueueRef
}

func (q *Queue) URI() string { return q.ref.URI }

func (q *Queue) Mode() bmqt.QueueMode { return q.ref.Mode }

// IsOpen reports whether the handle is still usable.
func (q *Queue) IsOpen() bool {
	return q.session.inner.IsOpen(q.ref)
}

// Options returns the options last applied to the queue.
func (q *Queue) Options() (bmqt.QueueOptions, bool) {
	return q.session.inner.QueueOptions(q.ref)
}
