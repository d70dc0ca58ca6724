package bmq

import (
	"context"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

// EventHandler receives asynchronous session, message and ack events. Callbacks run
// on driver goroutines. Events are only valid for the duration of the call; the ctx
// passed in rejects blocking session operations with NotSupported.
type EventHandler interface {
	OnSessionEvent(ctx context.Context, event *bmqt.SessionEvent)
	OnMessageEvent(ctx context.Context, event *bmqt.MessageEvent)
	OnAckEvent(ctx context.Context, event *bmqt.AckEvent)
}

// NoOpEventHandler ignores every event. Embed it to implement only some callbacks.
type NoOpEventHandler struct{}

func (NoOpEventHandler) OnSessionEvent(context.Context, *bmqt.SessionEvent) {}
func (NoOpEventHandler) OnMessageEvent(context.Context, *bmqt.MessageEvent) {}
func (NoOpEventHandler) OnAckEvent(context.Context, *bmqt.AckEvent)         {}

// EventHandlerFuncs adapts plain functions. Nil fields ignore their events.
type EventHandlerFuncs struct {
	SessionEvent func(ctx context.Context, event *bmqt.SessionEvent)
	MessageEvent func(ctx context.Context, event *bmqt.MessageEvent)
	AckEvent     func(ctx context.Context, event *bmqt.AckEvent)
}

func (f EventHandlerFuncs) OnSessionEvent(ctx context.Context, event *bmqt.SessionEvent) {
	if f.SessionEvent != nil {
		f.SessionEvent(ctx, event)
	}
}

func (f EventHandlerFuncs) OnMessageEvent(ctx context.Context, event *bmqt.MessageEvent) {
	if f.MessageEvent != nil {
		f.MessageEvent(ctx, event)
	}
}

func (f EventHandlerFuncs) OnAckEvent(ctx context.Context, event *bmqt.AckEvent) {
	if f.AckEvent != nil {
		f.AckEvent(ctx, event)
	}
}

// observedHandler records metrics and logs before forwarding. It must not refer to
// the Session so an abandoned Session stays collectable.
type observedHandler struct {
	next    EventHandler
	metrics Metrics
	logger  logging.Logger
}

func (h observedHandler) OnSessionEvent(ctx context.Context, event *bmqt.SessionEvent) {
	h.metrics.RecordSessionEvent(ctx, event.Type.String())
	h.logger.Info().
		Str("event", event.Type.String()).
		Str("status", event.Status.String()).
		Str("queue", event.QueueURI).
		Msg("session event")

	h.next.OnSessionEvent(ctx, event)
}

func (h observedHandler) OnMessageEvent(ctx context.Context, event *bmqt.MessageEvent) {
	for _, msg := range event.Messages {
		h.metrics.RecordMessage(ctx, msg.QueueURI, len(msg.Payload))
	}

	h.next.OnMessageEvent(ctx, event)
}

func (h observedHandler) OnAckEvent(ctx context.Context, event *bmqt.AckEvent) {
	h.next.OnAckEvent(ctx, event)
}
