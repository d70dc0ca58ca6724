package bridge

import (
	"context"
	"fmt"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

// Handler receives translated events. It has the same method set as bmq.EventHandler.
type Handler interface {
	OnSessionEvent(ctx context.Context, event *bmqt.SessionEvent)
	OnMessageEvent(ctx context.Context, event *bmqt.MessageEvent)
	OnAckEvent(ctx context.Context, event *bmqt.AckEvent)
}

type callbackKey struct{}

// IsCallbackContext reports whether ctx is the context passed to a Handler callback.
func IsCallbackContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	marked, _ := ctx.Value(callbackKey{}).(bool)

	return marked
}

// handlerContext is the concrete dispatch table the bridge calls into. Each entry
// forwards to the user's handler; panics are recovered and logged so a faulty
// handler cannot take down a driver goroutine.
type handlerContext struct {
	ctx    context.Context
	logger logging.Logger

	sessionEvent func(context.Context, *bmqt.SessionEvent)
	messageEvent func(context.Context, *bmqt.MessageEvent)
	ackEvent     func(context.Context, *bmqt.AckEvent)
}

func newHandlerContext(h Handler, logger logging.Logger) *handlerContext {
	if h == nil {
		h = nopHandler{}
	}

	return &handlerContext{
		ctx:          context.WithValue(context.Background(), callbackKey{}, true),
		logger:       logger,
		sessionEvent: h.OnSessionEvent,
		messageEvent: h.OnMessageEvent,
		ackEvent:     h.OnAckEvent,
	}
}

func (h *handlerContext) onSessionEvent(event *bmqt.SessionEvent) {
	h.invoke("session_event", func() { h.sessionEvent(h.ctx, event) })
}

func (h *handlerContext) onMessageEvent(event *bmqt.MessageEvent) {
	h.invoke("message_event", func() { h.messageEvent(h.ctx, event) })
}

func (h *handlerContext) onAckEvent(event *bmqt.AckEvent) {
	h.invoke("ack_event", func() { h.ackEvent(h.ctx, event) })
}

func (h *handlerContext) onPostAck(fn AckFunc, event *bmqt.AckEvent) {
	if fn == nil {
		return
	}

	h.invoke("post_ack", func() { fn(event) })
}

func (h *handlerContext) invoke(kind string, fn func()) {
	if fault := guard(kind, fn); fault != nil {
		h.logger.Error().
			Str("callback", kind).
			Err(fmt.Errorf("handler panicked: %w", fault)).
			Msg("recovered panic in event handler")
	}
}

type nopHandler struct{}

func (nopHandler) OnSessionEvent(context.Context, *bmqt.SessionEvent) {}
func (nopHandler) OnMessageEvent(context.Context, *bmqt.MessageEvent) {}
func (nopHandler) OnAckEvent(context.Context, *bmqt.AckEvent)         {}
