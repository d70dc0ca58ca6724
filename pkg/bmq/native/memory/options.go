package memory

import (
	"time"

	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

type options struct {
	name           string
	operationDelay time.Duration
	maxQueueDepth  int
	refuseSessions bool
	logger         logging.Logger
}

// Option configures a Broker.
type Option func(*options)

// WithName registers the broker as mem://<name>.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithOperationDelay delays start and every queue handshake by d. Handshakes that
// time out still complete in the background.
func WithOperationDelay(d time.Duration) Option {
	return func(o *options) {
		o.operationDelay = d
	}
}

// WithMaxQueueDepth rejects posts with LimitMessages once a queue holds n messages.
func WithMaxQueueDepth(n int) Option {
	return func(o *options) {
		o.maxQueueDepth = n
	}
}

// WithRefuseSessions makes every session start fail with NotConnected.
func WithRefuseSessions() Option {
	return func(o *options) {
		o.refuseSessions = true
	}
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func defaultOptions() options {
	return options{
		logger: logging.Nop(),
	}
}
