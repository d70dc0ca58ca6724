// Package bridge owns the boundary between the client facade and a native broker
// session. It keeps the queue registry, the ack callback arena and the callback gate,
// and translates native ordinals and callbacks into bmqt values.
package bridge

import (
	"context"
	"net/url"
	"time"

	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/logging"
)

// QueueID is the correlation id the bridge assigns to an open queue. It is the only
// queue identity the native layer sees.
type QueueID uint64

// Native is a started-or-not broker session owned by exactly one bridge Session.
// Synchronous operations return result ordinals and must honor ctx: an expired
// deadline yields the Timeout ordinal, cancellation the Canceled ordinal.
// Stop must make pending synchronous operations return promptly.
type Native interface {
	Start(ctx context.Context) int32
	Stop()
	OpenQueueSync(ctx context.Context, id QueueID, uri string, flags bmqt.QueueFlags, opts bmqt.QueueOptions) int32
	ConfigureQueueSync(ctx context.Context, id QueueID, opts bmqt.QueueOptions) int32
	CloseQueueSync(ctx context.Context, id QueueID) int32
	Post(id QueueID, msg *PutMessage) int32
	Confirm(id QueueID, guid bmqt.MessageGUID) int32
	Close() error
}

// PutMessage is a message handed to the native layer. AckHandle must be echoed
// back unchanged in the matching Ack.
type PutMessage struct {
	GUID       bmqt.MessageGUID
	Payload    []byte
	Properties bmqt.MessageProperties
	AckHandle  uint64
}

// SessionEvent is a native session notification. QueueID is zero for session wide events.
type SessionEvent struct {
	Type    int32
	Status  int32
	QueueID QueueID
	Details string
}

// Message is a native delivery.
type Message struct {
	QueueID    QueueID
	GUID       bmqt.MessageGUID
	Payload    []byte
	Properties bmqt.MessageProperties
}

// Ack is the native verdict for one post.
type Ack struct {
	QueueID QueueID
	GUID    bmqt.MessageGUID
	Status  int32
	Handle  uint64
}

// Callbacks is the table of functions a Native invokes. Callbacks may run on any
// goroutine; a Native must deliver acks of one queue in post order.
type Callbacks struct {
	OnSessionEvent func(SessionEvent)
	OnMessages     func([]Message)
	OnAck          func(Ack)
}

// NativeConfig is everything a driver needs to construct a Native.
type NativeConfig struct {
	URI            *url.URL
	Timeout        time.Duration
	Compression    bmqt.CompressionType
	Logger         logging.Logger
	Reconnect      config.BackoffConfig
	CircuitBreaker config.CircuitBreakerConfig
}
