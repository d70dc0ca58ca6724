package bmqt

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageGUID identifies a message across post, ack, delivery and confirm.
type MessageGUID = uuid.UUID

// SessionEventType enumerates the session level notifications of the broker API.
type SessionEventType int

const (
	SessionEventUndefined SessionEventType = iota
	SessionEventConnected
	SessionEventDisconnected
	SessionEventConnectionLost
	SessionEventReconnected
	SessionEventStateRestored
	SessionEventConnectionTimeout
	SessionEventQueueSuspended
	SessionEventQueueResumed
	SessionEventHostUnhealthy
	SessionEventHostHealthRestored
	SessionEventError
)

var sessionEventNames = [...]string{
	SessionEventUndefined:          "UNDEFINED",
	SessionEventConnected:          "CONNECTED",
	SessionEventDisconnected:       "DISCONNECTED",
	SessionEventConnectionLost:     "CONNECTION_LOST",
	SessionEventReconnected:        "RECONNECTED",
	SessionEventStateRestored:      "STATE_RESTORED",
	SessionEventConnectionTimeout:  "CONNECTION_TIMEOUT",
	SessionEventQueueSuspended:     "QUEUE_SUSPENDED",
	SessionEventQueueResumed:       "QUEUE_RESUMED",
	SessionEventHostUnhealthy:      "HOST_UNHEALTHY",
	SessionEventHostHealthRestored: "HOST_HEALTH_RESTORED",
	SessionEventError:              "ERROR",
}

func (t SessionEventType) String() string {
	if t >= 0 && int(t) < len(sessionEventNames) {
		return sessionEventNames[t]
	}

	return fmt.Sprintf("SessionEventType(%d)", int(t))
}

// SessionEventTypeFromOrdinal maps unknown values to SessionEventUndefined.
func SessionEventTypeFromOrdinal(v int32) SessionEventType {
	if v < 0 || int(v) >= len(sessionEventNames) {
		return SessionEventUndefined
	}

	return SessionEventType(v)
}

// SessionEvent reports a change in the state of the session or of one of its queues.
// QueueURI is set for queue scoped events only.
type SessionEvent struct {
	Type     SessionEventType
	Status   GenericResult
	QueueURI string
	Details  string
}

// Message is a message delivered to a reader. Payload is owned by the event and must be
// copied if it is needed after the callback returns.
type Message struct {
	GUID       MessageGUID
	QueueURI   string
	Payload    []byte
	Properties MessageProperties
}

type MessageEvent struct {
	Messages []Message
}

// AckEvent is the broker verdict for one posted message.
type AckEvent struct {
	Status   AckResult
	GUID     MessageGUID
	QueueURI string
}
