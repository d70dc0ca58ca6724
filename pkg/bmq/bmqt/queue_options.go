package bmqt

const (
	DefaultMaxUnconfirmedMessages int64 = 1000
	DefaultMaxUnconfirmedBytes    int64 = 33554432
	DefaultConsumerPriority       int32 = 0
)

// QueueOptions are the per-queue flow control and dispatch settings.
type QueueOptions struct {
	MaxUnconfirmedMessages  int64
	MaxUnconfirmedBytes     int64
	ConsumerPriority        int32
	SuspendsOnBadHostHealth bool
}

func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		MaxUnconfirmedMessages:  DefaultMaxUnconfirmedMessages,
		MaxUnconfirmedBytes:     DefaultMaxUnconfirmedBytes,
		ConsumerPriority:        DefaultConsumerPriority,
		SuspendsOnBadHostHealth: false,
	}
}

// Valid rejects negative flow control limits.
func (o QueueOptions) Valid() bool {
	return o.MaxUnconfirmedMessages >= 0 && o.MaxUnconfirmedBytes >= 0
}

// QueueOptionsPatch carries optional overrides. Nil fields keep the base value.
type QueueOptionsPatch struct {
	MaxUnconfirmedMessages  *int64
	MaxUnconfirmedBytes     *int64
	ConsumerPriority        *int32
	SuspendsOnBadHostHealth *bool
}

func (p QueueOptionsPatch) Apply(base QueueOptions) QueueOptions {
	if p.MaxUnconfirmedMessages != nil {
		base.MaxUnconfirmedMessages = *p.MaxUnconfirmedMessages
	}

	if p.MaxUnconfirmedBytes != nil {
		base.MaxUnconfirmedBytes = *p.MaxUnconfirmedBytes
	}

	if p.ConsumerPriority != nil {
		base.ConsumerPriority = *p.ConsumerPriority
	}

	if p.SuspendsOnBadHostHealth != nil {
		base.SuspendsOnBadHostHealth = *p.SuspendsOnBadHostHealth
	}

	return base
}
