package bmq

import (
	"context"
	"time"
)

type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordOperation(_ context.Context, _, _ string, _ time.Duration) {
}

func (n *NoOpMetrics) RecordPost(_ context.Context, _, _ string, _ int) {
}

func (n *NoOpMetrics) RecordAck(_ context.Context, _, _ string, _ time.Duration) {
}

func (n *NoOpMetrics) RecordMessage(_ context.Context, _ string, _ int) {
}

func (n *NoOpMetrics) RecordSessionEvent(_ context.Context, _ string) {
}
