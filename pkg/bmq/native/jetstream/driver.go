// Package jetstream is the native driver for nats:// broker URIs. Queues live in
// NATS JetStream: a work-queue stream per domain, a subject per queue and a
// durable push consumer shared by all readers of a queue.
package jetstream

import (
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

const Scheme = "nats"

func init() {
	bridge.Register(driver{connect: connectNATS}, Scheme)
}

type driver struct {
	connect connector
}

func (d driver) Open(cfg bridge.NativeConfig, cb bridge.Callbacks) (bridge.Native, error) {
	return newSession(cfg, cb, d.connect), nil
}
