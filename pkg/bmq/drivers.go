package bmq

// Drivers shipped with the client register their schemes with the bridge.
import (
	_ "github.com/architeacher/go-blazingmq/pkg/bmq/native/jetstream"
	_ "github.com/architeacher/go-blazingmq/pkg/bmq/native/memory"
	_ "github.com/architeacher/go-blazingmq/pkg/bmq/native/rabbitmq"
)
