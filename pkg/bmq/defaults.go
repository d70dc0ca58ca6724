package bmq

import (
	"github.com/architeacher/go-blazingmq/internal/config"
)

const (
	DefaultBrokerURI = config.DefaultBrokerURI
	DefaultTimeout   = config.DefaultTimeout
)
