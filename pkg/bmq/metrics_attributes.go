package bmq

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	operationKey = "bmq.operation"
	resultKey    = "bmq.result"
	queueKey     = "bmq.queue"
	queueModeKey = "bmq.queue.mode"
	eventTypeKey = "bmq.event.type"
	brokerKey    = "bmq.broker"
)

func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(operationKey, op)
}

func ResultAttr(result string) attribute.KeyValue {
	return attribute.String(resultKey, result)
}

func QueueAttr(uri string) attribute.KeyValue {
	return attribute.String(queueKey, uri)
}

func QueueModeAttr(mode string) attribute.KeyValue {
	return attribute.String(queueModeKey, mode)
}

func EventTypeAttr(eventType string) attribute.KeyValue {
	return attribute.String(eventTypeKey, eventType)
}

func BrokerAttr(uri string) attribute.KeyValue {
	return attribute.String(brokerKey, uri)
}
