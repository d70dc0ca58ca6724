package rabbitmq

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/architeacher/go-blazingmq/internal/compression"
	"github.com/architeacher/go-blazingmq/internal/wire"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

const contentType = "application/octet-stream"

func newPublishing(msg *bridge.PutMessage, codec compression.Codec) (amqp.Publishing, error) {
	body, err := codec.Encode(msg.Payload)
	if err != nil {
		return amqp.Publishing{}, err
	}

	props, err := wire.MarshalProperties(msg.Properties)
	if err != nil {
		return amqp.Publishing{}, err
	}

	headers := amqp.Table{}
	if props != nil {
		headers[wire.HeaderProperties] = string(props)
	}

	encoding := ""
	if codec.Type() != bmqt.CompressionNone {
		encoding = codec.Type().String()
	}

	return amqp.Publishing{
		Headers:         headers,
		ContentType:     contentType,
		ContentEncoding: encoding,
		DeliveryMode:    amqp.Persistent,
		MessageId:       msg.GUID.String(),
		Timestamp:       time.Now(),
		Body:            body,
	}, nil
}

// decodeDelivery restores the message a peer posted. Deliveries that were not
// posted through this driver get a fresh GUID.
func decodeDelivery(id bridge.QueueID, d amqp.Delivery) (bridge.Message, error) {
	guid, err := uuid.Parse(d.MessageId)
	if err != nil {
		guid = uuid.New()
	}

	codecType, err := bmqt.ParseCompressionType(d.ContentEncoding)
	if err != nil {
		return bridge.Message{}, err
	}

	payload, err := compression.Decode(codecType, d.Body)
	if err != nil {
		return bridge.Message{}, err
	}

	var raw []byte

	switch v := d.Headers[wire.HeaderProperties].(type) {
	case nil:
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return bridge.Message{}, fmt.Errorf("%w: header of type %T", wire.ErrMalformedProperties, v)
	}

	props, err := wire.UnmarshalProperties(raw)
	if err != nil {
		return bridge.Message{}, err
	}

	return bridge.Message{
		QueueID:    id,
		GUID:       guid,
		Payload:    payload,
		Properties: props,
	}, nil
}
