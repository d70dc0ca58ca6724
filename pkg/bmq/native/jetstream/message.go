package jetstream

import (
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/architeacher/go-blazingmq/internal/compression"
	"github.com/architeacher/go-blazingmq/internal/wire"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

func newMsg(subject string, put *bridge.PutMessage, codec compression.Codec) (*nats.Msg, error) {
	body, err := codec.Encode(put.Payload)
	if err != nil {
		return nil, err
	}

	props, err := wire.MarshalProperties(put.Properties)
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set(wire.HeaderGUID, put.GUID.String())
	msg.Header.Set(nats.MsgIdHdr, put.GUID.String())

	if codec.Type() != bmqt.CompressionNone {
		msg.Header.Set(wire.HeaderCompression, codec.Type().String())
	}

	if props != nil {
		msg.Header.Set(wire.HeaderProperties, string(props))
	}

	return msg, nil
}

func decodeMsg(id bridge.QueueID, header nats.Header, data []byte) (bridge.Message, error) {
	guid, err := uuid.Parse(header.Get(wire.HeaderGUID))
	if err != nil {
		guid = uuid.New()
	}

	codecType, err := bmqt.ParseCompressionType(header.Get(wire.HeaderCompression))
	if err != nil {
		return bridge.Message{}, err
	}

	payload, err := compression.Decode(codecType, data)
	if err != nil {
		return bridge.Message{}, err
	}

	var raw []byte
	if v := header.Get(wire.HeaderProperties); v != "" {
		raw = []byte(v)
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
