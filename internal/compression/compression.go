// Package compression implements the payload codecs selected by bmqt.CompressionType.
package compression

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

// MaxPayloadSize bounds a decompressed payload.
const MaxPayloadSize = 64 << 20

var (
	ErrUnsupported     = errors.New("unsupported compression type")
	ErrPayloadTooLarge = errors.New("decompressed payload too large")
)

// Codec compresses outgoing payloads and restores incoming ones.
type Codec interface {
	Type() bmqt.CompressionType
	Encode(payload []byte) ([]byte, error)
	Decode(payload []byte) ([]byte, error)
}

// New returns the codec for t.
func New(t bmqt.CompressionType) (Codec, error) {
	switch t {
	case bmqt.CompressionNone:
		return none{}, nil
	case bmqt.CompressionZlib:
		return zlibCodec{level: zlib.DefaultCompression, limit: MaxPayloadSize}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupported, int(t))
	}
}

// Decode restores a payload encoded with the named type. Drivers carry the type
// alongside the message so readers can decode regardless of their own setting.
func Decode(t bmqt.CompressionType, payload []byte) ([]byte, error) {
	codec, err := New(t)
	if err != nil {
		return nil, err
	}

	return codec.Decode(payload)
}

type none struct{}

func (none) Type() bmqt.CompressionType            { return bmqt.CompressionNone }
func (none) Encode(payload []byte) ([]byte, error) { return payload, nil }
func (none) Decode(payload []byte) ([]byte, error) { return payload, nil }

type zlibCodec struct {
	level int
	limit int64
}

func (zlibCodec) Type() bmqt.CompressionType { return bmqt.CompressionZlib }

func (c zlibCodec) Encode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("zlib compress: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib flush: %w", err)
	}

	return buf.Bytes(), nil
}

func (c zlibCodec) Decode(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open zlib stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, c.limit+1))
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}

	if int64(len(out)) > c.limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrPayloadTooLarge, c.limit)
	}

	return out, nil
}
