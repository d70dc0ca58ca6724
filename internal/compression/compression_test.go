package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
)

func TestCodecs(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("blazing message "), 64)

	for _, typ := range []bmqt.CompressionType{bmqt.CompressionNone, bmqt.CompressionZlib} {
		t.Run(typ.String(), func(t *testing.T) {
			t.Parallel()

			codec, err := New(typ)
			require.NoError(t, err)
			assert.Equal(t, typ, codec.Type())

			encoded, err := codec.Encode(payload)
			require.NoError(t, err)

			if typ == bmqt.CompressionZlib {
				assert.Less(t, len(encoded), len(payload))
			}

			decoded, err := Decode(typ, encoded)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(bmqt.CompressionType(9))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestZlibDecode_Corrupt(t *testing.T) {
	t.Parallel()

	_, err := Decode(bmqt.CompressionZlib, []byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestZlibDecode_Limit(t *testing.T) {
	t.Parallel()

	codec := zlibCodec{level: 9, limit: 1024}

	atLimit, err := codec.Encode(make([]byte, 1024))
	require.NoError(t, err)

	out, err := codec.Decode(atLimit)
	require.NoError(t, err)
	assert.Len(t, out, 1024)

	bomb, err := codec.Encode(make([]byte, 1<<20))
	require.NoError(t, err)
	require.Less(t, len(bomb), 4096)

	_, err = codec.Decode(bomb)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}
