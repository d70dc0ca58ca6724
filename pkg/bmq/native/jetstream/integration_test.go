//go:build integration

package jetstream_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcNats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
	_ "github.com/architeacher/go-blazingmq/pkg/bmq/native/jetstream"
)

const natsImage = "nats:2-alpine"

type collector struct {
	mu   sync.Mutex
	msgs []bmqt.Message
	acks []bmqt.AckEvent
}

func (c *collector) OnSessionEvent(context.Context, *bmqt.SessionEvent) {}

func (c *collector) OnMessageEvent(_ context.Context, ev *bmqt.MessageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, ev.Messages...)
}

func (c *collector) OnAckEvent(_ context.Context, ev *bmqt.AckEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.acks = append(c.acks, *ev)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.msgs), len(c.acks)
}

func startNATS(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcNats.Run(ctx, natsImage,
		testcontainers.WithCmdArgs("--js"),
		testcontainers.WithWaitStrategy(wait.ForLog("Server is ready")),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	return uri
}

func TestJetStream_PostConsumeConfirm(t *testing.T) {
	uri := startNATS(t)
	ctx := context.Background()

	for _, ct := range []bmqt.CompressionType{bmqt.CompressionNone, bmqt.CompressionZlib} {
		t.Run(ct.String(), func(t *testing.T) {
			queueURI := "bmq://integration/" + ct.String()
			events := &collector{}

			s, err := bridge.New(bridge.Config{URI: uri, Timeout: 30 * time.Second, Compression: ct, Handler: events})
			require.NoError(t, err)

			defer s.Close()

			res, err := s.Start(ctx)
			require.NoError(t, err)
			require.Equal(t, bmqt.GenericSuccess, res)

			ref, openRes, err := s.OpenQueue(ctx, queueURI, bmqt.QueueModeReadWrite, bmqt.DefaultQueueOptions())
			require.NoError(t, err)
			require.Equal(t, bmqt.OpenQueueSuccess, openRes)

			props := bmqt.MessageProperties{"kind": bmqt.StringProperty("integration")}

			_, postRes, err := s.Post(ref, []byte{1, 2, 3}, props, nil)
			require.NoError(t, err)
			require.Equal(t, bmqt.PostSuccess, postRes)

			require.Eventually(t, func() bool {
				msgs, acks := events.counts()

				return msgs == 1 && acks == 1
			}, 30*time.Second, 50*time.Millisecond)

			events.mu.Lock()
			msg := events.msgs[0]
			ack := events.acks[0]
			events.mu.Unlock()

			assert.Equal(t, bmqt.AckSuccess, ack.Status)
			assert.Equal(t, []byte{1, 2, 3}, msg.Payload)
			assert.True(t, msg.Properties["kind"].Equal(bmqt.StringProperty("integration")))

			confirmRes, err := s.Confirm(msg.QueueURI, msg.GUID)
			require.NoError(t, err)
			assert.Equal(t, bmqt.GenericSuccess, confirmRes)
		})
	}
}
