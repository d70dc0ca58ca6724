package jetstream

import (
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/go-blazingmq/internal/config"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

type fakeFuture struct {
	msg *nats.Msg
	ok  chan *nats.PubAck
	err chan error
}

func newFakeFuture(msg *nats.Msg) *fakeFuture {
	return &fakeFuture{msg: msg, ok: make(chan *nats.PubAck, 1), err: make(chan error, 1)}
}

func (f *fakeFuture) Ok() <-chan *nats.PubAck { return f.ok }
func (f *fakeFuture) Err() <-chan error       { return f.err }
func (f *fakeFuture) Msg() *nats.Msg          { return f.msg }

func (f *fakeFuture) resolve(err error) {
	if err != nil {
		f.err <- err

		return
	}

	f.ok <- &nats.PubAck{Stream: "BMQ_TEST"}
}

type fakeJetStream struct {
	mu         sync.Mutex
	autoAck    bool
	streamErr  error
	publishErr error
	streams    []*nats.StreamConfig
	consumers  []*nats.ConsumerConfig
	futures    []*fakeFuture
	subscribed []string
}

func (js *fakeJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.streamErr != nil {
		return nil, js.streamErr
	}

	for _, s := range js.streams {
		if s.Name == cfg.Name {
			return nil, nats.ErrStreamNameAlreadyInUse
		}
	}

	js.streams = append(js.streams, cfg)

	return &nats.StreamInfo{Config: *cfg}, nil
}

func (js *fakeJetStream) AddConsumer(_ string, cfg *nats.ConsumerConfig, _ ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	js.consumers = append(js.consumers, cfg)

	return &nats.ConsumerInfo{Config: *cfg}, nil
}

func (js *fakeJetStream) PublishMsgAsync(m *nats.Msg, _ ...nats.PubOpt) (nats.PubAckFuture, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.publishErr != nil {
		return nil, js.publishErr
	}

	f := newFakeFuture(m)
	js.futures = append(js.futures, f)

	if js.autoAck {
		f.resolve(nil)
	}

	return f, nil
}

func (js *fakeJetStream) QueueSubscribe(subj, queue string, _ nats.MsgHandler, _ ...nats.SubOpt) (*nats.Subscription, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	js.subscribed = append(js.subscribed, queue)

	return &nats.Subscription{Subject: subj, Queue: queue}, nil
}

func (js *fakeJetStream) future(i int) *fakeFuture {
	js.mu.Lock()
	defer js.mu.Unlock()

	if i >= len(js.futures) {
		return nil
	}

	return js.futures[i]
}

func (js *fakeJetStream) streamCount() int {
	js.mu.Lock()
	defer js.mu.Unlock()

	return len(js.streams)
}

func (js *fakeJetStream) subscriptions() []string {
	js.mu.Lock()
	defer js.mu.Unlock()

	return append([]string(nil), js.subscribed...)
}

type fakeConn struct {
	js     *fakeJetStream
	jsErr  error
	opts   nats.Options
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) jetStream() (jetStream, error) {
	if c.jsErr != nil {
		return nil, c.jsErr
	}

	return c.js, nil
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
}

var errConnectRefused = errors.New("nats: no servers available for connection")

// fakeServer hands out connections that share one fake JetStream context.
type fakeServer struct {
	js *fakeJetStream

	mu       sync.Mutex
	failing  bool
	jsErr    error
	connects int
	conns    []*fakeConn
}

func newFakeServer() *fakeServer {
	return &fakeServer{js: &fakeJetStream{}}
}

func (f *fakeServer) connect(_ string, opts ...nats.Option) (conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++

	if f.failing {
		return nil, errConnectRefused
	}

	c := &fakeConn{js: f.js, jsErr: f.jsErr, opts: nats.GetDefaultOptions()}
	for _, opt := range opts {
		if err := opt(&c.opts); err != nil {
			return nil, err
		}
	}

	f.conns = append(f.conns, c)

	return c, nil
}

func (f *fakeServer) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.conns) == 0 {
		return nil
	}

	return f.conns[len(f.conns)-1]
}

type callbacks struct {
	mu     sync.Mutex
	events []bridge.SessionEvent
	msgs   []bridge.Message
	acks   []bridge.Ack
}

func (r *callbacks) table() bridge.Callbacks {
	return bridge.Callbacks{
		OnSessionEvent: func(ev bridge.SessionEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.events = append(r.events, ev)
		},
		OnMessages: func(msgs []bridge.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()

			r.msgs = append(r.msgs, msgs...)
		},
		OnAck: r.onAck,
	}
}

func (r *callbacks) onAck(ack bridge.Ack) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acks = append(r.acks, ack)
}

func (r *callbacks) onMessages(msgs []bridge.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.msgs = append(r.msgs, msgs...)
}

func (r *callbacks) eventTypes() []bmqt.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]bmqt.SessionEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, bmqt.SessionEventTypeFromOrdinal(ev.Type))
	}

	return out
}

func (r *callbacks) messages() []bridge.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]bridge.Message(nil), r.msgs...)
}

func (r *callbacks) ackList() []bridge.Ack {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]bridge.Ack(nil), r.acks...)
}

func testConfig(t *testing.T, maxAttempts int) bridge.NativeConfig {
	t.Helper()

	u, err := url.Parse("nats://localhost:4222")
	require.NoError(t, err)

	return bridge.NativeConfig{
		URI:     u,
		Timeout: time.Second,
		Reconnect: config.BackoffConfig{
			BaseDelay:   time.Millisecond,
			Multiplier:  1,
			MaxDelay:    time.Millisecond,
			MaxAttempts: maxAttempts,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      1,
			Timeout:          time.Minute,
			FailureThreshold: 3,
		},
	}
}
