package bmq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code and cause",
			err:  newSessionError("post", bmqt.PostInvalidArgument, ErrEmptyPayload),
			want: "bmq: post: session_error INVALID_ARGUMENT: payload is empty",
		},
		{
			name: "code only",
			err:  newSessionError("open_queue", bmqt.OpenQueueAlreadyOpened, nil),
			want: "bmq: open_queue: session_error ALREADY_OPENED",
		},
		{
			name: "cause only",
			err:  newSessionCreateError("build", nil, errors.New("dial failed")),
			want: "bmq: build: session_create: dial failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", newSessionError("open_queue", bmqt.OpenQueueTimeout, nil))

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{name: "same kind", target: &Error{Kind: KindSessionError}, want: true},
		{name: "other kind", target: &Error{Kind: KindSessionCreate}, want: false},
		{name: "same typed code", target: &Error{Code: bmqt.OpenQueueTimeout}, want: true},
		{name: "generic code matches by ordinal", target: &Error{Code: bmqt.GenericTimeout}, want: true},
		{name: "other result type with same ordinal", target: &Error{Code: bmqt.PostTimeout}, want: false},
		{name: "kind and code", target: &Error{Kind: KindSessionError, Code: bmqt.GenericTimeout}, want: true},
		{name: "empty target", target: &Error{}, want: false},
		{name: "plain error", target: ErrSessionClosed, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, errors.Is(err, tt.target))
		})
	}
}

func TestCodeOfAndHelpers(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("outer: %w", newSessionError("configure_queue", bmqt.ConfigureQueueTimeout, nil))

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, bmqt.ConfigureQueueTimeout, code)
	assert.True(t, IsTimeout(err))
	assert.True(t, IsKind(err, KindSessionError))
	assert.False(t, IsKind(err, KindBoundaryFault))

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)

	_, ok = CodeOf(newSessionCreateError("build", nil, errors.New("no code")))
	assert.False(t, ok)
	assert.False(t, IsTimeout(nil))
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	fault := &bridge.Fault{Op: "post", Value: "boom", Stack: []byte("stack")}

	tests := []struct {
		name     string
		res      bmqt.ResultCode
		err      error
		wantNil  bool
		wantKind ErrorKind
		wantErr  error
		wantCode bmqt.ResultCode
	}{
		{name: "success", res: bmqt.PostSuccess, wantNil: true},
		{name: "failure code", res: bmqt.PostBandwidthLimit, wantKind: KindSessionError, wantCode: bmqt.PostBandwidthLimit},
		{name: "not connected", res: bmqt.CloseQueueNotConnected, wantKind: KindSessionError, wantErr: ErrSessionClosed, wantCode: bmqt.CloseQueueNotConnected},
		{name: "unknown queue", res: bmqt.PostInvalidArgument, err: bridge.ErrUnknownQueue, wantKind: KindSessionError, wantErr: ErrQueueNotOpen, wantCode: bmqt.GenericInvalidArgument},
		{name: "boundary fault", res: bmqt.PostUnknown, err: fault, wantKind: KindBoundaryFault, wantErr: fault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := translate("op", tt.res, tt.err)
			if tt.wantNil {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.True(t, IsKind(err, tt.wantKind))

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}

			if tt.wantCode != nil {
				code, ok := CodeOf(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantCode, code)
			}
		})
	}
}

func TestBoundaryFaultDetails(t *testing.T) {
	t.Parallel()

	err := newBoundaryFault("post", &bridge.Fault{Op: "post", Value: "boom", Stack: []byte("goroutine 1")})

	assert.Equal(t, KindBoundaryFault, err.Kind)
	assert.Equal(t, "post", err.Details["boundary_op"])
	assert.Equal(t, "boom", err.Details["panic"])
	assert.Equal(t, "goroutine 1", err.Details["stack"])
}

func TestReentrantError(t *testing.T) {
	t.Parallel()

	err := reentrantError("close_queue")

	require.ErrorIs(t, err, ErrReentrantCall)
	assert.Equal(t, bmqt.GenericNotSupported, err.Code)
}
