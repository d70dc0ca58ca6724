package bmq

import (
	"errors"
	"fmt"
	"strings"

	"github.com/architeacher/go-blazingmq/pkg/bmq/bmqt"
	"github.com/architeacher/go-blazingmq/pkg/bmq/bridge"
)

var (
	ErrQueueNotOpen     = errors.New("queue is not open")
	ErrSessionClosed    = errors.New("session is closed")
	ErrReentrantCall    = errors.New("blocking call from inside an event handler callback")
	ErrNoDriver         = bridge.ErrNoDriver
	ErrEmptyPayload     = errors.New("payload is empty")
	ErrQueueNotWritable = bridge.ErrQueueNotWritable
	ErrQueueNotReadable = bridge.ErrQueueNotReadable
	ErrForeignQueue     = errors.New("queue belongs to another session")
)

// ErrorKind classifies an Error by where it originated.
type ErrorKind int

const (
	// KindSessionCreate covers failures to construct or start a session.
	KindSessionCreate ErrorKind = iota + 1
	// KindBoundaryFault covers panics and invariant violations at the native boundary.
	KindBoundaryFault
	// KindSessionError covers operations that completed with a non-success result.
	KindSessionError
)

func (k ErrorKind) String() string {
	switch k {
	case KindSessionCreate:
		return "session_create"
	case KindBoundaryFault:
		return "boundary_fault"
	case KindSessionError:
		return "session_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the uniform error returned by every session and queue operation.
type Error struct {
	Kind    ErrorKind
	Op      string
	Code    bmqt.ResultCode
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("bmq: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())

	if e.Code != nil {
		b.WriteString(" ")
		b.WriteString(e.Code.String())
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches a target *Error on its non-zero Kind and non-nil Code. Generic codes
// match any result type with the same ordinal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if t.Kind != 0 && t.Kind != e.Kind {
		return false
	}

	if t.Code != nil && (e.Code == nil || !sameCode(e.Code, t.Code)) {
		return false
	}

	return t.Kind != 0 || t.Code != nil
}

func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value

	return e
}

func sameCode(a, b bmqt.ResultCode) bool {
	if a.Ordinal() != b.Ordinal() {
		return false
	}

	if _, generic := b.(bmqt.GenericResult); generic {
		return true
	}

	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

// CodeOf extracts the result code carried by err.
func CodeOf(err error) (bmqt.ResultCode, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Code == nil {
		return nil, false
	}

	return e.Code, true
}

// IsTimeout reports whether err carries a Timeout result.
func IsTimeout(err error) bool {
	code, ok := CodeOf(err)

	return ok && code.Ordinal() == bmqt.GenericTimeout.Ordinal()
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error

	return errors.As(err, &e) && e.Kind == kind
}

func newSessionCreateError(op string, code bmqt.ResultCode, cause error) *Error {
	return &Error{Kind: KindSessionCreate, Op: op, Code: code, Cause: cause}
}

func newSessionError(op string, code bmqt.ResultCode, cause error) *Error {
	return &Error{Kind: KindSessionError, Op: op, Code: code, Cause: cause}
}

func newBoundaryFault(op string, fault *bridge.Fault) *Error {
	e := &Error{Kind: KindBoundaryFault, Op: op, Cause: fault}

	return e.WithDetails("boundary_op", fault.Op).
		WithDetails("panic", fmt.Sprint(fault.Value)).
		WithDetails("stack", string(fault.Stack))
}

func reentrantError(op string) *Error {
	return newSessionError(op, bmqt.GenericNotSupported, ErrReentrantCall)
}

func invalidArgument(op string, cause error) *Error {
	return newSessionError(op, bmqt.GenericInvalidArgument, cause)
}

// translate folds a bridge result and error into an *Error, or nil on success.
func translate(op string, res bmqt.ResultCode, err error) error {
	var fault *bridge.Fault
	if errors.As(err, &fault) {
		return newBoundaryFault(op, fault)
	}

	if errors.Is(err, bridge.ErrUnknownQueue) {
		return invalidArgument(op, fmt.Errorf("%w: %w", ErrQueueNotOpen, err))
	}

	if err == nil && res.IsSuccess() {
		return nil
	}

	if err == nil && res.Ordinal() == bmqt.GenericNotConnected.Ordinal() {
		err = ErrSessionClosed
	}

	return newSessionError(op, res, err)
}
