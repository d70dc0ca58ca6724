package bridge

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	ErrUnknownQueue       = errors.New("queue is not open on this session")
	ErrUnsupportedCodec   = errors.New("unsupported compression type")
	ErrSessionStopped     = errors.New("session is stopped")
	ErrNativeConstruction = errors.New("native session construction failed")
)

// Fault reports a panic or an invariant violation at the native boundary.
type Fault struct {
	Op    string
	Value any
	Stack []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("boundary fault in %s: %v", f.Op, f.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (f *Fault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}

	return nil
}

// guard runs fn and converts a panic into a *Fault.
func guard(op string, fn func()) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = &Fault{Op: op, Value: r, Stack: debug.Stack()}
		}
	}()

	fn()

	return nil
}
