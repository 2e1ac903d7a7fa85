package roaming

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEVSE is returned for nil EVSEs or EVSEs without identity.
	ErrInvalidEVSE = errors.New("roaming: invalid evse")
	// ErrInvalidCDR is returned for charge detail records without session id.
	ErrInvalidCDR = errors.New("roaming: invalid charge detail record")
	// ErrClosed is returned by enqueue operations after Close.
	ErrClosed = errors.New("roaming: provider closed")
	// ErrPusherPanic wraps a panic raised inside a Pusher call.
	ErrPusherPanic = errors.New("roaming: pusher panicked")
	// ErrNotAccepted is reported when a partner answered with a negative
	// acknowledgement.
	ErrNotAccepted = errors.New("roaming: batch not accepted")
)

// innermost returns the deepest error of a wrap chain.
func innermost(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// panicError converts a recovered value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}

// callSafely runs fn and turns a panic into ErrPusherPanic.
func callSafely[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPusherPanic, r)
		}
	}()
	return fn()
}
