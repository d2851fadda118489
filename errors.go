package ndi

import (
	"fmt"
	"time"
)

// ErrTimeout is returned by capture entry points when no frame of the
// requested kind arrived within the caller-supplied timeout. It is
// recoverable: the caller just retries.
type ErrTimeout struct{}

func (e ErrTimeout) Error() string {
	return "no frame arrived within the timeout"
}

// ErrSendInProgress is returned when a second asynchronous send is
// requested while a token from the first one is still alive. Sends are
// strictly single-flight per sender.
type ErrSendInProgress struct{}

func (e ErrSendInProgress) Error() string {
	return "an asynchronous send is already in flight"
}

// ErrFlushTimeout is returned when a flush could not confirm completion
// of the in-flight send within the given bound. Teardown proceeds
// anyway; hanging destruction forever is worse.
type ErrFlushTimeout struct {
	Timeout time.Duration
}

func (e ErrFlushTimeout) Error() string {
	return fmt.Sprintf("the in-flight send did not complete within %v", e.Timeout)
}

// ErrInvalidBuffer reports a null or degenerate buffer. It is a
// non-fatal skip on the capture path and a hard error on the send path.
type ErrInvalidBuffer struct {
	Reason string
}

func (e ErrInvalidBuffer) Error() string {
	return fmt.Sprintf("invalid buffer: %s", e.Reason)
}

// ErrBufferPinned is returned by frame.Buffer mutators while the buffer
// is borrowed by an outstanding send token.
type ErrBufferPinned struct{}

func (e ErrBufferPinned) Error() string {
	return "the buffer is pinned by an in-flight send"
}

// ErrClosed is returned when an operation is attempted on an already
// closed Receiver or Sender.
type ErrClosed struct{}

func (e ErrClosed) Error() string {
	return "the connection is already closed"
}

// ErrInitFailed wraps a failure to construct a connection.
type ErrInitFailed struct {
	Err error
}

func (e ErrInitFailed) Error() string {
	return fmt.Sprintf("unable to initialize: %v", e.Err)
}

func (e ErrInitFailed) Unwrap() error {
	return e.Err
}

// ErrNotSupported reports that the underlying engine does not implement
// the requested optional capability.
type ErrNotSupported struct {
	Capability string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("the engine does not support %s", e.Capability)
}
