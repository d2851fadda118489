// token.go implements the exclusive single-flight handle of one
// asynchronous send.

package send

import (
	"context"
	"errors"

	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/frame"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// Token tracks one asynchronous video send. It borrows the sender's
// control block and pins the caller's buffer for its whole lifetime:
// the buffer cannot be mutated until the token is consumed.
//
// A token is consumed by Wait or Close (which are equivalent in
// observable effect: both guarantee the send completed and the buffer
// is reusable). Leaked tokens are flushed by a finalizer as a safety
// net, but that is a bug in the calling code and is logged as such.
type Token struct {
	sender   *Sender
	buf      *frame.Buffer
	frameID  transport.FrameID
	consumed atomic.Bool
}

func newToken(
	sender *Sender,
	buf *frame.Buffer,
	frameID transport.FrameID,
) *Token {
	t := &Token{
		sender:  sender,
		buf:     buf,
		frameID: frameID,
	}
	buf.Pin()
	return t
}

// FrameID identifies this send inside the engine.
func (t *Token) FrameID() transport.FrameID {
	return t.frameID
}

// IsConsumed reports whether the token was already waited on or closed.
func (t *Token) IsConsumed() bool {
	return t.consumed.Load()
}

// Wait blocks until the send completed, then consumes the token and
// unpins the buffer. Waiting is bounded by the sender's flush timeout;
// on expiry the token is consumed anyway (teardown must never hang
// forever) and ndi.ErrFlushTimeout is returned.
//
// Calling Wait on an already consumed token returns nil.
func (t *Token) Wait(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Token.Wait(ctx)")
	defer func() { logger.Tracef(ctx, "/Token.Wait(ctx): %v", _err) }()

	if !t.consumed.CompareAndSwap(false, true) {
		return nil
	}
	defer t.buf.Unpin()

	err := t.sender.awaitCompletion(ctx, t.frameID)
	if err != nil {
		var errTimeout ndi.ErrFlushTimeout
		if errors.As(err, &errTimeout) {
			logger.Errorf(ctx, "the engine did not confirm completion of frame %d within %v; the buffer may still be in use", t.frameID, errTimeout.Timeout)
			t.sender.ctrl.consumeStuckSend(ctx)
		}
		return err
	}
	return nil
}

// Close consumes the token exactly like Wait: closing always flushes.
// An earlier revision flushed only conditionally and silently dropped
// in-flight sends; the unconditional behavior is deliberate.
func (t *Token) Close(ctx context.Context) error {
	return t.Wait(ctx)
}

func (t *Token) finalize() {
	if t.consumed.Load() {
		return
	}
	ctx := context.TODO()
	logger.Errorf(ctx, "a send token was garbage-collected without Wait/Close; flushing now")
	_ = t.Wait(ctx)
}
