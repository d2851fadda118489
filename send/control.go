// control.go implements the shared control block of one sender
// connection: the single-flight flag, the destruction flag and the
// user's completion callback.

package send

import (
	"context"
	"sync"

	"github.com/go-ng/xatomic"
	"github.com/phuslu/goid"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"

	ndi "github.com/GrantSparks/grafton-ndi"
	"github.com/GrantSparks/grafton-ndi/logger"
	"github.com/GrantSparks/grafton-ndi/transport"
)

// control is shared three ways: by the Sender, by the live Token (at
// most one, single-flight) and by the engine's completion thread. All
// flag transitions happen under locker; the user callback always runs
// outside it.
type control struct {
	locker    xsync.Mutex
	inFlight  bool
	destroyed atomic.Bool

	// inFlightID identifies the send currently borrowing the caller's
	// buffer. Zero means the engine has not assigned an ID yet (the
	// window between beginSend and bindFrameID); the engine never
	// hands out frame ID zero.
	inFlightID transport.FrameID

	// earlyCompleteID records a completion that arrived before the
	// frame ID was bound; bindFrameID replays it.
	earlyCompleteID transport.FrameID

	completion *waitableCompletion

	// callback is published once via xatomic and read lock-free on the
	// completion path.
	callback *func(transport.FrameID)

	// callbackWG tracks user callbacks that are mid-execution, so
	// teardown can let them finish before destroying the engine.
	// callbackGoroutines remembers which goroutines those are, so a
	// Close issued from inside a callback does not wait for itself.
	callbackWG         sync.WaitGroup
	callbackGoroutines map[int64]int
}

func newControl() *control {
	return &control{
		// No send is in flight initially.
		completion:         newWaitableCompletion(true),
		callbackGoroutines: map[int64]int{},
	}
}

// beginSend arms the single-flight flag. A second begin while a send is
// outstanding fails with ndi.ErrSendInProgress.
func (c *control) beginSend(ctx context.Context) error {
	var err error
	c.locker.Do(ctx, func() {
		switch {
		case c.destroyed.Load():
			err = ndi.ErrClosed{}
		case c.inFlight:
			err = ndi.ErrSendInProgress{}
		default:
			c.inFlight = true
			c.inFlightID = 0
			c.earlyCompleteID = 0
			c.completion.Reset()
		}
	})
	return err
}

// bindFrameID attaches the engine-assigned ID to the in-flight send.
// If the engine confirmed the send before the ID was bound (the
// completion thread can outrun the sending goroutine), the recorded
// completion is replayed now.
func (c *control) bindFrameID(ctx context.Context, frameID transport.FrameID) {
	var cb func(transport.FrameID)
	proceed := false
	c.locker.Do(ctx, func() {
		if !c.inFlight {
			return
		}
		c.inFlightID = frameID
		if c.earlyCompleteID == frameID {
			cb, proceed = c.completeLocked(ctx, frameID)
		}
		c.earlyCompleteID = 0
	})
	c.invokeCallback(ctx, cb, proceed, frameID)
}

// complete is invoked either from the engine's callback thread or from
// the token's own wait/close logic. The first invocation for the
// in-flight send clears the flag, signals waiters and fires the user
// callback; completions for any other send (stale flush goroutines,
// duplicate engine callbacks) and completions after markDestroyed are
// no-ops.
func (c *control) complete(ctx context.Context, frameID transport.FrameID) {
	var cb func(transport.FrameID)
	proceed := false
	c.locker.Do(ctx, func() {
		cb, proceed = c.completeLocked(ctx, frameID)
	})
	c.invokeCallback(ctx, cb, proceed, frameID)
}

// completeLocked holds the actual completion transition; the caller
// holds locker.
func (c *control) completeLocked(
	ctx context.Context,
	frameID transport.FrameID,
) (func(transport.FrameID), bool) {
	if c.destroyed.Load() {
		logger.Debugf(ctx, "suppressing completion of frame %d: teardown already began", frameID)
		return nil, false
	}
	if !c.inFlight {
		return nil, false
	}
	if c.inFlightID == 0 {
		// The sending goroutine has not published the ID yet; remember
		// the confirmation for bindFrameID.
		c.earlyCompleteID = frameID
		return nil, false
	}
	if frameID != c.inFlightID {
		logger.Debugf(ctx, "ignoring completion of frame %d: frame %d is in flight", frameID, c.inFlightID)
		return nil, false
	}
	c.inFlight = false
	c.inFlightID = 0
	c.completion.Signal()
	var cb func(transport.FrameID)
	if cbPtr := xatomic.LoadPointer(&c.callback); cbPtr != nil {
		cb = *cbPtr
	}
	c.callbackWG.Add(1)
	c.callbackGoroutines[goid.Goid()]++
	return cb, true
}

// invokeCallback runs the user callback outside the lock (it may touch
// the sender again) and retires the mid-execution bookkeeping.
func (c *control) invokeCallback(
	ctx context.Context,
	cb func(transport.FrameID),
	proceed bool,
	frameID transport.FrameID,
) {
	if !proceed {
		return
	}
	defer func() {
		gid := goid.Goid()
		c.locker.Do(ctx, func() {
			c.callbackGoroutines[gid]--
			if c.callbackGoroutines[gid] == 0 {
				delete(c.callbackGoroutines, gid)
			}
		})
		c.callbackWG.Done()
	}()
	if cb != nil {
		cb(frameID)
	}
}

// consumeStuckSend clears the in-flight flag after a flush timeout: the
// engine never signalled, teardown proceeds anyway, and the flag must
// not stay stuck.
func (c *control) consumeStuckSend(ctx context.Context) {
	c.locker.Do(ctx, func() {
		if !c.inFlight {
			return
		}
		c.inFlight = false
		c.inFlightID = 0
		c.completion.Signal()
	})
}

func (c *control) isInFlight(ctx context.Context) bool {
	return xsync.DoR1(ctx, &c.locker, func() bool {
		return c.inFlight
	})
}

// currentFlight returns the in-flight send's frame ID, if any.
func (c *control) currentFlight(ctx context.Context) (transport.FrameID, bool) {
	return xsync.DoR2(ctx, &c.locker, func() (transport.FrameID, bool) {
		return c.inFlightID, c.inFlight
	})
}

// setCallback registers the completion callback. Only the first
// registration wins (the callback may already be referenced by the
// engine's thread).
func (c *control) setCallback(ctx context.Context, cb func(transport.FrameID)) {
	c.locker.Do(ctx, func() {
		if xatomic.LoadPointer(&c.callback) != nil {
			logger.Warnf(ctx, "ignoring a second completion callback registration")
			return
		}
		xatomic.StorePointer(&c.callback, &cb)
	})
}

// markDestroyed flips the destruction flag and waits for any user
// callback that is mid-execution. After it returns, complete is a no-op
// forever and the engine connection may be destroyed.
//
// When the caller itself is a completion callback (Close invoked from
// OnAsyncDone), waiting would deadlock on our own WaitGroup entry; the
// wait is skipped, which is safe because the rest of that callback runs
// user code only.
func (c *control) markDestroyed(ctx context.Context) {
	gid := goid.Goid()
	insideCallback := false
	c.locker.Do(ctx, func() {
		c.destroyed.Store(true)
		insideCallback = c.callbackGoroutines[gid] > 0
	})
	if insideCallback {
		logger.Debugf(ctx, "teardown requested from inside the completion callback; not waiting for it to return")
		return
	}
	c.callbackWG.Wait()
}
