// completion.go implements the waitable completion signal used to
// synchronize async sends between application goroutines and the
// engine's callback thread.

package send

import (
	"context"
	"sync"
	"time"

	ndi "github.com/GrantSparks/grafton-ndi"
)

// waitableCompletion is a resettable one-shot signal: one side signals
// completion, any amount of waiters block on it with a bound. It is the
// only synchronization primitive between the send token, the sender and
// the engine's completion thread.
type waitableCompletion struct {
	locker    sync.Mutex
	completed bool
	ch        chan struct{}
}

func newWaitableCompletion(completed bool) *waitableCompletion {
	wc := &waitableCompletion{
		ch: make(chan struct{}),
	}
	if completed {
		wc.completed = true
		close(wc.ch)
	}
	return wc
}

// Signal marks the operation complete and wakes every waiter. Safe to
// call multiple times.
func (wc *waitableCompletion) Signal() {
	wc.locker.Lock()
	defer wc.locker.Unlock()
	if wc.completed {
		return
	}
	wc.completed = true
	close(wc.ch)
}

func (wc *waitableCompletion) IsComplete() bool {
	wc.locker.Lock()
	defer wc.locker.Unlock()
	return wc.completed
}

// Reset re-arms the signal before a new operation starts. Must not race
// with an operation still in flight; the single-flight control block
// guarantees that.
func (wc *waitableCompletion) Reset() {
	wc.locker.Lock()
	defer wc.locker.Unlock()
	if !wc.completed {
		return
	}
	wc.completed = false
	wc.ch = make(chan struct{})
}

func (wc *waitableCompletion) waitChan() <-chan struct{} {
	wc.locker.Lock()
	defer wc.locker.Unlock()
	return wc.ch
}

// Wait blocks until the signal fires, the timeout expires or ctx is
// cancelled.
func (wc *waitableCompletion) Wait(
	ctx context.Context,
	timeout time.Duration,
) error {
	ch := wc.waitChan()
	select {
	case <-ch:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ndi.ErrFlushTimeout{Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}
